package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"

	"vllmd/pkg/types"
)

// vllmCommand builds the OpenAI-compatible vLLM server invocation for a
// model record. The serve config is consumed verbatim; values are not
// validated here.
func vllmCommand(pythonBin string, rec types.ModelRecord, port int) *exec.Cmd {
	args := []string{
		"-m", "vllm.entrypoints.openai.api_server",
		"--model", rec.Path,
		"--served-model-name", rec.Name,
		"--port", strconv.Itoa(port),
		"--host", "0.0.0.0",
		"--gpu-memory-utilization", fmt.Sprintf("%g", rec.Config.GPUMemoryUtilization),
		"--tensor-parallel-size", strconv.Itoa(rec.Config.TensorParallelSize),
		"--max-model-len", strconv.Itoa(rec.Config.MaxModelLen),
		"--dtype", rec.Config.DType,
	}
	if q := rec.Config.Quantization; q != "" {
		args = append(args, "--quantization", q)
	}
	if rec.Config.TrustRemoteCode {
		args = append(args, "--trust-remote-code")
	}
	if rec.Config.EnablePrefixCaching {
		args = append(args, "--enable-prefix-caching")
	}
	return exec.Command(pythonBin, args...)
}
