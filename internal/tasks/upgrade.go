package tasks

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vllmd/pkg/types"
)

// upgradeWork upgrades the installed vLLM build, streaming the command
// output line by line. In dev mode it pulls and reinstalls the source tree;
// otherwise it upgrades from the package index.
func (s *Service) upgradeWork(logf func(string)) {
	defer logf(upgradeCompleteMarker)
	logf(stamp("Starting vLLM upgrade..."))

	info := ReadSystemInfo(s.installDir)
	var cmds []*exec.Cmd
	if info.DevMode {
		src := filepath.Join(s.installDir, "vllm-source")
		if _, err := os.Stat(src); err != nil {
			logf(stamp("ERROR: vllm-source dir not found"))
			return
		}
		logf(stamp("Pulling git..."))
		pull := exec.Command("git", "pull")
		pull.Dir = src
		install := exec.Command(s.pythonBin, "-m", "pip", "install", "-e", ".")
		install.Dir = src
		cmds = []*exec.Cmd{pull, install}
	} else {
		install := exec.Command(s.pythonBin, "-m", "pip", "install", "--upgrade", "vllm")
		install.Dir = s.installDir
		cmds = []*exec.Cmd{install}
	}
	for _, cmd := range cmds {
		logf(stamp("Exec: " + strings.Join(cmd.Args, " ")))
		if err := runStreaming(cmd, func(l string) { logf(stamp(l)) }); err != nil {
			logf(stamp("ERROR: " + err.Error()))
			return
		}
	}
	logf(stamp("Upgrade complete. Restart required."))
}

// runStreaming runs cmd, forwarding its combined output line by line to
// sink. Lines are delivered raw; callers add their own framing.
func runStreaming(cmd *exec.Cmd, sink func(string)) error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return err
	}
	pw.Close()
	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		sink(sc.Text())
	}
	pr.Close()
	return cmd.Wait()
}

// ReadSystemInfo parses the installation's .install_info file. Missing files
// yield the defaults: release mode, unknown version.
func ReadSystemInfo(installDir string) types.SystemInfo {
	info := types.SystemInfo{VLLMVersion: "Unknown"}
	b, err := os.ReadFile(filepath.Join(installDir, ".install_info"))
	if err != nil {
		return info
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.Contains(line, "DEV_MODE=true") {
			info.DevMode = true
		}
		if v, ok := strings.CutPrefix(line, "VLLM_VERSION="); ok {
			info.VLLMVersion = v
		}
	}
	return info
}

// SystemInfo reports the installed vLLM build for the system-info endpoint.
func (s *Service) SystemInfo() types.SystemInfo {
	return ReadSystemInfo(s.installDir)
}
