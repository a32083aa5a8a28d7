package tasks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// CLIFetcher acquires model artifacts by shelling out to huggingface-cli,
// streaming its output as progress text.
type CLIFetcher struct {
	// Bin is the huggingface-cli executable. Defaults to "huggingface-cli".
	Bin string
}

func (f CLIFetcher) Fetch(ctx context.Context, sourceID, dest string, progress func(string)) error {
	bin := f.Bin
	if bin == "" {
		bin = "huggingface-cli"
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, bin, "download", sourceID, "--local-dir", dest)
	return runStreaming(cmd, progress)
}
