package tasks

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"vllmd/pkg/types"
)

type fakeRecords struct {
	mu       sync.Mutex
	statuses []types.DownloadStatus
	path     string
	sizeGB   float64
	typ      types.ModelType
}

func (f *fakeRecords) SetDownloadStatus(_ context.Context, _ int64, st types.DownloadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, st)
	return nil
}

func (f *fakeRecords) SetArtifact(_ context.Context, _ int64, path string, sizeGB float64, typ types.ModelType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, types.DownloadCompleted)
	f.path, f.sizeGB, f.typ = path, sizeGB, typ
	return nil
}

func (f *fakeRecords) history() []types.DownloadStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.DownloadStatus(nil), f.statuses...)
}

type fakeFetcher struct {
	fail  bool
	gate  chan struct{} // when set, Fetch waits for it before doing anything
	files map[string]string // relative path -> content written under dest
}

func (f fakeFetcher) Fetch(_ context.Context, _ string, dest string, progress func(string)) error {
	if f.gate != nil {
		<-f.gate
	}
	progress("Fetching 2 files")
	if f.fail {
		return errors.New("network unreachable")
	}
	for name, content := range f.files {
		p := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func testRecord() types.ModelRecord {
	return types.ModelRecord{ID: 3, Name: "tiny", SourceID: "org/tiny"}
}

func TestDownloadSuccessCommitsArtifact(t *testing.T) {
	dir := t.TempDir()
	recs := &fakeRecords{}
	gate := make(chan struct{})
	svc := NewService(NewRunner(nil), recs, fakeFetcher{gate: gate, files: map[string]string{
		"config.json":       `{"model_type":"llama"}`,
		"model.safetensors": "weights",
	}}, dir, "python3", dir)

	if err := svc.StartDownload(testRecord()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch, err := svc.Subscribe(DownloadTaskID(3))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	close(gate)
	lines := drainUntilClosed(t, ch)
	if len(lines) == 0 || lines[len(lines)-1] != downloadCompleteMarker {
		t.Fatalf("expected terminal marker, lines=%v", lines)
	}
	hist := recs.history()
	if len(hist) != 2 || hist[0] != types.DownloadInProgress || hist[1] != types.DownloadCompleted {
		t.Fatalf("status history=%v", hist)
	}
	if recs.path != filepath.Join(dir, "tiny") || recs.typ != types.TypeText {
		t.Fatalf("artifact commit: path=%q typ=%q", recs.path, recs.typ)
	}
}

func TestDownloadFailureCommitsError(t *testing.T) {
	dir := t.TempDir()
	recs := &fakeRecords{}
	gate := make(chan struct{})
	svc := NewService(NewRunner(nil), recs, fakeFetcher{fail: true, gate: gate}, dir, "python3", dir)

	if err := svc.StartDownload(testRecord()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch, err := svc.Subscribe(DownloadTaskID(3))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	close(gate)
	lines := drainUntilClosed(t, ch)
	var sawError bool
	for _, l := range lines {
		if strings.Contains(l, "ERROR: network unreachable") {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected error line, got %v", lines)
	}
	if lines[len(lines)-1] != downloadCompleteMarker {
		t.Fatalf("marker missing: %v", lines)
	}
	hist := recs.history()
	if len(hist) != 2 || hist[1] != types.DownloadError {
		t.Fatalf("status history=%v", hist)
	}
}

func TestDuplicateDownloadConflicts(t *testing.T) {
	dir := t.TempDir()
	recs := &fakeRecords{}
	block := make(chan struct{})
	svc := NewService(NewRunner(nil), recs, blockingFetcher{block}, dir, "python3", dir)
	if err := svc.StartDownload(testRecord()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.StartDownload(testRecord()); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	ch, _ := svc.Subscribe(DownloadTaskID(3))
	close(block)
	drainUntilClosed(t, ch)
}

type blockingFetcher struct{ block chan struct{} }

func (f blockingFetcher) Fetch(context.Context, string, string, func(string)) error {
	<-f.block
	return errors.New("aborted")
}

func TestReadSystemInfo(t *testing.T) {
	dir := t.TempDir()
	info := ReadSystemInfo(dir)
	if info.DevMode || info.VLLMVersion != "Unknown" {
		t.Fatalf("defaults: %+v", info)
	}
	content := "DEV_MODE=true\nVLLM_VERSION=0.6.3\n"
	if err := os.WriteFile(filepath.Join(dir, ".install_info"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info = ReadSystemInfo(dir)
	if !info.DevMode || info.VLLMVersion != "0.6.3" {
		t.Fatalf("parsed: %+v", info)
	}
}

func TestUpgradeDevModeWithoutSourceFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".install_info"), []byte("DEV_MODE=true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	svc := NewService(NewRunner(nil), &fakeRecords{}, fakeFetcher{}, dir, "python3", dir)
	if err := svc.StartUpgrade(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ch, err := svc.Subscribe(UpgradeTaskID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	lines := drainUntilClosed(t, ch)
	var sawErr bool
	for _, l := range lines {
		if strings.Contains(l, "vllm-source dir not found") {
			sawErr = true
		}
	}
	if !sawErr || lines[len(lines)-1] != upgradeCompleteMarker {
		t.Fatalf("lines=%v", lines)
	}
}

func TestRunStreamingForwardsLines(t *testing.T) {
	var got []string
	cmd := exec.Command("sh", "-c", "echo a; echo b 1>&2")
	if err := runStreaming(cmd, func(l string) { got = append(got, l) }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("lines=%v", got)
	}
}
