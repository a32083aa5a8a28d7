package telemetry

import (
	"context"
	"testing"
)

const gpuCSV = `0, GPU-aaaa, NVIDIA RTX 4090, 24564, 1024, 37, 51
1, GPU-bbbb, NVIDIA RTX 4090, 24564, 18231, 98, 74
`

const procCSV = `12345, python3, GPU-bbbb, 17890
999, Xorg, GPU-aaaa, 120
777, python3, GPU-gone, 50
`

func TestParseGPUs(t *testing.T) {
	gpus := parseGPUs(gpuCSV)
	if len(gpus) != 2 {
		t.Fatalf("expected 2 gpus, got %d", len(gpus))
	}
	g := gpus[1]
	if g.Index != 1 || g.UUID != "GPU-bbbb" || g.Name != "NVIDIA RTX 4090" {
		t.Fatalf("gpu fields: %+v", g)
	}
	if g.MemoryTotalMB != 24564 || g.MemoryUsedMB != 18231 {
		t.Fatalf("memory fields: %+v", g)
	}
	if g.Utilization != 98 || g.Temperature != 74 {
		t.Fatalf("load fields: %+v", g)
	}
}

func TestParseGPUsSkipsMalformedRows(t *testing.T) {
	out := "garbage\n\nnot,enough,fields\nx, GPU-x, name, 1, 1, 1, 1\n"
	gpus := parseGPUs(out)
	if len(gpus) != 0 {
		t.Fatalf("expected no gpus, got %+v", gpus)
	}
}

func TestAttachProcesses(t *testing.T) {
	gpus := parseGPUs(gpuCSV)
	attachProcesses(gpus, parseProcesses(procCSV))
	if len(gpus[0].Processes) != 1 || gpus[0].Processes[0].Name != "Xorg" {
		t.Fatalf("gpu0 procs: %+v", gpus[0].Processes)
	}
	if len(gpus[1].Processes) != 1 {
		t.Fatalf("gpu1 procs: %+v", gpus[1].Processes)
	}
	p := gpus[1].Processes[0]
	if p.PID != 12345 || p.GPUMemoryMB != 17890 {
		t.Fatalf("proc fields: %+v", p)
	}
}

func TestSnapshotWithoutDriverToolIsEmpty(t *testing.T) {
	c := Collector{Bin: "nvidia-smi-not-installed"}
	if gpus := c.Snapshot(context.Background()); gpus != nil {
		t.Fatalf("expected nil, got %+v", gpus)
	}
}
