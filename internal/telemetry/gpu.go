// Package telemetry reads GPU state from the NVIDIA driver tools. The
// snapshots are display-only; scheduling never consults them.
package telemetry

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const queryTimeout = 5 * time.Second

// Collector shells out to nvidia-smi for GPU snapshots. Hosts without the
// tool, or with no NVIDIA GPUs, report an empty fleet rather than an error.
type Collector struct {
	// Bin is the nvidia-smi executable. Defaults to "nvidia-smi".
	Bin string
}

// Snapshot returns the current per-GPU state with compute processes
// attached by GPU UUID.
func (c Collector) Snapshot(ctx context.Context) []GPU {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.bin(),
		"--query-gpu=index,uuid,name,memory.total,memory.used,utilization.gpu,temperature.gpu",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}
	gpus := parseGPUs(string(out))
	if len(gpus) == 0 {
		return nil
	}

	out, err = exec.CommandContext(ctx, c.bin(),
		"--query-compute-apps=pid,process_name,gpu_uuid,used_memory",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return gpus
	}
	attachProcesses(gpus, parseProcesses(string(out)))
	return gpus
}

func (c Collector) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return "nvidia-smi"
}

// GPU is one device row from the driver query.
type GPU struct {
	Index         int
	UUID          string
	Name          string
	MemoryTotalMB int
	MemoryUsedMB  int
	Utilization   float64
	Temperature   float64
	Processes     []Process
}

// Process is one compute process row from the driver query.
type Process struct {
	PID         int
	Name        string
	GPUUUID     string
	GPUMemoryMB float64
}

func parseGPUs(out string) []GPU {
	var gpus []GPU
	for _, line := range strings.Split(out, "\n") {
		fields := splitCSV(line)
		if len(fields) != 7 {
			continue
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		gpus = append(gpus, GPU{
			Index:         idx,
			UUID:          fields[1],
			Name:          fields[2],
			MemoryTotalMB: atoiOrZero(fields[3]),
			MemoryUsedMB:  atoiOrZero(fields[4]),
			Utilization:   atofOrZero(fields[5]),
			Temperature:   atofOrZero(fields[6]),
		})
	}
	return gpus
}

func parseProcesses(out string) []Process {
	var procs []Process
	for _, line := range strings.Split(out, "\n") {
		fields := splitCSV(line)
		if len(fields) != 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, Process{
			PID:         pid,
			Name:        fields[1],
			GPUUUID:     fields[2],
			GPUMemoryMB: atofOrZero(fields[3]),
		})
	}
	return procs
}

func attachProcesses(gpus []GPU, procs []Process) {
	byUUID := make(map[string]int, len(gpus))
	for i, g := range gpus {
		byUUID[g.UUID] = i
	}
	for _, p := range procs {
		i, ok := byUUID[p.GPUUUID]
		if !ok {
			continue
		}
		gpus[i].Processes = append(gpus[i].Processes, p)
	}
}

func splitCSV(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atofOrZero(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
