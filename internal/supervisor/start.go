package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"syscall"
)

// Start admits a model and spawns its server process, returning as soon as
// the process is launched; readiness is committed asynchronously by the
// health-check routine. Conflict when the model is already admitted,
// precondition failure when its artifact is not ready to serve.
func (s *Supervisor) Start(ctx context.Context, modelID int64) error {
	// Admission first: an already-admitted model (starting, running, or an
	// unacknowledged error) answers Conflict regardless of its record.
	s.mu.Lock()
	if in, ok := s.instances[modelID]; ok {
		st := in.state
		s.mu.Unlock()
		return conflictError{modelID: modelID, state: st}
	}
	s.mu.Unlock()

	rec, err := s.store.Get(ctx, modelID)
	if err != nil {
		return err
	}
	if !rec.Ready() {
		return preconditionError{msg: fmt.Sprintf("model %q is not ready to serve (download status %q)", rec.Name, rec.DownloadStatus)}
	}
	gpus := rec.Config.GPUIDs
	if gpus == "" {
		gpus = "0"
	}

	// Re-checked admission, port allocation, spawn, and registration form
	// one critical section: concurrent starts cannot double admit a model
	// or observe the same free port.
	s.mu.Lock()
	if in, ok := s.instances[modelID]; ok {
		st := in.state
		s.mu.Unlock()
		return conflictError{modelID: modelID, state: st}
	}
	port := s.allocatePortLocked()
	cmd := s.cfg.Command(rec, port)
	cmd.Env = append(os.Environ(), "CUDA_VISIBLE_DEVICES="+gpus)
	// Own process group so teardown can signal forked workers as a unit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	pr, pw, err := os.Pipe()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		pr.Close()
		pw.Close()
		return fmt.Errorf("spawn server: %w", err)
	}
	pw.Close() // child holds the write end now
	in := &instance{
		modelID: modelID,
		name:    rec.Name,
		state:   StateStarting,
		port:    port,
		pid:     cmd.Process.Pid,
		gpuIDs:  gpus,
		cmd:     cmd,
		done:    make(chan struct{}),
		logs:    s.hub.Open(modelID),
	}
	s.instances[modelID] = in
	s.mu.Unlock()

	startsTotal.Inc()
	s.log.Info().Int64("model", modelID).Str("name", rec.Name).
		Int("pid", in.pid).Int("port", port).Str("gpus", gpus).
		Msg("instance starting")

	go s.drainOutput(pr, in.logs)
	go func() {
		_ = cmd.Wait()
		close(in.done)
	}()
	go s.healthCheck(in)
	return nil
}

// drainOutput pushes the process's combined output into the log channel line
// by line until the pipe closes with the process.
func (s *Supervisor) drainOutput(r *os.File, logs *LogChannel) {
	defer r.Close()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		logs.Push(sc.Text())
	}
}
