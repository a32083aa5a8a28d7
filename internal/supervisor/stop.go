package supervisor

import "syscall"

// Stop clears any registry entry for the model and tears down its process
// and log channel. Transient states (starting, error) are cleared
// unconditionally, but only a running instance satisfies the call; anything
// else reports not found. Idempotent with respect to a missing process:
// signal failures are swallowed because "not running" is already the
// desired end state.
func (s *Supervisor) Stop(modelID int64) error {
	s.mu.Lock()
	in, ok := s.instances[modelID]
	if !ok {
		s.mu.Unlock()
		return errNotFound("model instance")
	}
	delete(s.instances, modelID)
	wasRunning := in.state == StateRunning
	s.mu.Unlock()

	s.hub.Close(modelID)
	if !in.exited() {
		s.killGroup(in)
	}
	if !wasRunning {
		return errNotFound("running instance")
	}
	stopsTotal.Inc()
	runningGauge.Dec()
	s.log.Info().Int64("model", modelID).Str("name", in.name).Int("pid", in.pid).
		Msg("instance stopped")
	return nil
}

// ClearError acknowledges a terminal error status, removing the record and
// its log channel. Only valid while the model is in the error state.
func (s *Supervisor) ClearError(modelID int64) error {
	s.mu.Lock()
	in, ok := s.instances[modelID]
	if !ok || in.state != StateError {
		s.mu.Unlock()
		return errNotFound("error state")
	}
	delete(s.instances, modelID)
	s.mu.Unlock()

	s.hub.Close(modelID)
	s.log.Info().Int64("model", modelID).Str("name", in.name).
		Msg("error cleared")
	return nil
}

// StopAll tears down every registered instance. Best effort; used on daemon
// shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	instances := s.instances
	s.instances = make(map[int64]*instance)
	s.mu.Unlock()

	for id, in := range instances {
		s.hub.Close(id)
		if !in.exited() {
			s.killGroup(in)
		}
		if in.state == StateRunning {
			runningGauge.Dec()
		}
	}
}

// killGroup signals the whole process group: the server may fork workers
// that must die with the leader. A failed group lookup means the process is
// already gone.
func (s *Supervisor) killGroup(in *instance) {
	pgid, err := syscall.Getpgid(in.pid)
	if err != nil {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
}
