package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// Markers pushed to the log channel when the health check concludes, so log
// subscribers can observe the outcome inline with the server output.
const (
	startSuccessMarker = "---START SUCCESS---"
	startFailureMarker = "---START FAILURE---"
)

var errProcessExited = errors.New("Process terminated during health checks.")

// healthCheck drives a freshly spawned instance to running or error. It
// waits out the startup grace, then probes the instance's own model-listing
// endpoint on a fixed budget; the first probe that enumerates the served
// model name commits running. Every failure path terminates the process
// group and commits an error status carrying the captured reason.
func (s *Supervisor) healthCheck(in *instance) {
	time.Sleep(s.cfg.StartupGrace)
	if in.exited() {
		s.failStartup(in, "Process died unexpectedly.")
		return
	}
	url := fmt.Sprintf("http://%s:%d/v1/models", s.cfg.Host, in.port)
	err := retry.Do(
		func() error { return s.probe(in, url) },
		retry.Attempts(uint(s.cfg.ProbeAttempts)),
		retry.Delay(s.cfg.ProbeInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		msg := "Health check timed out."
		if errors.Is(err, errProcessExited) {
			msg = err.Error()
		}
		s.failStartup(in, msg)
		return
	}

	// Commit running, unless a concurrent stop removed the instance from the
	// registry underneath us; then the process is ours to reap.
	s.mu.Lock()
	cur, ok := s.instances[in.modelID]
	if !ok || cur != in {
		s.mu.Unlock()
		if !in.exited() {
			s.killGroup(in)
		}
		return
	}
	cur.state = StateRunning
	cur.errMsg = ""
	s.mu.Unlock()

	runningGauge.Inc()
	in.logs.Push(startSuccessMarker)
	s.log.Info().Int64("model", in.modelID).Str("name", in.name).
		Int("pid", in.pid).Int("port", in.port).
		Msg("instance running")
}

// probe issues one bounded health request. Network errors are returned
// retryable; they are expected while the server initializes. A reaped
// process aborts the retry budget immediately.
func (s *Supervisor) probe(in *instance, url string) error {
	if in.exited() {
		return retry.Unrecoverable(errProcessExited)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	for _, m := range body.Data {
		if m.ID == in.name {
			return nil
		}
	}
	return fmt.Errorf("model %q not yet served", in.name)
}

// failStartup terminates the instance (if still alive) and commits a
// terminal error status the operator must acknowledge. A racing stop may
// have removed the entry already; the error is then dropped, not re-added.
func (s *Supervisor) failStartup(in *instance, reason string) {
	if !in.exited() {
		s.killGroup(in)
	}
	s.mu.Lock()
	if cur, ok := s.instances[in.modelID]; ok && cur == in {
		cur.state = StateError
		cur.errMsg = reason
	}
	s.mu.Unlock()

	startFailuresTotal.Inc()
	in.logs.Push(startFailureMarker)
	in.logs.Push(reason)
	s.log.Error().Int64("model", in.modelID).Str("name", in.name).
		Int("pid", in.pid).Str("reason", reason).
		Msg("instance start failed")
}
