package supervisor

import "os/exec"

// State is the lifecycle state of one supervised instance.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateError    State = "error"
)

// Status is the externally visible projection of one instance. A zero Port
// and StateStopped mean no registry entry exists for the model.
type Status struct {
	State  State  `json:"state"`
	Port   int    `json:"port,omitempty"`
	PID    int    `json:"pid,omitempty"`
	GPUIDs string `json:"gpu_ids,omitempty"`
	Err    string `json:"error,omitempty"`
}

// instance is one registry entry. The process handle is owned exclusively by
// the supervisor; it is never exposed or persisted.
type instance struct {
	modelID int64
	name    string
	state   State
	port    int
	pid     int
	gpuIDs  string
	errMsg  string

	cmd  *exec.Cmd
	done chan struct{} // closed by the wait goroutine when the process exits
	logs *LogChannel
}

func (in *instance) status() Status {
	return Status{State: in.state, Port: in.port, PID: in.pid, GPUIDs: in.gpuIDs, Err: in.errMsg}
}

// exited reports whether the process has been reaped.
func (in *instance) exited() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}
