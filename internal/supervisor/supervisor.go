package supervisor

import (
	"context"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vllmd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultPortStart     = 8000
	defaultStartupGrace  = 5 * time.Second
	defaultProbeTimeout  = 2 * time.Second
	defaultProbeInterval = 2 * time.Second
	defaultProbeAttempts = 45
)

// RecordStore is the external record-store contract the supervisor depends
// on. It only ever reads; process state is never written back.
type RecordStore interface {
	Get(ctx context.Context, id int64) (types.ModelRecord, error)
}

// CommandBuilder produces the server invocation for a record bound to a port.
type CommandBuilder func(rec types.ModelRecord, port int) *exec.Cmd

// Config encapsulates all tunables for Supervisor construction.
type Config struct {
	// Host probed during health checks. Defaults to 127.0.0.1.
	Host string
	// PortStart is where the port scan begins. Defaults to 8000.
	PortStart int
	// StartupGrace is the wait before the first health probe.
	StartupGrace time.Duration
	// ProbeTimeout bounds each individual health probe.
	ProbeTimeout time.Duration
	// ProbeInterval is the spacing between probes.
	ProbeInterval time.Duration
	// ProbeAttempts is the retry budget before giving up.
	ProbeAttempts int
	// Command overrides the server invocation. Defaults to the vLLM
	// OpenAI-compatible server launched via PythonBin.
	Command CommandBuilder
	// PythonBin is the interpreter used by the default Command.
	PythonBin string
	// Logger for lifecycle events. Nil disables logging.
	Logger *zerolog.Logger
}

type Supervisor struct {
	mu        sync.Mutex
	cfg       Config
	store     RecordStore
	instances map[int64]*instance
	hub       *LogHub
	// Intentionally Timeout=0: probes carry their own context deadlines.
	httpClient *http.Client
	log        zerolog.Logger
}

// New constructs a Supervisor, applying package defaults for unset fields.
func New(store RecordStore, cfg Config) *Supervisor {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.PortStart <= 0 {
		cfg.PortStart = defaultPortStart
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = defaultStartupGrace
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = defaultProbeAttempts
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	s := &Supervisor{
		cfg:        cfg,
		store:      store,
		instances:  make(map[int64]*instance),
		hub:        NewLogHub(),
		httpClient: &http.Client{Timeout: 0},
	}
	if cfg.Command == nil {
		s.cfg.Command = func(rec types.ModelRecord, port int) *exec.Cmd {
			return vllmCommand(cfg.PythonBin, rec, port)
		}
	}
	if cfg.Logger != nil {
		s.log = *cfg.Logger
	} else {
		s.log = zerolog.Nop()
	}
	return s
}

// Status returns the live status for one model; StateStopped when absent.
func (s *Supervisor) Status(modelID int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.instances[modelID]; ok {
		return in.status()
	}
	return Status{State: StateStopped}
}

// Statuses returns a snapshot of every registered instance.
func (s *Supervisor) Statuses() map[int64]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]Status, len(s.instances))
	for id, in := range s.instances {
		out[id] = in.status()
	}
	return out
}

// RunningCount reports how many instances have committed to running.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, in := range s.instances {
		if in.state == StateRunning {
			n++
		}
	}
	return n
}

// ModelForPID maps an OS pid back to the model it serves, for GPU process
// attribution in the telemetry view.
func (s *Supervisor) ModelForPID(pid int) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, in := range s.instances {
		if in.pid == pid {
			return id, true
		}
	}
	return 0, false
}

// SubscribeLogs attaches to a model's log channel: buffered history is
// replayed first, then live lines until cancel is called or the channel is
// closed by a stop.
func (s *Supervisor) SubscribeLogs(modelID int64) (<-chan string, func(), error) {
	ch, cancel, ok := s.hub.Subscribe(modelID)
	if !ok {
		return nil, nil, errNotFound("log channel")
	}
	return ch, cancel, nil
}
