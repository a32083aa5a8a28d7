package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vllmd/internal/supervisor"
	"vllmd/internal/telemetry"
	"vllmd/pkg/types"
)

// Supervisor is the lifecycle surface the HTTP API drives.
type Supervisor interface {
	Start(ctx context.Context, modelID int64) error
	Stop(modelID int64) error
	ClearError(modelID int64) error
	Status(modelID int64) supervisor.Status
	Statuses() map[int64]supervisor.Status
	RunningCount() int
	ModelForPID(pid int) (int64, bool)
	SubscribeLogs(modelID int64) (<-chan string, func(), error)
}

// Records is the persistent model registry the HTTP API reads and writes.
type Records interface {
	Get(ctx context.Context, id int64) (types.ModelRecord, error)
	List(ctx context.Context) ([]types.ModelRecord, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, sourceID string) (types.ModelRecord, error)
	NameExists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, id int64) error
	UpdateConfig(ctx context.Context, id int64, cfg types.ServeConfig) error
	SetDownloadStatus(ctx context.Context, id int64, st types.DownloadStatus) error
	ScanDir(ctx context.Context, dir string) (int, error)
}

// Tasks is the background-task surface (downloads, self-upgrade).
type Tasks interface {
	StartDownload(rec types.ModelRecord) error
	StartUpgrade() error
	Subscribe(id string) (<-chan string, error)
	Active(id string) bool
	SystemInfo() types.SystemInfo
}

// GPUReader provides display-only GPU snapshots.
type GPUReader interface {
	Snapshot(ctx context.Context) []telemetry.GPU
}

// Deps carries the collaborators the handlers need.
type Deps struct {
	Supervisor Supervisor
	Records    Records
	Tasks      Tasks
	GPUs       GPUReader
	ModelsDir  string
}

func NewMux(deps Deps) http.Handler {
	s := &server{deps: deps}
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(accessLog)
	r.Use(MetricsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", s.listModels)
		r.Post("/models/pull", s.pullModel)
		r.Post("/models/scan", s.scanModels)
		r.Route("/models/{id}", func(r chi.Router) {
			r.Put("/config", s.updateConfig)
			r.Delete("/", s.deleteModel)
			r.Post("/start", s.startModel)
			r.Post("/stop", s.stopModel)
			r.Post("/clear-error", s.clearError)
		})
		r.Get("/gpus", s.listGPUs)
		r.Get("/dashboard/stats", s.dashboardStats)
		r.Get("/system/info", s.systemInfo)
		r.Post("/system/upgrade", s.startUpgrade)
	})

	r.Get("/ws/logs/{id}", s.wsLogs)
	r.Get("/ws/pull/{id}", s.wsPull)
	r.Get("/ws/upgrade", s.wsUpgrade)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", s.ready)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

type server struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// active reports whether the model has a live registry entry that blocks
// mutations (starting or running).
func (s *server) active(id int64) bool {
	st := s.deps.Supervisor.Status(id)
	return st.State == supervisor.StateStarting || st.State == supervisor.StateRunning
}

func (s *server) listModels(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	statuses := s.deps.Supervisor.Statuses()
	out := make([]types.ModelStatus, 0, len(recs))
	for _, rec := range recs {
		ms := types.ModelStatus{
			ID:             rec.ID,
			Name:           rec.Name,
			SourceID:       rec.SourceID,
			Type:           rec.Type,
			Config:         rec.Config,
			DownloadStatus: rec.DownloadStatus,
			SizeGB:         rec.SizeGB,
			StatusText:     string(supervisor.StateStopped),
		}
		if st, ok := statuses[rec.ID]; ok {
			ms.StatusText = string(st.State)
			ms.IsRunning = st.State == supervisor.StateRunning
			ms.Port = st.Port
			ms.PID = st.PID
			ms.GPUIDs = st.GPUIDs
			ms.ErrorMessage = st.Err
		}
		out = append(out, ms)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) pullModel(w http.ResponseWriter, r *http.Request) {
	var req types.PullRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		writeJSONError(w, http.StatusBadRequest, "hf_model_id is required")
		return
	}
	name := path.Base(sourceID)
	exists, err := s.deps.Records.NameExists(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if exists {
		writeJSONError(w, http.StatusConflict, "model already registered: "+name)
		return
	}
	rec, err := s.deps.Records.Create(r.Context(), sourceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.deps.Tasks.StartDownload(rec); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *server) scanModels(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Records.ScanDir(r.Context(), s.deps.ModelsDir)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *server) updateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	var cfg types.ServeConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if s.active(id) {
		writeJSONError(w, http.StatusConflict, "model is running; stop it before changing config")
		return
	}
	if err := s.deps.Records.UpdateConfig(r.Context(), id, cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) deleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	if s.active(id) {
		writeJSONError(w, http.StatusConflict, "model is running; stop it before deleting")
		return
	}
	rec, err := s.deps.Records.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.deps.Records.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	if rec.Path != "" {
		if err := os.RemoveAll(rec.Path); err != nil && zlog != nil {
			zlog.Warn().Err(err).Str("path", rec.Path).Msg("remove model artifacts")
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) startModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	if err := s.deps.Supervisor.Start(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(supervisor.StateStarting)})
}

func (s *server) stopModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	if err := s.deps.Supervisor.Stop(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(supervisor.StateStopped)})
}

// clearError acknowledges a failed start and resets a failed download, so
// the model can be retried. Not-found only when neither applied.
func (s *server) clearError(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid model id")
		return
	}
	cleared := s.deps.Supervisor.ClearError(id) == nil
	if rec, err := s.deps.Records.Get(r.Context(), id); err == nil {
		if rec.DownloadStatus == types.DownloadError {
			if err := s.deps.Records.SetDownloadStatus(r.Context(), id, types.DownloadCompleted); err == nil {
				cleared = true
			}
		}
	}
	if !cleared {
		writeJSONError(w, http.StatusNotFound, "no error state to clear")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) listGPUs(w http.ResponseWriter, r *http.Request) {
	gpus := s.deps.GPUs.Snapshot(r.Context())
	out := make([]types.GPUInfo, 0, len(gpus))
	for _, g := range gpus {
		info := types.GPUInfo{
			ID:                 g.Index,
			Name:               g.Name,
			MemoryTotalMB:      g.MemoryTotalMB,
			MemoryUsedMB:       g.MemoryUsedMB,
			UtilizationPercent: g.Utilization,
			Temperature:        g.Temperature,
			Processes:          []types.GPUProcess{},
		}
		for _, p := range g.Processes {
			gp := types.GPUProcess{
				PID:         p.PID,
				ProcessName: p.Name,
				GPUMemoryMB: p.GPUMemoryMB,
			}
			if mid, ok := s.deps.Supervisor.ModelForPID(p.PID); ok {
				gp.ManagedModelID = &mid
			}
			info.Processes = append(info.Processes, gp)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.deps.Records.Count(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.DashboardStats{
		TotalModels:   total,
		RunningModels: s.deps.Supervisor.RunningCount(),
	})
}

func (s *server) systemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Tasks.SystemInfo())
}

func (s *server) startUpgrade(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.StartUpgrade(); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "upgrading"})
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Records.Count(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
