package types

// ModelStatus is a model record merged with its live instance state, as
// returned by GET /api/models.
type ModelStatus struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	SourceID       string         `json:"hf_model_id"`
	Type           ModelType      `json:"model_type"`
	Config         ServeConfig    `json:"config"`
	DownloadStatus DownloadStatus `json:"download_status"`
	SizeGB         float64        `json:"size_gb"`
	IsRunning      bool           `json:"is_running"`
	StatusText     string         `json:"status_text"`
	Port           int            `json:"port,omitempty"`
	PID            int            `json:"pid,omitempty"`
	GPUIDs         string         `json:"gpu_ids,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// PullRequest registers a model for download.
type PullRequest struct {
	SourceID string `json:"hf_model_id"`
}

// GPUProcess is one compute process reported by the GPU driver.
type GPUProcess struct {
	PID            int     `json:"pid"`
	ProcessName    string  `json:"process_name"`
	GPUMemoryMB    float64 `json:"gpu_memory_usage"`
	ManagedModelID *int64  `json:"managed_model_id,omitempty"`
}

// GPUInfo is a read-only snapshot of one GPU, consulted only for display.
type GPUInfo struct {
	ID                 int          `json:"id"`
	Name               string       `json:"name"`
	MemoryTotalMB      int          `json:"memory_total_mb"`
	MemoryUsedMB       int          `json:"memory_used_mb"`
	UtilizationPercent float64      `json:"utilization_percent"`
	Temperature        float64      `json:"temperature"`
	Processes          []GPUProcess `json:"processes"`
}

// DashboardStats summarizes the fleet for the dashboard endpoint.
type DashboardStats struct {
	TotalModels   int64 `json:"total_models"`
	RunningModels int   `json:"running_models"`
}

// SystemInfo describes the installed vLLM build.
type SystemInfo struct {
	VLLMVersion string `json:"vllm_version"`
	DevMode     bool   `json:"dev_mode"`
}

// ErrorResponse is the JSON error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
