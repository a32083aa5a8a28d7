package types

// ModelType classifies what a model artifact serves.
type ModelType string

const (
	TypeText      ModelType = "text-generation"
	TypeEmbedding ModelType = "embedding"
)

// DownloadStatus tracks artifact acquisition progress in the record store.
type DownloadStatus string

const (
	DownloadNone       DownloadStatus = "not_downloaded"
	DownloadInProgress DownloadStatus = "downloading"
	DownloadCompleted  DownloadStatus = "completed"
	DownloadError      DownloadStatus = "error"
)

// ServeConfig is the invocation payload for a vLLM server. It is stored as an
// opaque blob and consumed verbatim when building the command line; values are
// not validated semantically beyond presence.
type ServeConfig struct {
	GPUIDs               string  `json:"gpu_ids"`
	GPUMemoryUtilization float64 `json:"gpu_memory_utilization"`
	TensorParallelSize   int     `json:"tensor_parallel_size"`
	MaxModelLen          int     `json:"max_model_len"`
	DType                string  `json:"dtype"`
	Quantization         string  `json:"quantization,omitempty"`
	TrustRemoteCode      bool    `json:"trust_remote_code"`
	EnablePrefixCaching  bool    `json:"enable_prefix_caching"`
}

// DefaultServeConfig returns the config assigned to newly registered models.
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		GPUIDs:               "0",
		GPUMemoryUtilization: 0.9,
		TensorParallelSize:   1,
		MaxModelLen:          4096,
		DType:                "auto",
	}
}

// ModelRecord is the record-store view of a model. The supervisor reads it to
// decide whether an artifact is ready to serve and how to invoke it; it never
// writes process handles back.
type ModelRecord struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	SourceID       string         `json:"hf_model_id"`
	Path           string         `json:"path"`
	Type           ModelType      `json:"model_type"`
	Config         ServeConfig    `json:"config"`
	DownloadStatus DownloadStatus `json:"download_status"`
	SizeGB         float64        `json:"size_gb"`
}

// Ready reports whether the artifact can be served.
func (r ModelRecord) Ready() bool { return r.DownloadStatus == DownloadCompleted }
