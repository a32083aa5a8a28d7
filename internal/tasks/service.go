package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"vllmd/internal/store"
	"vllmd/pkg/types"
)

// Terminal marker lines, emitted as the last progress line before the
// channel closes so stream consumers can display the outcome.
const (
	downloadCompleteMarker = "---DOWNLOAD COMPLETE---"
	upgradeCompleteMarker  = "---UPGRADE COMPLETE---"
)

// UpgradeTaskID is the system-wide singleton id for the self-upgrade task.
const UpgradeTaskID = "upgrade"

// DownloadTaskID keys download tasks per model.
func DownloadTaskID(modelID int64) string { return fmt.Sprintf("pull-%d", modelID) }

// Fetcher is the artifact acquisition transport, an external collaborator.
// It places the artifacts for sourceID under dest, reporting progress text.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID, dest string, progress func(string)) error
}

// RecordWriter is the slice of the record store the tasks commit to.
type RecordWriter interface {
	SetDownloadStatus(ctx context.Context, id int64, st types.DownloadStatus) error
	SetArtifact(ctx context.Context, id int64, path string, sizeGB float64, typ types.ModelType) error
}

// Service wires the runner to the collaborators the download and upgrade
// tasks need.
type Service struct {
	runner    *Runner
	records   RecordWriter
	fetcher   Fetcher
	modelsDir string
	pythonBin string
	// installDir holds the vllmd installation (.install_info, vllm-source).
	installDir string
}

func NewService(runner *Runner, records RecordWriter, fetcher Fetcher, modelsDir, pythonBin, installDir string) *Service {
	return &Service{
		runner:     runner,
		records:    records,
		fetcher:    fetcher,
		modelsDir:  modelsDir,
		pythonBin:  pythonBin,
		installDir: installDir,
	}
}

// StartDownload spawns the acquisition task for a registered model. Conflict
// while a download for the same model is still in flight.
func (s *Service) StartDownload(rec types.ModelRecord) error {
	return s.runner.Spawn(DownloadTaskID(rec.ID), func(logf func(string)) {
		s.downloadWork(rec, logf)
	})
}

// downloadWork performs a single acquisition attempt and commits exactly one
// terminal state to the record store before returning.
func (s *Service) downloadWork(rec types.ModelRecord, logf func(string)) {
	defer logf(downloadCompleteMarker)
	ctx := context.Background()
	fail := func(err error) {
		logf(stamp("ERROR: " + err.Error()))
		_ = s.records.SetDownloadStatus(ctx, rec.ID, types.DownloadError)
	}

	logf(stamp(fmt.Sprintf("Starting download for %s...", rec.SourceID)))
	if err := s.records.SetDownloadStatus(ctx, rec.ID, types.DownloadInProgress); err != nil {
		fail(err)
		return
	}
	dest := filepath.Join(s.modelsDir, rec.Name)
	if err := s.fetcher.Fetch(ctx, rec.SourceID, dest, func(m string) { logf(stamp(m)) }); err != nil {
		fail(err)
		return
	}
	logf(stamp("Download complete."))
	typ := store.DetectModelType(dest)
	if typ == types.TypeEmbedding {
		logf(stamp("Detected embedding model."))
	}
	if err := s.records.SetArtifact(ctx, rec.ID, dest, store.DirSizeGB(dest), typ); err != nil {
		fail(err)
		return
	}
}

// StartUpgrade spawns the singleton self-upgrade task.
func (s *Service) StartUpgrade() error {
	return s.runner.Spawn(UpgradeTaskID, s.upgradeWork)
}

// Subscribe attaches the streaming consumer to a task's channel.
func (s *Service) Subscribe(id string) (<-chan string, error) { return s.runner.Subscribe(id) }

// Active reports whether a task with id is running.
func (s *Service) Active(id string) bool { return s.runner.Active(id) }
