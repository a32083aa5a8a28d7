package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"vllmd/pkg/types"
)

// ScanDir imports model directories found under dir that are not yet
// registered. A directory qualifies when it contains a config.json. Returns
// the number of imported models.
func (s *Store) ScanDir(ctx context.Context, dir string) (int, error) {
	abs, err := ResolveDir(dir)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}
	existing, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		known[rec.Name] = struct{}{}
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := known[e.Name()]; ok {
			continue
		}
		p := filepath.Join(abs, e.Name())
		if _, err := os.Stat(filepath.Join(p, "config.json")); err != nil {
			continue
		}
		cfg, _ := json.Marshal(types.DefaultServeConfig())
		row := modelRow{
			Name:           e.Name(),
			SourceID:       "local/" + e.Name(),
			Path:           p,
			Type:           string(DetectModelType(p)),
			Config:         cfg,
			DownloadStatus: string(types.DownloadCompleted),
			SizeGB:         DirSizeGB(p),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// DetectModelType inspects a model directory's config.json and reports
// whether it serves embeddings. Missing or unreadable config defaults to
// text generation.
func DetectModelType(dir string) types.ModelType {
	b, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return types.TypeText
	}
	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(b, &cfg); err != nil {
		return types.TypeText
	}
	for _, key := range []string{"pooling", "sentence_transformers", "embedding"} {
		if _, ok := cfg[key]; ok {
			return types.TypeEmbedding
		}
	}
	var mt struct {
		ModelType string `json:"model_type"`
	}
	if json.Unmarshal(b, &mt) == nil && strings.Contains(mt.ModelType, "embedding") {
		return types.TypeEmbedding
	}
	return types.TypeText
}

// DirSizeGB sums file sizes under dir.
func DirSizeGB(dir string) float64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / float64(1<<30)
}

// ResolveDir expands a leading '~' and returns an absolute path.
func ResolveDir(dir string) (string, error) {
	base, err := expandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return abs, nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
