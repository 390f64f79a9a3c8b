package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kp-forecasting/forecast-client/common/clients"
	"github.com/kp-forecasting/forecast-client/common/config"
)

// Sink persists downloaded artifacts
type Sink interface {
	// Save stores the artifact under key and returns where it was written
	Save(ctx context.Context, key string, artifact clients.Artifact) (string, error)
}

// ObjectKey builds the key an artifact is stored under: <task id>/<file name>
func ObjectKey(taskID string, artifact clients.Artifact) string {
	name := path.Base(strings.ReplaceAll(artifact.FileName, `\`, "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		name = "artifact"
	}
	return taskID + "/" + name
}

// New builds the sink selected by cfg
func New(ctx context.Context, cfg config.StorageConfig) (Sink, error) {
	switch cfg.Kind {
	case config.StorageDir, "":
		return NewDirSink(cfg.OutputDir), nil
	case config.StorageMinio:
		return NewMinioSink(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage kind: %s", cfg.Kind)
	}
}

// DirSink writes artifacts below a local directory
type DirSink struct {
	dir string
}

// NewDirSink creates a sink rooted at dir
func NewDirSink(dir string) *DirSink {
	if dir == "" {
		dir = "."
	}
	return &DirSink{dir: dir}
}

// Save writes the artifact atomically via a temp file and rename
func (s *DirSink) Save(ctx context.Context, key string, artifact clients.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := filepath.Clean(filepath.FromSlash(key))
	if rel == "." || filepath.IsAbs(rel) || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	target := filepath.Join(s.dir, rel)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(artifact.Bytes); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return target, nil
}
