package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultUploadDir  = "./uploads"
	DefaultStaticBase = "/static/uploads"
)

// LocalDisk writes blobs under baseDir/<folder>/YYYY/MM/DD and serves them from staticBase.
type LocalDisk struct {
	baseDir    string
	staticBase string
	maxBytes   int64
	now        func() time.Time
}

func NewLocalDisk(baseDir, staticBase string, maxBytes int64) *LocalDisk {
	if baseDir == "" {
		baseDir = DefaultUploadDir
	}
	if staticBase == "" {
		staticBase = DefaultStaticBase
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &LocalDisk{
		baseDir:    baseDir,
		staticBase: strings.TrimRight(staticBase, "/"),
		maxBytes:   maxBytes,
		now:        time.Now,
	}
}

// BaseDir is the directory served under StaticBase.
func (l *LocalDisk) BaseDir() string { return l.baseDir }

func (l *LocalDisk) StaticBase() string { return l.staticBase }

func (l *LocalDisk) Upload(ctx context.Context, blob Blob, folder string) (string, error) {
	if err := validFolder(folder); err != nil {
		return "", err
	}
	_, ext, err := Inspect(blob, l.maxBytes)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := l.now()
	relDir := path.Join(folder, fmt.Sprintf("%d/%02d/%02d", now.Year(), now.Month(), now.Day()))
	absDir := filepath.Join(l.baseDir, filepath.FromSlash(relDir))
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	filename := uuid.NewString() + ext
	absPath := filepath.Join(absDir, filename)
	if err := os.WriteFile(absPath, blob.Data, 0o644); err != nil {
		_ = os.Remove(absPath)
		return "", fmt.Errorf("write %s: %w", blob.Name, err)
	}
	return l.staticBase + "/" + path.Join(relDir, filename), nil
}
