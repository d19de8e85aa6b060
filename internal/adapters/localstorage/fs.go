package localstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediagate/internal/core/domain"
)

const tempPrefix = ".incoming-"

// LocalStorage implements ports.ArtifactStore on the local filesystem. Each
// artifact is one file in BaseDir; its mtime records the creation time.
type LocalStorage struct {
	BaseDir string
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger
}

// NewLocalStorage creates the storage directory if needed.
func NewLocalStorage(baseDir string, ttl time.Duration, logger *log.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", baseDir, err)
	}
	return &LocalStorage{BaseDir: baseDir, ttl: ttl, now: time.Now, logger: logger}, nil
}

// Put writes body to a temp file and renames it into place under a
// generated unique name, which becomes the artifact ID.
func (s *LocalStorage) Put(ctx context.Context, artifact domain.Artifact, body io.Reader) (*domain.Artifact, error) {
	ext := filepath.Ext(artifact.Name)
	stem := strings.TrimSuffix(artifact.Name, ext)
	if stem == "" {
		stem = "artifact"
	}
	id := fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext)
	if err := validName(id); err != nil {
		return nil, domain.StorageFailure("invalid artifact name", err)
	}

	tmp, err := os.CreateTemp(s.BaseDir, tempPrefix+"*")
	if err != nil {
		return nil, domain.StorageFailure("failed to create artifact file", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, domain.StorageFailure("failed to write artifact", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, domain.StorageFailure("failed to write artifact", err)
	}

	created := s.now()
	if err := os.Chtimes(tmpPath, created, created); err != nil {
		os.Remove(tmpPath)
		return nil, domain.StorageFailure("failed to tag artifact", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.BaseDir, id)); err != nil {
		os.Remove(tmpPath)
		return nil, domain.StorageFailure("failed to store artifact", err)
	}

	artifact.ID = id
	artifact.Name = id
	artifact.Size = n
	artifact.CreatedAt = created
	artifact.Path = ""
	return &artifact, nil
}

// Get opens the artifact named exactly id. IDs carry a random suffix, so a
// missing or expired ID is NotFound even when same-label artifacts exist.
func (s *LocalStorage) Get(ctx context.Context, id string) (*domain.Artifact, io.ReadCloser, error) {
	if err := validName(id); err != nil {
		return nil, nil, domain.NotFound("artifact not found", err)
	}

	f, err := os.Open(filepath.Join(s.BaseDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, domain.NotFound("artifact not found or expired", nil)
	}
	if err != nil {
		return nil, nil, domain.StorageFailure("failed to open artifact", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, domain.StorageFailure("failed to stat artifact", err)
	}
	if s.now().Sub(info.ModTime()) > s.ttl {
		f.Close()
		return nil, nil, domain.NotFound("artifact not found or expired", nil)
	}
	return describe(id, info), f, nil
}

// SweepExpired removes files whose age exceeds the TTL, including
// abandoned temp files.
func (s *LocalStorage) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", s.BaseDir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if now.Sub(info.ModTime()) <= s.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(s.BaseDir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Printf("Sweep: could not remove %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Stats counts stored artifacts.
func (s *LocalStorage) Stats(ctx context.Context) (domain.StoreStats, error) {
	var st domain.StoreStats
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return st, fmt.Errorf("listing %s: %w", s.BaseDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Count++
		st.TotalBytes += info.Size()
	}
	return st, nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

func describe(name string, info fs.FileInfo) *domain.Artifact {
	mime, ok := domain.MIMEForName(name)
	if !ok {
		mime = "application/octet-stream"
	}
	return &domain.Artifact{
		ID:        name,
		Name:      name,
		MIME:      mime,
		Kind:      domain.KindForMIME(mime),
		Archive:   mime == "application/zip",
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}
}
