package service

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

var quiet = log.New(io.Discard, "", 0)

// fakeEngine returns canned metadata and runs fetch for every attempt.
// extractErrs, when set, is consumed one error per Extract call before
// extractErr applies.
type fakeEngine struct {
	meta        *domain.ExtractionResult
	extractErr  error
	extractErrs []error
	fetch      func(call int, opts ports.EngineOptions, dest string) ([]domain.LocalFile, error)

	mu         sync.Mutex
	extracts   int
	fetches    []ports.EngineOptions
	workspaces []string
}

func (f *fakeEngine) Extract(ctx context.Context, url string, opts ports.EngineOptions) (*domain.ExtractionResult, error) {
	f.mu.Lock()
	call := f.extracts
	f.extracts++
	f.mu.Unlock()
	if call < len(f.extractErrs) && f.extractErrs[call] != nil {
		return nil, f.extractErrs[call]
	}
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	if f.meta == nil {
		return &domain.ExtractionResult{Title: "t", Uploader: "someone", ItemCount: 1}, nil
	}
	return f.meta, nil
}

func (f *fakeEngine) Fetch(ctx context.Context, url string, opts ports.EngineOptions, dest string) ([]domain.LocalFile, error) {
	f.mu.Lock()
	call := len(f.fetches)
	f.fetches = append(f.fetches, opts)
	f.workspaces = append(f.workspaces, dest)
	f.mu.Unlock()
	return f.fetch(call, opts, dest)
}

// writeFile creates a sparse file of the given size.
func writeFile(t *testing.T, dir, name string, size int64) domain.LocalFile {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return domain.LocalFile{Name: name, Path: p, Size: size, Kind: domain.KindForName(name)}
}

// filesOf returns a fetch func that writes the named files of size bytes.
func filesOf(t *testing.T, size int64, names ...string) func(int, ports.EngineOptions, string) ([]domain.LocalFile, error) {
	return func(_ int, _ ports.EngineOptions, dest string) ([]domain.LocalFile, error) {
		var out []domain.LocalFile
		for i, n := range names {
			lf := writeFile(t, dest, n, size)
			lf.Position = i + 1
			out = append(out, lf)
		}
		return out, nil
	}
}

type staticCredentials domain.CredentialSet

func (s staticCredentials) Resolve() domain.CredentialSet { return domain.CredentialSet(s) }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
	closed bool
}

func (r *recordingSink) Record(ctx context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}
