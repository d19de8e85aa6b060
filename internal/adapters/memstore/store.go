// Package memstore is the ephemeral artifact store: content is held in
// memory only until it is read once, then forgotten.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagate/internal/core/domain"
)

type entry struct {
	artifact domain.Artifact
	data     []byte
}

// Store implements ports.ArtifactStore with one-shot reads.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Store. Unread entries become eligible for sweeping after ttl.
func New(ttl time.Duration) *Store {
	return &Store{ttl: ttl, now: time.Now, entries: make(map[string]*entry)}
}

// Put buffers body in memory.
func (s *Store) Put(ctx context.Context, artifact domain.Artifact, body io.Reader) (*domain.Artifact, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.StorageFailure("could not buffer artifact", err)
	}
	artifact.ID = uuid.NewString()
	artifact.Size = int64(len(data))
	artifact.CreatedAt = s.now()
	artifact.Path = ""

	s.mu.Lock()
	s.entries[artifact.ID] = &entry{artifact: artifact, data: data}
	s.mu.Unlock()

	out := artifact
	return &out, nil
}

// Get hands the buffered content out and removes the entry.
func (s *Store) Get(ctx context.Context, id string) (*domain.Artifact, io.ReadCloser, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return nil, nil, domain.NotFound(fmt.Sprintf("artifact %q not found or already delivered", id), nil)
	}
	a := e.artifact
	return &a, io.NopCloser(bytes.NewReader(e.data)), nil
}

// SweepExpired drops entries that were never read within the TTL.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.Sub(e.artifact.CreatedAt) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Stats reports entries still waiting to be read.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.StoreStats
	for _, e := range s.entries {
		st.Count++
		st.TotalBytes += e.artifact.Size
	}
	return st, nil
}
