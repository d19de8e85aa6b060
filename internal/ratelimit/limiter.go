// Package ratelimit implements per-client sliding-window admission control.
//
// State lives in this process only. When the service runs as several
// independent processes, each one admits up to Limit requests per client per
// window, so the effective limit is Limit per process. Use the Redis-backed
// limiter for a limit shared across processes.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	records map[string][]time.Time
}

// Limiter admits at most Limit events per client in any trailing Window.
type Limiter struct {
	limit  int
	window time.Duration
	shards [shardCount]*shard
}

// New creates a Limiter.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{limit: limit, window: window}
	for i := range l.shards {
		l.shards[i] = &shard{records: make(map[string][]time.Time)}
	}
	return l
}

func (l *Limiter) shardFor(clientID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(clientID))
	return l.shards[h.Sum32()%shardCount]
}

// Admit prunes the client's record, then either rejects without mutation or
// appends now and accepts. The prune-check-append sequence runs under the
// client's shard lock.
func (l *Limiter) Admit(_ context.Context, clientID string, now time.Time) (bool, error) {
	s := l.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.records[clientID], now, l.window)
	if len(kept) >= l.limit {
		s.records[clientID] = kept
		return false, nil
	}
	s.records[clientID] = append(kept, now)
	return true, nil
}

// Remaining reports how many admissions clientID has left at now.
func (l *Limiter) Remaining(clientID string, now time.Time) int {
	s := l.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := l.limit - len(prune(s.records[clientID], now, l.window))
	if n < 0 {
		return 0
	}
	return n
}

// SweepExpired drops clients whose records have fully aged out.
func (l *Limiter) SweepExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, ts := range s.records {
			kept := prune(ts, now, l.window)
			if len(kept) == 0 {
				delete(s.records, id)
				removed++
				continue
			}
			s.records[id] = kept
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// prune keeps timestamps younger than window. Timestamps are appended in
// admission order, so the expired ones form a prefix.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
