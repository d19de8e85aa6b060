package cleanup

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WorkspacePrefix names the per-attempt directories the strategy creates.
const WorkspacePrefix = "attempt-"

// Janitor removes attempt workspaces left behind by a crashed process.
type Janitor struct {
	Dir    string
	TTL    time.Duration
	Logger *log.Logger
}

// SweepExpired deletes attempt directories under Dir older than TTL.
func (j *Janitor) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.IsDir() || !strings.HasPrefix(e.Name(), WorkspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) <= j.TTL {
			continue
		}
		p := filepath.Join(j.Dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			j.Logger.Printf("Janitor: could not remove %s: %v", p, err)
			continue
		}
		removed++
	}
	return removed, nil
}
