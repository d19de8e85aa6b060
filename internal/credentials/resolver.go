// Package credentials locates and stages the cookie jar the extraction
// engine needs for restricted content.
package credentials

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediagate/internal/core/domain"
)

// Candidate is one possible location of a cookie jar.
type Candidate struct {
	Path     string
	ReadOnly bool
}

// Options configures a Resolver.
type Options struct {
	Candidates  []Candidate
	StagingPath string
	Secrets     []domain.Secret
	Domain      string
	// EngineWritesJar is true when the engine writes refreshed cookies back
	// into the jar, which rules out handing it a read-only path.
	EngineWritesJar bool
}

// Resolver resolves credentials once and caches the result for the
// process lifetime. Refresh forces a new resolution.
type Resolver struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	cached *domain.CredentialSet
}

// NewResolver creates a Resolver.
func NewResolver(opts Options, logger *log.Logger) *Resolver {
	if opts.Domain == "" {
		opts.Domain = ".instagram.com"
	}
	return &Resolver{opts: opts, logger: logger, now: time.Now}
}

// CandidatesFromPaths marks every path under one of readOnlyPrefixes as
// read-only.
func CandidatesFromPaths(paths, readOnlyPrefixes []string) []Candidate {
	out := make([]Candidate, 0, len(paths))
	for _, p := range paths {
		c := Candidate{Path: p}
		for _, prefix := range readOnlyPrefixes {
			if prefix != "" && strings.HasPrefix(p, prefix) {
				c.ReadOnly = true
				break
			}
		}
		out = append(out, c)
	}
	return out
}

// Resolve returns the cached credential set, resolving it on first use.
func (r *Resolver) Resolve() domain.CredentialSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		set := r.resolve()
		r.cached = &set
	}
	return *r.cached
}

// Refresh discards the cached result and resolves again.
func (r *Resolver) Refresh() domain.CredentialSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.resolve()
	r.cached = &set
	return set
}

func (r *Resolver) resolve() domain.CredentialSet {
	set := domain.CredentialSet{ResolvedAt: r.now()}
	for _, c := range r.opts.Candidates {
		set.Candidates = append(set.Candidates, c.Path)
	}

	for _, c := range r.opts.Candidates {
		info, err := os.Stat(c.Path)
		if err != nil || info.IsDir() || info.Size() == 0 {
			continue
		}

		set.Source = "file"
		if !c.ReadOnly {
			r.logger.Printf("Using cookies from %s", c.Path)
			set.Path = c.Path
			set.Valid = true
			return set
		}

		if err := r.stage(c.Path); err != nil {
			r.logger.Printf("Cookie copy failed: %v", err)
			if r.opts.EngineWritesJar {
				r.logger.Printf("Cookies at %s are read-only and the engine needs write access; credentials unavailable", c.Path)
				set.Source = ""
				return set
			}
			set.Path = c.Path
			set.Valid = true
			return set
		}
		r.logger.Printf("Cookies copied from %s to %s", c.Path, r.opts.StagingPath)
		set.Path = r.opts.StagingPath
		set.Staged = true
		set.Valid = true
		return set
	}

	if len(r.opts.Secrets) > 0 {
		if err := r.synthesize(); err != nil {
			r.logger.Printf("Cookie jar synthesis failed: %v", err)
			return set
		}
		r.logger.Printf("Cookie jar written to %s from %d configured value(s)", r.opts.StagingPath, len(r.opts.Secrets))
		set.Source = "secrets"
		set.Path = r.opts.StagingPath
		set.Staged = true
		set.Valid = true
		return set
	}

	r.logger.Println("No valid cookies found")
	return set
}

// stage copies src byte-for-byte to the staging path.
func (r *Resolver) stage(src string) error {
	if r.opts.StagingPath == "" {
		return fmt.Errorf("no staging path configured")
	}
	if filepath.Clean(src) == filepath.Clean(r.opts.StagingPath) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()
	return writeAtomic(r.opts.StagingPath, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func (r *Resolver) synthesize() error {
	if r.opts.StagingPath == "" {
		return fmt.Errorf("no staging path configured")
	}
	return writeAtomic(r.opts.StagingPath, func(w io.Writer) error {
		return WriteJar(w, r.opts.Domain, r.opts.Secrets)
	})
}

// WriteJar writes secrets as a Netscape cookie jar scoped to cookieDomain.
func WriteJar(w io.Writer, cookieDomain string, secrets []domain.Secret) error {
	if _, err := io.WriteString(w, "# Netscape HTTP Cookie File\n"); err != nil {
		return err
	}
	includeSub := "FALSE"
	if strings.HasPrefix(cookieDomain, ".") {
		includeSub = "TRUE"
	}
	for _, s := range secrets {
		line := strings.Join([]string{cookieDomain, includeSub, "/", "TRUE", "0", s.Name, s.Value}, "\t")
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// writeAtomic writes path through a temp file in the same directory.
func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".cookies-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing cookies: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming cookies: %w", err)
	}
	return nil
}
