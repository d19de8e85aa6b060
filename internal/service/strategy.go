package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

// DefaultPreferences is the order formats are tried in.
var DefaultPreferences = []string{"best-capped", "best", "720p", "480p", "360p", "worst"}

// Preference is one format/quality choice handed to the engine.
type Preference struct {
	Name      string
	Format    string
	MaxHeight int
	Capped    bool // limit the selection to the artifact size cap
}

// ParsePreference resolves a named preference. Unknown names are not
// preferences; callers may still pass them to the engine as raw selectors.
func ParsePreference(name string) (Preference, bool) {
	switch name {
	case "best-capped":
		return Preference{Name: name, Format: "best", Capped: true}, true
	case "best", "worst":
		return Preference{Name: name, Format: name}, true
	}
	if h, ok := strings.CutSuffix(name, "p"); ok {
		if n, err := strconv.Atoi(h); err == nil && n > 0 {
			return Preference{Name: name, Format: "best", MaxHeight: n}, true
		}
	}
	return Preference{}, false
}

// AttemptError records one failed preference.
type AttemptError struct {
	Preference string
	Err        error
}

// AttemptsError is returned when every preference failed with a
// recoverable error.
type AttemptsError struct {
	Attempts []AttemptError
}

func (e *AttemptsError) Error() string {
	if len(e.Attempts) == 0 {
		return "all format preferences failed"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("all format preferences failed: %d attempt(s), last %s: %v", len(e.Attempts), last.Preference, last.Err)
}

// Unwrap exposes the last attempt's error.
func (e *AttemptsError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// ErrorKind is Timeout or TooLarge when the last attempt failed that way,
// UnsupportedFormat otherwise.
func (e *AttemptsError) ErrorKind() domain.ErrorKind {
	if len(e.Attempts) > 0 {
		switch k := domain.KindOf(e.Attempts[len(e.Attempts)-1].Err); k {
		case domain.KindTimeout, domain.KindTooLarge:
			return k
		}
	}
	return domain.KindUnsupportedFormat
}

// UserMessage is safe to show to callers.
func (e *AttemptsError) UserMessage() string {
	switch e.ErrorKind() {
	case domain.KindTimeout:
		return "extraction timed out for every available format"
	case domain.KindTooLarge:
		return "every available format exceeds the size limit"
	default:
		if len(e.Attempts) > 0 {
			return "no downloadable format found: " + domain.MessageOf(e.Attempts[len(e.Attempts)-1].Err)
		}
		return "no downloadable format found"
	}
}

// StrategyConfig bounds every engine invocation.
type StrategyConfig struct {
	Preferences    []string
	WorkDir        string
	AttemptTimeout time.Duration
	SocketTimeout  time.Duration
	Retries        int
	MaxBytes       int64
	Headers        map[string]string
}

// Consumer receives the files of a successful attempt. The workspace, and
// the files in it, are removed as soon as it returns.
type Consumer func(meta *domain.ExtractionResult, files []domain.LocalFile, workspace string) error

// Strategy drives an engine through the preference list.
type Strategy struct {
	engine ports.Engine
	cfg    StrategyConfig
	prefs  []Preference
	logger *log.Logger
}

// NewStrategy validates the configured preference names.
func NewStrategy(engine ports.Engine, cfg StrategyConfig, logger *log.Logger) (*Strategy, error) {
	names := cfg.Preferences
	if len(names) == 0 {
		names = DefaultPreferences
	}
	prefs := make([]Preference, 0, len(names))
	for _, n := range names {
		p, ok := ParsePreference(n)
		if !ok {
			return nil, fmt.Errorf("unknown format preference %q", n)
		}
		prefs = append(prefs, p)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Strategy{engine: engine, cfg: cfg, prefs: prefs, logger: logger}, nil
}

// Info extracts metadata only. No bytes are fetched and no workspace is made.
func (s *Strategy) Info(ctx context.Context, req domain.MediaRequest, creds domain.CredentialSet) (*domain.ExtractionResult, error) {
	actx, cancel := s.attemptContext(ctx)
	defer cancel()

	opts := s.options(creds, Preference{})
	res, err := s.engine.Extract(actx, req.URL, opts)
	if err != nil {
		return nil, s.settle(ctx, err)
	}
	return res, nil
}

// Download extracts metadata, then tries each preference in its own
// workspace until one yields files that consume accepts. A recoverable
// metadata failure does not end the request: extraction is retried before
// each following attempt, and files are still fetched without it.
func (s *Strategy) Download(ctx context.Context, req domain.MediaRequest, creds domain.CredentialSet, consume Consumer) error {
	meta, err := s.metadata(ctx, req, creds)
	if err != nil {
		return err
	}

	var attempts []AttemptError
	for i, pref := range s.plan(req) {
		if meta == nil && i > 0 {
			if meta, err = s.metadata(ctx, req, creds); err != nil {
				return err
			}
		}
		err = s.attempt(ctx, req, creds, pref, meta, consume)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return s.settle(ctx, err)
		}
		if !recoverable(err) {
			return err
		}
		s.logger.Printf("Preference %s failed (%s), trying next", pref.Name, domain.KindOf(err))
		attempts = append(attempts, AttemptError{Preference: pref.Name, Err: err})
	}
	return &AttemptsError{Attempts: attempts}
}

// metadata returns nil and no error when extraction failed recoverably.
func (s *Strategy) metadata(ctx context.Context, req domain.MediaRequest, creds domain.CredentialSet) (*domain.ExtractionResult, error) {
	meta, err := s.Info(ctx, req, creds)
	if err != nil {
		if ctx.Err() != nil || !recoverable(err) {
			return nil, err
		}
		s.logger.Printf("Metadata extraction failed (%s), continuing with the preference list", domain.KindOf(err))
		return nil, nil
	}
	if req.ItemIndex > 0 && req.ItemIndex > meta.ItemCount {
		return nil, domain.InvalidInput(fmt.Sprintf("itemIndex %d is out of range: the source has %d item(s)", req.ItemIndex, meta.ItemCount), nil)
	}
	return meta, nil
}

func (s *Strategy) attempt(ctx context.Context, req domain.MediaRequest, creds domain.CredentialSet, pref Preference, meta *domain.ExtractionResult, consume Consumer) error {
	if err := os.MkdirAll(s.cfg.WorkDir, 0755); err != nil {
		return domain.StorageFailure("could not prepare a workspace", err)
	}
	workspace, err := os.MkdirTemp(s.cfg.WorkDir, "attempt-*")
	if err != nil {
		return domain.StorageFailure("could not prepare a workspace", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			s.logger.Printf("Workspace %s not removed: %v", workspace, err)
		}
	}()

	actx, cancel := s.attemptContext(ctx)
	defer cancel()

	opts := s.options(creds, pref)
	opts.ItemIndex = req.ItemIndex
	files, err := s.engine.Fetch(actx, req.URL, opts, workspace)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return domain.UnsupportedFormat(fmt.Sprintf("format %s produced no files", pref.Name), nil)
	}
	if meta == nil {
		meta = &domain.ExtractionResult{}
	}
	return consume(meta, files, workspace)
}

// plan puts the request's format hint in front of the configured order.
func (s *Strategy) plan(req domain.MediaRequest) []Preference {
	if req.Format == "" {
		return s.prefs
	}
	first, ok := ParsePreference(req.Format)
	if !ok {
		first = Preference{Name: req.Format, Format: req.Format}
	}
	plan := []Preference{first}
	for _, p := range s.prefs {
		if p.Name != first.Name {
			plan = append(plan, p)
		}
	}
	return plan
}

func (s *Strategy) options(creds domain.CredentialSet, pref Preference) ports.EngineOptions {
	opts := ports.EngineOptions{
		Format:        pref.Format,
		MaxHeight:     pref.MaxHeight,
		SocketTimeout: s.cfg.SocketTimeout,
		Retries:       s.cfg.Retries,
		Headers:       s.cfg.Headers,
	}
	if pref.Capped {
		opts.MaxBytes = s.cfg.MaxBytes
	}
	if creds.Valid {
		opts.CookieFile = creds.Path
	}
	return opts
}

func (s *Strategy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.AttemptTimeout)
}

// settle reports a parent-context failure in preference to whatever the
// engine made of it.
func (s *Strategy) settle(ctx context.Context, err error) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return domain.Timeout("the request timed out", ctxErr)
	case errors.Is(ctxErr, context.Canceled):
		return domain.ExtractionFailure("the request was cancelled", ctxErr)
	}
	return err
}

func recoverable(err error) bool {
	switch domain.KindOf(err) {
	case domain.KindUnsupportedFormat, domain.KindExtractionFailure, domain.KindTimeout, domain.KindTooLarge:
		return true
	}
	return false
}
