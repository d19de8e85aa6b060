package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"mediagate/internal/adapters/downloader"
	"mediagate/internal/adapters/kafka"
	"mediagate/internal/adapters/ledger"
	"mediagate/internal/adapters/localstorage"
	"mediagate/internal/adapters/memstore"
	"mediagate/internal/adapters/opengraph"
	"mediagate/internal/adapters/redislimit"
	"mediagate/internal/adapters/s3store"
	"mediagate/internal/adapters/youtube"
	"mediagate/internal/adapters/ytdlp"
	"mediagate/internal/cleanup"
	"mediagate/internal/config"
	"mediagate/internal/core/ports"
	"mediagate/internal/credentials"
	"mediagate/internal/ratelimit"
	"mediagate/internal/service"
)

// app is the fully wired service.
type app struct {
	cfg        *config.Config
	logger     *log.Logger
	orch       *service.Orchestrator
	scheduler  *cleanup.Scheduler
	persistent bool
	closers    []io.Closer
}

// newLogger writes to console and to log_dir/mediagate.log.
func newLogger(cfg *config.Config, console io.Writer) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.LogDir, "mediagate.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	flags := log.LstdFlags
	if cfg.Debug {
		flags |= log.Lshortfile
	}
	return log.New(io.MultiWriter(console, f), "", flags), f, nil
}

func newApp(ctx context.Context, cfg *config.Config, console io.Writer) (*app, error) {
	logger, logFile, err := newLogger(cfg, console)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logFile}}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	var targets []cleanup.Target

	resolver := credentials.NewResolver(credentials.Options{
		Candidates:      credentials.CandidatesFromPaths(cfg.CredentialCandidatePaths, cfg.CredentialReadOnlyPrefixes),
		StagingPath:     cfg.CredentialStagingPath,
		Secrets:         cfg.Secrets(),
		Domain:          cfg.CredentialCookieDomain,
		EngineWritesJar: cfg.Engine == "ytdlp",
	}, a.logger)
	creds := resolver.Resolve()

	var jar http.CookieJar
	if creds.Valid {
		a.logger.Printf("Using cookies from %s (%s)", creds.Path, creds.Source)
		j, err := credentials.LoadJar(creds.Path)
		if err != nil {
			a.logger.Printf("Cookie jar %s not loaded for HTTP engines: %v", creds.Path, err)
		} else {
			jar = j
		}
	} else {
		a.logger.Println("No cookie file found; restricted content will fail with AuthRequired")
	}

	store, persistent, err := a.store(ctx)
	if err != nil {
		return err
	}
	a.persistent = persistent
	targets = append(targets, cleanup.Target{Name: "artifacts", Sweeper: store})

	limiter, err := a.limiter(ctx)
	if err != nil {
		return err
	}
	if sw, ok := limiter.(ports.Sweeper); ok {
		targets = append(targets, cleanup.Target{Name: "rate limit", Sweeper: sw})
	}

	events, err := a.sinks()
	if err != nil {
		return err
	}

	strategy, err := service.NewStrategy(a.engine(jar), service.StrategyConfig{
		Preferences:    cfg.Formats,
		WorkDir:        cfg.WorkDir,
		AttemptTimeout: cfg.AttemptTimeout(),
		SocketTimeout:  cfg.SocketTimeout(),
		Retries:        cfg.EngineRetries,
		MaxBytes:       cfg.MaxArtifactBytes(),
		Headers:        cfg.Headers,
	}, a.logger)
	if err != nil {
		return err
	}
	targets = append(targets, cleanup.Target{
		Name:    "workspaces",
		Sweeper: &cleanup.Janitor{Dir: cfg.WorkDir, TTL: cfg.ArtifactTTL(), Logger: a.logger},
	})

	a.orch = service.NewOrchestrator(strategy, service.NewAggregator(a.logger), store, limiter, resolver, events,
		service.Options{
			MaxArtifactBytes: cfg.MaxArtifactBytes(),
			ArtifactTTL:      cfg.ArtifactTTL(),
			RateLimit:        cfg.RateLimitPerHour,
			Persistent:       persistent,
		}, a.logger)
	a.scheduler = cleanup.New(cfg.CleanupInterval(), a.logger, targets...)
	return nil
}

func (a *app) store(ctx context.Context) (ports.ArtifactStore, bool, error) {
	cfg := a.cfg
	switch cfg.StorageMode {
	case config.StorageDisk:
		s, err := localstorage.NewLocalStorage(cfg.ArtifactDir, cfg.ArtifactTTL(), a.logger)
		if err != nil {
			return nil, false, err
		}
		a.logger.Printf("Storing artifacts on disk in %s", cfg.ArtifactDir)
		return s, true, nil
	case config.StorageS3:
		s, err := s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Profile:      cfg.S3Profile,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		}, cfg.ArtifactTTL(), a.logger)
		if err != nil {
			return nil, false, err
		}
		a.logger.Printf("Storing artifacts in s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
		return s, true, nil
	default:
		a.logger.Println("Artifacts are held in memory and delivered once")
		return memstore.New(cfg.ArtifactTTL()), false, nil
	}
}

func (a *app) limiter(ctx context.Context) (ports.RateLimiter, error) {
	cfg := a.cfg
	if cfg.RateLimitBackend == "redis" {
		l, err := redislimit.New(ctx, redislimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RateLimitPerHour, cfg.RateLimitWindow())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, l)
		a.logger.Printf("Rate limit %d/%s shared through redis at %s", cfg.RateLimitPerHour, cfg.RateLimitWindow(), cfg.RedisAddr)
		return l, nil
	}
	a.logger.Printf("Rate limit %d/%s per process", cfg.RateLimitPerHour, cfg.RateLimitWindow())
	return ratelimit.New(cfg.RateLimitPerHour, cfg.RateLimitWindow()), nil
}

func (a *app) engine(jar http.CookieJar) ports.Engine {
	cfg := a.cfg
	httpDL := downloader.NewHTTPDownloader(cfg.AttemptTimeout(), jar)

	router := &service.EngineRouter{}
	switch cfg.Engine {
	case "opengraph":
		router.Fallback = opengraph.New(httpDL, a.logger)
	default:
		router.Fallback = ytdlp.New(cfg.YtDlpPath, a.logger)
	}
	if cfg.YouTubeNative {
		router.Routes = append(router.Routes, service.Route{
			Name:   "youtube",
			Match:  youtube.Handles,
			Engine: youtube.New(httpDL.Client(), a.logger),
		})
	}
	a.logger.Printf("Extraction engine: %s (youtube native: %t)", cfg.Engine, cfg.YouTubeNative)
	return router
}

// sinks returns nil when no event sink is configured.
func (a *app) sinks() (ports.EventSink, error) {
	cfg := a.cfg
	var sinks service.MultiSink
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, l)
	}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := kafka.NewSink(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, a.logger)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, k)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	a.closers = append(a.closers, sinks)
	return sinks, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Printf("close: %v", err)
		}
	}
}
