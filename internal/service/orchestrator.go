package service

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

// CredentialSource supplies the current credential set.
type CredentialSource interface {
	Resolve() domain.CredentialSet
}

// Options are the orchestrator's fixed settings.
type Options struct {
	MaxArtifactBytes int64
	ArtifactTTL      time.Duration
	RateLimit        int
	// Persistent stores keep artifacts readable through Open after delivery.
	Persistent bool
}

// Delivery is a stored artifact ready to stream. Body must be closed.
type Delivery struct {
	Artifact *domain.Artifact
	Body     io.ReadCloser
}

// StatsReport summarizes service state for the stats endpoint.
type StatsReport struct {
	CachedArtifactCount int     `json:"cachedArtifactCount"`
	TotalSizeMB         float64 `json:"totalSizeMB"`
	TTLHours            float64 `json:"ttlHours"`
	RateLimitPerHour    int     `json:"rateLimitPerHour"`
}

// Orchestrator coordinates the request workflow: validate, admit, resolve
// credentials, extract, aggregate, store, deliver.
type Orchestrator struct {
	strategy    *Strategy
	aggregator  *Aggregator
	store       ports.ArtifactStore
	limiter     ports.RateLimiter
	credentials CredentialSource
	events      ports.EventSink
	opts        Options
	logger      *log.Logger
	now         func() time.Time
}

// NewOrchestrator creates a new Orchestrator. events may be nil.
func NewOrchestrator(
	strategy *Strategy,
	aggregator *Aggregator,
	store ports.ArtifactStore,
	limiter ports.RateLimiter,
	credentials CredentialSource,
	events ports.EventSink,
	opts Options,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		strategy:    strategy,
		aggregator:  aggregator,
		store:       store,
		limiter:     limiter,
		credentials: credentials,
		events:      events,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// Info returns metadata for req without fetching media.
func (o *Orchestrator) Info(ctx context.Context, clientID string, req domain.MediaRequest) (*domain.ExtractionResult, error) {
	reqID := uuid.New().String()
	start := o.now()
	o.logger.Printf("[REQ %s] Info request from %s for %s", reqID, clientID, req.URL)

	res, err := o.info(ctx, clientID, req)
	ev := o.event(reqID, domain.EventInfo, clientID, req, start, err)
	if res != nil {
		ev.Items = res.ItemCount
	}
	o.record(ctx, ev)

	if err != nil {
		o.logger.Printf("[REQ %s] ERROR: %v", reqID, err)
		return nil, err
	}
	o.logger.Printf("[REQ %s] Info completed: %d item(s)", reqID, res.ItemCount)
	return res, nil
}

func (o *Orchestrator) info(ctx context.Context, clientID string, req domain.MediaRequest) (*domain.ExtractionResult, error) {
	if err := o.admit(ctx, clientID, req); err != nil {
		return nil, err
	}
	return o.strategy.Info(ctx, req, o.credentials.Resolve())
}

// Download runs the full pipeline and returns the stored artifact.
func (o *Orchestrator) Download(ctx context.Context, clientID string, req domain.MediaRequest) (*Delivery, error) {
	reqID := uuid.New().String()
	start := o.now()
	o.logger.Printf("[REQ %s] Download request from %s for %s", reqID, clientID, req.URL)

	d, items, err := o.download(ctx, reqID, clientID, req)
	ev := o.event(reqID, domain.EventDownload, clientID, req, start, err)
	if d != nil {
		ev.ArtifactID = d.Artifact.ID
		ev.Size = d.Artifact.Size
		ev.Items = items
	}
	o.record(ctx, ev)

	if err != nil {
		o.logger.Printf("[REQ %s] ERROR: %v", reqID, err)
		return nil, err
	}
	o.logger.Printf("[REQ %s] Delivering %s (%d bytes) after %s", reqID, d.Artifact.Name, d.Artifact.Size, o.now().Sub(start).Round(time.Millisecond))
	return d, nil
}

func (o *Orchestrator) download(ctx context.Context, reqID, clientID string, req domain.MediaRequest) (*Delivery, int, error) {
	if err := o.admit(ctx, clientID, req); err != nil {
		return nil, 0, err
	}

	creds := o.credentials.Resolve()
	if !creds.Valid {
		o.logger.Printf("[REQ %s] No credentials available, continuing anonymously", reqID)
	}

	var (
		stored *domain.Artifact
		items  int
	)
	err := o.strategy.Download(ctx, req, creds, func(meta *domain.ExtractionResult, files []domain.LocalFile, workspace string) error {
		o.logger.Printf("[REQ %s] Engine produced %d file(s)", reqID, len(files))
		artifact, err := o.aggregator.Aggregate(files, o.opts.MaxArtifactBytes, meta.Label(), workspace)
		if err != nil {
			return err
		}
		f, err := os.Open(artifact.Path)
		if err != nil {
			return domain.StorageFailure("could not read the produced artifact", err)
		}
		defer f.Close()

		stored, err = o.store.Put(ctx, *artifact, f)
		if err != nil {
			return err
		}
		items = len(files)
		if artifact.Archive {
			items = len(artifact.Entries)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	a, body, err := o.store.Get(ctx, stored.ID)
	if err != nil {
		return nil, 0, err
	}
	// The store knows nothing about archive entries.
	a.Entries = stored.Entries
	a.Archive = stored.Archive
	return &Delivery{Artifact: a, Body: body}, items, nil
}

// Open returns a previously stored artifact by id.
func (o *Orchestrator) Open(ctx context.Context, id string) (*Delivery, error) {
	if !o.opts.Persistent {
		return nil, domain.NotFound("artifacts are not retained in this storage mode", nil)
	}
	a, body, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Delivery{Artifact: a, Body: body}, nil
}

// Stats reports store usage and limits.
func (o *Orchestrator) Stats(ctx context.Context) (*StatsReport, error) {
	st, err := o.store.Stats(ctx)
	if err != nil {
		return nil, domain.StorageFailure("could not read artifact statistics", err)
	}
	return &StatsReport{
		CachedArtifactCount: st.Count,
		TotalSizeMB:         float64(st.TotalBytes) / (1 << 20),
		TTLHours:            o.opts.ArtifactTTL.Hours(),
		RateLimitPerHour:    o.opts.RateLimit,
	}, nil
}

// CredentialsConfigured reports whether usable credentials were found.
func (o *Orchestrator) CredentialsConfigured() bool {
	return o.credentials.Resolve().Valid
}

// admit validates the request and charges it to the client's quota.
func (o *Orchestrator) admit(ctx context.Context, clientID string, req domain.MediaRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	ok, err := o.limiter.Admit(ctx, clientID, o.now())
	if err != nil {
		// Limiter backend unavailable: serve rather than reject everyone.
		o.logger.Printf("Rate limiter error for %s: %v", clientID, err)
		return nil
	}
	if !ok {
		return domain.RateLimited("Rate limit exceeded", nil)
	}
	return nil
}

func (o *Orchestrator) event(id, typ, clientID string, req domain.MediaRequest, start time.Time, err error) domain.Event {
	ev := domain.Event{
		ID:      id,
		Type:    typ,
		URL:     req.URL,
		Client:  clientID,
		Status:  domain.StatusOK,
		Elapsed: o.now().Sub(start),
		At:      start,
	}
	if err != nil {
		ev.Status = domain.StatusError
		ev.ErrorKind = string(domain.KindOf(err))
	}
	return ev
}

func (o *Orchestrator) record(ctx context.Context, ev domain.Event) {
	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.events.Record(ctx, ev); err != nil {
		o.logger.Printf("[REQ %s] event not recorded: %v", ev.ID, err)
	}
}
