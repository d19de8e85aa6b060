package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"mediagate/internal/adapters/memstore"
	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
	"mediagate/internal/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Admit(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

type harness struct {
	engine *fakeEngine
	store  *memstore.Store
	sink   *recordingSink
	orch   *Orchestrator
}

func newHarness(t *testing.T, e *fakeEngine, limiter ports.RateLimiter) *harness {
	t.Helper()
	strategy := newTestStrategy(t, e)
	store := memstore.New(time.Hour)
	if limiter == nil {
		limiter = ratelimit.New(50, time.Hour)
	}
	sink := &recordingSink{}
	orch := NewOrchestrator(strategy, NewAggregator(quiet), store, limiter,
		staticCredentials{Valid: true, Path: "/tmp/cookies.txt"}, sink,
		Options{MaxArtifactBytes: 100 * mb, ArtifactTTL: time.Hour, RateLimit: 50}, quiet)
	return &harness{engine: e, store: store, sink: sink, orch: orch}
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

var videoURL = domain.MediaRequest{URL: "https://www.instagram.com/reel/abc/"}

func TestOrchestratorDownloadSingleVideo(t *testing.T) {
	h := newHarness(t, &fakeEngine{
		meta:  &domain.ExtractionResult{Title: "reel", Uploader: "creator", ItemCount: 1},
		fetch: filesOf(t, 10*mb, "001-abc.mp4"),
	}, nil)

	d, err := h.orch.Download(context.Background(), "1.2.3.4", videoURL)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	body := readAll(t, d.Body)
	if len(body) != 10*mb {
		t.Errorf("body = %d bytes", len(body))
	}
	if d.Artifact.MIME != "video/mp4" || d.Artifact.Name != "creator.mp4" || d.Artifact.ID == "" {
		t.Errorf("artifact = %+v", d.Artifact)
	}
	if h.engine.fetches[0].CookieFile != "/tmp/cookies.txt" {
		t.Error("credentials not passed to the engine")
	}

	st, _ := h.store.Stats(context.Background())
	if st.Count != 0 {
		t.Errorf("memory store kept %d artifact(s) after delivery", st.Count)
	}
	assertWorkspacesGone(t, h.engine)

	if len(h.sink.events) != 1 {
		t.Fatalf("events = %d", len(h.sink.events))
	}
	ev := h.sink.events[0]
	if ev.Status != domain.StatusOK || ev.Type != domain.EventDownload || ev.ArtifactID != d.Artifact.ID || ev.Client != "1.2.3.4" {
		t.Errorf("event = %+v", ev)
	}
}

func TestOrchestratorDownloadCarousel(t *testing.T) {
	h := newHarness(t, &fakeEngine{
		meta:  &domain.ExtractionResult{Uploader: "gallery", ItemCount: 4, IsMultiItem: true},
		fetch: filesOf(t, 2048, "001-a.jpg", "002-b.jpg", "003-c.jpg", "004-d.jpg"),
	}, nil)

	d, err := h.orch.Download(context.Background(), "c", domain.MediaRequest{URL: "https://www.instagram.com/p/xyz/"})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	body := readAll(t, d.Body)
	if d.Artifact.MIME != "application/zip" || !d.Artifact.Archive || len(d.Artifact.Entries) != 4 {
		t.Fatalf("artifact = %+v", d.Artifact)
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	if len(zr.File) != 4 || zr.File[0].Name != "item-01.jpg" || zr.File[3].Name != "item-04.jpg" {
		t.Errorf("zip entries = %v", zr.File)
	}
	if h.sink.events[0].Items != 4 {
		t.Errorf("event items = %d", h.sink.events[0].Items)
	}
}

func TestOrchestratorPrivateContent(t *testing.T) {
	h := newHarness(t, &fakeEngine{
		extractErr: domain.AuthRequired("This content is private or requires login", nil),
	}, nil)

	_, err := h.orch.Download(context.Background(), "c", videoURL)
	if domain.KindOf(err) != domain.KindAuthRequired {
		t.Fatalf("err = %v, want AuthRequired", err)
	}
	if len(h.engine.fetches) != 0 {
		t.Error("fetch ran after metadata failed")
	}
	ev := h.sink.events[0]
	if ev.Status != domain.StatusError || ev.ErrorKind != string(domain.KindAuthRequired) {
		t.Errorf("event = %+v", ev)
	}
}

func TestOrchestratorRejectsInvalidInputBeforeCharging(t *testing.T) {
	limiter := ratelimit.New(1, time.Hour)
	h := newHarness(t, &fakeEngine{fetch: filesOf(t, 1, "a.mp4")}, limiter)

	for _, req := range []domain.MediaRequest{{}, {URL: "ftp://host/x"}, {URL: "https://x.com/p", ItemIndex: -1}} {
		_, err := h.orch.Download(context.Background(), "c", req)
		if domain.KindOf(err) != domain.KindInvalidInput {
			t.Errorf("%+v: err = %v", req, err)
		}
	}
	if h.engine.extracts != 0 {
		t.Error("engine ran for invalid input")
	}
	if ok, _ := limiter.Admit(context.Background(), "c", time.Now()); !ok {
		t.Error("invalid requests consumed the quota")
	}
}

func TestOrchestratorRateLimit(t *testing.T) {
	limiter := ratelimit.New(2, time.Hour)
	h := newHarness(t, &fakeEngine{}, limiter)

	for i := 0; i < 2; i++ {
		if _, err := h.orch.Info(context.Background(), "c", videoURL); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	_, err := h.orch.Download(context.Background(), "c", videoURL)
	if domain.KindOf(err) != domain.KindRateLimited || domain.MessageOf(err) != "Rate limit exceeded" {
		t.Fatalf("err = %v, want RateLimited", err)
	}
	if h.engine.extracts != 2 {
		t.Errorf("extracts = %d, want 2", h.engine.extracts)
	}
	if _, err := h.orch.Info(context.Background(), "other", videoURL); err != nil {
		t.Errorf("other client rejected: %v", err)
	}
}

func TestOrchestratorLimiterFailureAdmits(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, failingLimiter{})
	if _, err := h.orch.Info(context.Background(), "c", videoURL); err != nil {
		t.Fatalf("Info() error: %v", err)
	}
}

func TestOrchestratorSinkFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, nil)
	h.sink.err = errors.New("broker down")
	if _, err := h.orch.Info(context.Background(), "c", videoURL); err != nil {
		t.Fatalf("Info() error: %v", err)
	}
	if len(h.sink.events) != 1 || h.sink.events[0].Type != domain.EventInfo {
		t.Errorf("events = %+v", h.sink.events)
	}
}

func TestOrchestratorOpen(t *testing.T) {
	h := newHarness(t, &fakeEngine{fetch: filesOf(t, 10, "a.mp4")}, nil)
	if _, err := h.orch.Open(context.Background(), "anything"); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("non-persistent Open: err = %v", err)
	}

	h.orch.opts.Persistent = true
	stored, err := h.store.Put(context.Background(), domain.Artifact{Name: "x.mp4", MIME: "video/mp4"}, bytes.NewReader([]byte("abc")))
	if err != nil {
		t.Fatal(err)
	}
	d, err := h.orch.Open(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if string(readAll(t, d.Body)) != "abc" {
		t.Error("wrong content")
	}
}

func TestOrchestratorStats(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, nil)
	h.store.Put(context.Background(), domain.Artifact{Name: "x.mp4"}, bytes.NewReader(make([]byte, mb)))

	st, err := h.orch.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := StatsReport{CachedArtifactCount: 1, TotalSizeMB: 1, TTLHours: 1, RateLimitPerHour: 50}
	if *st != want {
		t.Errorf("Stats() = %+v, want %+v", *st, want)
	}
	if !h.orch.CredentialsConfigured() {
		t.Error("CredentialsConfigured() = false")
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("down")}
	m := MultiSink{a, b}
	err := m.Record(context.Background(), domain.Event{ID: "1"})
	if err == nil {
		t.Error("expected the failing sink's error")
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out incomplete: %d / %d", len(a.events), len(b.events))
	}
	if err := m.Close(); err != nil || !a.closed || !b.closed {
		t.Errorf("Close() = %v", err)
	}
}

func TestEngineRouter(t *testing.T) {
	yt := &fakeEngine{meta: &domain.ExtractionResult{Title: "yt"}}
	other := &fakeEngine{meta: &domain.ExtractionResult{Title: "other"}}
	r := &EngineRouter{
		Routes: []Route{{
			Name:   "youtube",
			Match:  func(u string) bool { return u == "https://youtu.be/x" },
			Engine: yt,
		}},
		Fallback: other,
	}
	res, _ := r.Extract(context.Background(), "https://youtu.be/x", ports.EngineOptions{})
	if res.Title != "yt" {
		t.Errorf("routed to %q", res.Title)
	}
	res, _ = r.Extract(context.Background(), "https://vimeo.com/1", ports.EngineOptions{})
	if res.Title != "other" {
		t.Errorf("fallback returned %q", res.Title)
	}
}
