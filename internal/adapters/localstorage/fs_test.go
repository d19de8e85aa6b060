package localstorage

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediagate/internal/core/domain"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(filepath.Join(t.TempDir(), "downloads"), time.Hour, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewLocalStorage() error: %v", err)
	}
	return s
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	stored, err := s.Put(ctx, domain.Artifact{Name: "clip.mp4"}, strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if !strings.HasPrefix(stored.ID, "clip_") || !strings.HasSuffix(stored.ID, ".mp4") {
		t.Errorf("ID = %q, want clip_<hex>.mp4", stored.ID)
	}
	if stored.Size != int64(len("video-bytes")) {
		t.Errorf("Size = %d", stored.Size)
	}

	a, rc, err := s.Get(ctx, stored.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "video-bytes" {
		t.Errorf("content = %q", data)
	}
	if a.MIME != "video/mp4" || a.Kind != domain.ContentVideo {
		t.Errorf("artifact = %+v", a)
	}

	// Disk artifacts stay readable.
	if _, rc2, err := s.Get(ctx, stored.ID); err != nil {
		t.Errorf("second Get() error: %v", err)
	} else {
		rc2.Close()
	}
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	if _, err := s.Put(ctx, domain.Artifact{Name: "a.zip"}, strings.NewReader("zip")); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(s.BaseDir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1", len(entries))
	}
}

func TestGetExactIDOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	stored, err := s.Put(ctx, domain.Artifact{Name: "instagram_post.zip"}, strings.NewReader("zip"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		id     string
		wantOK bool
	}{
		{"exact", stored.ID, true},
		{"truncated", stored.ID[:len(stored.ID)-3], false},
		{"bare label", "instagram_post.zip", false},
		{"other suffix", "instagram_post_00000000.zip", false},
		{"unrelated", "completely_different.zip", false},
		{"traversal", "../etc/passwd", false},
		{"hidden", ".incoming-123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rc, err := s.Get(ctx, tt.id)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Get(%q) error: %v", tt.id, err)
				}
				rc.Close()
				if a.ID != stored.ID {
					t.Errorf("resolved to %q, want %q", a.ID, stored.ID)
				}
				return
			}
			if domain.KindOf(err) != domain.KindNotFound {
				t.Errorf("Get(%q) error = %v, want NotFound", tt.id, err)
			}
		})
	}
}

func TestExpiredIDNotServedFromSibling(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return t0 }
	first, err := s.Put(ctx, domain.Artifact{Name: "natgeo_official.mp4"}, strings.NewReader("first"))
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return t0.Add(50 * time.Minute) }
	second, err := s.Put(ctx, domain.Artifact{Name: "natgeo_official.mp4"}, strings.NewReader("second"))
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return t0.Add(61 * time.Minute) }
	if n, _ := s.SweepExpired(ctx, t0.Add(61*time.Minute)); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if a, rc, err := s.Get(ctx, first.ID); domain.KindOf(err) != domain.KindNotFound {
		if rc != nil {
			rc.Close()
		}
		t.Fatalf("Get(%q) = %+v, %v; want NotFound", first.ID, a, err)
	}

	a, rc, err := s.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get(%q) error: %v", second.ID, err)
	}
	defer rc.Close()
	if data, _ := io.ReadAll(rc); a.ID != second.ID || string(data) != "second" {
		t.Errorf("got %q %q", a.ID, data)
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return t0 }
	stored, err := s.Put(ctx, domain.Artifact{Name: "a.mp4"}, strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return t0.Add(59 * time.Minute) }
	if n, _ := s.SweepExpired(ctx, t0.Add(59*time.Minute)); n != 0 {
		t.Fatalf("swept %d before TTL", n)
	}
	if _, rc, err := s.Get(ctx, stored.ID); err != nil {
		t.Fatalf("Get() at t0+59m error: %v", err)
	} else {
		rc.Close()
	}

	s.now = func() time.Time { return t0.Add(61 * time.Minute) }
	if n, _ := s.SweepExpired(ctx, t0.Add(61*time.Minute)); n != 1 {
		t.Fatalf("swept %d after TTL, want 1", n)
	}
	if _, _, err := s.Get(ctx, stored.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("Get() after sweep error = %v, want NotFound", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	s.Put(ctx, domain.Artifact{Name: "a.mp4"}, strings.NewReader("12345"))
	s.Put(ctx, domain.Artifact{Name: "b.jpg"}, strings.NewReader("123"))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 2 || st.TotalBytes != 8 {
		t.Errorf("stats = %+v, want 2 files / 8 bytes", st)
	}
}
