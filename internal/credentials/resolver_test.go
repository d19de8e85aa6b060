package credentials

import (
	"bytes"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediagate/internal/core/domain"
)

var quiet = log.New(io.Discard, "", 0)

func TestResolvePrefersFirstValidCandidateAndStagesReadOnly(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "a", "cookies.txt")
	empty := filepath.Join(dir, "b-cookies.txt")
	valid := filepath.Join(dir, "c-cookies.txt")
	staging := filepath.Join(dir, "staging", "cookies.txt")

	content := []byte("# Netscape HTTP Cookie File\n.instagram.com\tTRUE\t/\tTRUE\t0\tsessionid\txyz\n")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(valid, content, 0400); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(Options{
		Candidates: []Candidate{
			{Path: missing},
			{Path: empty},
			{Path: valid, ReadOnly: true},
		},
		StagingPath:     staging,
		EngineWritesJar: true,
	}, quiet)

	set := r.Resolve()
	if !set.Valid {
		t.Fatal("expected valid credentials")
	}
	if set.Path != staging || !set.Staged {
		t.Fatalf("path = %q staged = %v, want staged copy at %q", set.Path, set.Staged, staging)
	}
	got, err := os.ReadFile(staging)
	if err != nil {
		t.Fatalf("reading staged copy: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("staged copy differs from source")
	}
	if len(set.Candidates) != 3 {
		t.Errorf("candidates = %v", set.Candidates)
	}

	again := r.Resolve()
	if again.Path != set.Path || !again.ResolvedAt.Equal(set.ResolvedAt) {
		t.Errorf("second Resolve() = %+v, want cached %+v", again, set)
	}
}

func TestResolveWritableCandidateUsedInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.txt")
	if err := os.WriteFile(path, []byte("x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(Options{
		Candidates:  []Candidate{{Path: path}},
		StagingPath: filepath.Join(dir, "staged.txt"),
	}, quiet)

	set := r.Resolve()
	if !set.Valid || set.Path != path || set.Staged {
		t.Fatalf("set = %+v, want in-place %q", set, path)
	}
	if _, err := os.Stat(filepath.Join(dir, "staged.txt")); !os.IsNotExist(err) {
		t.Errorf("writable candidate should not be copied")
	}
}

func TestResolveCopyFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ro-cookies.txt")
	if err := os.WriteFile(src, []byte("x\n"), 0400); err != nil {
		t.Fatal(err)
	}
	// A regular file where the staging directory should be makes the copy fail.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	staging := filepath.Join(blocker, "cookies.txt")

	tests := []struct {
		name      string
		writes    bool
		wantValid bool
		wantPath  string
	}{
		{"read-only engine falls back to source", false, true, src},
		{"writing engine reports unavailable", true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(Options{
				Candidates:      []Candidate{{Path: src, ReadOnly: true}},
				StagingPath:     staging,
				EngineWritesJar: tt.writes,
			}, quiet)
			set := r.Resolve()
			if set.Valid != tt.wantValid || set.Path != tt.wantPath {
				t.Errorf("set = %+v, want valid=%v path=%q", set, tt.wantValid, tt.wantPath)
			}
		})
	}
}

func TestResolveSynthesizesJarFromSecrets(t *testing.T) {
	dir := t.TempDir()
	staging := filepath.Join(dir, "cookies.txt")
	r := NewResolver(Options{
		Candidates:  []Candidate{{Path: filepath.Join(dir, "missing.txt")}},
		StagingPath: staging,
		Secrets: []domain.Secret{
			{Name: "sessionid", Value: "s3ss"},
			{Name: "csrftoken", Value: "tok"},
		},
	}, quiet)

	set := r.Resolve()
	if !set.Valid || set.Source != "secrets" || set.Path != staging {
		t.Fatalf("set = %+v", set)
	}
	data, err := os.ReadFile(staging)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("jar has %d lines, want header + 2: %q", len(lines), data)
	}
	if lines[1] != ".instagram.com\tTRUE\t/\tTRUE\t0\tsessionid\ts3ss" {
		t.Errorf("first cookie line = %q", lines[1])
	}
	info, err := os.Stat(staging)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("jar mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestResolveNothingFound(t *testing.T) {
	r := NewResolver(Options{
		Candidates: []Candidate{{Path: filepath.Join(t.TempDir(), "nope")}},
	}, quiet)
	set := r.Resolve()
	if set.Valid || set.Path != "" {
		t.Errorf("set = %+v, want unavailable", set)
	}
}

func TestRefreshPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.txt")
	r := NewResolver(Options{Candidates: []Candidate{{Path: path}}}, quiet)

	if r.Resolve().Valid {
		t.Fatal("expected unavailable before file exists")
	}
	if err := os.WriteFile(path, []byte("x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if r.Resolve().Valid {
		t.Error("Resolve() should stay cached until Refresh()")
	}
	if !r.Refresh().Valid {
		t.Error("Refresh() should find the new file")
	}
}

func TestCandidatesFromPaths(t *testing.T) {
	got := CandidatesFromPaths(
		[]string{"/etc/secrets/cookies.txt", "./cookies.txt"},
		[]string{"/etc/secrets/"},
	)
	if len(got) != 2 || !got[0].ReadOnly || got[1].ReadOnly {
		t.Errorf("candidates = %+v", got)
	}
}

func TestLoadJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	var buf bytes.Buffer
	if err := WriteJar(&buf, ".instagram.com", []domain.Secret{{Name: "sessionid", Value: "abc"}}); err != nil {
		t.Fatal(err)
	}
	buf.WriteString("malformed line\n")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	jar, err := LoadJar(path)
	if err != nil {
		t.Fatalf("LoadJar() error: %v", err)
	}
	u, _ := url.Parse("https://www.instagram.com/p/abc/")
	cookies := jar.Cookies(u)
	if len(cookies) != 1 || cookies[0].Name != "sessionid" || cookies[0].Value != "abc" {
		t.Errorf("cookies = %v", cookies)
	}
}

func TestCookieHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	var buf bytes.Buffer
	WriteJar(&buf, ".instagram.com", []domain.Secret{{Name: "sessionid", Value: "abc"}, {Name: "csrftoken", Value: "x"}})
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := CookieHeader(path, "https://www.instagram.com/p/abc/")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "sessionid=abc") || !strings.Contains(got, "csrftoken=x") {
		t.Errorf("CookieHeader() = %q", got)
	}
	if got, _ := CookieHeader(path, "https://example.com/"); got != "" {
		t.Errorf("foreign host got cookies: %q", got)
	}
}
