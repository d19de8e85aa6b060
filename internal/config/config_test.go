package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.RateLimitPerHour != 50 {
		t.Errorf("default rate limit = %d, want 50", cfg.RateLimitPerHour)
	}
	if cfg.RateLimitWindow() != time.Hour {
		t.Errorf("default window = %v, want 1h", cfg.RateLimitWindow())
	}
	if cfg.MaxArtifactBytes() != 100<<20 {
		t.Errorf("default max artifact = %d, want 100MB", cfg.MaxArtifactBytes())
	}
	if cfg.ArtifactTTL() != time.Hour {
		t.Errorf("default ttl = %v, want 1h", cfg.ArtifactTTL())
	}
	if cfg.CleanupInterval() != 30*time.Minute {
		t.Errorf("default cleanup interval = %v, want 30m", cfg.CleanupInterval())
	}
	if cfg.StorageMode != StorageMemory {
		t.Errorf("default storage mode = %q, want memory", cfg.StorageMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero rate limit", func(c *Config) { c.RateLimitPerHour = 0 }, true},
		{"zero window", func(c *Config) { c.RateLimitWindowHours = 0 }, true},
		{"zero max size", func(c *Config) { c.MaxArtifactSizeMB = 0 }, true},
		{"zero ttl", func(c *Config) { c.ArtifactTTLHours = 0 }, true},
		{"bad storage mode", func(c *Config) { c.StorageMode = "tape" }, true},
		{"s3 without bucket", func(c *Config) { c.StorageMode = StorageS3 }, true},
		{"s3 with bucket", func(c *Config) { c.StorageMode = StorageS3; c.S3Bucket = "b" }, false},
		{"disk mode", func(c *Config) { c.StorageMode = StorageDisk }, false},
		{"bad engine", func(c *Config) { c.Engine = "curl" }, true},
		{"opengraph engine", func(c *Config) { c.Engine = "opengraph" }, false},
		{"bad limiter backend", func(c *Config) { c.RateLimitBackend = "memcached" }, true},
		{"redis without addr", func(c *Config) { c.RateLimitBackend = "redis"; c.RedisAddr = "" }, true},
		{"negative retries", func(c *Config) { c.EngineRetries = -1 }, true},
		{"secrets without staging", func(c *Config) {
			c.CredentialSecretNames = []string{"sessionid"}
			c.CredentialStagingPath = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediagate.toml")
	content := `
port = ":9090"
rate_limit_per_hour = 10
storage_mode = "disk"
artifact_dir = "/srv/artifacts"
credential_candidate_paths = ["/a/cookies.txt", "/b/cookies.txt"]
formats = ["best", "worst"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != ":9090" {
		t.Errorf("port = %q, want :9090", cfg.Port)
	}
	if cfg.RateLimitPerHour != 10 {
		t.Errorf("rate limit = %d, want 10", cfg.RateLimitPerHour)
	}
	if cfg.StorageMode != StorageDisk || cfg.ArtifactDir != "/srv/artifacts" {
		t.Errorf("storage = %q %q", cfg.StorageMode, cfg.ArtifactDir)
	}
	if len(cfg.CredentialCandidatePaths) != 2 || cfg.CredentialCandidatePaths[1] != "/b/cookies.txt" {
		t.Errorf("candidates = %v", cfg.CredentialCandidatePaths)
	}
	if len(cfg.Formats) != 2 {
		t.Errorf("formats = %v", cfg.Formats)
	}
	// untouched keys keep their defaults
	if cfg.ArtifactTTLHours != 1 {
		t.Errorf("ttl = %d, want default 1", cfg.ArtifactTTLHours)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() should not error on missing file: %v", err)
	}
	if cfg.RateLimitPerHour != 50 {
		t.Errorf("missing file should return defaults, got %d", cfg.RateLimitPerHour)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediagate.toml")
	if err := os.WriteFile(path, []byte("rate_limit_per_hour = 10\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RATE_LIMIT_PER_HOUR", "25")
	t.Setenv("PORT", "7000")
	t.Setenv("CREDENTIAL_CANDIDATE_PATHS", " /x/c.txt , ,/y/c.txt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RateLimitPerHour != 25 {
		t.Errorf("rate limit = %d, want env value 25", cfg.RateLimitPerHour)
	}
	if cfg.Port != ":7000" {
		t.Errorf("port = %q, want :7000", cfg.Port)
	}
	if len(cfg.CredentialCandidatePaths) != 2 || cfg.CredentialCandidatePaths[0] != "/x/c.txt" {
		t.Errorf("candidates = %v", cfg.CredentialCandidatePaths)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("STORAGE_MODE", "floppy")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSecrets(t *testing.T) {
	cfg := Default()
	cfg.CredentialSecretNames = []string{"sessionid", "csrftoken", "ds_user_id"}
	t.Setenv("COOKIE_SESSIONID", "abc")
	t.Setenv("COOKIE_DS_USER_ID", "42")

	got := cfg.Secrets()
	if len(got) != 2 {
		t.Fatalf("secrets = %v, want 2 entries", got)
	}
	if got[0].Name != "sessionid" || got[0].Value != "abc" {
		t.Errorf("first secret = %+v", got[0])
	}
	if got[1].Name != "ds_user_id" || got[1].Value != "42" {
		t.Errorf("second secret = %+v", got[1])
	}
}

func TestLoadEngineHeadersAndEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediagate.toml")
	content := `
storage_mode = "s3"
s3_bucket = "media"
s3_endpoint = "http://localhost:9000"
formats = ["720p", "worst"]

[headers]
Referer = "https://www.instagram.com/"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("S3_ENDPOINT", "http://minio:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.S3Endpoint != "http://minio:9000" {
		t.Errorf("S3Endpoint = %q, env should win", cfg.S3Endpoint)
	}
	if cfg.Headers["Referer"] != "https://www.instagram.com/" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
	if len(cfg.Formats) != 2 || cfg.Formats[0] != "720p" {
		t.Errorf("Formats = %v", cfg.Formats)
	}
}
