// Package config builds the single immutable configuration of the service.
// Values are layered: defaults, then an optional TOML file, then environment
// variables. Command-line flags are applied by the caller before Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"mediagate/internal/core/domain"
)

// Storage modes.
const (
	StorageMemory = "memory"
	StorageDisk   = "disk"
	StorageS3     = "s3"
)

// Config holds all server settings.
type Config struct {
	Port string `toml:"port"`

	RateLimitPerHour     int    `toml:"rate_limit_per_hour"`
	RateLimitWindowHours int    `toml:"rate_limit_window_hours"`
	RateLimitBackend     string `toml:"rate_limit_backend"`

	MaxArtifactSizeMB      int    `toml:"max_artifact_size_mb"`
	ArtifactTTLHours       int    `toml:"artifact_ttl_hours"`
	CleanupIntervalMinutes int    `toml:"cleanup_interval_minutes"`
	StorageMode            string `toml:"storage_mode"`
	ArtifactDir            string `toml:"artifact_dir"`
	LogDir                 string `toml:"log_dir"`
	WorkDir                string `toml:"work_dir"`

	CredentialCandidatePaths   []string `toml:"credential_candidate_paths"`
	CredentialReadOnlyPrefixes []string `toml:"credential_readonly_prefixes"`
	CredentialStagingPath      string   `toml:"credential_staging_path"`
	CredentialSecretNames      []string `toml:"credential_secret_names"`
	CredentialCookieDomain     string   `toml:"credential_cookie_domain"`

	Engine                string   `toml:"engine"`
	YtDlpPath             string   `toml:"ytdlp_path"`
	YouTubeNative         bool     `toml:"youtube_native"`
	Formats               []string `toml:"formats"`
	AttemptTimeoutSeconds int      `toml:"attempt_timeout_seconds"`
	SocketTimeoutSeconds  int      `toml:"socket_timeout_seconds"`
	EngineRetries         int      `toml:"engine_retries"`
	// Headers are sent with every engine request.
	Headers map[string]string `toml:"headers"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	S3Bucket       string `toml:"s3_bucket"`
	S3Prefix       string `toml:"s3_prefix"`
	S3Region       string `toml:"s3_region"`
	S3Profile      string `toml:"s3_profile"`
	S3Endpoint     string `toml:"s3_endpoint"`
	S3UsePathStyle bool   `toml:"s3_use_path_style"`

	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
	LedgerPath   string   `toml:"ledger_path"`

	AllowedOrigins []string `toml:"allowed_origins"`
	TrustedProxies []string `toml:"trusted_proxies"`

	Debug bool `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Port:                   ":8080",
		RateLimitPerHour:       50,
		RateLimitWindowHours:   1,
		RateLimitBackend:       "memory",
		MaxArtifactSizeMB:      100,
		ArtifactTTLHours:       1,
		CleanupIntervalMinutes: 30,
		StorageMode:            StorageMemory,
		ArtifactDir:            "downloads",
		LogDir:                 "logs",
		WorkDir:                filepath.Join(os.TempDir(), "mediagate"),
		CredentialCandidatePaths: []string{
			"/etc/secrets/cookies.txt",
			"./cookies.txt",
			"/tmp/cookies.txt",
		},
		CredentialReadOnlyPrefixes: []string{"/etc/secrets/"},
		CredentialStagingPath:      "/tmp/cookies.txt",
		CredentialCookieDomain:     ".instagram.com",
		Engine:                     "ytdlp",
		YtDlpPath:                  "yt-dlp",
		AttemptTimeoutSeconds:      300,
		SocketTimeoutSeconds:       30,
		EngineRetries:              3,
		RedisAddr:                  "localhost:6379",
		S3Prefix:                   "artifacts/",
		KafkaTopic:                 "mediagate.events",
		AllowedOrigins:             []string{"*"},
	}
}

// Load reads path (if non-empty and present) over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		if !strings.Contains(v, ":") {
			v = ":" + v
		}
		c.Port = v
	}
	c.RateLimitPerHour = getEnvAsInt("RATE_LIMIT_PER_HOUR", c.RateLimitPerHour)
	c.RateLimitWindowHours = getEnvAsInt("RATE_LIMIT_WINDOW_HOURS", c.RateLimitWindowHours)
	c.RateLimitBackend = getEnv("RATE_LIMIT_BACKEND", c.RateLimitBackend)
	c.MaxArtifactSizeMB = getEnvAsInt("MAX_ARTIFACT_SIZE_MB", c.MaxArtifactSizeMB)
	c.ArtifactTTLHours = getEnvAsInt("ARTIFACT_TTL_HOURS", c.ArtifactTTLHours)
	c.CleanupIntervalMinutes = getEnvAsInt("CLEANUP_INTERVAL_MINUTES", c.CleanupIntervalMinutes)
	c.StorageMode = getEnv("STORAGE_MODE", c.StorageMode)
	c.ArtifactDir = getEnv("ARTIFACT_DIR", c.ArtifactDir)
	c.LogDir = getEnv("LOG_DIR", c.LogDir)
	c.WorkDir = getEnv("WORK_DIR", c.WorkDir)

	c.CredentialCandidatePaths = getEnvAsList("CREDENTIAL_CANDIDATE_PATHS", c.CredentialCandidatePaths)
	c.CredentialSecretNames = getEnvAsList("CREDENTIAL_SECRET_NAMES", c.CredentialSecretNames)
	c.CredentialStagingPath = getEnv("CREDENTIAL_STAGING_PATH", c.CredentialStagingPath)
	c.CredentialCookieDomain = getEnv("CREDENTIAL_COOKIE_DOMAIN", c.CredentialCookieDomain)

	c.Engine = getEnv("ENGINE", c.Engine)
	c.YtDlpPath = getEnv("YTDLP_PATH", c.YtDlpPath)
	c.YouTubeNative = getEnvAsBool("YOUTUBE_NATIVE", c.YouTubeNative)
	c.Formats = getEnvAsList("FORMATS", c.Formats)
	c.AttemptTimeoutSeconds = getEnvAsInt("ATTEMPT_TIMEOUT_SECONDS", c.AttemptTimeoutSeconds)
	c.SocketTimeoutSeconds = getEnvAsInt("SOCKET_TIMEOUT_SECONDS", c.SocketTimeoutSeconds)
	c.EngineRetries = getEnvAsInt("ENGINE_RETRIES", c.EngineRetries)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvAsInt("REDIS_DB", c.RedisDB)

	c.S3Bucket = getEnv("S3_BUCKET", c.S3Bucket)
	c.S3Prefix = getEnv("S3_PREFIX", c.S3Prefix)
	c.S3Region = getEnv("S3_REGION", c.S3Region)
	c.S3Profile = getEnv("S3_PROFILE", c.S3Profile)
	c.S3Endpoint = getEnv("S3_ENDPOINT", c.S3Endpoint)
	c.S3UsePathStyle = getEnvAsBool("S3_USE_PATH_STYLE", c.S3UsePathStyle)

	c.KafkaBrokers = getEnvAsList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	c.LedgerPath = getEnv("LEDGER_PATH", c.LedgerPath)

	c.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.TrustedProxies = getEnvAsList("TRUSTED_PROXIES", c.TrustedProxies)
	c.Debug = getEnvAsBool("DEBUG", c.Debug)
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.RateLimitPerHour < 1 {
		return fmt.Errorf("rate_limit_per_hour must be at least 1, got %d", c.RateLimitPerHour)
	}
	if c.RateLimitWindowHours < 1 {
		return fmt.Errorf("rate_limit_window_hours must be at least 1, got %d", c.RateLimitWindowHours)
	}
	if c.MaxArtifactSizeMB < 1 {
		return fmt.Errorf("max_artifact_size_mb must be at least 1, got %d", c.MaxArtifactSizeMB)
	}
	if c.ArtifactTTLHours < 1 {
		return fmt.Errorf("artifact_ttl_hours must be at least 1, got %d", c.ArtifactTTLHours)
	}
	if c.CleanupIntervalMinutes < 1 {
		return fmt.Errorf("cleanup_interval_minutes must be at least 1, got %d", c.CleanupIntervalMinutes)
	}
	if c.AttemptTimeoutSeconds < 1 || c.SocketTimeoutSeconds < 1 {
		return fmt.Errorf("attempt and socket timeouts must be positive")
	}
	if c.EngineRetries < 0 {
		return fmt.Errorf("engine_retries cannot be negative")
	}

	switch c.StorageMode {
	case StorageMemory, StorageDisk:
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("storage_mode %q requires s3_bucket", c.StorageMode)
		}
	default:
		return fmt.Errorf("unsupported storage_mode %q (valid: memory, disk, s3)", c.StorageMode)
	}

	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("rate_limit_backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unsupported rate_limit_backend %q (valid: memory, redis)", c.RateLimitBackend)
	}

	switch c.Engine {
	case "ytdlp", "opengraph":
	default:
		return fmt.Errorf("unsupported engine %q (valid: ytdlp, opengraph)", c.Engine)
	}

	if c.WorkDir == "" {
		return fmt.Errorf("work_dir cannot be empty")
	}
	if c.StorageMode == StorageDisk && c.ArtifactDir == "" {
		return fmt.Errorf("artifact_dir cannot be empty in disk mode")
	}
	if len(c.CredentialSecretNames) > 0 && c.CredentialStagingPath == "" {
		return fmt.Errorf("credential_secret_names requires credential_staging_path")
	}
	return nil
}

// RateLimitWindow is the sliding window length.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowHours) * time.Hour
}

// ArtifactTTL is the age after which stored artifacts may be removed.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.ArtifactTTLHours) * time.Hour
}

// CleanupInterval is the minimum time between two sweeps.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// MaxArtifactBytes is the per-artifact size cap.
func (c *Config) MaxArtifactBytes() int64 {
	return int64(c.MaxArtifactSizeMB) << 20
}

// AttemptTimeout bounds a single extraction attempt.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutSeconds) * time.Second
}

// SocketTimeout bounds a single engine connection.
func (c *Config) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutSeconds) * time.Second
}

// Secrets returns the named credential values present in the environment,
// in configuration order. A name "sessionid" is read from COOKIE_SESSIONID.
func (c *Config) Secrets() []domain.Secret {
	var out []domain.Secret
	for _, name := range c.CredentialSecretNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(SecretEnvName(name))); v != "" {
			out = append(out, domain.Secret{Name: name, Value: v})
		}
	}
	return out
}

// SecretEnvName maps a cookie name to the environment variable holding it.
func SecretEnvName(name string) string {
	upper := strings.ToUpper(name)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return "COOKIE_" + upper
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	str := getEnv(key, "")
	if val, err := strconv.Atoi(str); err == nil {
		return val
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	str := getEnv(key, "")
	if val, err := strconv.ParseBool(str); err == nil {
		return val
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
