// Package config provides environment-aware configuration for the version
// control and deployment engine. A single Config is materialized once at
// process start and passed by value to every component; no component reads
// os.Getenv directly outside this package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/runtime"
)

// LoggingConfig controls the logrus-backed logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// UploaderConfig controls the object-storage Uploader used to deliver job
// results in "object" output mode.
type UploaderConfig struct {
	Endpoint       string `env:"OBJECT_ENDPOINT"`
	Bucket         string `env:"OBJECT_BUCKET"`
	Prefix         string `env:"OBJECT_PREFIX"`
	Public         bool   `env:"OBJECT_PUBLIC"`
	SignedURLTTL   string `env:"OBJECT_SIGNED_URL_TTL"`
	Retries        int    `env:"OBJECT_RETRIES"`
	RetryBaseSleep string `env:"OBJECT_RETRY_BASE_SLEEP"`
	Validate       bool   `env:"OBJECT_VALIDATE"`
}

// FetcherConfig controls the Fetcher's auth tokens for private sources.
type FetcherConfig struct {
	HubToken    string `env:"HUB_TOKEN"`
	MarketToken string `env:"MARKET_TOKEN"`
}

// Config is the top-level, process-wide configuration.
type Config struct {
	// Paths
	EngineHome string `env:"ENGINE_HOME"`
	ModelsDir  string `env:"MODELS_DIR"`
	CacheRoot  string `env:"CACHE_ROOT"`

	// Mode
	Offline bool `env:"OFFLINE"`

	// Output
	OutputMode string `env:"OUTPUT_MODE"`

	Logging  LoggingConfig
	Uploader UploaderConfig
	Fetcher  FetcherConfig
}

// Load builds a Config from an optional .env file and the process
// environment, applying the defaults named in §6 of the specification.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		EngineHome: defaultEngineHome(),
		ModelsDir:  "",
		CacheRoot:  defaultCacheRoot(),
		Offline:    runtime.Offline(),
		OutputMode: "object",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Uploader: UploaderConfig{
			Prefix:         "engine/outputs",
			Retries:        3,
			RetryBaseSleep: "500ms",
			Validate:       true,
		},
	}
}

// defaultEngineHome mirrors §3's Workspace rule: a path derived from a
// persistent volume if present, else the user's home directory.
func defaultEngineHome() string {
	if v, ok := persistentVolumeRoot(); ok {
		return filepath.Join(v, "engine-versions")
	}
	return filepath.Join(runtime.UserHomeDir(), ".engine-versions")
}

// persistentVolumeRoot looks for the conventional serverless worker volume
// mount; absence is normal on a developer machine.
func persistentVolumeRoot() (string, bool) {
	const mount = "/runpod-volume"
	if info, err := os.Stat(mount); err == nil && info.IsDir() {
		return mount, true
	}
	return "", false
}

func defaultCacheRoot() string {
	if v, ok := persistentVolumeRoot(); ok {
		return filepath.Join(v, "engine-cache")
	}
	return filepath.Join(runtime.UserHomeDir(), ".cache", "engine-versions")
}

func (c *Config) normalize() {
	if c.OutputMode == "" {
		c.OutputMode = "object"
	}
	if c.Uploader.Prefix == "" {
		c.Uploader.Prefix = "engine/outputs"
	}
	if c.Uploader.Retries <= 0 {
		c.Uploader.Retries = 3
	}
	if c.Uploader.RetryBaseSleep == "" {
		c.Uploader.RetryBaseSleep = "500ms"
	}
}

// Validate checks internal consistency of the loaded configuration.
func (c *Config) Validate() error {
	if c.OutputMode != "base64" && c.OutputMode != "object" {
		return fmt.Errorf("invalid OUTPUT_MODE: %s (must be base64 or object)", c.OutputMode)
	}
	if c.EngineHome == "" {
		return fmt.Errorf("ENGINE_HOME must not resolve empty")
	}
	if c.CacheRoot == "" {
		return fmt.Errorf("CACHE_ROOT must not resolve empty")
	}
	return nil
}

// SourcesDir is $CACHE_ROOT/sources.
func (c *Config) SourcesDir() string { return filepath.Join(c.CacheRoot, "sources") }

// ModelsCacheDir is $CACHE_ROOT/models.
func (c *Config) ModelsCacheDir() string { return filepath.Join(c.CacheRoot, "models") }

// ResolvedDir is $CACHE_ROOT/resolved.
func (c *Config) ResolvedDir() string { return filepath.Join(c.CacheRoot, "resolved") }

// SpecsDir is $CACHE_ROOT/specs, the user-owned VersionSpec directory
// (spec §3: "Specs are user-owned, created by create and never mutated").
func (c *Config) SpecsDir() string { return filepath.Join(c.CacheRoot, "specs") }

// SpecPath is the on-disk location of a version's Spec file.
func (c *Config) SpecPath(versionID string) string {
	return filepath.Join(c.SpecsDir(), versionID+".spec.json")
}

// LockPath is $CACHE_ROOT/resolved/<version_id>.lock (spec §3, ResolvedLock).
func (c *Config) LockPath(versionID string) string {
	return filepath.Join(c.ResolvedDir(), versionID+".lock")
}

// WorkspaceDir is the per-version workspace root under ENGINE_HOME.
func (c *Config) WorkspaceDir(versionID string) string {
	return filepath.Join(c.EngineHome, versionID)
}
