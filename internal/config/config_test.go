package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENGINE_HOME", "")
	t.Setenv("CACHE_ROOT", "")
	t.Setenv("OUTPUT_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputMode != "object" {
		t.Fatalf("OutputMode = %q, want object", cfg.OutputMode)
	}
	if cfg.Uploader.Retries != 3 {
		t.Fatalf("Uploader.Retries = %d, want 3", cfg.Uploader.Retries)
	}
	if cfg.EngineHome == "" {
		t.Fatal("EngineHome must not be empty")
	}
}

func TestLoad_RejectsInvalidOutputMode(t *testing.T) {
	t.Setenv("OUTPUT_MODE", "xml")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid OUTPUT_MODE")
	}
}

func TestConfig_WorkspaceDir(t *testing.T) {
	cfg := &Config{EngineHome: "/tmp/engine"}
	if got, want := cfg.WorkspaceDir("v1"), "/tmp/engine/v1"; got != want {
		t.Fatalf("WorkspaceDir() = %q, want %q", got, want)
	}
}

func TestConfig_CacheSubdirs(t *testing.T) {
	cfg := &Config{CacheRoot: "/tmp/cache"}
	if got, want := cfg.SourcesDir(), "/tmp/cache/sources"; got != want {
		t.Fatalf("SourcesDir() = %q, want %q", got, want)
	}
	if got, want := cfg.ModelsCacheDir(), "/tmp/cache/models"; got != want {
		t.Fatalf("ModelsCacheDir() = %q, want %q", got, want)
	}
	if got, want := cfg.ResolvedDir(), "/tmp/cache/resolved"; got != want {
		t.Fatalf("ResolvedDir() = %q, want %q", got, want)
	}
}
