package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"BILIMUSIC_MAX_PARALLEL", "BILIMUSIC_RETRY_BACKOFF", "DATABASE_DRIVER", "CONTROL_PASSWORD", "REDIS_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.MaxParallel != 0 {
		t.Errorf("MaxParallel = %d, want 0 (unbounded)", cfg.MaxParallel)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.RetryBackoff != 2*time.Second {
		t.Errorf("RetryBackoff = %v, want 2s", cfg.RetryBackoff)
	}
	if cfg.SocketTimeout != 30*time.Second {
		t.Errorf("SocketTimeout = %v, want 30s", cfg.SocketTimeout)
	}
	if cfg.DatabaseDriver != "sqlite3" {
		t.Errorf("DatabaseDriver = %s, want sqlite3", cfg.DatabaseDriver)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be disabled without a control password")
	}
	if cfg.JWTSecret == "" {
		t.Error("JWTSecret should be generated")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("BILIMUSIC_DOWNLOAD_DIR", "/tmp/music")
	t.Setenv("BILIMUSIC_MAX_PARALLEL", "4")
	t.Setenv("BILIMUSIC_RETRY_BACKOFF", "10ms")
	t.Setenv("CONTROL_PASSWORD", "hunter2")
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg := Load()

	if cfg.DownloadDir != "/tmp/music" {
		t.Errorf("DownloadDir = %s", cfg.DownloadDir)
	}
	if cfg.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d, want 4", cfg.MaxParallel)
	}
	if cfg.RetryBackoff != 10*time.Millisecond {
		t.Errorf("RetryBackoff = %v, want 10ms", cfg.RetryBackoff)
	}
	if !cfg.AuthEnabled() {
		t.Error("auth should be enabled with a control password")
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("DatabaseDriver = %s", cfg.DatabaseDriver)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("BILIMUSIC_MAX_PARALLEL", "-2")
	t.Setenv("BILIMUSIC_MAX_ATTEMPTS", "zero")
	t.Setenv("BILIMUSIC_RETRY_BACKOFF", "soon")

	cfg := Load()

	if cfg.MaxParallel != 0 || cfg.MaxAttempts != 3 || cfg.RetryBackoff != 2*time.Second {
		t.Errorf("got %d %d %v", cfg.MaxParallel, cfg.MaxAttempts, cfg.RetryBackoff)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://localhost:5173 ,,http://127.0.0.1:5173")

	cfg := Load()

	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "http://localhost:5173" || cfg.CORSOrigins[1] != "http://127.0.0.1:5173" {
		t.Errorf("CORSOrigins = %q", cfg.CORSOrigins)
	}
}
