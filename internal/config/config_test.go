package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, expected sqlite", cfg.Database.Driver)
	}
	if cfg.Board.PositionStep != 1000 {
		t.Errorf("PositionStep = %d, expected 1000", cfg.Board.PositionStep)
	}
	if cfg.Board.MaxHierarchyDepth != 10 {
		t.Errorf("MaxHierarchyDepth = %d, expected 10", cfg.Board.MaxHierarchyDepth)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("Window = %v, expected 1m", cfg.RateLimit.Window)
	}
}

func TestLoad_YAMLKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
rate_limit:
  window: 30s
  max_requests: 5
  endpoints:
    "POST /api/projects/:id/tasks":
      window: 10s
      max_requests: 2
board:
  position_step: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, expected 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, expected default", cfg.Server.Host)
	}
	if cfg.Board.PositionStep != 1000 {
		t.Errorf("PositionStep = %d, expected floor to 1000", cfg.Board.PositionStep)
	}

	window, max := cfg.RateLimit.LimitFor("POST /api/projects/:id/tasks")
	if window != 10*time.Second || max != 2 {
		t.Errorf("LimitFor(override) = %v/%d, expected 10s/2", window, max)
	}
	window, max = cfg.RateLimit.LimitFor("GET /api/tasks/:id")
	if window != 30*time.Second || max != 5 {
		t.Errorf("LimitFor(default) = %v/%d, expected 30s/5", window, max)
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("RATE_LIMIT_WINDOW", "2m")
	t.Setenv("RATE_LIMIT_MAX", "7")
	t.Setenv("BOARD_POSITION_STEP", "500")
	t.Setenv("REDIS_URL", "redis://:pw@cache:6380/2")
	t.Setenv("SERVER_CORS_ORIGINS", "https://board.example.com, ,https://admin.example.com")
	t.Setenv("LOG_FORMAT", "console")

	cfg := DefaultConfig()
	if err := cfg.overrideFromEnv(); err != nil {
		t.Fatalf("overrideFromEnv() error = %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, expected postgres", cfg.Database.Driver)
	}
	if cfg.RateLimit.Window != 2*time.Minute {
		t.Errorf("Window = %v, expected 2m", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.MaxRequests != 7 {
		t.Errorf("MaxRequests = %d, expected 7", cfg.RateLimit.MaxRequests)
	}
	if cfg.Board.PositionStep != 500 {
		t.Errorf("PositionStep = %d, expected 500", cfg.Board.PositionStep)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://admin.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Log.Format = %q, expected console", cfg.Log.Format)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6380" || cfg.Redis.Password != "pw" || cfg.Redis.DB != 2 {
		t.Errorf("Redis = %+v, expected parsed url", cfg.Redis)
	}
}

func TestOverrideFromEnv_BadRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "http://cache:6379")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a non-redis URL")
	}
}

func TestSave_ThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Board.MaxHierarchyDepth = 4

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Board.MaxHierarchyDepth != 4 {
		t.Errorf("MaxHierarchyDepth = %d, expected 4", loaded.Board.MaxHierarchyDepth)
	}
}
