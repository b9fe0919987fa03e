package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := fromSource(func(string) string { return "" })
	if cfg.SessionBackend != BackendCookie || cfg.EnforceExpiry {
		t.Fatalf("backend = %q enforce = %v", cfg.SessionBackend, cfg.EnforceExpiry)
	}
	if cfg.LoginPath != "/login" || cfg.LandingPath != "/" {
		t.Fatalf("paths = %q %q", cfg.LoginPath, cfg.LandingPath)
	}
	if cfg.RecheckInterval != 30*time.Second || cfg.SweepInterval != time.Minute {
		t.Fatalf("intervals = %s %s", cfg.RecheckInterval, cfg.SweepInterval)
	}
	if cfg.SessionMaxAge != 30*24*3600 || cfg.Router != "gin" {
		t.Fatalf("max age = %d router = %q", cfg.SessionMaxAge, cfg.Router)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("ENFORCE_EXPIRY", "true")
	t.Setenv("RECHECK_INTERVAL", "90")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("ALLOWED_ORIGINS", " http://a.example , ,http://b.example")
	t.Setenv("COOKIE_SECURE", "not-a-bool")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionBackend != BackendRedis || !cfg.EnforceExpiry {
		t.Fatalf("backend = %q enforce = %v", cfg.SessionBackend, cfg.EnforceExpiry)
	}
	if cfg.RecheckInterval != 90*time.Second || cfg.SweepInterval != 15*time.Second {
		t.Fatalf("intervals = %s %s", cfg.RecheckInterval, cfg.SweepInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.CookieSecure {
		t.Fatalf("invalid bool should fall back to false")
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	data := []byte("login_path: \"/signin\"\nENFORCE_EXPIRY: true\nPORT: 8080\nLANDING_PATH: \"/home\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LANDING_PATH", "/from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LoginPath != "/signin" || !cfg.EnforceExpiry || cfg.Port != "8080" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.LandingPath != "/from-env" {
		t.Fatalf("environment should win, got %q", cfg.LandingPath)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("- just\n- a list\n"), 0o600)
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("non-map yaml accepted")
	}
}

func TestLoadDotenvKeepsEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.env")
	if err := os.WriteFile(path, []byte("GATE_TEST_DOTENV_A=from-file\nGATE_TEST_DOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GATE_TEST_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("GATE_TEST_DOTENV_A") })

	if got := loadDotenv(filepath.Join(dir, "missing.env"), path); got != path {
		t.Fatalf("loaded %q", got)
	}
	if v := os.Getenv("GATE_TEST_DOTENV_A"); v != "from-file" {
		t.Fatalf("A = %q", v)
	}
	if v := os.Getenv("GATE_TEST_DOTENV_B"); v != "from-env" {
		t.Fatalf("B = %q", v)
	}
	if got := loadDotenv(filepath.Join(dir, "missing.env")); got != "" {
		t.Fatalf("loaded %q", got)
	}
}
