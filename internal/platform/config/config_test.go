package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadLayersFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	body := `
destination_root = "` + filepath.ToSlash(filepath.Join(dir, "ext")) + `"
state_dir = "` + filepath.ToSlash(filepath.Join(dir, "state")) + `"
delivery = "direct"

[extraction]
workers = 4
timeout = "30s"
existing = "replace"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(LoadOptions{ConfigFile: path, Overrides: map[string]any{"extraction.workers": 1}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Delivery != DeliveryDirect {
		t.Fatalf("expected file delivery, got %q", cfg.Delivery)
	}
	if cfg.Extraction.Workers != 1 {
		t.Fatalf("expected override to win, got %d", cfg.Extraction.Workers)
	}
	if cfg.Extraction.Existing != ExistingReplace {
		t.Fatalf("expected file existing policy, got %q", cfg.Extraction.Existing)
	}
	if cfg.Extraction.Symlinks != SymlinksReject {
		t.Fatalf("expected default symlink policy, got %q", cfg.Extraction.Symlinks)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Fatalf("expected default server addr, got %q", cfg.Server.Addr)
	}
	timeout, err := cfg.ExtractionTimeout()
	if err != nil || timeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %v %v", timeout, err)
	}
	if cfg.DBPath() != filepath.Join(dir, "state", "dashext.db") {
		t.Fatalf("unexpected db path: %s", cfg.DBPath())
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("DASHEXT_DESTINATION_ROOT", filepath.Join(dir, "from-env"))
	t.Setenv("DASHEXT_SERVER_ADDR", "127.0.0.1:0")

	cfg, err := Load(LoadOptions{ConfigFile: "", Overrides: map[string]any{"state_dir": filepath.Join(dir, "state")}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DestinationRoot != filepath.Join(dir, "from-env") {
		t.Fatalf("expected env destination root, got %q", cfg.DestinationRoot)
	}
	if cfg.Server.Addr != "127.0.0.1:0" {
		t.Fatalf("expected env server addr, got %q", cfg.Server.Addr)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.toml")}); err == nil {
		t.Fatalf("expected missing explicit config to fail")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := Default()
	base.DestinationRoot = "/data/ext"
	base.StateDir = "/data/state"

	cases := map[string]func(*Config){
		"relative root":    func(c *Config) { c.DestinationRoot = "ext" },
		"public bind":      func(c *Config) { c.Server.Addr = "0.0.0.0:3001" },
		"bad delivery":     func(c *Config) { c.Delivery = "ftp" },
		"zero workers":     func(c *Config) { c.Extraction.Workers = 0 },
		"bad timeout":      func(c *Config) { c.Extraction.Timeout = "soon" },
		"bad existing":     func(c *Config) { c.Extraction.Existing = "merge" },
		"bad symlinks":     func(c *Config) { c.Extraction.Symlinks = "follow" },
		"zero entry limit": func(c *Config) { c.Extraction.MaxEntries = 0 },
		"bad log level":    func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid: %v", err)
	}
	localhost := base
	localhost.Server.Addr = "localhost:9000"
	if err := localhost.Validate(); err != nil {
		t.Fatalf("expected localhost to be accepted: %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := Default()
	cfg.DestinationRoot = filepath.Join(dir, "ext")
	cfg.StateDir = filepath.Join(dir, "state")
	path := filepath.Join(dir, "nested", FileName)
	if err := Write(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if loaded.DestinationRoot != cfg.DestinationRoot || loaded.Extraction.MaxBytes != cfg.Extraction.MaxBytes {
		t.Fatalf("round trip mismatch: %+v vs %+v", loaded, cfg)
	}
}
