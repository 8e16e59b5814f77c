package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if !cfg.RateLimit.Enabled || !cfg.Cache.Enabled || !cfg.Batch.Enabled {
		t.Error("defaults should enable every layer")
	}
	if cfg.Cache.Strategy != "moderate" {
		t.Errorf("default strategy = %q, want moderate", cfg.Cache.Strategy)
	}
	if cfg.Timeout.Duration != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.Timeout.Duration)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
tokens = ["ghp_alpha", "ghp_beta"]
timeout = "10s"

[cache]
enabled = false

[breaker]
failure_threshold = 2
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if len(cfg.Tokens) != 2 {
		t.Errorf("tokens = %v, want two entries", cfg.Tokens)
	}
	if cfg.Timeout.Duration != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", cfg.Timeout.Duration)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled")
	}
	if cfg.Breaker.FailureThreshold != 2 {
		t.Errorf("failure_threshold = %d, want 2", cfg.Breaker.FailureThreshold)
	}
	// Sections the file omits keep their defaults.
	if !cfg.RateLimit.Enabled {
		t.Error("rate limiting should stay enabled")
	}
	if cfg.Batch.Window.Duration != 100*time.Millisecond {
		t.Errorf("batch window = %v, want 100ms", cfg.Batch.Window.Duration)
	}
}

func TestGitHubTokenEnvSupplementsPool(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`tokens = ["ghp_file"]`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if len(cfg.Tokens) != 2 || cfg.Tokens[1] != "ghp_env" {
		t.Errorf("tokens = %v, want file token plus env token", cfg.Tokens)
	}
}

func TestSaveAndReloadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := GetDefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Tokens = []string{"ghp_saved"}
	cfg.Cache.Strategy = "aggressive"
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if len(reloaded.Tokens) != 1 || reloaded.Tokens[0] != "ghp_saved" {
		t.Errorf("tokens = %v, want [ghp_saved]", reloaded.Tokens)
	}
	if reloaded.Cache.Strategy != "aggressive" {
		t.Errorf("strategy = %q, want aggressive", reloaded.Cache.Strategy)
	}
}

func TestSaveTemplateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := GetDefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Cache.Path = "/tmp/ghkit-test/cache.db"
	if err := cfg.SaveTemplateConfig(path); err != nil {
		t.Fatalf("SaveTemplateConfig() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "/tmp/ghkit-test/cache.db") {
		t.Error("template should carry the configured cache path")
	}
	if !strings.Contains(string(data), "[rate_limit]") {
		t.Error("template should keep the commented sample sections")
	}
}
