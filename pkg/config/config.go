package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

type Config struct {
	Tokens  []string `toml:"tokens,omitempty"`
	BaseURL string   `toml:"base_url,omitempty"`
	Timeout Duration `toml:"timeout"`

	RateLimit RateLimitConfig `toml:"rate_limit"`
	Cache     CacheConfig     `toml:"cache"`
	Batch     BatchConfig     `toml:"batch"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Monitor   MonitorConfig   `toml:"monitor"`
}

type RateLimitConfig struct {
	Enabled             bool  `toml:"enabled"`
	Adaptive            bool  `toml:"adaptive"`
	FailFast            bool  `toml:"fail_fast"`
	MaxConcurrentSearch int64 `toml:"max_concurrent_search"`
}

type CacheConfig struct {
	Enabled  bool     `toml:"enabled"`
	Strategy string   `toml:"strategy"`
	TTL      Duration `toml:"ttl,omitempty"`
	MaxSize  int      `toml:"max_size"`
	Path     string   `toml:"path,omitempty"`
}

type BatchConfig struct {
	Enabled      bool     `toml:"enabled"`
	Window       Duration `toml:"window"`
	MaxBatchSize int      `toml:"max_batch_size"`
	MaxParallel  int64    `toml:"max_parallel"`
}

type BreakerConfig struct {
	Enabled          bool     `toml:"enabled"`
	FailureThreshold int      `toml:"failure_threshold"`
	ResetTimeout     Duration `toml:"reset_timeout"`
}

type MonitorConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	cachePath, err := GetDefaultCachePath()
	if err != nil {
		return nil, fmt.Errorf("getting default cache path: %w", err)
	}
	return &Config{
		Timeout: Duration{30 * time.Second},
		RateLimit: RateLimitConfig{
			Enabled:             true,
			MaxConcurrentSearch: 8,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Strategy: "moderate",
			MaxSize:  100,
			Path:     cachePath,
		},
		Batch: BatchConfig{
			Enabled:      true,
			Window:       Duration{100 * time.Millisecond},
			MaxBatchSize: 10,
			MaxParallel:  4,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			ResetTimeout:     Duration{30 * time.Second},
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: Duration{30 * time.Second},
		},
	}, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := GetDefaultConfig()
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// GITHUB_TOKEN supplements the configured pool so one-off usage
	// works without a config file.
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && !containsToken(config.Tokens, token) {
		config.Tokens = append(config.Tokens, token)
	}

	return config, nil
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0600)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0600)
}

func (c *Config) generateConfigTemplate() (string, error) {
	cachePath := c.Cache.Path
	if cachePath == "" {
		var err error
		cachePath, err = GetDefaultCachePath()
		if err != nil {
			return "", fmt.Errorf("getting default cache path: %w", err)
		}
	}

	// Replace the placeholder cache path with the actual one
	template := strings.Replace(configTemplate, "/home/user/.local/share/ghkit/cache.db", cachePath, 1)
	return template, nil
}

// GetDefaultStorageDir returns the default data directory for the
// persistent cache
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	ghkitDir := filepath.Join(dataDir, "ghkit")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(ghkitDir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", ghkitDir, err)
	}

	return ghkitDir, nil
}

// GetDefaultCachePath returns the default persistent cache database path
func GetDefaultCachePath() (string, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(storageDir, "cache.db"), nil
}

// GetConfigDir returns the configuration directory for ghkit
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	ghkitConfigDir := filepath.Join(configDir, "ghkit")

	// Create the directory if it doesn't exist
	if err := os.MkdirAll(ghkitConfigDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", ghkitConfigDir, err)
	}

	return ghkitConfigDir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
