// Package config loads the Lavis configuration from ~/.lavis/config.yaml
// with LAVIS_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lavishq/lavis/internal/keyring"
)

// MemoryConfig bounds the in-memory conversation window.
type MemoryConfig struct {
	WindowSize            int `yaml:"window_size"`
	KeepImages            int `yaml:"keep_images"`
	SummaryTokenThreshold int `yaml:"summary_token_threshold"`
}

// RetryConfig governs chat-model retries on transient failure.
type RetryConfig struct {
	Attempts    int `yaml:"attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
}

// SkillsConfig governs skill loading and hot reload.
type SkillsConfig struct {
	Watch                bool `yaml:"watch"`
	WatchIntervalSeconds int  `yaml:"watch_interval_seconds"`
}

// Config is the full runtime configuration.
type Config struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	OllamaHost string `yaml:"ollama_host"`

	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	Memory MemoryConfig `yaml:"memory"`

	DedupThreshold    int  `yaml:"dedup_threshold"`
	GridOverlay       bool `yaml:"grid_overlay"`
	ColdRetentionDays int  `yaml:"cold_retention_days"`

	MaxIterations int         `yaml:"max_iterations"`
	ChatStepCap   int         `yaml:"chat_step_cap"`
	Retry         RetryConfig `yaml:"retry"`

	Skills SkillsConfig `yaml:"skills"`

	// Per-tool post-action waits in milliseconds, keyed by tool name.
	// Unset tools fall back to the built-in wait table.
	ToolWaits map[string]int `yaml:"tool_waits"`

	// Regexps marking a frame as an exception frame (kept inline by the
	// visual compactor even mid-turn).
	ExceptionPatterns []string `yaml:"exception_patterns"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider: "gemini",
		Port:     8780,
		Memory: MemoryConfig{
			WindowSize:            20,
			KeepImages:            10,
			SummaryTokenThreshold: 100000,
		},
		DedupThreshold:    10,
		ColdRetentionDays: 7,
		ChatStepCap:       25,
		Retry: RetryConfig{
			Attempts:    3,
			BaseDelayMs: 2000,
		},
		Skills: SkillsConfig{
			Watch:                true,
			WatchIntervalSeconds: 5,
		},
		ExceptionPatterns: []string{
			`(?i)\berror\b`,
			`(?i)\bfailed\b`,
			`(?i)\bexception\b`,
			`❌`,
		},
	}
}

// Load reads config.yaml from dataDir (if present) over the defaults,
// then applies environment overrides.
func Load(dataDir string) (Config, error) {
	cfg := Default()
	cfg.DataDir = dataDir

	// Optional .env in the data dir, mainly for API keys. Existing
	// process env always wins.
	_ = godotenv.Load(filepath.Join(dataDir, ".env"))

	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}

	cfg.applyEnv()
	cfg.clamp()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LAVIS_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("LAVIS_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LAVIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("LAVIS_DEDUP_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DedupThreshold = n
		}
	}
	if v := os.Getenv("LAVIS_GRID_OVERLAY"); v != "" {
		c.GridOverlay = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.OllamaHost == "" {
		c.OllamaHost = v
	}
}

func (c *Config) clamp() {
	if c.DedupThreshold < 0 {
		c.DedupThreshold = 0
	}
	if c.DedupThreshold > 64 {
		c.DedupThreshold = 64
	}
	if c.Memory.WindowSize <= 0 {
		c.Memory.WindowSize = 20
	}
	if c.Memory.KeepImages <= 0 {
		c.Memory.KeepImages = 10
	}
	if c.Memory.SummaryTokenThreshold <= 0 {
		c.Memory.SummaryTokenThreshold = 100000
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = 2000
	}
	if c.Skills.WatchIntervalSeconds <= 0 {
		c.Skills.WatchIntervalSeconds = 5
	}
}

// BaseDelay returns the retry base delay as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// WatchInterval returns the skill reload debounce as a duration.
func (s SkillsConfig) WatchInterval() time.Duration {
	return time.Duration(s.WatchIntervalSeconds) * time.Second
}

// ToolWaitOverrides converts the configured per-tool waits into
// durations keyed by tool name.
func (c *Config) ToolWaitOverrides() map[string]time.Duration {
	if len(c.ToolWaits) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.ToolWaits))
	for name, ms := range c.ToolWaits {
		out[name] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// ColdRetention returns the cold storage retention as a duration.
func (c *Config) ColdRetention() time.Duration {
	return time.Duration(c.ColdRetentionDays) * 24 * time.Hour
}

// ResolveAPIKey returns the chat provider API key, checking the provider
// environment variable, then the config file, then the OS keychain.
// Ollama needs no key and always resolves to "".
func (c *Config) ResolveAPIKey() string {
	if c.Provider == "ollama" {
		return ""
	}

	envNames := map[string][]string{
		"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic": {"ANTHROPIC_API_KEY"},
		"openai":    {"OPENAI_API_KEY"},
	}
	for _, name := range envNames[c.Provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}

	if c.APIKey != "" {
		return c.APIKey
	}

	if keyring.Available() {
		if v, err := keyring.Get(c.Provider + "-api-key"); err == nil && v != "" {
			return v
		}
	}
	return ""
}

// SQLitePath returns the path of the core database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "lavis.db")
}

// SkillsDir returns the root directory scanned for SKILL.md files.
func (c *Config) SkillsDir() string {
	return filepath.Join(c.DataDir, "skills")
}

// ColdStoreDir returns the root of the cold blob store.
func (c *Config) ColdStoreDir() string {
	return filepath.Join(c.DataDir, "coldstore")
}
