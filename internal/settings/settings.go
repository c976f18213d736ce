// Package settings holds the hot-reloadable dispatch configuration. Unlike
// the process config in internal/config, these values can change at runtime
// through an explicit Reload triggered by an admin action.
package settings

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	Enabled         bool             `yaml:"enabled"`
	DefaultProvider string           `yaml:"default_provider"`
	Currency        string           `yaml:"currency"`
	Providers       []ProviderConfig `yaml:"providers"`
	RateLimit       RateLimit        `yaml:"rate_limit"`
	Retry           Retry            `yaml:"retry"`
	Queue           Queue            `yaml:"queue"`
	Compliance      Compliance       `yaml:"compliance"`
	TestMode        TestMode         `yaml:"test_mode"`
	Templates       []TemplateConfig `yaml:"templates"`
}

// TemplateConfig seeds the in-process template store at startup. Deployments
// with a central template service ignore this section.
type TemplateConfig struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Body     string `yaml:"body"`
}

type ProviderConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Active bool   `yaml:"active"`
}

type RateLimit struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

type Retry struct {
	Enabled         bool     `yaml:"enabled"`
	MaxRetries      int      `yaml:"max_retries"`
	BackoffSeconds  []int    `yaml:"backoff_seconds"`
	RetryableErrors []string `yaml:"retryable_errors"`
}

type Queue struct {
	BatchSize int `yaml:"batch_size"`
	MaxDepth  int `yaml:"max_depth"`
}

type Compliance struct {
	BlacklistNumbers    []string   `yaml:"blacklist_numbers"`
	BlacklistPatterns   []string   `yaml:"blacklist_patterns"`
	OptOutKeywords      []string   `yaml:"optout_keywords"`
	OptOutReply         string     `yaml:"optout_reply"`
	RequireOptOutSuffix bool       `yaml:"require_optout_suffix"`
	OptOutSuffix        string     `yaml:"optout_suffix"`
	RespectQuietHours   bool       `yaml:"respect_quiet_hours"`
	QuietHours          QuietHours `yaml:"quiet_hours"`
}

type QuietHours struct {
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

type TestMode struct {
	Enabled      bool     `yaml:"enabled"`
	AllowNumbers []string `yaml:"allow_numbers"`
}

func Default() *Settings {
	return &Settings{
		Enabled:         true,
		DefaultProvider: "test",
		Currency:        "THB",
		RateLimit:       RateLimit{PerMinute: 60, PerHour: 1000, PerDay: 10000},
		Retry: Retry{
			Enabled:         true,
			MaxRetries:      3,
			BackoffSeconds:  []int{60, 300, 900},
			RetryableErrors: []string{"TIMEOUT", "RATE_LIMITED", "PROVIDER_BUSY", "TEMP_FAILURE"},
		},
		Queue: Queue{BatchSize: 50, MaxDepth: 10000},
		Compliance: Compliance{
			OptOutKeywords: []string{"STOP", "UNSUBSCRIBE"},
			OptOutReply:    "You have been unsubscribed.",
			OptOutSuffix:   "Reply STOP to unsubscribe",
			QuietHours:     QuietHours{Start: "21:00", End: "08:00", Timezone: "Asia/Bangkok"},
		},
	}
}

// Store serves read-mostly snapshots of the settings and supports an
// explicit reload from the backing file.
type Store struct {
	path string

	mu      sync.RWMutex
	current *Settings
}

// Load reads the settings file at path. An empty path yields a store serving
// defaults whose Reload is a no-op.
func Load(path string) (*Store, error) {
	s := &Store{path: path, current: Default()}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStore wraps fixed settings, mainly for tests.
func NewStore(cfg *Settings) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{current: cfg}
}

func (s *Store) Current() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace swaps the active settings. Used by tests and by admin surfaces
// that push settings instead of editing the file.
func (s *Store) Replace(cfg *Settings) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
}

// Reload re-reads the backing file and atomically swaps the snapshot. The
// previous snapshot stays active when the file is unreadable or invalid.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}
	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}

func validate(cfg *Settings) error {
	if cfg.DefaultProvider == "" {
		return fmt.Errorf("default_provider must not be empty")
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	for _, d := range cfg.Retry.BackoffSeconds {
		if d <= 0 {
			return fmt.Errorf("retry.backoff_seconds entries must be > 0")
		}
	}
	if cfg.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be > 0")
	}
	return nil
}
