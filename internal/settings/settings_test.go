package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings file: %v", err)
	}
	return path
}

func TestLoad_EmptyPathServesDefaults(t *testing.T) {
	t.Parallel()

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	cfg := s.Current()
	if !cfg.Enabled {
		t.Fatalf("expected dispatch enabled by default")
	}
	if cfg.DefaultProvider != "test" {
		t.Fatalf("expected test default provider, got %s", cfg.DefaultProvider)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("expected no-op reload, got %v", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
default_provider: thai-sms
currency: THB
rate_limit:
  per_minute: 10
retry:
  enabled: true
  max_retries: 5
  backoff_seconds: [30, 60]
compliance:
  blacklist_numbers:
    - "+66999999999"
templates:
  - id: booking-confirmation
    category: transactional
    body: "Your booking is confirmed."
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	cfg := s.Current()
	if cfg.DefaultProvider != "thai-sms" {
		t.Fatalf("expected thai-sms, got %s", cfg.DefaultProvider)
	}
	if cfg.RateLimit.PerMinute != 10 {
		t.Fatalf("expected per_minute 10, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Retry.MaxRetries != 5 || len(cfg.Retry.BackoffSeconds) != 2 {
		t.Fatalf("unexpected retry settings %+v", cfg.Retry)
	}
	if len(cfg.Compliance.BlacklistNumbers) != 1 {
		t.Fatalf("expected 1 blacklist entry, got %d", len(cfg.Compliance.BlacklistNumbers))
	}
	if len(cfg.Templates) != 1 || cfg.Templates[0].ID != "booking-confirmation" {
		t.Fatalf("unexpected templates %+v", cfg.Templates)
	}

	// Unset sections keep their defaults.
	if cfg.Queue.BatchSize != 50 {
		t.Fatalf("expected default batch size, got %d", cfg.Queue.BatchSize)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad yaml":         "default_provider: [",
		"empty provider":   `default_provider: ""`,
		"zero backoff":     "retry:\n  backoff_seconds: [0]",
		"zero batch size":  "queue:\n  batch_size: 0",
		"negative retries": "retry:\n  max_retries: -1",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(writeFile(t, content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestReload_KeepsSnapshotOnFailure(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "default_provider: thai-sms")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if err := os.WriteFile(path, []byte("queue:\n  batch_size: 0"), 0o600); err != nil {
		t.Fatalf("rewrite settings file: %v", err)
	}
	if err := s.Reload(); err == nil {
		t.Fatalf("expected reload error for invalid file")
	}
	if got := s.Current().DefaultProvider; got != "thai-sms" {
		t.Fatalf("expected previous snapshot to stay active, got %s", got)
	}
}

func TestReload_SwapsSnapshot(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "default_provider: thai-sms")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if err := os.WriteFile(path, []byte("default_provider: backup-sms"), 0o600); err != nil {
		t.Fatalf("rewrite settings file: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if got := s.Current().DefaultProvider; got != "backup-sms" {
		t.Fatalf("expected backup-sms after reload, got %s", got)
	}
}

func TestReplace(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	next := Default()
	next.DefaultProvider = "thai-sms"

	s.Replace(next)
	if got := s.Current().DefaultProvider; got != "thai-sms" {
		t.Fatalf("expected replaced snapshot, got %s", got)
	}

	s.Replace(nil)
	if got := s.Current().DefaultProvider; got != "thai-sms" {
		t.Fatalf("expected nil replace to be ignored, got %s", got)
	}
}
