package retry

import (
	"testing"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/settings"
)

func testPolicy() Policy {
	return FromSettings(settings.Retry{
		Enabled:         true,
		MaxRetries:      3,
		BackoffSeconds:  []int{60, 300, 900},
		RetryableErrors: []string{"TIMEOUT", "RATE_LIMITED"},
	})
}

func msgWith(retryCount int, code string) *model.Message {
	m := model.NewMessage("test", "+66812345678", "hello")
	m.MaxRetries = 3
	m.RetryCount = retryCount
	if code != "" {
		m.ErrorCode = &code
	}
	return m
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := testPolicy()

	if !p.ShouldRetry(msgWith(0, "TIMEOUT")) {
		t.Fatalf("expected retry for retryable code")
	}
	if !p.ShouldRetry(msgWith(2, "RATE_LIMITED")) {
		t.Fatalf("expected retry below max retries")
	}
	if p.ShouldRetry(msgWith(3, "TIMEOUT")) {
		t.Fatalf("expected no retry at max retries")
	}
	if p.ShouldRetry(msgWith(0, "INVALID_NUMBER")) {
		t.Fatalf("expected no retry for non-retryable code")
	}
	// A failure without any provider code (transport fault) is retried.
	if !p.ShouldRetry(msgWith(0, "")) {
		t.Fatalf("expected retry when no error code is present")
	}

	disabled := testPolicy()
	disabled.Enabled = false
	if disabled.ShouldRetry(msgWith(0, "TIMEOUT")) {
		t.Fatalf("expected no retry when retries are disabled")
	}
}

func TestNextDelay_ClampsToLastEntry(t *testing.T) {
	t.Parallel()

	p := testPolicy()

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 60 * time.Second},
		{1, 300 * time.Second},
		{2, 900 * time.Second},
		{3, 900 * time.Second},
		{10, 900 * time.Second},
		{-1, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := p.NextDelay(tc.retryCount); got != tc.want {
			t.Errorf("NextDelay(%d) = %s, want %s", tc.retryCount, got, tc.want)
		}
	}
}

func TestNextDelay_EmptyTable(t *testing.T) {
	t.Parallel()

	p := FromSettings(settings.Retry{Enabled: true, MaxRetries: 1})
	if got := p.NextDelay(0); got != 0 {
		t.Fatalf("expected zero delay for empty table, got %s", got)
	}
}
