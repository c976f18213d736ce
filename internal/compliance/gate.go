// Package compliance gates outbound sends: blacklist, opt-out registry and
// quiet hours. A veto carries a reason code and a human-readable message
// that is surfaced unchanged to the calling subsystem.
package compliance

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/banyanstay/notify-dispatch/internal/model"
	"github.com/banyanstay/notify-dispatch/internal/settings"
)

type Reason string

const (
	ReasonBlacklisted Reason = "blacklisted"
	ReasonOptedOut    Reason = "opted_out"
	ReasonQuietHours  Reason = "quiet_hours"
)

// Veto is a refusal to send. A nil *Veto means the send is allowed.
type Veto struct {
	Reason  Reason
	Message string
}

func (v *Veto) Error() string {
	return v.Message
}

type quietWindow struct {
	enabled bool
	start   int // minutes since midnight
	end     int
	loc     *time.Location
}

type Gate struct {
	mu       sync.RWMutex
	exact    map[string]struct{}
	patterns []*regexp.Regexp
	optOuts  map[string]struct{}
	quiet    quietWindow
}

func NewGate(cs settings.Compliance) (*Gate, error) {
	g := &Gate{
		optOuts: make(map[string]struct{}),
	}
	if err := g.Apply(cs); err != nil {
		return nil, err
	}
	return g, nil
}

// Apply swaps in new compliance settings. Registered opt-outs survive a
// reload; they are runtime state, not configuration.
func (g *Gate) Apply(cs settings.Compliance) error {
	exact := make(map[string]struct{}, len(cs.BlacklistNumbers))
	for _, n := range cs.BlacklistNumbers {
		exact[n] = struct{}{}
	}

	patterns := make([]*regexp.Regexp, 0, len(cs.BlacklistPatterns))
	for _, p := range cs.BlacklistPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("compile blacklist pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	quiet := quietWindow{}
	if cs.RespectQuietHours {
		start, err := parseClock(cs.QuietHours.Start)
		if err != nil {
			return fmt.Errorf("quiet_hours.start: %w", err)
		}
		end, err := parseClock(cs.QuietHours.End)
		if err != nil {
			return fmt.Errorf("quiet_hours.end: %w", err)
		}
		loc, err := time.LoadLocation(cs.QuietHours.Timezone)
		if err != nil {
			return fmt.Errorf("quiet_hours.timezone: %w", err)
		}
		quiet = quietWindow{enabled: true, start: start, end: end, loc: loc}
	}

	g.mu.Lock()
	g.exact = exact
	g.patterns = patterns
	g.quiet = quiet
	g.mu.Unlock()
	return nil
}

// Check vetoes or allows a send to destination at the given instant. Quiet
// hours only apply to marketing templates; transactional and alert sends
// always pass that check.
func (g *Gate) Check(destination string, category model.TemplateCategory, at time.Time) *Veto {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.exact[destination]; ok {
		return &Veto{Reason: ReasonBlacklisted, Message: "Phone number is blacklisted"}
	}
	for _, re := range g.patterns {
		if re.MatchString(destination) {
			return &Veto{Reason: ReasonBlacklisted, Message: "Phone number is blacklisted"}
		}
	}
	if _, ok := g.optOuts[destination]; ok {
		return &Veto{Reason: ReasonOptedOut, Message: "Recipient has opted out"}
	}

	if g.quiet.enabled && category == model.CategoryMarketing {
		t := at.In(g.quiet.loc)
		m := t.Hour()*60 + t.Minute()
		if inWindow(m, g.quiet.start, g.quiet.end) {
			return &Veto{Reason: ReasonQuietHours, Message: "Inside quiet hours window"}
		}
	}
	return nil
}

// RegisterOptOut records destination as a derived blacklist entry. Called by
// the external inbound-message hook once an opt-out keyword was received.
func (g *Gate) RegisterOptOut(destination string) {
	g.mu.Lock()
	g.optOuts[destination] = struct{}{}
	g.mu.Unlock()
}

func (g *Gate) OptedOut(destination string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.optOuts[destination]
	return ok
}

// inWindow checks [start,end) in minutes since midnight, wrapping past
// midnight when end < start.
func inWindow(m, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
