package hours

import (
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Open-now evaluation modes.
const (
	ModeSchedule = "schedule"
	ModeFixed    = "fixed"
)

// Checker decides whether a center with the given hours text is open at a time.
type Checker interface {
	IsOpen(hours string, at time.Time) bool
}

// NewChecker returns the Checker for a configured mode. Empty selects
// ModeSchedule.
func NewChecker(mode string) (Checker, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeSchedule:
		return NewScheduleChecker(), nil
	case ModeFixed:
		return DefaultFixedWindow(), nil
	default:
		return nil, eris.Errorf("hours: unknown open-now mode %q", mode)
	}
}

// ScheduleChecker parses each center's own hours text. Unparseable or empty
// hours count as closed. Parsed schedules are memoized by text.
type ScheduleChecker struct {
	mu    sync.Mutex
	cache map[string]*Schedule
}

// NewScheduleChecker creates a ScheduleChecker.
func NewScheduleChecker() *ScheduleChecker {
	return &ScheduleChecker{cache: make(map[string]*Schedule)}
}

// IsOpen implements Checker.
func (c *ScheduleChecker) IsOpen(hoursText string, at time.Time) bool {
	if strings.TrimSpace(hoursText) == "" {
		return false
	}
	s := c.schedule(hoursText)
	if s == nil {
		return false
	}
	return s.OpenAt(at)
}

func (c *ScheduleChecker) schedule(text string) *Schedule {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.cache[text]; ok {
		return s
	}
	parsed, err := Parse(text)
	var s *Schedule
	if err != nil {
		zap.L().Debug("hours: unparseable, treating as closed",
			zap.String("hours", text),
			zap.Error(err),
		)
	} else {
		s = &parsed
	}
	c.cache[text] = s
	return s
}

// FixedWindow ignores the hours text apart from requiring it to be present
// and reports open inside a single daily [Open, Close] window given as HHMM.
type FixedWindow struct {
	Open  int
	Close int
}

// DefaultFixedWindow is the 08:00–17:00 window, both ends inclusive.
func DefaultFixedWindow() FixedWindow {
	return FixedWindow{Open: 800, Close: 1700}
}

// IsOpen implements Checker.
func (f FixedWindow) IsOpen(hoursText string, at time.Time) bool {
	if strings.TrimSpace(hoursText) == "" {
		return false
	}
	hhmm := at.Hour()*100 + at.Minute()
	return hhmm >= f.Open && hhmm <= f.Close
}
