package clocksource

import (
	"fmt"
	"strings"
	"time"
)

// Mode picks which instant a view shows relative to a base reading.
// It carries no state: the chosen instant is passed explicitly to the
// projector.
type Mode int

const (
	Current Mode = iota
	Past
	Future
)

// ParseMode accepts "current" (or ""), "past" and "future".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current", "now":
		return Current, nil
	case "past":
		return Past, nil
	case "future":
		return Future, nil
	default:
		return Current, fmt.Errorf("unknown time mode %q (want current, past or future)", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Past:
		return "past"
	case Future:
		return "future"
	default:
		return "current"
	}
}

// Apply returns the instant to evaluate: base for Current, base-delta for
// Past and base+delta for Future. The sign of delta is ignored.
func (m Mode) Apply(base time.Time, delta time.Duration) time.Time {
	if delta < 0 {
		delta = -delta
	}
	switch m {
	case Past:
		return base.Add(-delta)
	case Future:
		return base.Add(delta)
	default:
		return base
	}
}
