// Package tzconvert projects UTC instants into a city's local wall-clock time.
// Inputs and outputs are UTC instants; a projected Local time keeps the UTC
// zone and only its clock fields read as the city's wall clock.
// A city is described by a fixed UTC offset and an optional annual DST rule.
package tzconvert

import (
	"fmt"
	"time"
)

// Projection is a UTC instant seen from a city.
type Projection struct {
	// Local is the UTC instant shifted by the effective offset. Its fields
	// (Hour, Minute, ...) read as the city's wall clock; its zone stays UTC.
	Local         time.Time `json:"local"`
	IsDST         bool      `json:"is_dst"`
	OffsetMinutes int       `json:"offset_minutes"`
}

// Label returns the effective offset as "UTC±HH:MM".
func (p Projection) Label() string {
	return FormatOffsetLabel(p.OffsetMinutes)
}

// Projector converts instants for one city. It holds no mutable state and is
// safe for concurrent use.
type Projector struct {
	rule   *DSTRule
	offset Offset
}

// New parses offset (see ParseOffset) and attaches rule, which may be nil for
// cities that never observe DST. Errors wrap ErrInvalidFormat.
func New(offset string, rule *DSTRule) (*Projector, error) {
	o, err := ParseOffset(offset)
	if err != nil {
		return nil, err
	}
	return &Projector{offset: o, rule: rule}, nil
}

// NewFromMinutes is New for an offset that is already in minutes.
func NewFromMinutes(minutes int, rule *DSTRule) (*Projector, error) {
	if minutes < MinOffsetMinutes || minutes > MaxOffsetMinutes {
		return nil, fmt.Errorf("offset %d minutes: %w", minutes, ErrInvalidFormat)
	}
	return &Projector{offset: Offset(minutes), rule: rule}, nil
}

// Offset returns the base offset, excluding DST.
func (p *Projector) Offset() Offset { return p.offset }

// Rule returns the DST rule, or nil.
func (p *Projector) Rule() *DSTRule { return p.rule }

// IsDSTActive reports whether DST applies at t. Always false without a rule.
func (p *Projector) IsDSTActive(t time.Time) bool {
	if p.rule == nil {
		return false
	}
	return p.rule.Active(t)
}

// Project returns the city's local time at t. It never fails.
//
// Example: offset "+10:00", no rule, 2024-06-15T04:00Z gives a local time of
// 2024-06-15 14:00 with OffsetMinutes 600.
func (p *Projector) Project(t time.Time) Projection {
	dst := p.IsDSTActive(t)
	effective := int(p.offset)
	if dst {
		effective += p.rule.ForwardMinutes
	}
	return Projection{
		Local:         t.UTC().Add(time.Duration(effective) * time.Minute),
		IsDST:         dst,
		OffsetMinutes: effective,
	}
}

// ToUTC converts a wall-clock reading in this city back to a UTC instant.
// Only the date and clock fields of local are used; its zone is ignored.
//
// A reading that occurs twice (the hour repeated when DST ends) resolves to
// the DST occurrence. A reading that never occurs (the hour skipped when DST
// starts) is read with the standard offset.
func (p *Projector) ToUTC(local time.Time) time.Time {
	wall := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
	standard := wall.Add(-time.Duration(p.offset) * time.Minute)
	if p.rule == nil {
		return standard
	}
	daylight := wall.Add(-time.Duration(int(p.offset)+p.rule.ForwardMinutes) * time.Minute)
	if p.rule.Active(daylight) {
		return daylight
	}
	return standard
}

// NextTransition returns the first DST boundary strictly after t.
// It reports false for cities without a rule.
func (p *Projector) NextTransition(t time.Time) (time.Time, bool) {
	if p.rule == nil {
		return time.Time{}, false
	}
	t = t.UTC()
	var next time.Time
	for _, year := range []int{t.Year(), t.Year() + 1} {
		start, end := p.rule.Bounds(year)
		for _, b := range []time.Time{start, end} {
			if b.After(t) && (next.IsZero() || b.Before(next)) {
				next = b
			}
		}
	}
	return next, !next.IsZero()
}

// Convert reads local as a wall clock in from and projects it into to.
// Example: 09:00 in a UTC-05:00 city is 23:00 in a UTC+09:00 city.
func Convert(from, to *Projector, local time.Time) Projection {
	return to.Project(from.ToUTC(local))
}
