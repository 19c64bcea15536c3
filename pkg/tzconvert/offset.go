package tzconvert

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned when an offset, month-day or time-of-day
// string does not match its grammar.
var ErrInvalidFormat = errors.New("invalid format")

// Practical timezone bounds in minutes (UTC-12:00 through UTC+14:00).
const (
	MinOffsetMinutes = -12 * 60
	MaxOffsetMinutes = 14 * 60
)

// Offset is a fixed UTC offset in signed minutes, excluding DST.
type Offset int

// ParseOffset parses "+HH:MM", "-HH:MM" or "HH:MM" (sign defaults to +).
// Examples:
//   - "+10:00" returns 600
//   - "-03:30" returns -210
//   - "05:45" returns 345
//   - "10-00" fails with ErrInvalidFormat
func ParseOffset(s string) (Offset, error) {
	body := s
	sign := 1
	if body != "" {
		switch body[0] {
		case '-':
			sign = -1
			body = body[1:]
		case '+':
			body = body[1:]
		default:
			// No sign means positive offset
		}
	}

	hh, mm, ok := strings.Cut(body, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("offset %q: %w", s, ErrInvalidFormat)
	}
	hours, err := parseDigits(hh)
	if err != nil {
		return 0, fmt.Errorf("offset %q hours: %w", s, err)
	}
	minutes, err := parseDigits(mm)
	if err != nil {
		return 0, fmt.Errorf("offset %q minutes: %w", s, err)
	}
	if minutes >= 60 {
		return 0, fmt.Errorf("offset %q: minutes out of range: %w", s, ErrInvalidFormat)
	}

	total := sign * (hours*60 + minutes)
	if total < MinOffsetMinutes || total > MaxOffsetMinutes {
		return 0, fmt.Errorf("offset %q: outside UTC-12:00..UTC+14:00: %w", s, ErrInvalidFormat)
	}
	return Offset(total), nil
}

// Minutes returns the offset as signed minutes.
func (o Offset) Minutes() int { return int(o) }

// String returns the canonical label, e.g. "UTC+05:30".
func (o Offset) String() string { return FormatOffsetLabel(int(o)) }

// FormatOffsetLabel renders signed minutes as "UTC±HH:MM". Zero is rendered as "UTC+00:00".
func FormatOffsetLabel(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, minutes/60, minutes%60)
}

// parseDigits accepts ASCII digits only; strconv.Atoi alone would let "+1" through.
func parseDigits(s string) (int, error) {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%q is not a number: %w", s, ErrInvalidFormat)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidFormat)
	}
	return n, nil
}
