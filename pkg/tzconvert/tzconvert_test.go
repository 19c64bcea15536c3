package tzconvert

import (
	"errors"
	"testing"
	"time"
)

func mustRule(t *testing.T, startDay, startTime, endDay, endTime string, forward int) *DSTRule {
	t.Helper()
	r, err := NewDSTRule(startDay, startTime, endDay, endTime, forward)
	if err != nil {
		t.Fatalf("NewDSTRule: %v", err)
	}
	return r
}

func mustProjector(t *testing.T, offset string, rule *DSTRule) *Projector {
	t.Helper()
	p, err := New(offset, rule)
	if err != nil {
		t.Fatalf("New(%q): %v", offset, err)
	}
	return p
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in   string
		want Offset
	}{
		{"+10:00", 600},
		{"-03:30", -210},
		{"05:45", 345},
		{"+00:00", 0},
		{"-00:30", -30},
		{"+14:00", 840},
		{"-12:00", -720},
		{"+5:30", 330},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOffset(tt.in)
			if err != nil {
				t.Fatalf("ParseOffset(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseOffset(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseOffsetInvalid(t *testing.T) {
	for _, in := range []string{
		"10-00",   // missing sign and colon
		"",        // empty
		"+",       // sign only
		"+10",     // no minutes
		"+10:0",   // short minutes
		"+100:00", // long hours
		"+1a:00",
		"+10:+5",
		"++10:00",
		"+10:60",  // minutes out of range
		"+14:30",  // past UTC+14:00
		"-12:15",  // past UTC-12:00
		"UTC+10:00",
		" +10:00",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseOffset(in)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ParseOffset(%q) error = %v, want ErrInvalidFormat", in, err)
			}
		})
	}
}

func TestFormatOffsetLabel(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "UTC+00:00"},
		{600, "UTC+10:00"},
		{660, "UTC+11:00"},
		{-210, "UTC-03:30"},
		{345, "UTC+05:45"},
		{-30, "UTC-00:30"},
		{840, "UTC+14:00"},
		{-720, "UTC-12:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatOffsetLabel(tt.minutes); got != tt.want {
				t.Errorf("FormatOffsetLabel(%d) = %q, want %q", tt.minutes, got, tt.want)
			}
		})
	}
}

func TestOffsetLabelRoundTrip(t *testing.T) {
	tests := []struct {
		in         string
		normalized string
	}{
		{"+10:00", "UTC+10:00"},
		{"10:00", "UTC+10:00"},
		{"-03:30", "UTC-03:30"},
		{"+00:00", "UTC+00:00"},
		{"-00:00", "UTC+00:00"},
		{"+05:45", "UTC+05:45"},
		{"-09:00", "UTC-09:00"},
	}
	for _, tt := range tests {
		o, err := ParseOffset(tt.in)
		if err != nil {
			t.Fatalf("ParseOffset(%q): %v", tt.in, err)
		}
		if got := FormatOffsetLabel(o.Minutes()); got != tt.normalized {
			t.Errorf("round trip of %q = %q, want %q", tt.in, got, tt.normalized)
		}
	}
}

func TestNewDSTRule(t *testing.T) {
	r := mustRule(t, "03-10", "02:00", "11-03", "02:00", 0)
	if r.ForwardMinutes != DefaultForwardMinutes {
		t.Errorf("ForwardMinutes = %d, want default %d", r.ForwardMinutes, DefaultForwardMinutes)
	}
	if r.Wraps() {
		t.Error("northern rule reported as wrapping")
	}
	if !mustRule(t, "10-01", "02:00", "04-01", "02:00", 30).Wraps() {
		t.Error("southern rule not reported as wrapping")
	}

	bad := [][4]string{
		{"3-10", "02:00", "11-03", "02:00"},
		{"13-10", "02:00", "11-03", "02:00"},
		{"03-00", "02:00", "11-03", "02:00"},
		{"03-10", "24:00", "11-03", "02:00"},
		{"03-10", "02:00", "11/03", "02:00"},
		{"03-10", "02:00", "11-03", "2:00"},
		{"03-10", "02:00", "11-03", ""},
	}
	for _, b := range bad {
		if _, err := NewDSTRule(b[0], b[1], b[2], b[3], 60); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("NewDSTRule(%v) error = %v, want ErrInvalidFormat", b, err)
		}
	}
	if _, err := NewDSTRule("03-10", "02:00", "11-03", "02:00", -60); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("negative forward_by error = %v, want ErrInvalidFormat", err)
	}
}

func TestNoRuleNeverDST(t *testing.T) {
	p := mustProjector(t, "+10:00", nil)
	for _, s := range []string{
		"2024-01-01T00:00:00Z",
		"2024-03-10T02:00:00Z",
		"2024-06-15T04:00:00Z",
		"2024-12-31T23:59:59Z",
		"1970-01-01T00:00:00Z",
	} {
		if p.IsDSTActive(utc(s)) {
			t.Errorf("IsDSTActive(%s) = true without a rule", s)
		}
	}
	if _, ok := p.NextTransition(utc("2024-01-01T00:00:00Z")); ok {
		t.Error("NextTransition reported a boundary without a rule")
	}
}

func TestNorthernHemisphereBoundaries(t *testing.T) {
	p := mustProjector(t, "-05:00", mustRule(t, "03-10", "02:00", "11-03", "02:00", 60))
	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"start is inclusive", "2024-03-10T02:00:00Z", true},
		{"just before start", "2024-03-10T01:59:59Z", false},
		{"midsummer", "2024-07-04T12:00:00Z", true},
		{"just before end", "2024-11-03T01:59:59Z", true},
		{"end is exclusive", "2024-11-03T02:00:00Z", false},
		{"january", "2024-01-15T00:00:00Z", false},
		{"december", "2024-12-25T00:00:00Z", false},
		{"other year", "2031-07-01T00:00:00Z", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsDSTActive(utc(tt.at)); got != tt.want {
				t.Errorf("IsDSTActive(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestSouthernHemisphereWraparound(t *testing.T) {
	p := mustProjector(t, "+10:00", mustRule(t, "10-01", "02:00", "04-01", "02:00", 60))
	tests := []struct {
		name string
		at   string
		want bool
	}{
		{"start is inclusive", "2024-10-01T02:00:00Z", true},
		{"just before start", "2024-10-01T01:59:00Z", false},
		{"through year end", "2024-12-31T23:59:59Z", true},
		{"after new year", "2025-01-01T00:00:00Z", true},
		{"just before end", "2025-04-01T01:59:59Z", true},
		{"end is exclusive", "2025-04-01T02:00:00Z", false},
		{"between end and start", "2025-06-15T00:00:00Z", false},
		{"late september", "2025-09-30T23:00:00Z", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsDSTActive(utc(tt.at)); got != tt.want {
				t.Errorf("IsDSTActive(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestProjectEffectiveOffset(t *testing.T) {
	rules := []*DSTRule{
		nil,
		mustRule(t, "03-10", "02:00", "11-03", "02:00", 0),
		mustRule(t, "10-06", "02:00", "04-06", "02:00", 30),
	}
	instants := []string{
		"2024-01-01T00:00:00Z",
		"2024-03-10T02:00:00Z",
		"2024-04-06T01:59:00Z",
		"2024-06-15T04:00:00Z",
		"2024-10-06T02:00:00Z",
		"2024-11-03T02:00:00Z",
		"2024-12-25T00:00:00Z",
	}
	for _, rule := range rules {
		p := mustProjector(t, "-03:30", rule)
		for _, s := range instants {
			at := utc(s)
			got := p.Project(at)
			want := -210
			if got.IsDST {
				want += rule.ForwardMinutes
			}
			if got.IsDST != p.IsDSTActive(at) {
				t.Errorf("Project(%s).IsDST = %v, IsDSTActive = %v", s, got.IsDST, p.IsDSTActive(at))
			}
			if got.OffsetMinutes != want {
				t.Errorf("rule %v: Project(%s).OffsetMinutes = %d, want %d", rule, s, got.OffsetMinutes, want)
			}
			if d := got.Local.Sub(at); d != time.Duration(want)*time.Minute {
				t.Errorf("rule %v: Project(%s) shifted by %v, want %d minutes", rule, s, d, want)
			}
		}
	}
}

func TestProjectNoDST(t *testing.T) {
	p := mustProjector(t, "+10:00", nil)
	got := p.Project(utc("2024-06-15T04:00:00Z"))

	if want := utc("2024-06-15T14:00:00Z"); !got.Local.Equal(want) {
		t.Errorf("Local = %v, want %v", got.Local, want)
	}
	if got.IsDST {
		t.Error("IsDST = true, want false")
	}
	if got.Label() != "UTC+10:00" {
		t.Errorf("Label() = %q, want UTC+10:00", got.Label())
	}
}

func TestProjectWraparoundDST(t *testing.T) {
	p := mustProjector(t, "+10:00", mustRule(t, "10-06", "02:00", "04-06", "02:00", 60))
	got := p.Project(utc("2024-12-25T00:00:00Z"))

	if !got.IsDST {
		t.Error("IsDST = false, want true")
	}
	if got.OffsetMinutes != 660 {
		t.Errorf("OffsetMinutes = %d, want 660", got.OffsetMinutes)
	}
	if want := utc("2024-12-25T11:00:00Z"); !got.Local.Equal(want) {
		t.Errorf("Local = %v, want %v", got.Local, want)
	}
	if got.Label() != "UTC+11:00" {
		t.Errorf("Label() = %q, want UTC+11:00", got.Label())
	}
}

func TestNewMalformedOffset(t *testing.T) {
	p, err := New("10-00", nil)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("New(\"10-00\") error = %v, want ErrInvalidFormat", err)
	}
	if p != nil {
		t.Error("New returned a projector alongside an error")
	}
}

func TestNewFromMinutes(t *testing.T) {
	if _, err := NewFromMinutes(900, nil); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("NewFromMinutes(900) error = %v, want ErrInvalidFormat", err)
	}
	p, err := NewFromMinutes(-300, nil)
	if err != nil {
		t.Fatalf("NewFromMinutes(-300): %v", err)
	}
	if p.Offset().String() != "UTC-05:00" {
		t.Errorf("Offset() = %v, want UTC-05:00", p.Offset())
	}
}

func TestToUTC(t *testing.T) {
	p := mustProjector(t, "-05:00", mustRule(t, "03-10", "07:00", "11-03", "06:00", 60))
	tests := []struct {
		name  string
		local string
		want  string
	}{
		{"winter", "2024-01-15T09:00:00Z", "2024-01-15T14:00:00Z"},
		{"summer", "2024-07-04T09:00:00Z", "2024-07-04T13:00:00Z"},
		// 01:30 local happens twice on 2024-11-03; the DST reading wins.
		{"repeated hour", "2024-11-03T01:30:00Z", "2024-11-03T05:30:00Z"},
		// 02:30 local never happens on 2024-03-10; read as standard time.
		{"skipped hour", "2024-03-10T02:30:00Z", "2024-03-10T07:30:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ToUTC(utc(tt.local)); !got.Equal(utc(tt.want)) {
				t.Errorf("ToUTC(%s) = %v, want %s", tt.local, got, tt.want)
			}
		})
	}
}

func TestToUTCIgnoresZone(t *testing.T) {
	p := mustProjector(t, "+09:00", nil)
	loc := time.FixedZone("elsewhere", -7*3600)
	wall := time.Date(2024, 6, 15, 9, 0, 0, 0, loc)
	if got, want := p.ToUTC(wall), utc("2024-06-15T00:00:00Z"); !got.Equal(want) {
		t.Errorf("ToUTC = %v, want %v", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	// Test that converting UTC->Local->UTC gives back the original
	rules := []*DSTRule{
		nil,
		mustRule(t, "03-10", "02:00", "11-03", "02:00", 60),
		mustRule(t, "10-06", "02:00", "04-06", "02:00", 30),
	}
	offsets := []string{"-11:00", "-07:00", "-04:00", "+00:00", "+05:45", "+08:00", "+12:00"}

	for _, rule := range rules {
		for _, offset := range offsets {
			p := mustProjector(t, offset, rule)
			for at := utc("2024-01-01T00:30:00Z"); at.Year() == 2024; at = at.Add(37 * time.Hour) {
				if rule != nil {
					// The repeated wall-clock hour resolves to its DST reading.
					_, end := rule.Bounds(at.Year())
					if !at.Before(end) && at.Before(end.Add(time.Duration(rule.ForwardMinutes)*time.Minute)) {
						continue
					}
				}
				got := p.ToUTC(p.Project(at).Local)
				if !got.Equal(at) {
					t.Errorf("round trip failed: offset %s rule %v: %v -> %v", offset, rule, at, got)
				}
			}
		}
	}
}

func TestNextTransition(t *testing.T) {
	north := mustProjector(t, "-05:00", mustRule(t, "03-10", "02:00", "11-03", "02:00", 60))
	south := mustProjector(t, "+10:00", mustRule(t, "10-06", "02:00", "04-06", "02:00", 60))
	tests := []struct {
		name string
		p    *Projector
		at   string
		want string
	}{
		{"north winter", north, "2024-01-01T00:00:00Z", "2024-03-10T02:00:00Z"},
		{"north at start", north, "2024-03-10T02:00:00Z", "2024-11-03T02:00:00Z"},
		{"north after end", north, "2024-12-01T00:00:00Z", "2025-03-10T02:00:00Z"},
		{"south summer", south, "2024-12-25T00:00:00Z", "2025-04-06T02:00:00Z"},
		{"south winter", south, "2024-06-01T00:00:00Z", "2024-10-06T02:00:00Z"},
		{"south early year", south, "2024-02-01T00:00:00Z", "2024-04-06T02:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.p.NextTransition(utc(tt.at))
			if !ok || !got.Equal(utc(tt.want)) {
				t.Errorf("NextTransition(%s) = %v, %v, want %s", tt.at, got, ok, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	newYork := mustProjector(t, "-05:00", mustRule(t, "03-10", "07:00", "11-03", "06:00", 60))
	tokyo := mustProjector(t, "+09:00", nil)
	sydney := mustProjector(t, "+10:00", mustRule(t, "10-06", "16:00", "04-06", "16:00", 60))

	tests := []struct {
		name      string
		from, to  *Projector
		local     string
		wantLocal string
		wantDST   bool
	}{
		{"new york winter morning in tokyo", newYork, tokyo, "2024-01-15T09:00:00Z", "2024-01-15T23:00:00Z", false},
		{"new york summer morning in tokyo", newYork, tokyo, "2024-07-15T09:00:00Z", "2024-07-15T22:00:00Z", false},
		{"tokyo noon in sydney summer", tokyo, sydney, "2024-12-25T12:00:00Z", "2024-12-25T14:00:00Z", true},
		{"sydney noon in new york", sydney, newYork, "2024-07-01T12:00:00Z", "2024-06-30T22:00:00Z", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(tt.from, tt.to, utc(tt.local))
			if !got.Local.Equal(utc(tt.wantLocal)) || got.IsDST != tt.wantDST {
				t.Errorf("Convert(%s) = %v (dst %v), want %s (dst %v)",
					tt.local, got.Local, got.IsDST, tt.wantLocal, tt.wantDST)
			}
		})
	}
}

func TestLeapDayRule(t *testing.T) {
	// 02-29 rolls over to 03-01 in non-leap years.
	r := mustRule(t, "02-29", "00:00", "06-01", "00:00", 60)
	if !r.Active(utc("2023-03-01T00:00:00Z")) {
		t.Error("rule starting 02-29 not active on 2023-03-01")
	}
	if r.Active(utc("2023-02-28T23:59:00Z")) {
		t.Error("rule starting 02-29 active on 2023-02-28")
	}
	if !r.Active(utc("2024-02-29T00:00:00Z")) {
		t.Error("rule starting 02-29 not active on 2024-02-29")
	}
}

func TestParseMonthDayLength(t *testing.T) {
	for _, s := range []string{"01-31", "02-29", "04-30", "12-31"} {
		if _, err := ParseMonthDay(s); err != nil {
			t.Errorf("ParseMonthDay(%q) error = %v", s, err)
		}
	}
	for _, s := range []string{"02-30", "04-31", "06-31", "09-31", "11-31"} {
		if _, err := ParseMonthDay(s); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ParseMonthDay(%q) error = %v, want ErrInvalidFormat", s, err)
		}
	}
}
