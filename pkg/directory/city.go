// Package directory looks up the UTC offset and DST rule of a city.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codeGROOVE-dev/tzcompare/pkg/tzconvert"
)

// ErrNotFound is returned when no source knows a city.
var ErrNotFound = errors.New("city not found")

// City is a directory record as served by the city-metadata backend.
// The DST fields are only meaningful when DSTStatus is "YES".
type City struct {
	Name         string `json:"name" yaml:"name"`
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
	Country      string `json:"country,omitempty" yaml:"country,omitempty"`
	UTCOffset    string `json:"utc_offset" yaml:"utc_offset"`
	DSTStatus    string `json:"dst_status,omitempty" yaml:"dst_status,omitempty"`
	DSTStart     string `json:"dst_start,omitempty" yaml:"dst_start,omitempty"`
	DSTStartTime string `json:"dst_start_time,omitempty" yaml:"dst_start_time,omitempty"`
	DSTEnd       string `json:"dst_end,omitempty" yaml:"dst_end,omitempty"`
	DSTEndTime   string `json:"dst_end_time,omitempty" yaml:"dst_end_time,omitempty"`
	ForwardBy    int    `json:"forward_by,omitempty" yaml:"forward_by,omitempty"`
}

// ObservesDST reports whether the record carries a DST rule.
func (c *City) ObservesDST() bool {
	return strings.EqualFold(strings.TrimSpace(c.DSTStatus), "YES")
}

// Rule returns the city's DST rule, or nil if it never observes DST.
func (c *City) Rule() (*tzconvert.DSTRule, error) {
	if !c.ObservesDST() {
		return nil, nil //nolint:nilnil // no rule is a valid answer
	}
	rule, err := tzconvert.NewDSTRule(c.DSTStart, c.DSTStartTime, c.DSTEnd, c.DSTEndTime, c.ForwardBy)
	if err != nil {
		return nil, fmt.Errorf("city %q: %w", c.Name, err)
	}
	return rule, nil
}

// Projector builds the city's time projector. A malformed record is an error
// wrapping tzconvert.ErrInvalidFormat; it is never defaulted to UTC.
func (c *City) Projector() (*tzconvert.Projector, error) {
	rule, err := c.Rule()
	if err != nil {
		return nil, err
	}
	p, err := tzconvert.New(c.UTCOffset, rule)
	if err != nil {
		return nil, fmt.Errorf("city %q: %w", c.Name, err)
	}
	return p, nil
}

// Source looks cities up by name.
type Source interface {
	Lookup(ctx context.Context, name string) (*City, error)
}

// Chain tries each source in order. A source that fails for any reason other
// than ErrNotFound is skipped; its error is returned if no later source
// knows the city.
type Chain []Source

// Lookup implements Source.
func (ch Chain) Lookup(ctx context.Context, name string) (*City, error) {
	var firstErr error
	for _, src := range ch {
		city, err := src.Lookup(ctx, name)
		if err == nil {
			return city, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
}
