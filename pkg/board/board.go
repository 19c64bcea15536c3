// Package board compares several cities' clocks at one instant.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
	"github.com/codeGROOVE-dev/tzcompare/pkg/tzconvert"
)

// maxParallelLookups bounds concurrent directory lookups per call.
const maxParallelLookups = 8

// Row is one city's clock.
type Row struct {
	City           string     `json:"city"`
	Country        string     `json:"country,omitempty"`
	UTC            time.Time  `json:"utc"`
	Local          time.Time  `json:"local"`
	IsDST          bool       `json:"is_dst"`
	OffsetMinutes  int        `json:"offset_minutes"`
	OffsetLabel    string     `json:"offset_label"`
	NextTransition *time.Time `json:"next_transition,omitempty"`
}

// Board resolves cities through a directory and projects them.
type Board struct {
	dir    directory.Source
	logger *slog.Logger
}

// New returns a Board backed by dir.
func New(dir directory.Source, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{dir: dir, logger: logger}
}

type resolved struct {
	city *directory.City
	proj *tzconvert.Projector
}

// resolve looks every name up concurrently. Results keep the input order.
func (b *Board) resolve(ctx context.Context, names []string) ([]resolved, error) {
	out := make([]resolved, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, name := range names {
		g.Go(func() error {
			city, err := b.dir.Lookup(ctx, name)
			if err != nil {
				return fmt.Errorf("looking up %q: %w", name, err)
			}
			proj, err := city.Projector()
			if err != nil {
				return fmt.Errorf("loading %q: %w", name, err)
			}
			out[i] = resolved{city: city, proj: proj}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Projector resolves a single city.
func (b *Board) Projector(ctx context.Context, name string) (*directory.City, *tzconvert.Projector, error) {
	rs, err := b.resolve(ctx, []string{name})
	if err != nil {
		return nil, nil, err
	}
	return rs[0].city, rs[0].proj, nil
}

// Compare returns every city's clock at the instant at, sorted west to east.
// Duplicate names (case-insensitive) are shown once.
func (b *Board) Compare(ctx context.Context, names []string, at time.Time) ([]Row, error) {
	names = dedupe(names)
	if len(names) == 0 {
		return nil, nil
	}
	start := time.Now()
	rs, err := b.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(rs))
	for i, r := range rs {
		rows[i] = row(r, at)
	}
	sortRows(rows)
	b.logger.Debug("compared cities", "count", len(rows), "at", at, "duration_ms", time.Since(start).Milliseconds())
	return rows, nil
}

// First returns the row of the first name in names that the directory
// knows. Names it does not know are skipped; if none is known the last
// lookup error is returned.
func (b *Board) First(ctx context.Context, names []string, at time.Time) (Row, error) {
	err := fmt.Errorf("no candidate names: %w", directory.ErrNotFound)
	for _, name := range dedupe(names) {
		var rs []resolved
		rs, err = b.resolve(ctx, []string{name})
		if errors.Is(err, directory.ErrNotFound) {
			b.logger.Debug("candidate city not found", "city", name)
			continue
		}
		if err != nil {
			return Row{}, err
		}
		return row(rs[0], at), nil
	}
	return Row{}, err
}

// Convert reads local as a wall-clock time in from and shows every target
// city at that instant. The source city is included as the first row.
func (b *Board) Convert(ctx context.Context, from string, local time.Time, targets []string) ([]Row, error) {
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("no source city: %w", directory.ErrNotFound)
	}
	names := dedupe(append([]string{from}, targets...))
	rs, err := b.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	at := rs[0].proj.ToUTC(local)
	rows := make([]Row, len(rs))
	for i, r := range rs {
		rows[i] = row(r, at)
	}
	sortRows(rows[1:])
	b.logger.Debug("converted wall clock", "from", rs[0].city.Name, "local", local.Format("2006-01-02 15:04"), "utc", at)
	return rows, nil
}

func row(r resolved, at time.Time) Row {
	p := r.proj.Project(at)
	out := Row{
		City:          r.city.Name,
		Country:       r.city.Country,
		UTC:           at.UTC(),
		Local:         p.Local,
		IsDST:         p.IsDST,
		OffsetMinutes: p.OffsetMinutes,
		OffsetLabel:   p.Label(),
	}
	if next, ok := r.proj.NextTransition(at); ok {
		out.NextTransition = &next
	}
	return out
}

// sortRows orders rows west to east, then by name.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].OffsetMinutes != rows[j].OffsetMinutes {
			return rows[i].OffsetMinutes < rows[j].OffsetMinutes
		}
		return rows[i].City < rows[j].City
	})
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
