package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/tzcompare/pkg/board"
	"github.com/codeGROOVE-dev/tzcompare/pkg/clocksource"
	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
	"github.com/codeGROOVE-dev/tzcompare/pkg/selections"
)

func newNowCmd(a *app) *cobra.Command {
	var (
		at    string
		mode  string
		delta time.Duration
	)
	cmd := &cobra.Command{
		Use:   "now [city...]",
		Short: "Show the current time in each city (saved cities if none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := clocksource.ParseMode(mode)
			if err != nil {
				return err
			}
			base, err := a.baseInstant(ctx, at)
			if err != nil {
				return err
			}
			instant := m.Apply(base, delta)

			names := args
			if len(names) == 0 {
				if names, err = a.savedNames(ctx); err != nil {
					return err
				}
			}
			rows, err := a.board.Compare(ctx, names, instant)
			if err != nil {
				return err
			}
			return renderRows(a.out, rows, a.cfg.GetBool("json"), false)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this RFC3339 instant instead of now")
	cmd.Flags().StringVar(&mode, "mode", "current", "Time mode: current, past or future")
	cmd.Flags().DurationVar(&delta, "delta", 0, "Offset from now for past/future mode (e.g. 3h)")
	return cmd
}

func newConvertCmd(a *app) *cobra.Command {
	var (
		from  string
		clock string
	)
	cmd := &cobra.Command{
		Use:   "convert --from CITY --time \"2006-01-02 15:04\" [city...]",
		Short: "Convert a wall-clock time in one city to other cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := a.parseWallClock(ctx, from, clock)
			if err != nil {
				return err
			}
			targets := args
			if len(targets) == 0 {
				if targets, err = a.savedNames(ctx); err != nil {
					return err
				}
			}
			rows, err := a.board.Convert(ctx, from, local, targets)
			if err != nil {
				return err
			}
			return renderRows(a.out, rows, a.cfg.GetBool("json"), true)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "City whose wall clock --time is read in")
	cmd.Flags().StringVar(&clock, "time", "", `Wall-clock time: "2006-01-02 15:04" or "15:04" (today)`)
	_ = cmd.MarkFlagRequired("from") //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("time") //nolint:errcheck // flag is defined above
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the city list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cities := a.gazetteer.Search(strings.Join(args, " "), limit)
			return renderCities(a.out, cities, a.cfg.GetBool("json"))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results (0 for all)")
	return cmd
}

func newLocateCmd(a *app) *cobra.Command {
	var ip string
	return &cobra.Command{
		Use:   "locate [ip]",
		Short: "Detect your city from your IP address and show its time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				ip = args[0]
			}
			loc, err := a.geo.LocateIP(ctx, ip)
			if err != nil {
				return err
			}
			asJSON := a.cfg.GetBool("json")
			if !asJSON {
				fmt.Fprintf(a.out, "📍 %s, %s\n", loc.City, loc.Country)
			}

			reading := a.clock.Now(ctx)
			row, err := a.board.First(ctx, loc.Candidates(), reading.Instant)
			if errors.Is(err, directory.ErrNotFound) {
				fmt.Fprintln(a.out, dimColor.Sprintf("%s is not in the city directory.", loc.City))
				return nil
			}
			if err != nil {
				return err
			}
			return renderRows(a.out, []board.Row{row}, asJSON, false)
		},
	}
}

func newSavedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage the saved city list",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved cities",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withStore(cmd.Context(), func(s *selections.Store) error {
					names, err := s.Names(cmd.Context())
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(a.out, n)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add CITY...",
			Short: "Save cities (they must exist in the directory)",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return a.withStore(ctx, func(s *selections.Store) error {
					for _, name := range args {
						city, err := a.dir.Lookup(ctx, name)
						if err != nil {
							return err
						}
						if _, err := city.Projector(); err != nil {
							return err
						}
						added, err := s.Add(ctx, city.Name)
						if err != nil {
							return err
						}
						if !added {
							fmt.Fprintln(a.out, dimColor.Sprintf("%s is already saved.", city.Name))
						}
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove CITY...",
			Short: "Forget saved cities",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				return a.withStore(ctx, func(s *selections.Store) error {
					for _, name := range args {
						removed, err := s.Remove(ctx, name)
						if err != nil {
							return err
						}
						if !removed {
							fmt.Fprintln(a.out, dimColor.Sprintf("%s was not saved.", name))
						}
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget every saved city",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withStore(cmd.Context(), func(s *selections.Store) error {
					return s.Clear(cmd.Context())
				})
			},
		},
	)
	return cmd
}

// baseInstant is the parsed --at value, or the clock source's reading.
func (a *app) baseInstant(ctx context.Context, at string) (time.Time, error) {
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("--at: %w", err)
		}
		return t.UTC(), nil
	}
	reading := a.clock.Now(ctx)
	a.logger.Debug("clock reading", "instant", reading.Instant, "source", reading.Source)
	return reading.Instant, nil
}

// parseWallClock reads "2006-01-02 15:04" directly, or "15:04" on today's
// date in city.
func (a *app) parseWallClock(ctx context.Context, city, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02 15:04", value); err == nil {
		return t, nil
	}
	hm, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--time %q: want \"2006-01-02 15:04\" or \"15:04\"", value)
	}
	_, proj, err := a.board.Projector(ctx, city)
	if err != nil {
		return time.Time{}, err
	}
	today := proj.Project(a.clock.Now(ctx).Instant).Local
	return time.Date(today.Year(), today.Month(), today.Day(), hm.Hour(), hm.Minute(), 0, 0, time.UTC), nil
}

func (a *app) savedNames(ctx context.Context) ([]string, error) {
	var names []string
	err := a.withStore(ctx, func(s *selections.Store) error {
		var err error
		names, err = s.Names(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New("no cities given and none saved (try: tzcompare saved add Tokyo)")
	}
	return names, nil
}

func (a *app) withStore(ctx context.Context, fn func(*selections.Store) error) error {
	path := a.cfg.GetString("store")
	if path == "" {
		var err error
		if path, err = selections.DefaultPath(); err != nil {
			return err
		}
	}
	s, err := selections.Open(ctx, path, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Debug("failed to close selection store", "error", err)
		}
	}()
	return fn(s)
}
