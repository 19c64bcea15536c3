package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/codeGROOVE-dev/tzcompare/pkg/board"
	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
)

const (
	clockLayout = "Mon Jan 02 15:04"
	dayLayout   = "Jan 02 15:04 UTC"
)

var (
	dstColor    = color.New(color.FgYellow, color.Bold)
	headerColor = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
)

// renderRows writes rows as a table, or as JSON when asJSON is set.
// The first row is highlighted when highlightFirst is set (convert's source city).
func renderRows(w io.Writer, rows []board.Row, asJSON, highlightFirst bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, dimColor.Sprint("No cities selected."))
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"City", "Local time", "Offset", "DST", "Next change"})
	for i, r := range rows {
		name := r.City
		if highlightFirst && i == 0 {
			name = headerColor.Sprint(name)
		}
		dst := ""
		if r.IsDST {
			dst = dstColor.Sprint("DST")
		}
		next := dimColor.Sprint("never")
		if r.NextTransition != nil {
			next = r.NextTransition.Format(dayLayout)
		}
		tw.AppendRow(table.Row{name, r.Local.Format(clockLayout), r.OffsetLabel, dst, next})
	}
	tw.SetCaption("UTC %s", rows[0].UTC.Format(time.RFC3339))
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func renderCities(w io.Writer, cities []directory.City, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cities)
	}
	if len(cities) == 0 {
		_, err := fmt.Fprintln(w, dimColor.Sprint("No matching cities."))
		return err
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"City", "Region", "UTC offset", "DST"})
	for _, c := range cities {
		dst := "no"
		if c.ObservesDST() {
			dst = fmt.Sprintf("%s %s .. %s %s UTC", c.DSTStart, c.DSTStartTime, c.DSTEnd, c.DSTEndTime)
		}
		place := c.Country
		if c.State != "" {
			place = c.State + ", " + c.Country
		}
		tw.AppendRow(table.Row{c.Name, place, c.UTCOffset, dst})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}
