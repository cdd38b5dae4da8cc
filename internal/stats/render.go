package stats

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes the snapshot as a readable table.
func (s Snapshot) Render(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Counter", "Value"})
	tw.AppendRows([]table.Row{
		{"Requests", s.Requests},
		{"Brands", s.Brands},
		{"Models", s.Models},
		{"Variants", s.Variants},
		{"Links", s.Links},
		{"Quotes", s.Quotes},
		{"Errors", s.Errors},
		{"Skipped", s.Skipped},
		{"API time", s.APITime.Round(time.Millisecond)},
		{"DB time", s.DBTime.Round(time.Millisecond)},
		{"Backoff", s.Backoff.Round(time.Millisecond)},
		{"Elapsed", s.Elapsed.Round(time.Millisecond)},
	})
	tw.Render()
}

// TableCount is one table's row count, locally and (optionally) remotely.
type TableCount struct {
	Table  string
	Local  int64
	Remote int64
}

// RenderCounts writes per-table row counts. When withRemote is set the
// remote column and a drift marker are included.
func RenderCounts(w io.Writer, counts []TableCount, withRemote bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if withRemote {
		tw.AppendHeader(table.Row{"Table", "Local", "Remote", ""})
		for _, c := range counts {
			marker := ""
			if c.Local != c.Remote {
				marker = "drift"
			}
			tw.AppendRow(table.Row{c.Table, c.Local, c.Remote, marker})
		}
	} else {
		tw.AppendHeader(table.Row{"Table", "Rows"})
		for _, c := range counts {
			tw.AppendRow(table.Row{c.Table, c.Local})
		}
	}
	tw.Render()
}
