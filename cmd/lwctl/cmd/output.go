package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/olekukonko/tablewriter"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

const timeLayout = "2006-01-02 15:04:05"

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func printStatus(w io.Writer, st *domain.StatusReport) error {
	tw := newTabWriter(w)
	tw.writef("State:\t%s\n", st.State)
	tw.writef("Cycle:\t%d\n", st.Cycle)
	tw.writef("Snapshot:\t%d items (%s)\n", st.SnapshotSize, st.SnapshotMode)
	tw.writef("Started:\t%s\n", formatTime(st.StartedAt))
	tw.writef("Last cycle:\t%s (%dms)\n", formatTime(st.LastCycleAt), st.LastDurationMS)
	tw.writef("Next cycle:\t%s\n", formatTime(st.NextCycleAt))
	tw.writef("Token expires:\t%s\n", formatTime(st.TokenExpiresAt))
	tw.writef("Last result:\t%d new, %d updated, %d unchanged\n",
		st.LastCreated, st.LastUpdated, st.LastUnchanged)
	tw.writef("Totals:\t%d new, %d updated\n", st.TotalCreated, st.TotalUpdated)
	if len(st.FailedQueries) > 0 {
		tw.writef("Failed queries:\t%s\n", strings.Join(st.FailedQueries, ", "))
	}
	tw.writef("Queries:\t%s\n", strings.Join(st.Queries, ", "))
	return tw.finish()
}

func printEvents(w io.Writer, events []domain.EventReport) error {
	table := tablewriter.NewWriter(w)
	table.Header("Observed", "Kind", "ID", "Title", "Price", "Sent")
	for i := range events {
		ev := &events[i]
		err := table.Append([]string{
			ev.ObservedAt.Local().Format(timeLayout),
			string(ev.Kind),
			ev.Item.ID,
			truncate(ev.Item.Title, 40),
			priceColumn(ev),
			strconv.FormatBool(ev.Delivered),
		})
		if err != nil {
			return err
		}
	}
	return table.Render()
}

// priceColumn shows the price that moved, as "old -> new" for updates.
func priceColumn(ev *domain.EventReport) string {
	cur, prev := ev.Item.SalePrice, ""
	if ev.Previous != nil {
		prev = ev.Previous.SalePrice
	}
	if ev.Item.BidPrice != "" {
		cur = ev.Item.BidPrice
		if ev.Previous != nil {
			prev = ev.Previous.BidPrice
		}
	}
	switch {
	case cur == "":
		return "-"
	case prev != "" && prev != cur:
		return prev + " -> " + cur
	default:
		return cur
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
