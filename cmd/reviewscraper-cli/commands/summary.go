package commands

import (
	"bookreviews-backend/services/reviewscraper"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
)

func renderSummary(out io.Writer, result reviewscraper.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Run " + result.RunID)
	t.AppendHeader(table.Row{"Status", "Books"})

	counts := result.Counts()
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		t.AppendRow(table.Row{s, counts[reviewscraper.Status(s)]})
	}
	t.AppendFooter(table.Row{"Reviews", len(result.Records())})

	t.SetStyle(table.StyleRounded)
	t.Render()

	if result.Blocked {
		io.WriteString(out, "the run was blocked by challenge pages, remaining books were skipped.\n")
	}
}
