package commands

import (
	"bookreviews-backend/lib/util/serviceutil"
	"bookreviews-backend/services/reviewscraper"
	"bookreviews-backend/services/reviewscraper/db"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var reportRunId *string
var reportTop *int

func init() {
	reportRunId = reportCmd.Flags().String("run", "", "The run to report on, defaults to the latest one.")
	reportTop = reportCmd.Flags().Int("top", 20, "How many books to list by review count.")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [--run <id>] [--top <n>]",
	Short: "Summarizes a run stored in the results database.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Output.DB.File == "" && cfg.Output.DB.Url == "" {
			serviceutil.Fatal("no results database", fmt.Errorf("output.db is not configured"))
		}
		database, err := cfg.Output.DB.OpenDB(db.Schema)
		if err != nil {
			serviceutil.Fatal("failed to open results database", err)
		}
		env := environment{db: database}
		defer env.Close()

		report, err := reviewscraper.NewStore(database).Report(cmd.Context(), *reportRunId)
		if err != nil {
			env.fatal("failed to build report", err)
		}
		renderReport(os.Stdout, report, *reportTop)
	},
}

func percent(n, total int64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func renderReport(out io.Writer, report reviewscraper.Report, top int) {
	started := time.Unix(report.Run.StartedAt, 0).Format(time.DateTime)
	fmt.Fprintf(out, "run %s, started %s", report.Run.ID, started)
	if report.Run.FinishedAt.Valid {
		fmt.Fprintf(out, ", took %s", time.Duration(report.Run.FinishedAt.Int64-report.Run.StartedAt)*time.Second)
	}
	if report.Run.Blocked {
		fmt.Fprint(out, ", blocked")
	}
	fmt.Fprintln(out)

	statuses := table.NewWriter()
	statuses.SetOutputMirror(out)
	statuses.SetTitle("Books by status")
	statuses.AppendHeader(table.Row{"Status", "Books"})
	var books int64
	for _, s := range report.Statuses {
		statuses.AppendRow(table.Row{s.Status, s.Count})
		books += s.Count
	}
	statuses.AppendFooter(table.Row{"Total", books})
	statuses.SetStyle(table.StyleRounded)
	statuses.Render()

	perBook := table.NewWriter()
	perBook.SetOutputMirror(out)
	perBook.SetTitle("Reviews per book")
	perBook.AppendHeader(table.Row{"Book", "Title", "Author", "Reviews"})
	for i, b := range report.ReviewsPerBook {
		if top > 0 && i >= top {
			break
		}
		perBook.AppendRow(table.Row{b.BookID, b.Title, b.Author, b.Count})
	}
	perBook.SetStyle(table.StyleRounded)
	perBook.Render()

	total := report.Nulls.Total
	ratings := table.NewWriter()
	ratings.SetOutputMirror(out)
	ratings.SetTitle("Rating distribution")
	ratings.AppendHeader(table.Row{"Rating", "Reviews", "Share"})
	for _, r := range report.Ratings {
		rating := "none"
		if r.ReviewRating.Valid {
			rating = fmt.Sprint(r.ReviewRating.Int64)
		}
		ratings.AppendRow(table.Row{rating, r.Count, percent(r.Count, total)})
	}
	ratings.SetStyle(table.StyleRounded)
	ratings.Render()

	nulls := table.NewWriter()
	nulls.SetOutputMirror(out)
	nulls.SetTitle("Missing fields")
	nulls.AppendHeader(table.Row{"Field", "Reviews", "Share"})
	nulls.AppendRows([]table.Row{
		{"review_text", report.Nulls.EmptyText, percent(report.Nulls.EmptyText, total)},
		{"review_rating", report.Nulls.NullRating, percent(report.Nulls.NullRating, total)},
		{"reviewer_id", report.Nulls.NullReviewerID, percent(report.Nulls.NullReviewerID, total)},
		{"reviewer_name", report.Nulls.NullReviewerName, percent(report.Nulls.NullReviewerName, total)},
		{"review_date", report.Nulls.NullDate, percent(report.Nulls.NullDate, total)},
	})
	nulls.AppendFooter(table.Row{"Total reviews", total, ""})
	nulls.SetStyle(table.StyleRounded)
	nulls.Render()
}
