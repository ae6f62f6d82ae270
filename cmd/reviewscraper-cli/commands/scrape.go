package commands

import (
	"bookreviews-backend/lib/review"
	"bookreviews-backend/lib/util/serviceutil"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var dedupe *bool
var maxPages *int
var workers *int

func init() {
	dedupe = scrapeCmd.Flags().Bool("dedupe", false, "Removes repeated review ids from the output.")
	maxPages = scrapeCmd.Flags().Int("max-pages", -1, "Overrides pages.max_pages (0 means every page).")
	workers = scrapeCmd.Flags().Int("workers", 0, "Overrides the number of workers.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <books.csv> <reviews.csv> [--dedupe] [--max-pages <n>] [--workers <n>]",
	Short: "Resolves every book of the input and writes their reviews.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := loadConfig()
		if *maxPages >= 0 {
			cfg.Pages.MaxPages = *maxPages
		}
		if *workers > 0 {
			cfg.Workers = *workers
		}

		books, err := readBooksFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read input", err)
		}
		slog.InfoContext(ctx, "loaded books", "count", len(books), "input", args[0])

		env := setup(ctx, cfg)
		defer env.Close()

		result, err := env.service.Run(ctx, books)
		if err != nil {
			env.fatal("run failed", err)
		}

		records := result.Records()
		if *dedupe {
			before := len(records)
			records = review.DedupeByID(records)
			slog.InfoContext(ctx, "removed duplicate reviews", "count", before-len(records))
		}
		err = writeFile(args[1], func(w io.Writer) error {
			return writeRecords(w, records)
		})
		if err != nil {
			env.fatal("failed to write output", err)
		}

		renderSummary(os.Stdout, result)
	},
}
