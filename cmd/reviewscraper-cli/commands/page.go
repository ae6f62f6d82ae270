package commands

import (
	"bookreviews-backend/lib/scrapers/goodreads/search"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var pageBookId *string
var pageTitle *string
var pageAuthor *string
var pageMaxPages *int

func init() {
	pageBookId = pageCmd.Flags().String("id", "", "The book id written to the output.")
	pageTitle = pageCmd.Flags().String("title", "", "The title written to the output.")
	pageAuthor = pageCmd.Flags().String("author", "", "The author written to the output.")
	pageMaxPages = pageCmd.Flags().Int("max-pages", -1, "Overrides pages.max_pages (0 means every page).")
	rootCmd.AddCommand(pageCmd)
}

var pageCmd = &cobra.Command{
	Use:   "page <book-url> <reviews.csv> [--id <id>] [--title <title>] [--author <author>]",
	Short: "Collects the reviews of a single book page, no search is made.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := loadConfig()
		if *pageMaxPages >= 0 {
			cfg.Pages.MaxPages = *pageMaxPages
		}
		env := setup(ctx, cfg)
		defer env.Close()

		query := search.BookQuery{
			ID:     *pageBookId,
			Title:  *pageTitle,
			Author: *pageAuthor,
		}
		result, err := env.service.CollectPage(ctx, query, args[0])
		if err != nil {
			env.fatal("failed to collect page", err)
		}
		err = writeFile(args[1], func(w io.Writer) error {
			return writeRecords(w, result.Records())
		})
		if err != nil {
			env.fatal("failed to write output", err)
		}

		renderSummary(os.Stdout, result)
	},
}
