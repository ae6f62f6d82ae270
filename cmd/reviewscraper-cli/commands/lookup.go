package commands

import (
	"bookreviews-backend/lib/util/serviceutil"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(lookupCmd)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <books.csv> <urls.csv>",
	Short: "Resolves the goodreads page of every book without collecting reviews.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		books, err := readBooksFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read input", err)
		}

		env := setup(ctx, loadConfig())
		defer env.Close()

		result, err := env.service.Lookup(ctx, books)
		if err != nil {
			env.fatal("lookup failed", err)
		}
		err = writeFile(args[1], func(w io.Writer) error {
			return writeLookups(w, result.Books)
		})
		if err != nil {
			env.fatal("failed to write output", err)
		}

		renderSummary(os.Stdout, result)
	},
}
