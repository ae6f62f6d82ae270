package commands

import (
	"bookreviews-backend/services/reviewscraper"
	"bookreviews-backend/services/reviewscraper/db"
	"bytes"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderReport(t *testing.T) {
	report := reviewscraper.Report{
		Run: db.Run{
			ID:         "abc",
			StartedAt:  1700000000,
			FinishedAt: sql.NullInt64{Int64: 1700000090, Valid: true},
		},
		Statuses: []db.CountLookupsByStatusRow{
			{Status: "ok", Count: 2},
			{Status: "no_match", Count: 1},
		},
		ReviewsPerBook: []db.CountReviewsPerBookRow{
			{BookID: "1", Title: "Toilers of the Sea", Author: "Victor Hugo", Count: 3},
			{BookID: "3", Title: "Silent Spring", Author: "Rachel Carson", Count: 1},
		},
		Ratings: []db.RatingDistributionRow{
			{ReviewRating: sql.NullInt64{}, Count: 1},
			{ReviewRating: sql.NullInt64{Int64: 5, Valid: true}, Count: 3},
		},
		Nulls: db.NullFieldCountsRow{Total: 4, NullRating: 1},
	}

	var out bytes.Buffer
	renderReport(&out, report, 1)
	text := out.String()

	require.Contains(t, text, "run abc")
	require.Contains(t, text, "took 1m30s")
	require.Contains(t, text, "Toilers of the Sea")
	require.NotContains(t, text, "Silent Spring")
	require.Contains(t, text, "75.0%")
	require.Contains(t, text, "25.0%")
	require.Contains(t, text, "none")
}
