package reviewscraper

import (
	"bookreviews-backend/lib/scrapers/goodreads/reviews"
)

// Status is the outcome of one book in a run.
type Status string

const (
	// resolved and every page was collected (or, for lookups, resolved)
	StatusOK Status = "ok"
	// resolved cleanly but the book has no reviews
	StatusNoReviews     Status = "no_reviews"
	StatusNoMatch       Status = "no_match"
	StatusResolveFailed Status = "resolve_failed"
	// some pages are missing, the records that were collected are kept
	StatusPartial  Status = "partial"
	StatusBlocked  Status = "blocked"
	StatusRejected Status = "rejected"
	// never processed because the run was cancelled
	StatusSkipped Status = "skipped"
)

func collectionStatus(c reviews.Collection) Status {
	switch c.Stop {
	case reviews.StopBlocked:
		return StatusBlocked
	case reviews.StopRejected:
		return StatusRejected
	case reviews.StopStructural, reviews.StopCanceled:
		return StatusPartial
	}
	if len(c.Failures) > 0 {
		return StatusPartial
	}
	if len(c.Records) == 0 {
		return StatusNoReviews
	}
	return StatusOK
}
