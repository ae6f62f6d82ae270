// Package review turns partially extracted reviews into the final records.
package review

import (
	"bookreviews-backend/lib/htmlutil"
	"errors"
	"strconv"
	"time"
)

// ErrDropped is returned for reviews with neither text nor a rating.
var ErrDropped = errors.New("review has no text and no rating")

// BookFields are the columns every record of a book shares.
type BookFields struct {
	BookID        string
	Title         string
	Author        string
	PageReference string
}

// Raw is a review as it was walked out of the page state, values are
// whatever the json contained (string, json.Number, float64, bool or nil).
type Raw struct {
	ID           any
	URL          any
	Text         any
	Rating       any
	ReviewerID   any
	ReviewerName any
	Upvotes      any
	Date         any
}

type Record struct {
	BookID        string
	Title         string
	Author        string
	PageReference string
	ReviewID      string
	ReviewURL     string
	// plain text, already stripped of html
	ReviewText    string
	ReviewRating  *int
	ReviewerID    *string
	ReviewerName  *string
	ReviewUpvotes int
	ReviewDate    *time.Time
}

// Normalize cleans a raw review into a record of `book`. invalid ratings,
// counts and dates become empty values instead of errors, only a review
// that ends up with no text and no rating is rejected (ErrDropped).
func Normalize(book BookFields, raw Raw) (Record, error) {
	text, _ := coerceString(raw.Text)
	text = htmlutil.PlainText(text)
	rating := CoerceRating(raw.Rating)
	if text == "" && rating == nil {
		return Record{}, ErrDropped
	}

	id, _ := coerceString(raw.ID)
	url, _ := coerceString(raw.URL)

	return Record{
		BookID:        book.BookID,
		Title:         book.Title,
		Author:        book.Author,
		PageReference: book.PageReference,
		ReviewID:      id,
		ReviewURL:     url,
		ReviewText:    text,
		ReviewRating:  rating,
		ReviewerID:    optionalString(raw.ReviewerID),
		ReviewerName:  optionalString(raw.ReviewerName),
		ReviewUpvotes: CoerceCount(raw.Upvotes),
		ReviewDate:    ParseDate(raw.Date),
	}, nil
}

// DedupeByID keeps the first record of every review id, records without
// an id are always kept.
func DedupeByID(records []Record) []Record {
	seen := map[string]bool{}
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.ReviewID != "" {
			if seen[r.ReviewID] {
				continue
			}
			seen[r.ReviewID] = true
		}
		out = append(out, r)
	}
	return out
}

// Columns is the header of the flat export of a record.
var Columns = []string{
	"book_id",
	"title",
	"author",
	"goodreads_url",
	"review_id",
	"review_url",
	"review_text",
	"review_rating",
	"reviewer_id",
	"reviewer_name",
	"review_upvotes",
	"review_date",
}

// Row flattens a record in the order of Columns, empty values are empty
// strings and dates are RFC3339 in UTC.
func (r Record) Row() []string {
	rating := ""
	if r.ReviewRating != nil {
		rating = strconv.Itoa(*r.ReviewRating)
	}
	date := ""
	if r.ReviewDate != nil {
		date = r.ReviewDate.UTC().Format(time.RFC3339)
	}
	return []string{
		r.BookID,
		r.Title,
		r.Author,
		r.PageReference,
		r.ReviewID,
		r.ReviewURL,
		r.ReviewText,
		rating,
		deref(r.ReviewerID),
		deref(r.ReviewerName),
		strconv.Itoa(r.ReviewUpvotes),
		date,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
