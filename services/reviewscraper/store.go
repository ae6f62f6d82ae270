package reviewscraper

import (
	"bookreviews-backend/services/reviewscraper/db"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store persists runs and their results.
type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) *Store {
	return &Store{
		db:  database,
		qry: db.New(database),
	}
}

func (s *Store) StartRun(ctx context.Context, runId string, startedAt time.Time) error {
	return s.qry.CreateRun(ctx, db.CreateRunParams{
		ID:        runId,
		StartedAt: startedAt.Unix(),
	})
}

func (s *Store) FinishRun(ctx context.Context, runId string, finishedAt time.Time, blocked bool) error {
	return s.qry.FinishRun(ctx, db.FinishRunParams{
		ID:         runId,
		FinishedAt: finishedAt.Unix(),
		Blocked:    blocked,
	})
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v.Unix(), Valid: true}
}

// SaveBook replaces whatever the run has stored at the book's position.
func (s *Store) SaveBook(ctx context.Context, runId string, book BookResult) error {
	ctx, span := tracer.Start(ctx, "store:SaveBook")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	errMessage := ""
	if book.Err != nil {
		errMessage = book.Err.Error()
	}
	err = txqry.SaveLookup(ctx, db.SaveLookupParams{
		RunID:        runId,
		Position:     int64(book.Position),
		BookID:       book.Query.ID,
		Title:        book.Query.Title,
		Author:       book.Query.Author,
		GoodreadsUrl: book.Book.PageReference,
		Score:        book.Book.Score.Combined,
		Status:       string(book.Status),
		PagesFetched: int64(book.Collection.PagesFetched),
		TotalPages:   int64(book.Collection.TotalPages),
		Error:        errMessage,
	})
	if err != nil {
		return fmt.Errorf("save lookup: %w", err)
	}

	err = txqry.DeleteBookReviews(ctx, db.DeleteBookReviewsParams{
		RunID:    runId,
		Position: int64(book.Position),
	})
	if err != nil {
		return err
	}
	for i, r := range book.Collection.Records {
		err = txqry.CreateReview(ctx, db.CreateReviewParams{
			RunID:         runId,
			Position:      int64(book.Position),
			BookID:        book.Query.ID,
			Seq:           int64(i),
			ReviewID:      r.ReviewID,
			ReviewUrl:     r.ReviewURL,
			ReviewText:    r.ReviewText,
			ReviewRating:  nullInt(r.ReviewRating),
			ReviewerID:    nullString(r.ReviewerID),
			ReviewerName:  nullString(r.ReviewerName),
			ReviewUpvotes: int64(r.ReviewUpvotes),
			ReviewDate:    nullTime(r.ReviewDate),
		})
		if err != nil {
			return fmt.Errorf("save review %d: %w", i, err)
		}
	}

	return tx.Commit()
}

type Report struct {
	Run            db.Run
	Statuses       []db.CountLookupsByStatusRow
	ReviewsPerBook []db.CountReviewsPerBookRow
	Ratings        []db.RatingDistributionRow
	Nulls          db.NullFieldCountsRow
}

// Report summarizes a run, the latest one when runId is empty.
func (s *Store) Report(ctx context.Context, runId string) (Report, error) {
	ctx, span := tracer.Start(ctx, "store:Report")
	defer span.End()

	var run db.Run
	var err error
	if runId == "" {
		run, err = s.qry.GetLatestRun(ctx)
	} else {
		run, err = s.qry.GetRun(ctx, runId)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("no run %q", runId)
	}
	if err != nil {
		return Report{}, err
	}

	report := Report{Run: run}
	report.Statuses, err = s.qry.CountLookupsByStatus(ctx, run.ID)
	if err != nil {
		return Report{}, err
	}
	report.ReviewsPerBook, err = s.qry.CountReviewsPerBook(ctx, run.ID)
	if err != nil {
		return Report{}, err
	}
	report.Ratings, err = s.qry.RatingDistribution(ctx, run.ID)
	if err != nil {
		return Report{}, err
	}
	report.Nulls, err = s.qry.NullFieldCounts(ctx, run.ID)
	if err != nil {
		return Report{}, err
	}
	return report, nil
}
