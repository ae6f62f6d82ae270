package db

import (
	"context"
	"database/sql"
)

const createRun = `insert into runs(id, started_at) values (?, ?)`

type CreateRunParams struct {
	ID        string
	StartedAt int64
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun, arg.ID, arg.StartedAt)
	return err
}

const finishRun = `update runs set finished_at = ?, blocked = ? where id = ?`

type FinishRunParams struct {
	FinishedAt int64
	Blocked    bool
	ID         string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	_, err := q.db.ExecContext(ctx, finishRun, arg.FinishedAt, arg.Blocked, arg.ID)
	return err
}

const getRun = `select id, started_at, finished_at, blocked from runs where id = ?`

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	row := q.db.QueryRowContext(ctx, getRun, id)
	var i Run
	err := row.Scan(&i.ID, &i.StartedAt, &i.FinishedAt, &i.Blocked)
	return i, err
}

const getLatestRun = `select id, started_at, finished_at, blocked from runs
order by started_at desc, rowid desc
limit 1`

func (q *Queries) GetLatestRun(ctx context.Context) (Run, error) {
	row := q.db.QueryRowContext(ctx, getLatestRun)
	var i Run
	err := row.Scan(&i.ID, &i.StartedAt, &i.FinishedAt, &i.Blocked)
	return i, err
}

const saveLookup = `insert into lookups(
    run_id, position, book_id, title, author, goodreads_url, score, status, pages_fetched, total_pages, error
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict(run_id, position) do update set
    book_id = excluded.book_id,
    title = excluded.title,
    author = excluded.author,
    goodreads_url = excluded.goodreads_url,
    score = excluded.score,
    status = excluded.status,
    pages_fetched = excluded.pages_fetched,
    total_pages = excluded.total_pages,
    error = excluded.error`

type SaveLookupParams struct {
	RunID        string
	Position     int64
	BookID       string
	Title        string
	Author       string
	GoodreadsUrl string
	Score        float64
	Status       string
	PagesFetched int64
	TotalPages   int64
	Error        string
}

func (q *Queries) SaveLookup(ctx context.Context, arg SaveLookupParams) error {
	_, err := q.db.ExecContext(ctx, saveLookup,
		arg.RunID,
		arg.Position,
		arg.BookID,
		arg.Title,
		arg.Author,
		arg.GoodreadsUrl,
		arg.Score,
		arg.Status,
		arg.PagesFetched,
		arg.TotalPages,
		arg.Error,
	)
	return err
}

const getLookups = `select
    run_id, position, book_id, title, author, goodreads_url, score, status, pages_fetched, total_pages, error
from lookups
where run_id = ?
order by position`

func (q *Queries) GetLookups(ctx context.Context, runID string) ([]Lookup, error) {
	rows, err := q.db.QueryContext(ctx, getLookups, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Lookup
	for rows.Next() {
		var i Lookup
		if err := rows.Scan(
			&i.RunID,
			&i.Position,
			&i.BookID,
			&i.Title,
			&i.Author,
			&i.GoodreadsUrl,
			&i.Score,
			&i.Status,
			&i.PagesFetched,
			&i.TotalPages,
			&i.Error,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteBookReviews = `delete from reviews where run_id = ? and position = ?`

type DeleteBookReviewsParams struct {
	RunID    string
	Position int64
}

func (q *Queries) DeleteBookReviews(ctx context.Context, arg DeleteBookReviewsParams) error {
	_, err := q.db.ExecContext(ctx, deleteBookReviews, arg.RunID, arg.Position)
	return err
}

const createReview = `insert into reviews(
    run_id, position, book_id, seq, review_id, review_url, review_text,
    review_rating, reviewer_id, reviewer_name, review_upvotes, review_date
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateReviewParams struct {
	RunID         string
	Position      int64
	BookID        string
	Seq           int64
	ReviewID      string
	ReviewUrl     string
	ReviewText    string
	ReviewRating  sql.NullInt64
	ReviewerID    sql.NullString
	ReviewerName  sql.NullString
	ReviewUpvotes int64
	ReviewDate    sql.NullInt64
}

func (q *Queries) CreateReview(ctx context.Context, arg CreateReviewParams) error {
	_, err := q.db.ExecContext(ctx, createReview,
		arg.RunID,
		arg.Position,
		arg.BookID,
		arg.Seq,
		arg.ReviewID,
		arg.ReviewUrl,
		arg.ReviewText,
		arg.ReviewRating,
		arg.ReviewerID,
		arg.ReviewerName,
		arg.ReviewUpvotes,
		arg.ReviewDate,
	)
	return err
}

const countLookupsByStatus = `select status, count(*) as count
from lookups
where run_id = ?
group by status
order by count desc, status`

type CountLookupsByStatusRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountLookupsByStatus(ctx context.Context, runID string) ([]CountLookupsByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countLookupsByStatus, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountLookupsByStatusRow
	for rows.Next() {
		var i CountLookupsByStatusRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countReviewsPerBook = `select l.book_id, l.title, l.author, count(r.seq) as count
from lookups l
left join reviews r on r.run_id = l.run_id and r.position = l.position
where l.run_id = ?
group by l.position
order by count desc, l.position`

type CountReviewsPerBookRow struct {
	BookID string
	Title  string
	Author string
	Count  int64
}

func (q *Queries) CountReviewsPerBook(ctx context.Context, runID string) ([]CountReviewsPerBookRow, error) {
	rows, err := q.db.QueryContext(ctx, countReviewsPerBook, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountReviewsPerBookRow
	for rows.Next() {
		var i CountReviewsPerBookRow
		if err := rows.Scan(&i.BookID, &i.Title, &i.Author, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const ratingDistribution = `select review_rating, count(*) as count
from reviews
where run_id = ?
group by review_rating
order by review_rating`

type RatingDistributionRow struct {
	ReviewRating sql.NullInt64
	Count        int64
}

func (q *Queries) RatingDistribution(ctx context.Context, runID string) ([]RatingDistributionRow, error) {
	rows, err := q.db.QueryContext(ctx, ratingDistribution, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RatingDistributionRow
	for rows.Next() {
		var i RatingDistributionRow
		if err := rows.Scan(&i.ReviewRating, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const nullFieldCounts = `select
    count(*) as total,
    coalesce(sum(case when review_text = '' then 1 else 0 end), 0) as empty_text,
    coalesce(sum(case when review_rating is null then 1 else 0 end), 0) as null_rating,
    coalesce(sum(case when reviewer_id is null then 1 else 0 end), 0) as null_reviewer_id,
    coalesce(sum(case when reviewer_name is null then 1 else 0 end), 0) as null_reviewer_name,
    coalesce(sum(case when review_date is null then 1 else 0 end), 0) as null_date
from reviews
where run_id = ?`

type NullFieldCountsRow struct {
	Total            int64
	EmptyText        int64
	NullRating       int64
	NullReviewerID   int64
	NullReviewerName int64
	NullDate         int64
}

func (q *Queries) NullFieldCounts(ctx context.Context, runID string) (NullFieldCountsRow, error) {
	row := q.db.QueryRowContext(ctx, nullFieldCounts, runID)
	var i NullFieldCountsRow
	err := row.Scan(
		&i.Total,
		&i.EmptyText,
		&i.NullRating,
		&i.NullReviewerID,
		&i.NullReviewerName,
		&i.NullDate,
	)
	return i, err
}

const getReviews = `select
    run_id, position, book_id, seq, review_id, review_url, review_text,
    review_rating, reviewer_id, reviewer_name, review_upvotes, review_date
from reviews
where run_id = ?
order by position, seq`

func (q *Queries) GetReviews(ctx context.Context, runID string) ([]Review, error) {
	rows, err := q.db.QueryContext(ctx, getReviews, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Review
	for rows.Next() {
		var i Review
		if err := rows.Scan(
			&i.RunID,
			&i.Position,
			&i.BookID,
			&i.Seq,
			&i.ReviewID,
			&i.ReviewUrl,
			&i.ReviewText,
			&i.ReviewRating,
			&i.ReviewerID,
			&i.ReviewerName,
			&i.ReviewUpvotes,
			&i.ReviewDate,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
