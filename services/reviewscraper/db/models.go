package db

import (
	"database/sql"
)

type Run struct {
	ID         string
	StartedAt  int64
	FinishedAt sql.NullInt64
	Blocked    bool
}

type Lookup struct {
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

type Review struct {
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
