// Package search resolves a title and author to a single book page.
package search

import (
	"bookreviews-backend/lib/review"
	"bookreviews-backend/lib/scrapers/goodreads/core"
	"bookreviews-backend/lib/telemetry"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("bookreviews.lib.scrapers.goodreads.search")

var ErrNoMatch = errors.New("no matching book")

type BookQuery struct {
	ID     string
	Title  string
	Author string
}

type Candidate struct {
	Title         string
	Author        string
	PageReference string
	BookID        string
	// 1-based position in the result listing
	RawRank int
}

type ResolvedBook struct {
	Query         BookQuery
	PageReference string
	BookID        string
	Score         MatchScore
}

// Fields are the book columns of the review records of this book.
func (b ResolvedBook) Fields() review.BookFields {
	return review.BookFields{
		BookID:        b.Query.ID,
		Title:         b.Query.Title,
		Author:        b.Query.Author,
		PageReference: b.PageReference,
	}
}

type Resolver struct {
	fetcher *core.Fetcher
	policy  Policy
	api     telemetry.API
}

func NewResolver(fetcher *core.Fetcher, policy Policy, api telemetry.API) *Resolver {
	if api == nil {
		api = telemetry.SlogAPI{}
	}
	return &Resolver{
		fetcher: fetcher,
		policy:  policy,
		api:     telemetry.NewScopedAPI("resolver", api),
	}
}

// CheckRobots warns when robots.txt disallows the paths the scraper uses,
// it never fails a run.
func (r *Resolver) CheckRobots(ctx context.Context) {
	disallowed, err := r.fetcher.DisallowedPaths(ctx)
	if err != nil {
		slog.WarnContext(ctx, "could not check robots.txt", "err", err)
		return
	}
	for _, path := range []string{"/search", "/book/show/"} {
		if !core.Allowed(disallowed, path) {
			r.api.ReportWarning("robots.disallowed", "path", path)
		}
	}
}

// Search fetches and parses the result listing for a query.
func (r *Resolver) Search(ctx context.Context, query BookQuery) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "search:Search")
	defer span.End()

	q := strings.TrimSpace(query.Title + " " + query.Author)
	res, err := r.fetcher.Fetch(ctx, core.Request{
		URL:   "/search",
		Query: url.Values{"q": {q}},
	})
	if errors.Is(err, core.ErrUnexpectedStatus) {
		span.SetStatus(codes.Error, "unexpected search status")
		return nil, fmt.Errorf("%w: search responded with status %d", ErrNoMatch, res.Status)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch search results")
		return nil, err
	}

	candidates, err := ParseCandidates(res.Body, r.fetcher.BaseUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse search results")
		return nil, fmt.Errorf("%w: unparseable search results: %w", ErrNoMatch, err)
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates, nil
}

// Resolve returns the single candidate the query resolves to. it fails with
// ErrNoMatch when nothing is similar enough, fetch failures are returned
// as they are.
func (r *Resolver) Resolve(ctx context.Context, query BookQuery) (ResolvedBook, error) {
	ctx, span := tracer.Start(ctx, "search:Resolve")
	defer span.End()

	span.SetAttributes(
		attribute.String("book_id", query.ID),
		attribute.String("title", query.Title),
		attribute.String("author", query.Author),
	)

	candidates, err := r.Search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ResolvedBook{}, err
	}

	scores := make([]MatchScore, len(candidates))
	for i, c := range candidates {
		scores[i] = r.policy.Score(query, c)
		slog.DebugContext(
			ctx, "scored candidate",
			"book_id", query.ID,
			"rank", c.RawRank,
			"title", c.Title,
			"author", c.Author,
			"title_score", scores[i].Title,
			"author_score", scores[i].Author,
			"combined", scores[i].Combined,
		)
	}

	best, err := r.policy.Best(scores)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no match")
		return ResolvedBook{}, err
	}

	match := candidates[best]
	span.SetAttributes(
		attribute.String("page_reference", match.PageReference),
		attribute.Float64("score", scores[best].Combined),
	)
	return ResolvedBook{
		Query:         query,
		PageReference: match.PageReference,
		BookID:        match.BookID,
		Score:         scores[best],
	}, nil
}

// FromPage builds a ResolvedBook for a book page that is already known,
// no search is made.
func FromPage(query BookQuery, pageReference string) (ResolvedBook, error) {
	page, err := url.Parse(pageReference)
	if err != nil {
		return ResolvedBook{}, err
	}
	page.RawQuery = ""
	page.Fragment = ""
	groups := bookIdRegex.FindStringSubmatch(page.Path)
	if len(groups) < 2 {
		return ResolvedBook{}, fmt.Errorf("%q is not a book page", pageReference)
	}
	return ResolvedBook{
		Query:         query,
		PageReference: strings.TrimSuffix(page.String(), "/"),
		BookID:        groups[1],
		Score:         MatchScore{Title: 100, Author: 100, Combined: 100},
	}, nil
}
