// Package reviewscraper runs batches of books through resolution and
// review collection with a fixed number of workers sharing one fetcher.
package reviewscraper

import (
	"bookreviews-backend/lib/review"
	"bookreviews-backend/lib/scrapers/goodreads/core"
	"bookreviews-backend/lib/scrapers/goodreads/reviews"
	"bookreviews-backend/lib/scrapers/goodreads/search"
	"bookreviews-backend/lib/telemetry"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type BookResult struct {
	// index of the query in the run's input
	Position int
	Query    search.BookQuery
	// zero when the book did not resolve
	Book       search.ResolvedBook
	Status     Status
	Collection reviews.Collection
	Err        error
}

type RunResult struct {
	RunID string
	// in input order
	Books   []BookResult
	Blocked bool
}

// Records merges the records of every book in input order.
func (r RunResult) Records() []review.Record {
	var out []review.Record
	for _, b := range r.Books {
		out = append(out, b.Collection.Records...)
	}
	return out
}

func (r RunResult) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, b := range r.Books {
		counts[b.Status]++
	}
	return counts
}

type Options struct {
	Config Config
	// can be nil
	Cache core.Cache
	// can be nil, runs are then not persisted
	DB  *sql.DB
	API telemetry.API
}

type Service struct {
	config   Config
	fetcher  *core.Fetcher
	resolver *search.Resolver
	driver   *reviews.Driver
	store    *Store
	api      telemetry.API
}

func NewService(opts Options) (*Service, error) {
	if opts.API == nil {
		opts.API = telemetry.SlogAPI{}
	}

	fetchOpts := opts.Config.FetchOptions()
	fetchOpts.Cache = opts.Cache
	fetchOpts.API = opts.API
	fetcher, err := core.NewFetcher(fetchOpts)
	if err != nil {
		return nil, err
	}

	var store *Store
	if opts.DB != nil {
		store = NewStore(opts.DB)
	}

	return &Service{
		config:   opts.Config,
		fetcher:  fetcher,
		resolver: search.NewResolver(fetcher, opts.Config.Match, opts.API),
		driver:   reviews.NewDriver(fetcher, opts.Config.Pages.PerPage, opts.API),
		store:    store,
		api:      telemetry.NewScopedAPI("reviewscraper", opts.API),
	}, nil
}

func (s *Service) Fetcher() *core.Fetcher {
	return s.fetcher
}

// Run resolves every query and collects the reviews of the ones that
// resolved.
func (s *Service) Run(ctx context.Context, queries []search.BookQuery) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "reviewscraper:Run")
	defer span.End()

	return s.run(ctx, queries, s.scrapeBook)
}

// Lookup only resolves the queries, no review page is fetched.
func (s *Service) Lookup(ctx context.Context, queries []search.BookQuery) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "reviewscraper:Lookup")
	defer span.End()

	return s.run(ctx, queries, s.lookupBook)
}

// CollectPage collects the reviews of a book whose page is already known.
func (s *Service) CollectPage(ctx context.Context, query search.BookQuery, pageReference string) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "reviewscraper:CollectPage")
	defer span.End()

	book, err := search.FromPage(query, pageReference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunResult{}, err
	}
	return s.run(ctx, []search.BookQuery{query}, func(ctx context.Context, _ search.BookQuery) BookResult {
		if ctx.Err() != nil {
			return BookResult{Query: query, Status: StatusSkipped}
		}
		return s.collect(ctx, BookResult{Query: query, Book: book, Status: StatusOK})
	})
}

func (s *Service) run(
	ctx context.Context,
	queries []search.BookQuery,
	process func(ctx context.Context, query search.BookQuery) BookResult,
) (RunResult, error) {
	span := trace.SpanFromContext(ctx)

	runId, err := random.String(12)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunResult{}, err
	}
	span.SetAttributes(
		attribute.String("run_id", runId),
		attribute.Int("books", len(queries)),
	)

	// results are written even after the run has been cancelled
	persistCtx := context.WithoutCancel(ctx)
	if s.store != nil {
		err = s.store.StartRun(persistCtx, runId, time.Now())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return RunResult{}, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.config.RunTimeoutSeconds > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, time.Duration(s.config.RunTimeoutSeconds)*time.Second)
		defer cancelTimeout()
	}

	s.resolver.CheckRobots(runCtx)

	workers := s.config.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(queries) {
		workers = len(queries)
	}

	books := make([]BookResult, len(queries))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				book := process(runCtx, queries[i])
				book.Position = i
				books[i] = book
				if book.Status == StatusBlocked {
					// every later fetch would fail the same way
					cancel()
				}
				s.finishBook(persistCtx, runId, book)
			}
		}()
	}

feed:
	for i := range queries {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := range books {
		if books[i].Status != "" {
			continue
		}
		books[i] = BookResult{Position: i, Query: queries[i], Status: StatusSkipped}
		s.finishBook(persistCtx, runId, books[i])
	}

	result := RunResult{
		RunID:   runId,
		Books:   books,
		Blocked: s.fetcher.Blocked(),
	}
	for status, n := range result.Counts() {
		s.api.ReportCount("books."+string(status), int64(n))
	}
	if result.Blocked {
		s.api.ReportBroken("run.blocked", "run_id", runId, "challenges", s.fetcher.Challenges())
	}

	if s.store != nil {
		err = s.store.FinishRun(persistCtx, runId, time.Now(), result.Blocked)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
	}
	return result, nil
}

func (s *Service) finishBook(ctx context.Context, runId string, book BookResult) {
	booksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(book.Status))))
	slog.InfoContext(
		ctx, "book finished",
		"book_id", book.Query.ID,
		"status", book.Status,
		"reviews", len(book.Collection.Records),
		"pages", book.Collection.PagesFetched,
	)
	if s.store == nil {
		return
	}
	err := s.store.SaveBook(ctx, runId, book)
	if err != nil {
		s.api.ReportBroken("store.save", "run_id", runId, "book_id", book.Query.ID, "err", err)
	}
}

func (s *Service) lookupBook(ctx context.Context, query search.BookQuery) BookResult {
	if ctx.Err() != nil {
		return BookResult{Query: query, Status: StatusSkipped}
	}

	book, err := s.resolver.Resolve(ctx, query)
	if err == nil {
		return BookResult{Query: query, Book: book, Status: StatusOK}
	}

	status := StatusResolveFailed
	switch {
	case ctx.Err() != nil:
		return BookResult{Query: query, Status: StatusSkipped, Err: err}
	case errors.Is(err, search.ErrNoMatch):
		status = StatusNoMatch
	case errors.Is(err, core.ErrBlocked):
		status = StatusBlocked
	case errors.Is(err, core.ErrRejected):
		status = StatusRejected
	}

	kind := string(status)
	if fetchKind := core.KindOf(err); fetchKind != nil {
		kind = fetchKind.Error()
	}
	s.api.ReportWarning(
		"book.unresolved",
		"book_id", query.ID,
		"status", string(status),
		"kind", kind,
		"err", err,
	)
	return BookResult{Query: query, Status: status, Err: err}
}

func (s *Service) scrapeBook(ctx context.Context, query search.BookQuery) BookResult {
	result := s.lookupBook(ctx, query)
	if result.Status != StatusOK {
		return result
	}
	return s.collect(ctx, result)
}

func (s *Service) collect(ctx context.Context, result BookResult) BookResult {
	collection := s.driver.Collect(ctx, result.Book, s.config.Pages.MaxPages)
	result.Collection = collection
	result.Err = collection.Err
	result.Status = collectionStatus(collection)

	if result.Status == StatusPartial || result.Status == StatusRejected {
		s.api.ReportWarning(
			"book.incomplete",
			"book_id", result.Query.ID,
			"status", string(result.Status),
			"stop", collection.Stop.String(),
			"pages_fetched", collection.PagesFetched,
			"failed_pages", len(collection.Failures),
		)
	}
	return result
}
