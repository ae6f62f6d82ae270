// Package reviews walks the paginated review listing of a resolved book.
package reviews

import (
	"bookreviews-backend/lib/review"
	"bookreviews-backend/lib/scrapers/goodreads/core"
	"bookreviews-backend/lib/scrapers/goodreads/nextdata"
	"bookreviews-backend/lib/scrapers/goodreads/search"
	"bookreviews-backend/lib/telemetry"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type StopReason int

const (
	// every page the first page declared has been visited
	StopLastPage StopReason = iota
	// the caller's page limit was reached before the last page
	StopCeiling
	// a page had no review nodes
	StopEmptyPage
	StopBlocked
	StopRejected
	// a page had no usable embedded state or an unexpected status
	StopStructural
	StopCanceled
)

func (r StopReason) String() string {
	switch r {
	case StopLastPage:
		return "last_page"
	case StopCeiling:
		return "ceiling"
	case StopEmptyPage:
		return "empty_page"
	case StopBlocked:
		return "blocked"
	case StopRejected:
		return "rejected"
	case StopStructural:
		return "structural"
	case StopCanceled:
		return "canceled"
	}
	return "unknown"
}

// PageFailure is a page that was skipped after its fetch ran out of
// retries.
type PageFailure struct {
	Page int
	Err  error
}

type Collection struct {
	// records of every page in page order, not deduplicated
	Records      []review.Record
	PagesFetched int
	// as declared by the first page, 0 when unknown
	TotalPages int
	Stop       StopReason
	Failures   []PageFailure
	// unresolved review references plus reviews without text or rating
	Dropped int
	// the failure that stopped the walk, nil for last_page, ceiling,
	// empty_page and canceled
	Err error
}

// Partial is true when the walk ended before it could visit every page.
func (c Collection) Partial() bool {
	return c.Err != nil || len(c.Failures) > 0
}

type Driver struct {
	fetcher   *core.Fetcher
	extractor nextdata.Extractor
	api       telemetry.API
}

// NewDriver creates a driver, perPage is the listing's page size used when
// a page only declares its review count (0 for the default).
func NewDriver(fetcher *core.Fetcher, perPage int, api telemetry.API) *Driver {
	if perPage <= 0 {
		perPage = nextdata.DefaultPerPage
	}
	if api == nil {
		api = telemetry.SlogAPI{}
	}
	return &Driver{
		fetcher:   fetcher,
		extractor: nextdata.Extractor{PerPage: perPage},
		api:       telemetry.NewScopedAPI("reviews", api),
	}
}

// PageURL returns the url of the n-th page of a book's review listing.
func PageURL(pageReference string, n int) string {
	return strings.TrimSuffix(pageReference, "/") + "/reviews?" + url.Values{
		"page": {strconv.Itoa(n)},
	}.Encode()
}

func kindName(err error) string {
	kind := core.KindOf(err)
	switch {
	case kind != nil:
		return kind.Error()
	case errors.Is(err, nextdata.ErrNoEmbeddedState):
		return "no embedded state"
	case errors.Is(err, nextdata.ErrMalformedState):
		return "malformed state"
	}
	return "unknown"
}

// Collect fetches and extracts the review pages of `book` in order,
// starting from page 1. maxPages <= 0 means no limit besides the page count
// the first page declares.
//
// Collect never returns an error on its own, the reason it stopped and the
// failure behind it are in the Collection along with every record gathered
// until then.
func (d *Driver) Collect(ctx context.Context, book search.ResolvedBook, maxPages int) Collection {
	ctx, span := tracer.Start(ctx, "reviews:Collect")
	defer span.End()

	span.SetAttributes(
		attribute.String("book_id", book.Query.ID),
		attribute.String("page_reference", book.PageReference),
		attribute.Int("max_pages", maxPages),
	)

	fields := book.Fields()
	out := Collection{}
	// until the first page declares otherwise
	target := 1

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			out.Stop = StopCanceled
			break
		}
		if page > target {
			out.Stop = StopLastPage
			break
		}
		if maxPages > 0 && page > maxPages {
			out.Stop = StopCeiling
			break
		}

		res, err := d.fetcher.Fetch(ctx, core.Request{URL: PageURL(book.PageReference, page)})
		if err != nil {
			if ctx.Err() != nil {
				out.Stop = StopCanceled
				break
			}

			kind := kindName(err)
			switch {
			case errors.Is(err, core.ErrTransient), errors.Is(err, core.ErrRateLimited):
				pagesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
				d.api.ReportWarning(
					"page.skipped",
					"book_id", book.Query.ID,
					"page", page,
					"kind", kind,
					"err", err,
				)
				out.Failures = append(out.Failures, PageFailure{Page: page, Err: err})
				continue
			case errors.Is(err, core.ErrBlocked):
				out.Stop = StopBlocked
			case errors.Is(err, core.ErrRejected):
				out.Stop = StopRejected
			default:
				out.Stop = StopStructural
			}
			d.api.ReportWarning(
				"page.stopped",
				"book_id", book.Query.ID,
				"page", page,
				"kind", kind,
				"err", err,
			)
			out.Err = err
			break
		}
		out.PagesFetched++

		extracted, err := d.extractor.Extract(res.Body)
		if err != nil {
			d.api.ReportWarning(
				"page.stopped",
				"book_id", book.Query.ID,
				"page", page,
				"kind", kindName(err),
				"err", err,
			)
			out.Stop = StopStructural
			out.Err = err
			break
		}

		if page == 1 {
			out.TotalPages = extracted.Info.TotalPages
			if out.TotalPages > target {
				target = out.TotalPages
			}
			span.SetAttributes(attribute.Int("total_pages", out.TotalPages))
		}

		if len(extracted.Reviews) == 0 && extracted.Dropped == 0 {
			slog.DebugContext(ctx, "empty review page", "book_id", book.Query.ID, "page", page)
			out.Stop = StopEmptyPage
			break
		}

		dropped := extracted.Dropped
		collected := 0
		for _, raw := range extracted.Reviews {
			record, err := review.Normalize(fields, raw)
			if errors.Is(err, review.ErrDropped) {
				dropped++
				continue
			}
			out.Records = append(out.Records, record)
			collected++
		}
		out.Dropped += dropped
		reviewsCollected.Add(ctx, int64(collected))
		reviewsDropped.Add(ctx, int64(dropped))

		slog.DebugContext(
			ctx, "collected review page",
			"book_id", book.Query.ID,
			"page", page,
			"of", target,
			"reviews", collected,
			"dropped", dropped,
			"from_cache", res.FromCache,
		)
	}

	span.SetAttributes(
		attribute.String("stop", out.Stop.String()),
		attribute.Int("pages_fetched", out.PagesFetched),
		attribute.Int("records", len(out.Records)),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Stop.String())
	}
	return out
}
