package core

import (
	"bookreviews-backend/lib/pagecache"
	"bookreviews-backend/lib/restyutil"
	"bookreviews-backend/lib/telemetry"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseUrl = "https://www.goodreads.com"
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

var DefaultChallengeMarkers = []string{
	"captcha",
	"are you a robot",
	"unusual traffic",
}

// Cache is a key to body store, Get returns pagecache.ErrCacheMiss for
// unknown keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
}

type Options struct {
	BaseUrl string
	// minimum time between two requests made by this fetcher
	Delay time.Duration
	// per request timeout, defaults to 30 seconds
	Timeout            time.Duration
	Retry              RetryPolicy
	ChallengeThreshold int
	ChallengeMarkers   []string
	UserAgent          string

	// Cache can be nil, successful responses are written to it and,
	// when CacheRead is set, read from it before going to the network.
	Cache     Cache
	CacheRead bool

	// API defaults to telemetry.SlogAPI
	API telemetry.API
}

func DefaultOptions() Options {
	return Options{
		BaseUrl:            DefaultBaseUrl,
		Delay:              2 * time.Second,
		Timeout:            30 * time.Second,
		Retry:              DefaultRetryPolicy(),
		ChallengeThreshold: 3,
		ChallengeMarkers:   DefaultChallengeMarkers,
		UserAgent:          DefaultUserAgent,
	}
}

type Request struct {
	// URL may be relative to the fetcher's base url
	URL     string
	Query   url.Values
	Headers map[string]string
	// overrides the fetcher's timeout when non-zero
	Timeout time.Duration
}

type Response struct {
	Status    int
	Body      []byte
	URL       string
	FromCache bool
}

// Fetcher makes rate limited GET requests, every request goes through one
// Gate no matter how many goroutines share the fetcher.
type Fetcher struct {
	BaseUrl *url.URL
	Http    *resty.Client

	gate       *Gate
	timeout    time.Duration
	retry      RetryPolicy
	threshold  int64
	markers    []string
	cache      Cache
	cacheRead  bool
	api        telemetry.API
	challenges atomic.Int64
	blocked    atomic.Bool
}

func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ChallengeThreshold <= 0 {
		opts.ChallengeThreshold = 3
	}
	if opts.ChallengeMarkers == nil {
		opts.ChallengeMarkers = DefaultChallengeMarkers
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.API == nil {
		opts.API = telemetry.SlogAPI{}
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("accept-language", "en-US,en;q=0.5")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	return &Fetcher{
		BaseUrl:   baseUrl,
		Http:      client,
		gate:      NewGate(opts.Delay),
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		threshold: int64(opts.ChallengeThreshold),
		markers:   opts.ChallengeMarkers,
		cache:     opts.Cache,
		cacheRead: opts.CacheRead,
		api:       opts.API,
	}, nil
}

// Challenges returns how many challenge pages this fetcher has seen.
func (f *Fetcher) Challenges() int {
	return int(f.challenges.Load())
}

func (f *Fetcher) Blocked() bool {
	return f.blocked.Load()
}

// Resolve turns a url relative to the base url into an absolute one.
func (f *Fetcher) Resolve(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return f.BaseUrl.ResolveReference(parsed).String(), nil
}

func (f *Fetcher) target(req Request) (string, error) {
	target, err := f.Resolve(req.URL)
	if err != nil {
		return "", err
	}
	if len(req.Query) == 0 {
		return target, nil
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	for k, vals := range req.Query {
		query.Del(k)
		for _, v := range vals {
			query.Add(k, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Fetch GETs a page, retrying according to the fetcher's retry policy.
//
// the returned error is a *FetchError (matching one of the Err* kinds) or
// the context's error when ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()

	target, err := f.target(req)
	if err != nil {
		return Response{}, fail(span, fmt.Errorf("build request url: %w", err))
	}
	span.SetAttributes(attribute.String("url", target))

	if f.blocked.Load() {
		return Response{}, fail(span, &FetchError{Kind: ErrBlocked, URL: target})
	}

	var key string
	if f.cache != nil {
		key, err = pagecache.Key(target)
		if err != nil {
			key = target
		}
		if f.cacheRead {
			body, err := f.cache.Get(ctx, key)
			if err == nil {
				cacheHits.Add(ctx, 1)
				span.SetAttributes(attribute.Bool("from_cache", true))
				return Response{Status: 200, Body: body, URL: target, FromCache: true}, nil
			}
			if !errors.Is(err, pagecache.ErrCacheMiss) {
				slog.WarnContext(ctx, "failed to read page cache", "url", target, "err", err)
			}
		}
	}

	timeout := f.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	attempts := 0
	rateLimited := 0
	transient := 0
	for {
		if f.blocked.Load() {
			return Response{}, fail(span, &FetchError{Kind: ErrBlocked, URL: target, Attempts: attempts})
		}
		err := f.gate.Wait(ctx)
		if err != nil {
			return Response{}, fail(span, err)
		}

		attempts++
		outcome, res, err := f.attempt(ctx, target, req.Headers, timeout)
		if ctx.Err() != nil {
			return Response{}, fail(span, ctx.Err())
		}
		fetchOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("attempt", attempts),
			attribute.String("outcome", outcome.String()),
			attribute.Int("status", res.Status),
		))

		var wait time.Duration
		switch outcome {
		case OutcomeOK:
			if f.cache != nil {
				err := f.cache.Put(ctx, key, res.Body)
				if err != nil {
					slog.WarnContext(ctx, "failed to write page cache", "url", target, "err", err)
				}
			}
			return res, nil
		case OutcomeRejected:
			return res, fail(span, &FetchError{Kind: ErrRejected, URL: target, Status: res.Status, Attempts: attempts})
		case OutcomeStatus:
			return res, fail(span, &FetchError{Kind: ErrUnexpectedStatus, URL: target, Status: res.Status, Attempts: attempts})
		case OutcomeChallenge:
			count := f.challenges.Add(1)
			f.api.ReportWarning("fetcher.challenge", "url", target, "status", res.Status, "count", count)
			if count >= f.threshold {
				if !f.blocked.Swap(true) {
					f.api.ReportBroken("fetcher.blocked", "url", target, "challenges", count)
				}
				return Response{}, fail(span, &FetchError{Kind: ErrBlocked, URL: target, Status: res.Status, Attempts: attempts})
			}
			wait, _ = f.retry.Next(outcome, int(count-1))
		case OutcomeRateLimited:
			var retry bool
			wait, retry = f.retry.Next(outcome, rateLimited)
			rateLimited++
			if !retry {
				return Response{}, fail(span, &FetchError{Kind: ErrRateLimited, URL: target, Status: res.Status, Attempts: attempts})
			}
		case OutcomeTransient:
			var retry bool
			wait, retry = f.retry.Next(outcome, transient)
			transient++
			if !retry {
				return Response{}, fail(span, &FetchError{Kind: ErrTransient, URL: target, Status: res.Status, Attempts: attempts, Err: err})
			}
		}

		slog.DebugContext(
			ctx, "retrying fetch",
			"url", target,
			"outcome", outcome.String(),
			"status", res.Status,
			"attempt", attempts,
			"wait", wait,
			"err", err,
		)
		err = sleepContext(ctx, wait)
		if err != nil {
			return Response{}, fail(span, err)
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, target string, headers map[string]string, timeout time.Duration) (Outcome, Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := f.Http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(target)
	if err != nil {
		return OutcomeTransient, Response{URL: target}, err
	}

	out := Response{
		Status: res.StatusCode(),
		Body:   res.Body(),
		URL:    target,
	}
	if marker, ok := challengeMarker(out.Body, f.markers); ok {
		slog.DebugContext(ctx, "challenge page detected", "url", target, "marker", marker)
		return OutcomeChallenge, out, nil
	}
	return Classify(out.Status), out, nil
}
