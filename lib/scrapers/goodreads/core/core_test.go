package core

import (
	"bookreviews-backend/lib/pagecache"
	"bookreviews-backend/lib/telemetry"
	"bookreviews-backend/lib/testutil"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		RateLimitRetries: 3,
		BackoffBase:      time.Millisecond,
		BackoffCap:       5 * time.Millisecond,
		TransientRetries: 2,
		TransientStep:    time.Millisecond,
	}
}

type testSite struct {
	server *httptest.Server
	hits   atomic.Int64
}

// newTestSite serves the responses produced by `respond`, which gets the
// 1-based hit number.
func newTestSite(t testing.TB, respond func(hit int64, w http.ResponseWriter, r *http.Request)) *testSite {
	site := &testSite{}
	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(site.hits.Add(1), w, r)
	}))
	t.Cleanup(site.server.Close)
	return site
}

func newTestFetcher(t testing.TB, baseUrl string, configure func(*Options)) (*Fetcher, *telemetry.Recorder) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/goodreads/core")
	t.Cleanup(cleanup)

	recorder := &telemetry.Recorder{}
	opts := Options{
		BaseUrl: baseUrl,
		Timeout: 2 * time.Second,
		Retry:   fastPolicy(),
		API:     recorder,
	}
	if configure != nil {
		configure(&opts)
	}
	fetcher, err := NewFetcher(opts)
	require.NoError(t, err)
	return fetcher, recorder
}

func status(code int, body string) func(int64, http.ResponseWriter, *http.Request) {
	return func(_ int64, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		w.Write([]byte(body))
	}
}

func requireFetchError(t testing.TB, err error, kind error, status, attempts int) {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, status, fetchErr.Status)
	require.Equal(t, attempts, fetchErr.Attempts)
}

func TestFetchOK(t *testing.T) {
	site := newTestSite(t, func(_ int64, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "toilers of the sea", r.URL.Query().Get("q"))
		require.Equal(t, "yes", r.Header.Get("X-Test"))
		require.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte("<html>results</html>"))
	})
	fetcher, _ := newTestFetcher(t, site.server.URL, nil)

	res, err := fetcher.Fetch(context.Background(), Request{
		URL:     "/search",
		Query:   url.Values{"q": {"toilers of the sea"}},
		Headers: map[string]string{"X-Test": "yes"},
	})
	require.NoError(t, err)
	require.Equal(t, 200, res.Status)
	require.Equal(t, "<html>results</html>", string(res.Body))
	require.False(t, res.FromCache)
	require.Equal(t, site.server.URL+"/search?q=toilers+of+the+sea", res.URL)
}

func TestFetchRateLimited(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		site := newTestSite(t, status(code, "slow down"))
		fetcher, _ := newTestFetcher(t, site.server.URL, nil)

		_, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1"})
		requireFetchError(t, err, ErrRateLimited, code, 4)
		require.EqualValues(t, 4, site.hits.Load())
	}
}

func TestFetchRateLimitedThenOK(t *testing.T) {
	site := newTestSite(t, func(hit int64, w http.ResponseWriter, _ *http.Request) {
		if hit < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("finally"))
	})
	fetcher, _ := newTestFetcher(t, site.server.URL, nil)

	res, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1"})
	require.NoError(t, err)
	require.Equal(t, "finally", string(res.Body))
	require.EqualValues(t, 3, site.hits.Load())
}

func TestFetchTransientStatus(t *testing.T) {
	site := newTestSite(t, status(http.StatusBadGateway, "bad gateway"))
	fetcher, _ := newTestFetcher(t, site.server.URL, nil)

	_, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1"})
	requireFetchError(t, err, ErrTransient, http.StatusBadGateway, 3)
	require.EqualValues(t, 3, site.hits.Load())
}

func TestFetchConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseUrl := server.URL
	server.Close()

	fetcher, _ := newTestFetcher(t, baseUrl, nil)
	_, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1"})
	requireFetchError(t, err, ErrTransient, 0, 3)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.NotNil(t, fetchErr.Err)
}

func TestFetchTimeout(t *testing.T) {
	site := newTestSite(t, func(_ int64, w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	fetcher, _ := newTestFetcher(t, site.server.URL, func(o *Options) {
		o.Retry.TransientRetries = 1
	})

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), Request{URL: "/slow", Timeout: 50 * time.Millisecond})
	require.ErrorIs(t, err, ErrTransient)
	require.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFetchRejected(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotAcceptable} {
		site := newTestSite(t, status(code, "go away"))
		fetcher, _ := newTestFetcher(t, site.server.URL, nil)

		_, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1"})
		requireFetchError(t, err, ErrRejected, code, 1)
		require.EqualValues(t, 1, site.hits.Load())
	}
}

func TestFetchUnexpectedStatus(t *testing.T) {
	site := newTestSite(t, status(http.StatusNotFound, "not here"))
	fetcher, _ := newTestFetcher(t, site.server.URL, nil)

	res, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1"})
	requireFetchError(t, err, ErrUnexpectedStatus, http.StatusNotFound, 1)
	require.Equal(t, http.StatusNotFound, res.Status)
	require.Equal(t, "not here", string(res.Body))
}

func TestFetchChallengeBlocksOnThreshold(t *testing.T) {
	site := newTestSite(t, status(http.StatusOK, `<html><div class="g-recaptcha"></div></html>`))
	fetcher, recorder := newTestFetcher(t, site.server.URL, nil)

	_, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1/reviews"})
	requireFetchError(t, err, ErrBlocked, http.StatusOK, 3)
	require.EqualValues(t, 3, site.hits.Load())
	require.Equal(t, 3, fetcher.Challenges())
	require.True(t, fetcher.Blocked())

	_, err = fetcher.Fetch(context.Background(), Request{URL: "/book/show/2/reviews"})
	require.ErrorIs(t, err, ErrBlocked)
	require.EqualValues(t, 3, site.hits.Load())

	require.Len(t, recorder.Find("fetcher.challenge"), 3)
	require.Len(t, recorder.Find("fetcher.blocked"), 1)
}

func TestFetchChallengeCountsAcrossFetches(t *testing.T) {
	site := newTestSite(t, func(hit int64, w http.ResponseWriter, _ *http.Request) {
		// every odd hit is a challenge
		if hit%2 == 1 {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("Are you a robot?"))
			return
		}
		w.Write([]byte("ok"))
	})
	fetcher, _ := newTestFetcher(t, site.server.URL, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := fetcher.Fetch(ctx, Request{URL: "/page"})
		require.NoError(t, err)
		require.Equal(t, "ok", string(res.Body))
	}
	require.Equal(t, 2, fetcher.Challenges())

	_, err := fetcher.Fetch(ctx, Request{URL: "/page"})
	require.ErrorIs(t, err, ErrBlocked)
	require.Equal(t, 3, fetcher.Challenges())
}

func TestFetchReviewMentioningMarkerIsNotAChallenge(t *testing.T) {
	page := `<html><body><p>Some unusual traffic on the sea.</p>` +
		`<script id="__NEXT_DATA__" type="application/json">` +
		`{"props":{"pageProps":{"apolloState":{"Review:1":{"text":"solved a captcha to post this"}}}}}` +
		`</script></body></html>`
	site := newTestSite(t, status(http.StatusOK, page))
	fetcher, recorder := newTestFetcher(t, site.server.URL, nil)

	res, err := fetcher.Fetch(context.Background(), Request{URL: "/book/show/1/reviews"})
	require.NoError(t, err)
	require.Equal(t, page, string(res.Body))
	require.EqualValues(t, 1, site.hits.Load())
	require.Equal(t, 0, fetcher.Challenges())
	require.Empty(t, recorder.Find("fetcher.challenge"))
}

func TestChallengeMarker(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "marker in an attribute",
			body:     `<html><div class="g-recaptcha"></div></html>`,
			expected: "captcha",
		},
		{
			name:     "marker next to a broken state block",
			body:     `<html><p>unusual traffic</p><script id="__NEXT_DATA__">{"props":</script></html>`,
			expected: "unusual traffic",
		},
		{
			name: "marker inside a parseable state block",
			body: `<html><script id="__NEXT_DATA__">{"text":"Are you a robot?"}</script></html>`,
		},
		{
			name: "no marker",
			body: `<html><p>reviews</p></html>`,
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			marker, ok := challengeMarker([]byte(test.body), DefaultChallengeMarkers)
			require.Equal(t, test.expected != "", ok)
			require.Equal(t, test.expected, marker)
		})
	}
}

func TestFetchCache(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{Name: "scrapers/goodreads/core"})
	defer cleanup()
	cache, err := pagecache.New(context.Background(), setup.DB)
	require.NoError(t, err)

	site := newTestSite(t, func(_ int64, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/challenge" {
			w.Write([]byte("captcha"))
			return
		}
		w.Write([]byte("page " + r.URL.Path))
	})

	writer, _ := newTestFetcher(t, site.server.URL, func(o *Options) {
		o.Cache = cache
	})
	ctx := context.Background()

	res, err := writer.Fetch(ctx, Request{URL: "/book/show/1?b=2&a=1"})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	res, err = writer.Fetch(ctx, Request{URL: "/book/show/1?a=1&b=2"})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.EqualValues(t, 2, site.hits.Load())

	// a fetcher that reads the cache does not touch the network for known pages
	reader, _ := newTestFetcher(t, site.server.URL, func(o *Options) {
		o.Cache = cache
		o.CacheRead = true
		o.ChallengeThreshold = 1
	})
	res, err = reader.Fetch(ctx, Request{URL: "/book/show/1?a=1&b=2#top"})
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, "page /book/show/1", string(res.Body))
	require.EqualValues(t, 2, site.hits.Load())

	// challenge pages are never written
	_, err = reader.Fetch(ctx, Request{URL: "/challenge"})
	require.ErrorIs(t, err, ErrBlocked)
	key, err := pagecache.Key(site.server.URL + "/challenge")
	require.NoError(t, err)
	_, err = cache.Get(ctx, key)
	require.ErrorIs(t, err, pagecache.ErrCacheMiss)
}

func TestFetchCanceled(t *testing.T) {
	site := newTestSite(t, status(http.StatusTooManyRequests, ""))
	fetcher, _ := newTestFetcher(t, site.server.URL, func(o *Options) {
		o.Retry.BackoffBase = time.Minute
		o.Retry.BackoffCap = time.Minute
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.Fetch(ctx, Request{URL: "/book/show/1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	require.Nil(t, KindOf(err))
}

func TestFetchSharedGate(t *testing.T) {
	var times []time.Time
	done := make(chan time.Time, 8)
	site := newTestSite(t, func(_ int64, w http.ResponseWriter, _ *http.Request) {
		done <- time.Now()
		w.Write([]byte("ok"))
	})
	fetcher, _ := newTestFetcher(t, site.server.URL, func(o *Options) {
		o.Delay = 30 * time.Millisecond
	})

	start := time.Now()
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := fetcher.Fetch(context.Background(), Request{URL: "/page"})
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-errs)
		times = append(times, <-done)
	}
	// the last request cannot arrive before three full delays have passed
	latest := times[0]
	for _, ts := range times {
		if ts.After(latest) {
			latest = ts
		}
	}
	require.GreaterOrEqual(t, latest.Sub(start), 90*time.Millisecond)
}
