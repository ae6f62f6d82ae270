package search

import (
	"bookreviews-backend/lib/scrapers/goodreads/core"
	"bookreviews-backend/lib/telemetry"
	"context"
	_ "embed"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/search_results.html
var searchResultsPage []byte

//go:embed testdata/search_results_div.html
var searchResultsDivPage []byte

//go:embed testdata/search_empty.html
var searchEmptyPage []byte

func TestSimilarity(t *testing.T) {
	require.Equal(t, 100.0, Similarity("Victor Hugo", "victor   hugo."))
	require.Equal(t, 100.0, Similarity("J.R.R. Tolkien", "J. R. R. Tolkien"))
	require.Equal(t, 0.0, Similarity("", "Victor Hugo"))
	require.Equal(t, 0.0, Similarity("...", "Victor Hugo"))
	require.InDelta(t, 90.0, Similarity("The Hobit", "The Hobbit"), 0.001)
	require.InDelta(t, 81.818, Similarity("Toilers of the Sea", "The Toilers of the Sea"), 0.001)
	require.Less(t, Similarity("Lord of the Rings", "The Hobbit"), 50.0)
	require.Equal(t, Similarity("a b", "b a"), Similarity("b a", "a b"))
}

func TestPolicyCombine(t *testing.T) {
	score := DefaultPolicy().Combine(96, 90)
	require.InDelta(t, 93.6, score.Combined, 1e-9)
	require.Equal(t, 96.0, score.Title)
	require.Equal(t, 90.0, score.Author)
}

func TestPolicyBest(t *testing.T) {
	policy := DefaultPolicy()

	testCases := []struct {
		name     string
		scores   []MatchScore
		expected int
	}{
		{
			name: "strictly maximal candidate above threshold",
			scores: []MatchScore{
				policy.Combine(40, 50),
				policy.Combine(96, 90),
				policy.Combine(50, 45),
			},
			expected: 1,
		},
		{
			name: "earliest wins ties",
			scores: []MatchScore{
				policy.Combine(80, 80),
				policy.Combine(80, 80),
			},
			expected: 0,
		},
		{
			name:     "nothing reaches the threshold",
			scores:   []MatchScore{policy.Combine(69, 69), policy.Combine(60, 80)},
			expected: -1,
		},
		{
			name:     "combined passes but author is below the floor",
			scores:   []MatchScore{policy.Combine(100, 40)},
			expected: -1,
		},
		{
			name:     "a component exactly at the floor fails",
			scores:   []MatchScore{policy.Combine(100, 50)},
			expected: -1,
		},
		{
			name:     "the best candidate fails verification, a lower one is not used",
			scores:   []MatchScore{policy.Combine(100, 45), policy.Combine(75, 75)},
			expected: -1,
		},
		{
			name:     "no candidates",
			scores:   nil,
			expected: -1,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			best, err := policy.Best(test.scores)
			require.Equal(t, test.expected, best)
			if test.expected < 0 {
				require.ErrorIs(t, err, ErrNoMatch)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStrictPolicy(t *testing.T) {
	_, err := StrictPolicy().Best([]MatchScore{StrictPolicy().Combine(80, 80)})
	require.ErrorIs(t, err, ErrNoMatch)

	best, err := DefaultPolicy().Best([]MatchScore{DefaultPolicy().Combine(80, 80)})
	require.NoError(t, err)
	require.Equal(t, 0, best)
}

func TestParseCandidates(t *testing.T) {
	base, _ := url.Parse("https://www.goodreads.com")

	candidates, err := ParseCandidates(searchResultsPage, base)
	require.NoError(t, err)
	expected := []Candidate{
		{
			Title:         "The Toilers of the Sea",
			Author:        "Victor Hugo",
			PageReference: "https://www.goodreads.com/book/show/100.The_Toilers_of_the_Sea",
			BookID:        "100",
			RawRank:       1,
		},
		{
			Title:         "Toilers of the Sea",
			Author:        "Victor Hugo",
			PageReference: "https://www.goodreads.com/book/show/12345.Toilers_of_the_Sea",
			BookID:        "12345",
			RawRank:       2,
		},
		{
			Title:         "Les Misérables",
			Author:        "Victor Hugo",
			PageReference: "https://www.goodreads.com/book/show/24280.Les_Mis_rables",
			BookID:        "24280",
			RawRank:       3,
		},
	}
	if diff := cmp.Diff(expected, candidates); diff != "" {
		t.Fatalf("unexpected candidates (-want +got):\n%s", diff)
	}

	candidates, err = ParseCandidates(searchResultsDivPage, base)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	require.Equal(t, "The Hobbit", candidates[0].Title)
	require.Equal(t, "J.R.R. Tolkien", candidates[0].Author)
	require.Equal(t, "https://www.goodreads.com/book/show/5907.The_Hobbit", candidates[0].PageReference)
	require.Equal(t, "Chuck Dixon, J.R.R. Tolkien", candidates[2].Author)

	candidates, err = ParseCandidates(searchEmptyPage, base)
	require.NoError(t, err)
	require.Empty(t, candidates)
}

type searchSite struct {
	server  *httptest.Server
	queries []string
}

func newSearchSite(t testing.TB, status int, body []byte) *searchSite {
	site := &searchSite{}
	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.queries = append(site.queries, r.URL.Query().Get("q"))
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(site.server.Close)
	return site
}

func newTestResolver(t testing.TB, baseUrl string, policy Policy) (*Resolver, *telemetry.Recorder) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/goodreads/search")
	t.Cleanup(cleanup)

	recorder := &telemetry.Recorder{}
	fetcher, err := core.NewFetcher(core.Options{
		BaseUrl: baseUrl,
		Timeout: 2 * time.Second,
		Retry: core.RetryPolicy{
			TransientRetries: 1,
			TransientStep:    time.Millisecond,
		},
		API: recorder,
	})
	require.NoError(t, err)
	return NewResolver(fetcher, policy, recorder), recorder
}

func TestResolve(t *testing.T) {
	site := newSearchSite(t, http.StatusOK, searchResultsPage)
	resolver, _ := newTestResolver(t, site.server.URL, DefaultPolicy())

	query := BookQuery{ID: "b1", Title: "Toilers of the Sea", Author: "Victor Hugo"}
	book, err := resolver.Resolve(context.Background(), query)
	require.NoError(t, err)

	require.Equal(t, []string{"Toilers of the Sea Victor Hugo"}, site.queries)
	require.Equal(t, query, book.Query)
	require.Equal(t, "12345", book.BookID)
	require.Equal(t, site.server.URL+"/book/show/12345.Toilers_of_the_Sea", book.PageReference)
	require.Equal(t, 100.0, book.Score.Combined)

	fields := book.Fields()
	require.Equal(t, "b1", fields.BookID)
	require.Equal(t, book.PageReference, fields.PageReference)
}

func TestResolveFuzzy(t *testing.T) {
	site := newSearchSite(t, http.StatusOK, searchResultsDivPage)
	resolver, _ := newTestResolver(t, site.server.URL, DefaultPolicy())

	book, err := resolver.Resolve(context.Background(), BookQuery{Title: "The Hobit", Author: "J. R. R. Tolkien"})
	require.NoError(t, err)
	require.Equal(t, "5907", book.BookID)
	require.InDelta(t, 94.0, book.Score.Combined, 0.001)
}

func TestResolveNoMatch(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   []byte
		query  BookQuery
	}{
		{
			name:   "below threshold",
			status: http.StatusOK,
			body:   searchResultsDivPage,
			query:  BookQuery{Title: "Lord of the Rings", Author: "J.R.R. Tolkien"},
		},
		{
			name:   "empty listing",
			status: http.StatusOK,
			body:   searchEmptyPage,
			query:  BookQuery{Title: "zzqx", Author: "nobody"},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   []byte("gone"),
			query:  BookQuery{Title: "Toilers of the Sea", Author: "Victor Hugo"},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			site := newSearchSite(t, test.status, test.body)
			resolver, _ := newTestResolver(t, site.server.URL, DefaultPolicy())

			_, err := resolver.Resolve(context.Background(), test.query)
			require.ErrorIs(t, err, ErrNoMatch)
		})
	}
}

func TestResolveVerificationFloor(t *testing.T) {
	site := newSearchSite(t, http.StatusOK, searchResultsDivPage)
	policy := DefaultPolicy()
	policy.Threshold = 55
	resolver, _ := newTestResolver(t, site.server.URL, policy)

	// the title matches perfectly but the author does not
	_, err := resolver.Resolve(context.Background(), BookQuery{Title: "The Hobbit", Author: "Victor Hugo"})
	require.ErrorIs(t, err, ErrNoMatch)
	require.ErrorContains(t, err, "verification")
}

func TestResolveFetchFailure(t *testing.T) {
	site := newSearchSite(t, http.StatusForbidden, []byte("denied"))
	resolver, _ := newTestResolver(t, site.server.URL, DefaultPolicy())

	_, err := resolver.Resolve(context.Background(), BookQuery{Title: "Toilers of the Sea", Author: "Victor Hugo"})
	require.ErrorIs(t, err, core.ErrRejected)
	require.NotErrorIs(t, err, ErrNoMatch)
}

func TestCheckRobots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /search\n"))
	}))
	defer server.Close()

	resolver, recorder := newTestResolver(t, server.URL, DefaultPolicy())
	resolver.CheckRobots(context.Background())

	reports := recorder.Find("robots.disallowed")
	require.Len(t, reports, 1)
	path, _ := reports[0].Param("path")
	require.Equal(t, "/search", path)
}

func TestFromPage(t *testing.T) {
	book, err := FromPage(BookQuery{ID: "x"}, "https://www.goodreads.com/book/show/12345.Toilers_of_the_Sea/?ref=abc")
	require.NoError(t, err)
	require.Equal(t, "12345", book.BookID)
	require.Equal(t, "https://www.goodreads.com/book/show/12345.Toilers_of_the_Sea", book.PageReference)

	_, err = FromPage(BookQuery{}, "https://www.goodreads.com/author/show/1")
	require.Error(t, err)
}
