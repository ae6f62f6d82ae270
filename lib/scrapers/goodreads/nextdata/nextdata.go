// Package nextdata reads reviews out of the __NEXT_DATA__ state a review
// page embeds for client side rendering.
package nextdata

import (
	"bookreviews-backend/lib/htmlutil"
	"bookreviews-backend/lib/review"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNoEmbeddedState is returned when the page has no state block or
	// the state has no review listing.
	ErrNoEmbeddedState = errors.New("no embedded review state")
	ErrMalformedState  = errors.New("malformed embedded state")
)

const DefaultPerPage = 30

type PageInfo struct {
	TotalReviews int
	// 0 when the page declares neither a page count nor a review count
	TotalPages int
}

type Page struct {
	Reviews []review.Raw
	Info    PageInfo
	// review references that did not resolve
	Dropped int
}

type Extractor struct {
	// reviews per page, used to derive the page count from the review count
	PerPage int
}

// Extract reads a page with the default page size.
func Extract(body []byte) (Page, error) {
	return Extractor{PerPage: DefaultPerPage}.Extract(body)
}

// State returns the raw json of the page's __NEXT_DATA__ script.
func State(body []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	scripts := doc.Find("script#__NEXT_DATA__").Nodes
	if len(scripts) == 0 {
		return nil, ErrNoEmbeddedState
	}
	text := strings.TrimSpace(htmlutil.GetText(scripts[0]))
	if text == "" {
		return nil, fmt.Errorf("%w: empty state block", ErrMalformedState)
	}
	return []byte(text), nil
}

func (e Extractor) Extract(body []byte) (Page, error) {
	raw, err := State(body)
	if err != nil {
		return Page{}, err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var state struct {
		Props struct {
			PageProps struct {
				ApolloState map[string]any `json:"apolloState"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	err = decoder.Decode(&state)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	if state.Props.PageProps.ApolloState == nil {
		return Page{}, fmt.Errorf("%w: no apolloState", ErrNoEmbeddedState)
	}

	graph := NewGraph(state.Props.PageProps.ApolloState)
	listing, ok := findListing(graph)
	if !ok {
		return Page{}, fmt.Errorf("%w: no review listing in ROOT_QUERY", ErrNoEmbeddedState)
	}

	page := Page{Info: e.pageInfo(graph, listing)}
	edges, _ := listing["edges"].([]any)
	for _, edge := range edges {
		edgeObj, ok := edge.(map[string]any)
		if !ok {
			page.Dropped++
			continue
		}
		node, ok := graph.Deref(edgeObj["node"])
		if !ok {
			page.Dropped++
			continue
		}
		page.Reviews = append(page.Reviews, walkReview(graph, node))
	}
	return page, nil
}

// findListing locates the review connection, either a getReviews(...)
// root field or the reviews field of a book(...) root field.
func findListing(graph Graph) (map[string]any, bool) {
	root, ok := graph.Lookup("ROOT_QUERY")
	if !ok {
		return nil, false
	}
	keys := sortedKeys(root)

	for _, key := range keys {
		if !strings.HasPrefix(key, "getReviews") {
			continue
		}
		listing, ok := graph.Deref(root[key])
		if ok && hasEdges(listing) {
			return listing, true
		}
	}

	for _, key := range keys {
		if !strings.HasPrefix(key, "book(") && !strings.HasPrefix(key, "getBookByLegacyId(") {
			continue
		}
		book, ok := graph.Deref(root[key])
		if !ok {
			continue
		}
		for _, field := range sortedKeys(book) {
			if field != "reviews" && !strings.HasPrefix(field, "reviews(") {
				continue
			}
			listing, ok := graph.Deref(book[field])
			if ok && hasEdges(listing) {
				return listing, true
			}
		}
	}
	return nil, false
}

func hasEdges(listing map[string]any) bool {
	_, ok := listing["edges"].([]any)
	return ok
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e Extractor) pageInfo(graph Graph, listing map[string]any) PageInfo {
	info := PageInfo{}
	total, hasTotal := count(listing["totalCount"])
	if hasTotal {
		info.TotalReviews = total
	}

	if pageInfo, ok := graph.Deref(listing["pageInfo"]); ok {
		if pages, ok := count(pageInfo["totalPages"]); ok {
			info.TotalPages = pages
			return info
		}
	}

	perPage := e.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if hasTotal {
		info.TotalPages = (total + perPage - 1) / perPage
	}
	return info
}

func count(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || i < 0 {
		return 0, false
	}
	return int(i), true
}

// first returns the first of `fields` present in `obj`.
func first(obj map[string]any, fields ...string) any {
	for _, f := range fields {
		if v, ok := obj[f]; ok && v != nil {
			return v
		}
	}
	return nil
}

func walkReview(graph Graph, node map[string]any) review.Raw {
	raw := review.Raw{
		ID:      first(node, "id", "legacyId"),
		URL:     first(node, "url", "webUrl"),
		Rating:  first(node, "rating"),
		Upvotes: first(node, "likeCount", "likesCount", "likes"),
		Date:    first(node, "createdAt", "updatedAt", "dateAdded"),
	}

	text := first(node, "text", "body")
	if _, isObj := text.(map[string]any); isObj {
		text = nil
		if textObj, ok := graph.Deref(first(node, "text", "body")); ok {
			text = first(textObj, "text", "body")
		}
	}
	raw.Text = text

	if creator, ok := graph.Deref(first(node, "creator", "user")); ok {
		raw.ReviewerID = first(creator, "legacyId", "id")
		raw.ReviewerName = first(creator, "name")
	}
	return raw
}
