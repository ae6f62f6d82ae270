package search

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var bookIdRegex = regexp.MustCompile(`/show/(\d+)`)

// ParseCandidates reads the rows of a search result page in the order they
// are listed. rows without a title, author or book id are skipped, urls are
// made absolute against `base` and lose their query string.
func ParseCandidates(body []byte, base *url.URL) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	add := func(title, author *goquery.Selection) {
		if title.Length() == 0 || author.Length() == 0 {
			return
		}
		candidate, ok := newCandidate(
			cleanText(title.Text()),
			cleanText(author.Text()),
			title.AttrOr("href", ""),
			base,
		)
		if !ok {
			return
		}
		candidate.RawRank = len(candidates) + 1
		candidates = append(candidates, candidate)
	}

	rows := doc.Find("table.tableList tr")
	if rows.Length() > 0 {
		rows.Each(func(_ int, row *goquery.Selection) {
			add(row.Find("a.bookTitle").First(), row.Find("a.authorName").First())
		})
		return candidates, nil
	}

	doc.Find("div.bookTitle").Each(func(_ int, block *goquery.Selection) {
		add(block.Find("a").First(), block.Find("div.authorName").First())
	})
	return candidates, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newCandidate(title, author, href string, base *url.URL) (Candidate, bool) {
	author = strings.TrimSpace(strings.TrimPrefix(author, "by "))
	if title == "" || author == "" || href == "" {
		return Candidate{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Candidate{}, false
	}
	page := base.ResolveReference(ref)
	page.RawQuery = ""
	page.ForceQuery = false
	page.Fragment = ""

	groups := bookIdRegex.FindStringSubmatch(page.Path)
	if len(groups) < 2 {
		return Candidate{}, false
	}

	return Candidate{
		Title:         title,
		Author:        author,
		PageReference: page.String(),
		BookID:        groups[1],
	}, true
}
