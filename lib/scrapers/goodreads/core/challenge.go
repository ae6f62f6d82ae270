package core

import (
	"bookreviews-backend/lib/textutil"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// challengeMarker reports the first marker found in a challenge page.
//
// markers are matched against the raw body so attribute-only hints like
// `g-recaptcha` count, but a page carrying a parseable __NEXT_DATA__ state
// is a rendered page whose reviews may simply mention a marker.
func challengeMarker(body []byte, markers []string) (string, bool) {
	marker, ok := textutil.ContainsAnyFold(string(body), markers)
	if !ok {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return marker, true
	}
	state := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if state != "" && json.Valid([]byte(state)) {
		return "", false
	}
	return marker, true
}
