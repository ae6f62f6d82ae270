package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty",
			input:    "   ",
			expected: "",
		},
		{
			name:     "plain",
			input:    "Just a sentence.",
			expected: "Just a sentence.",
		},
		{
			name:     "line breaks",
			input:    "First line<br>Second line<br/><br />Fourth",
			expected: "First line\nSecond line\n\nFourth",
		},
		{
			name:     "anchors and inline",
			input:    `Read <a href="/book/show/1">this <b>one</b></a> <i>now</i>!`,
			expected: "Read this one now!",
		},
		{
			name:     "entities",
			input:    "Tom &amp; Jerry &quot;quoted&quot; &#39;single&#39; caf&eacute;",
			expected: `Tom & Jerry "quoted" 'single' café`,
		},
		{
			name:     "blocks",
			input:    "<p>One</p><p>Two</p><div>Three</div>",
			expected: "One\nTwo\nThree",
		},
		{
			name:     "whitespace tidy",
			input:    "  lots   of\t\tspace  <br><br><br><br>  after  ",
			expected: "lots of space\n\nafter",
		},
		{
			name:     "scripts skipped",
			input:    "visible<script>alert(1)</script><style>p{}</style>",
			expected: "visible",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, PlainText(test.input))
		})
	}
}

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><script id="data">{"a": "<b>"}</script></body></html>`,
	))
	require.NoError(t, err)

	node := doc.Find("script#data").Nodes[0]
	require.Equal(t, `{"a": "<b>"}`, GetText(node))
	require.Equal(t, "", GetText(nil))
}
