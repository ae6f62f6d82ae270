package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// GetText concatenates every text node under `node`, without any
// formatting. it is used to read the contents of script tags.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Li:         true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Blockquote: true,
	atom.Tr:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Pre:        true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
}

var horizontalWhitespace = regexp.MustCompile(`[^\S\n]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if c == '\n' || unicode.IsPrint(c) {
			newStr.WriteRune(c)
			continue
		}
		if unicode.IsSpace(c) {
			newStr.WriteRune(' ')
		}
	}
	return newStr.String()
}

// PlainText converts a fragment of review html into plain text.
//
// <br> becomes a newline, the end of a block element becomes a newline,
// anchors and other inline elements are flattened to their text and
// entities are decoded. runs of spaces are collapsed, every line is
// trimmed and there is never more than one empty line in a row.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	context := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		// the tokenizer only fails on read errors, which a string reader
		// never produces, fall back to the raw string just in case.
		return tidy(html.UnescapeString(fragment))
	}

	var buffer strings.Builder
	for _, n := range nodes {
		writePlain(n, &buffer)
	}
	return tidy(buffer.String())
}

func writePlain(node *html.Node, buffer *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedElements[node.DataAtom] {
			return
		}
		if node.DataAtom == atom.Br {
			buffer.WriteString("\n")
			return
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writePlain(child, buffer)
	}

	if node.Type == html.ElementNode && blockElements[node.DataAtom] {
		buffer.WriteString("\n")
	}
}

func tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = removeNonPrintable(text)
	text = horizontalWhitespace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
