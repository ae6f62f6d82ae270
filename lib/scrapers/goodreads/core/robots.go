package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
)

// DisallowedPaths returns the Disallow rules that apply to every user agent
// in the site's robots.txt. a missing robots.txt means nothing is disallowed.
func (f *Fetcher) DisallowedPaths(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:DisallowedPaths")
	defer span.End()

	res, err := f.Fetch(ctx, Request{URL: "/robots.txt"})
	if errors.Is(err, ErrUnexpectedStatus) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(span, err)
	}
	return ParseRobots(res.Body), nil
}

// ParseRobots collects the Disallow rules of the groups addressed to "*".
func ParseRobots(body []byte) []string {
	var disallowed []string

	inGroup := false
	readingAgents := false
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			if !readingAgents {
				inGroup = false
			}
			readingAgents = true
			if value == "*" {
				inGroup = true
			}
		case "disallow":
			readingAgents = false
			if inGroup && value != "" {
				disallowed = append(disallowed, value)
			}
		default:
			readingAgents = false
		}
	}
	return disallowed
}

// Allowed reports whether `path` is outside every disallowed prefix.
func Allowed(disallowed []string, path string) bool {
	for _, rule := range disallowed {
		if strings.HasPrefix(path, rule) {
			return false
		}
	}
	return true
}
