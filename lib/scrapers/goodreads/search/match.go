package search

import (
	"bookreviews-backend/lib/textutil"
	"fmt"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity is a levenshtein ratio in [0, 100] of two strings compared
// without case, punctuation or repeated whitespace. empty strings never
// match anything.
func Similarity(a, b string) float64 {
	a = textutil.NormalizeForMatch(a)
	b = textutil.NormalizeForMatch(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	distance := matchr.Levenshtein(a, b)
	return (1 - float64(distance)/float64(longest)) * 100
}

type MatchScore struct {
	Title    float64
	Author   float64
	Combined float64
}

// Policy decides which candidate, if any, a query resolves to.
type Policy struct {
	// minimum combined score
	Threshold    float64 `json:"threshold"`
	TitleWeight  float64 `json:"title_weight"`
	AuthorWeight float64 `json:"author_weight"`
	// both the title and author score must be above this
	ComponentFloor float64 `json:"component_floor"`
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:      70,
		TitleWeight:    0.6,
		AuthorWeight:   0.4,
		ComponentFloor: 50,
	}
}

// StrictPolicy is the policy for runs where a wrong match is worse than
// no match.
func StrictPolicy() Policy {
	policy := DefaultPolicy()
	policy.Threshold = 85
	return policy
}

func (p Policy) Combine(title, author float64) MatchScore {
	return MatchScore{
		Title:    title,
		Author:   author,
		Combined: p.TitleWeight*title + p.AuthorWeight*author,
	}
}

func (p Policy) Score(query BookQuery, candidate Candidate) MatchScore {
	return p.Combine(
		Similarity(query.Title, candidate.Title),
		Similarity(query.Author, candidate.Author),
	)
}

// Best returns the index of the accepted score: the earliest maximal one,
// provided it reaches the threshold and both of its components clear the
// floor.
func (p Policy) Best(scores []MatchScore) (int, error) {
	if len(scores) == 0 {
		return -1, fmt.Errorf("%w: no candidates", ErrNoMatch)
	}

	best := 0
	for i, s := range scores {
		if s.Combined > scores[best].Combined {
			best = i
		}
	}

	top := scores[best]
	if top.Combined < p.Threshold {
		return -1, fmt.Errorf(
			"%w: best combined score %.1f is below %.1f",
			ErrNoMatch, top.Combined, p.Threshold,
		)
	}
	if top.Title <= p.ComponentFloor || top.Author <= p.ComponentFloor {
		return -1, fmt.Errorf(
			"%w: best candidate failed verification (title %.1f, author %.1f, floor %.1f)",
			ErrNoMatch, top.Title, top.Author, p.ComponentFloor,
		)
	}
	return best, nil
}
