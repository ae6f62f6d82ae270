package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeForMatch(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Toilers of the Sea", "toilers of the sea"},
		{"  The   Hobbit:\tThere and Back Again ", "the hobbit there and back again"},
		{"Hugo, Victor", "hugo victor"},
		{"J.R.R. Tolkien", "j r r tolkien"},
		{"Les Misérables (Signet Classics)", "les misérables signet classics"},
		{"", ""},
		{"?!", ""},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, NormalizeForMatch(test.input), test.input)
	}
}

func TestContainsAnyFold(t *testing.T) {
	markers := []string{"captcha", "Are you a robot", ""}

	marker, ok := ContainsAnyFold("<div class=g-reCAPTCHA>", markers)
	require.True(t, ok)
	require.Equal(t, "captcha", marker)

	marker, ok = ContainsAnyFold("<h1>ARE YOU A ROBOT?</h1>", markers)
	require.True(t, ok)
	require.Equal(t, "Are you a robot", marker)

	_, ok = ContainsAnyFold("<html>a normal page</html>", markers)
	require.False(t, ok)

	_, ok = ContainsAnyFold("anything", nil)
	require.False(t, ok)
}
