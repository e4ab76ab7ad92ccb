package shell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		name       string
		line       string
		maxArgs    int
		expected   []string
		background bool
		err        error
	}{
		{name: "empty", line: "", expected: nil},
		{name: "only whitespace", line: " \t  \t", expected: nil},
		{name: "simple", line: "ls -l", expected: []string{"ls", "-l"}},
		{name: "runs of spaces and tabs", line: "  ls \t\t -l   /tmp ", expected: []string{"ls", "-l", "/tmp"}},
		{name: "quotes are literal", line: `echo "a b"`, expected: []string{"echo", `"a`, `b"`}},
		{name: "background", line: "sleep 5 &", expected: []string{"sleep", "5"}, background: true},
		{name: "background with trailing space", line: "sleep 5 &  ", expected: []string{"sleep", "5"}, background: true},
		{name: "lone ampersand", line: "&", expected: []string{}, background: true},
		{name: "ampersand not last", line: "echo & done", expected: []string{"echo", "&", "done"}},
		{name: "ampersand glued to word", line: "sleep 5&", expected: []string{"sleep", "5&"}},
		{name: "pipes stay tokens", line: "ls | wc -l", expected: []string{"ls", "|", "wc", "-l"}},
		{name: "at limit", line: "a b c", maxArgs: 3, expected: []string{"a", "b", "c"}},
		{name: "ampersand not counted", line: "a b c &", maxArgs: 3, expected: []string{"a", "b", "c"}, background: true},
		{name: "over limit", line: "a b c d", maxArgs: 3, err: ErrTooManyArgs},
		{name: "default limit", line: "1 2 3 4 5 6 7 8 9 10 11", maxArgs: DefaultMaxArgs, err: ErrTooManyArgs},
		{name: "no limit", line: "1 2 3 4 5 6 7 8 9 10 11", maxArgs: 0, expected: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			argv, background, err := Tokenize(tc.line, tc.maxArgs)

			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "expected %v got %v", tc.err, err)
				assert.Nil(t, argv)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, argv)
			assert.Equal(t, tc.background, background)
		})
	}
}

func TestTokenize_blankIsDistinctFromEmpty(t *testing.T) {
	blank, _, err := Tokenize("   ", DefaultMaxArgs)
	assert.NoError(t, err)
	assert.Nil(t, blank)

	empty, background, err := Tokenize("&", DefaultMaxArgs)
	assert.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
	assert.True(t, background)
}
