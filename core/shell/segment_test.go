package shell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	cases := []struct {
		name     string
		argv     []string
		expected []Stage
		err      error
	}{
		{
			name:     "single command",
			argv:     []string{"ls", "-l"},
			expected: []Stage{{Argv: []string{"ls", "-l"}}},
		},
		{
			name: "two stages",
			argv: []string{"ls", "-l", "|", "wc", "-l"},
			expected: []Stage{
				{Argv: []string{"ls", "-l"}},
				{Argv: []string{"wc", "-l"}},
			},
		},
		{
			name:     "output redirection",
			argv:     []string{"ls", ">", "out.txt"},
			expected: []Stage{{Argv: []string{"ls"}, Output: "out.txt"}},
		},
		{
			name: "all redirections interleaved",
			argv: []string{"sort", "<", "in", "-r", "2>", "err", ">", "out", "-u"},
			expected: []Stage{
				{Argv: []string{"sort", "-r", "-u"}, Input: "in", Output: "out", Error: "err"},
			},
		},
		{
			name:     "repeated operator last wins",
			argv:     []string{"echo", "hi", ">", "a", ">", "b"},
			expected: []Stage{{Argv: []string{"echo", "hi"}, Output: "b"}},
		},
		{
			name: "output redirection on interior stage is kept for the coordinator",
			argv: []string{"ls", ">", "path", "|", "wc"},
			expected: []Stage{
				{Argv: []string{"ls"}, Output: "path"},
				{Argv: []string{"wc"}},
			},
		},
		{
			name: "three stages with ends redirected",
			argv: []string{"cat", "<", "in", "|", "sort", "|", "uniq", ">", "out"},
			expected: []Stage{
				{Argv: []string{"cat"}, Input: "in"},
				{Argv: []string{"sort"}},
				{Argv: []string{"uniq"}, Output: "out"},
			},
		},
		{name: "trailing output operator", argv: []string{"ls", ">"}, err: ErrMissingRedirectTarget},
		{name: "trailing input operator", argv: []string{"cat", "<"}, err: ErrMissingRedirectTarget},
		{name: "trailing error operator", argv: []string{"cat", "2>"}, err: ErrMissingRedirectTarget},
		{name: "operator before pipe", argv: []string{"ls", ">", "|", "wc"}, err: ErrMissingRedirectTarget},
		{name: "leading pipe", argv: []string{"|", "wc"}, err: ErrEmptyStage},
		{name: "trailing pipe", argv: []string{"ls", "|"}, err: ErrEmptyStage},
		{name: "double pipe", argv: []string{"ls", "|", "|", "wc"}, err: ErrEmptyStage},
		{name: "redirection only", argv: []string{">", "out"}, err: ErrEmptyStage},
		{name: "empty vector", argv: []string{}, err: ErrEmptyStage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stages, err := Segment(tc.argv)

			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "expected %v got %v", tc.err, err)
				assert.Nil(t, stages)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, stages)
		})
	}
}

func TestParse(t *testing.T) {
	t.Run("blank", func(t *testing.T) {
		p, err := Parse("  ", DefaultMaxArgs)
		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("background pipeline", func(t *testing.T) {
		p, err := Parse("cat < in | wc -l &", DefaultMaxArgs)
		require.NoError(t, err)
		assert.True(t, p.Background)
		assert.Len(t, p.Stages, 2)
		assert.Equal(t, "cat < in | wc -l", p.Label())
		assert.Equal(t, "cat < in | wc -l &", p.String())
	})

	t.Run("lone ampersand", func(t *testing.T) {
		_, err := Parse("&", DefaultMaxArgs)
		assert.True(t, errors.Is(err, ErrEmptyStage))
	})

	t.Run("too many tokens", func(t *testing.T) {
		_, err := Parse("a b c d e f g h i j k", DefaultMaxArgs)
		assert.True(t, errors.Is(err, ErrTooManyArgs))
	})
}
