// Package shell implements the pipeline execution engine: it turns a line of
// text into stages, wires their standard streams together with pipes and
// redirections, starts them as child processes and tracks background jobs.
package shell

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultMaxArgs is the number of tokens a single line may hold.
	DefaultMaxArgs = 10

	// BackgroundToken marks a line for background execution when it is the
	// final token.
	BackgroundToken = "&"
)

var (
	// ErrTooManyArgs is returned when a line holds more tokens than allowed.
	ErrTooManyArgs = errors.New("too many arguments")
)

// Tokenize splits a line on runs of spaces and tabs. There is no quoting or
// escaping, quote characters are ordinary token characters.
//
// If the line is empty or holds only whitespace, argv is nil. If the last token
// is exactly "&" it is removed and background is true; a lone "&" therefore
// yields an empty, non-nil argv.
//
// Lines with more than maxArgs tokens (after removing "&") are rejected rather
// than truncated. A maxArgs <= 0 disables the check.
func Tokenize(line string, maxArgs int) (argv []string, background bool, err error) {
	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		return nil, false, nil
	}

	if tokens[len(tokens)-1] == BackgroundToken {
		background = true
		tokens = tokens[:len(tokens)-1]
	}

	if maxArgs > 0 && len(tokens) > maxArgs {
		return nil, false, fmt.Errorf("%w: %d tokens, limit is %d", ErrTooManyArgs, len(tokens), maxArgs)
	}

	return tokens, background, nil
}
