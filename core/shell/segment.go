package shell

import (
	"errors"
	"fmt"
	"strings"
)

// Operators recognized by Segment.
const (
	PipeOp        = "|"
	RedirInputOp  = "<"
	RedirOutputOp = ">"
	RedirErrorOp  = "2>"
)

var (
	// ErrMissingRedirectTarget is returned when a redirection operator is not
	// followed by a path.
	ErrMissingRedirectTarget = errors.New("missing redirection target")

	// ErrEmptyStage is returned when a pipeline stage has no command.
	ErrEmptyStage = errors.New("empty command")
)

// Stage is a single command in a pipeline along with the paths it redirects
// its standard streams to. Empty paths mean the stream isn't redirected.
type Stage struct {
	Argv []string

	Input  string
	Output string
	Error  string
}

// Name returns the command name of the stage.
func (s Stage) Name() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// String reconstructs the stage as it would have been typed.
func (s Stage) String() string {
	parts := append([]string{}, s.Argv...)
	if s.Input != "" {
		parts = append(parts, RedirInputOp, s.Input)
	}
	if s.Output != "" {
		parts = append(parts, RedirOutputOp, s.Output)
	}
	if s.Error != "" {
		parts = append(parts, RedirErrorOp, s.Error)
	}
	return strings.Join(parts, " ")
}

// Pipeline is an ordered chain of stages run as one unit.
type Pipeline struct {
	Stages     []Stage
	Background bool
}

// Label reconstructs the stages of the pipeline, it names background jobs.
func (p Pipeline) Label() string {
	var parts []string
	for _, s := range p.Stages {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " | ")
}

func (p Pipeline) String() string {
	if p.Background {
		return p.Label() + " " + BackgroundToken
	}
	return p.Label()
}

// Segment splits argv into stages at "|" tokens and pulls the redirection
// operators "<", ">" and "2>" along with their path out of each stage's argv.
//
// Every stage is parsed the same way; deciding which redirections take effect
// is up to the Coordinator. When an operator repeats within a stage, the last
// one wins.
func Segment(argv []string) ([]Stage, error) {
	var stages []Stage
	current := Stage{}

	for i := 0; i < len(argv); i++ {
		tok := argv[i]

		switch tok {
		case PipeOp:
			if len(current.Argv) == 0 {
				return nil, fmt.Errorf("%w before %q", ErrEmptyStage, PipeOp)
			}
			stages = append(stages, current)
			current = Stage{}

		case RedirInputOp, RedirOutputOp, RedirErrorOp:
			if i+1 >= len(argv) || isOperator(argv[i+1]) {
				return nil, fmt.Errorf("%w after %q", ErrMissingRedirectTarget, tok)
			}
			i++
			switch tok {
			case RedirInputOp:
				current.Input = argv[i]
			case RedirOutputOp:
				current.Output = argv[i]
			case RedirErrorOp:
				current.Error = argv[i]
			}

		default:
			current.Argv = append(current.Argv, tok)
		}
	}

	if len(current.Argv) == 0 {
		if len(stages) > 0 {
			return nil, fmt.Errorf("%w after %q", ErrEmptyStage, PipeOp)
		}
		return nil, ErrEmptyStage
	}

	return append(stages, current), nil
}

// Parse tokenizes and segments a line. A blank line yields a nil pipeline and
// no error.
func Parse(line string, maxArgs int) (*Pipeline, error) {
	argv, background, err := Tokenize(line, maxArgs)
	if err != nil || argv == nil {
		return nil, err
	}

	stages, err := Segment(argv)
	if err != nil {
		return nil, err
	}

	return &Pipeline{Stages: stages, Background: background}, nil
}

func isOperator(tok string) bool {
	switch tok {
	case PipeOp, RedirInputOp, RedirOutputOp, RedirErrorOp:
		return true
	default:
		return false
	}
}
