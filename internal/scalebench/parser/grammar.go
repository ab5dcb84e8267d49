// Package parser extracts timing values from the free-form text printed by the benchmark executables.
//
// Each role has two tiers of pattern. The primary pattern matches the labelled token the executables are
// expected to print. When it finds nothing, the fallback pattern takes the last bare "<number> s" in the text.
// Callers are told which tier produced a value, since a fallback match is much weaker evidence.
package parser

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"

	"github.com/G-Research/scalebench/internal/common/bencherrors"
)

// Role selects which program produced the text.
type Role string

const (
	Serial   Role = "serial"
	Parallel Role = "parallel"
)

// Tier records which pattern produced an Extraction.
type Tier int

const (
	Primary Tier = iota
	Fallback
)

func (t Tier) String() string {
	if t == Fallback {
		return "fallback"
	}
	return "primary"
}

// Number matches a non-negative decimal with an optional exponent, e.g. "12", "0.5", ".25", "1.2e-05".
const Number = `(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`

var (
	DefaultSerialPattern   = `Serial runtime:\s*(` + Number + `)\s*s`
	DefaultParallelPattern = `Rank\s+\d+\s*\|\s*time\s*=\s*(` + Number + `)\s*s`
	DefaultFallbackPattern = `(` + Number + `)\s*s\b`
)

// Grammar holds the compiled patterns. Every pattern has exactly one capture group holding the seconds value.
type Grammar struct {
	Serial   *regexp.Regexp
	Parallel *regexp.Regexp
	Fallback *regexp.Regexp
}

// Patterns is the uncompiled form of a Grammar. Empty fields take the default pattern.
type Patterns struct {
	Serial   string `yaml:"serial"`
	Parallel string `yaml:"parallel"`
	Fallback string `yaml:"fallback"`
}

func DefaultGrammar() *Grammar {
	g, err := NewGrammar(Patterns{})
	if err != nil {
		panic(err)
	}
	return g
}

// NewGrammar compiles patterns, substituting the default for any empty one.
func NewGrammar(patterns Patterns) (*Grammar, error) {
	serial, err := compile("patterns.serial", patterns.Serial, DefaultSerialPattern)
	if err != nil {
		return nil, err
	}
	parallel, err := compile("patterns.parallel", patterns.Parallel, DefaultParallelPattern)
	if err != nil {
		return nil, err
	}
	fallback, err := compile("patterns.fallback", patterns.Fallback, DefaultFallbackPattern)
	if err != nil {
		return nil, err
	}
	return &Grammar{Serial: serial, Parallel: parallel, Fallback: fallback}, nil
}

func compile(name, pattern, def string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = def
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    name,
			Value:   pattern,
			Message: err.Error(),
		})
	}
	if re.NumSubexp() != 1 {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    name,
			Value:   pattern,
			Message: fmt.Sprintf("pattern must have exactly one capture group, found %d", re.NumSubexp()),
		})
	}
	return re, nil
}

func (g *Grammar) primary(role Role) *regexp.Regexp {
	if role == Parallel {
		return g.Parallel
	}
	return g.Serial
}
