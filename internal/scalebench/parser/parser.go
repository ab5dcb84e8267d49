package parser

import (
	"math"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"github.com/G-Research/scalebench/internal/common/bencherrors"
)

// maxQuotedOutput bounds how much output is kept in an ErrParseFailure.
const maxQuotedOutput = 200

// Extraction is a timing found in program output.
type Extraction struct {
	// Seconds is the sample value: the serial runtime, or the slowest rank of a parallel run.
	Seconds float64
	// Ranks holds every per-rank time matched by the parallel primary pattern, in output order.
	Ranks []float64
	Tier  Tier
}

// Parse extracts a timing from text. It returns false if neither tier matched; no value is ever invented.
//
// For the serial role the last primary match is used. For the parallel role every primary match is a rank and
// the sample is their maximum, since the job is only finished once its slowest rank is. A matched value that is
// not a finite number, such as 1e999, makes the whole output unparseable; it is never skipped.
func (g *Grammar) Parse(text string, role Role) (Extraction, bool) {
	values, ok := findAll(g.primary(role), text)
	if !ok {
		return Extraction{}, false
	}
	if len(values) > 0 {
		if role == Parallel {
			return Extraction{Seconds: maxOf(values), Ranks: values, Tier: Primary}, true
		}
		return Extraction{Seconds: values[len(values)-1], Tier: Primary}, true
	}
	values, ok = findAll(g.Fallback, text)
	if ok && len(values) > 0 {
		return Extraction{Seconds: values[len(values)-1], Tier: Fallback}, true
	}
	return Extraction{}, false
}

// Extract is Parse returning an *bencherrors.ErrParseFailure when nothing matched.
func (g *Grammar) Extract(text string, role Role) (Extraction, error) {
	e, ok := g.Parse(text, role)
	if !ok {
		return Extraction{}, errors.WithStack(&bencherrors.ErrParseFailure{Role: string(role), Output: head(text)})
	}
	return e, nil
}

// findAll returns the value of every match of re, or false if any matched value is not a finite number.
func findAll(re *regexp.Regexp, text string) ([]float64, bool) {
	var rv []float64
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, false
		}
		rv = append(rv, v)
	}
	return rv, true
}

func maxOf(values []float64) float64 {
	rv := values[0]
	for _, v := range values[1:] {
		if v > rv {
			rv = v
		}
	}
	return rv
}

func head(text string) string {
	if len(text) <= maxQuotedOutput {
		return text
	}
	return text[:maxQuotedOutput] + "..."
}
