package configuration

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/G-Research/scalebench/internal/common/bencherrors"
	"github.com/G-Research/scalebench/internal/scalebench/parser"
)

// Group names become part of output file names.
var groupNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks struct tags first and returns the validator.ValidationErrors unchanged if any fail, so they can be
// passed to config.LogValidationErrors. Otherwise it checks the constraints between fields.
func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	var result *multierror.Error
	seen := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		field := fmt.Sprintf("groups[%d].name", i)
		if !groupNamePattern.MatchString(g.Name) {
			result = multierror.Append(result, errors.WithStack(&bencherrors.ErrInvalidArgument{
				Name:    field,
				Value:   g.Name,
				Message: "may only contain letters, digits, '-' and '_'",
			}))
		}
		if seen[g.Name] {
			result = multierror.Append(result, errors.WithStack(&bencherrors.ErrInvalidArgument{
				Name:    field,
				Value:   g.Name,
				Message: "group names must be unique",
			}))
		}
		seen[g.Name] = true
	}
	if c.Build.Enabled {
		if err := validate.Struct(c.Build.Serial); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "build.serial"))
		}
		if err := validate.Struct(c.Build.Parallel); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "build.parallel"))
		}
	}
	if _, err := parser.NewGrammar(c.Patterns); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// IndivisibleSizes returns the sizes of g that do not split evenly over p processes. Such sizes are still measured,
// but their parallel runs are unbalanced.
func (g GroupConfig) IndivisibleSizes(p int) []int {
	var rv []int
	if p <= 0 {
		return rv
	}
	for _, n := range g.Sizes {
		if n%p != 0 && !slices.Contains(rv, n) {
			rv = append(rv, n)
		}
	}
	return rv
}
