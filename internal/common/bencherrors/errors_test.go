package bencherrors

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSeverityFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want Severity
	}{
		"ErrToolchainMissing":              {&ErrToolchainMissing{Tool: "g++"}, SeverityFatal},
		"ErrInvalidArgument":               {&ErrInvalidArgument{}, SeverityFatal},
		"ErrNoValidSamples":                {&ErrNoValidSamples{Attempted: 3}, SeverityConfiguration},
		"ErrTrialTimeout":                  {&ErrTrialTimeout{}, SeveritySample},
		"ErrParseFailure":                  {&ErrParseFailure{Role: "serial"}, SeveritySample},
		"pkg.Error => ErrTrialTimeout":     {errors.WithMessage(&ErrTrialTimeout{}, "foo"), SeveritySample},
		"pkg.Error => ErrToolchainMissing": {errors.WithStack(&ErrToolchainMissing{}), SeverityFatal},
		"pkg.Error => ErrNoValidSamples":   {errors.Wrap(&ErrNoValidSamples{}, "N=1024"), SeverityConfiguration},
		"pkg.Error":                        {errors.New("foo"), SeverityUnknown},
		"nil":                              {nil, SeverityUnknown},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SeverityFromError(tc.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	err := errors.WithStack(&ErrTrialTimeout{Path: "./h_serial", Timeout: time.Second})
	assert.True(t, IsTimeout(err))
	assert.False(t, IsTimeout(&ErrParseFailure{Role: "parallel"}))
	assert.Equal(t, "invocation of ./h_serial exceeded timeout of 1s", errors.Cause(err).Error())
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `required compiler "mpic++" not found in PATH`, (&ErrToolchainMissing{Tool: "mpic++"}).Error())
	assert.Equal(t, `required compiler "g++" not found in PATH; build.enabled is true`,
		(&ErrToolchainMissing{Tool: "g++", Message: "build.enabled is true"}).Error())
	assert.Equal(t, "no serial timing found in empty output", (&ErrParseFailure{Role: "serial"}).Error())
	assert.Equal(t, "none of 5 samples were usable", (&ErrNoValidSamples{Attempted: 5}).Error())
	assert.Equal(t, `value 0 is invalid for field "repeats"; must be positive`,
		(&ErrInvalidArgument{Name: "repeats", Value: 0, Message: "must be positive"}).Error())
}
