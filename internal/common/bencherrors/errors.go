// Package bencherrors contains the errors produced while measuring a benchmark sweep.
// Callers look for the error types defined in this file to decide whether a failure
// drops a single sample, skips a configuration, or aborts the whole run.
//
// If several failures occur in one operation (e.g., more than one report artefact could
// not be written), that operation should return an error of type multierror.Error from
// package github.com/hashicorp/go-multierror that encapsulates the individual errors.
package bencherrors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrToolchainMissing is returned when a compiler required to build the benchmark executables
// cannot be found. It is fatal to the whole run.
type ErrToolchainMissing struct {
	// The compiler that could not be found, e.g., "mpic++"
	Tool string
	// Optional message included with the error message
	Message string
}

func (err *ErrToolchainMissing) Error() (s string) {
	s = fmt.Sprintf("required compiler %q not found in PATH", err.Tool)
	if err.Message != "" {
		s = s + fmt.Sprintf("; %s", err.Message)
	}
	return
}

// ErrTrialTimeout is returned when a single invocation exceeds its wall-clock bound.
// The sample is dropped; it is never retried.
type ErrTrialTimeout struct {
	Path    string
	Timeout time.Duration
}

func (err *ErrTrialTimeout) Error() string {
	return fmt.Sprintf("invocation of %s exceeded timeout of %s", err.Path, err.Timeout)
}

// ErrParseFailure is returned when neither the primary nor the fallback pattern matched the
// output of an invocation.
type ErrParseFailure struct {
	Role string // "serial" or "parallel"
	// Head of the captured output, to help diagnose protocol drift
	Output string
}

func (err *ErrParseFailure) Error() string {
	if err.Output == "" {
		return fmt.Sprintf("no %s timing found in empty output", err.Role)
	}
	return fmt.Sprintf("no %s timing found in output %q", err.Role, err.Output)
}

// ErrNoValidSamples is returned when every repeat of a configuration was dropped.
// The configuration is omitted from all outputs.
type ErrNoValidSamples struct {
	Attempted int
}

func (err *ErrNoValidSamples) Error() string {
	return fmt.Sprintf("none of %d samples were usable", err.Attempted)
}

// ErrInvalidArgument is a generic error to be returned on invalid configuration.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "repeats"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// Severity describes how far a failure propagates through a sweep.
type Severity int

const (
	// SeverityUnknown errors are not produced by the measurement protocol.
	SeverityUnknown Severity = iota
	// SeveritySample drops one trial sample.
	SeveritySample
	// SeverityConfiguration omits one (N, p) configuration from the output.
	SeverityConfiguration
	// SeverityFatal aborts the run before any measurement.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeveritySample:
		return "sample"
	case SeverityConfiguration:
		return "configuration"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SeverityFromError maps error types to how far they propagate.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func SeverityFromError(err error) Severity {
	{
		var e *ErrToolchainMissing
		if errors.As(err, &e) {
			return SeverityFatal
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return SeverityFatal
		}
	}
	{
		var e *ErrNoValidSamples
		if errors.As(err, &e) {
			return SeverityConfiguration
		}
	}
	{
		var e *ErrTrialTimeout
		if errors.As(err, &e) {
			return SeveritySample
		}
	}
	{
		var e *ErrParseFailure
		if errors.As(err, &e) {
			return SeveritySample
		}
	}
	return SeverityUnknown
}

// IsTimeout reports whether err was caused by a trial exceeding its timeout.
func IsTimeout(err error) bool {
	var e *ErrTrialTimeout
	return errors.As(err, &e)
}
