// Package eventstream publishes sweep progress events to a message broker so that long sweeps can be followed
// from elsewhere. Publishing is best effort: failures are reported to the caller, which logs them and carries on.
package eventstream

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	SweepStarted          EventType = "sweep_started"
	GroupStarted          EventType = "group_started"
	TrialFailed           EventType = "trial_failed"
	ConfigurationMeasured EventType = "configuration_measured"
	ConfigurationSkipped  EventType = "configuration_skipped"
	FractionFitted        EventType = "fraction_fitted"
	GroupClosed           EventType = "group_closed"
	SweepFinished         EventType = "sweep_finished"
)

// Event is serialised as JSON. Optional numbers are pointers so that an absent value is omitted rather than 0.
type Event struct {
	Id       string    `json:"id"`
	RunId    string    `json:"runId"`
	Type     EventType `json:"type"`
	Created  time.Time `json:"created"`
	Group    string    `json:"group,omitempty"`
	N        int       `json:"n,omitempty"`
	P        int       `json:"p,omitempty"`
	Role     string    `json:"role,omitempty"`
	Seconds  *float64  `json:"seconds,omitempty"`
	Speedup  *float64  `json:"speedup,omitempty"`
	Fraction *float64  `json:"fraction,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// NewEvent returns an event with a fresh id and the current time.
func NewEvent(runId string, eventType EventType) *Event {
	return &Event{
		Id:      uuid.NewString(),
		RunId:   runId,
		Type:    eventType,
		Created: time.Now().UTC(),
	}
}

// Float returns a pointer to v, or nil if v is NaN or infinite, which JSON cannot represent.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type EventStream interface {
	Publish(events []*Event) []error
	Close() error
}

// NoopEventStream discards everything. It is used when no broker is configured.
type NoopEventStream struct{}

func (NoopEventStream) Publish([]*Event) []error {
	return nil
}

func (NoopEventStream) Close() error {
	return nil
}

// MultiEventStream publishes every event to each of its streams.
type MultiEventStream []EventStream

func (m MultiEventStream) Publish(events []*Event) []error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Publish(events)...)
	}
	return errs
}

func (m MultiEventStream) Close() error {
	var result error
	for _, s := range m {
		if err := s.Close(); err != nil && result == nil {
			result = err
		}
	}
	return result
}
