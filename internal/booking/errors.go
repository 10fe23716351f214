// Package booking validates collected slots and commits an appointment.
package booking

import (
	"errors"
	"fmt"

	"salonbot/internal/model"
)

// FailureKind classifies a recoverable commit failure.
type FailureKind string

const (
	FailureServiceNotFound FailureKind = "service_not_found"
	FailureInvalidFormat   FailureKind = "invalid_format"
	FailurePast            FailureKind = "past"
	FailureClosed          FailureKind = "closed"
	FailureOutsideHours    FailureKind = "outside_hours"
	FailureConflict        FailureKind = "conflict"
)

// Failure is a business-rule or availability failure. The user is asked again for the
// slots listed in Clear; the rest of the session is kept.
type Failure struct {
	Kind    FailureKind
	Clear   []model.SlotName
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("booking %s: %s", f.Kind, f.Message)
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func fail(kind FailureKind, msg string, clear ...model.SlotName) *Failure {
	return &Failure{Kind: kind, Clear: clear, Message: msg}
}
