package incidentapi

import (
	"cityalert/internal/failure"
	"cityalert/internal/incident"
)

// DuplicateError is returned for 409 on create. Existing may be nil when
// the backend omits it.
type DuplicateError struct {
	Message  string
	Existing *incident.Incident
}

func (e *DuplicateError) Error() string {
	if e.Message == "" {
		return "duplicate incident"
	}
	return "duplicate incident: " + e.Message
}

func (e *DuplicateError) FailureKind() failure.Kind { return failure.KindConflict }

type LoginError struct {
	Message string
}

func (e *LoginError) Error() string { return "login rejected: " + e.Message }

func (e *LoginError) FailureKind() failure.Kind { return failure.KindConflict }
