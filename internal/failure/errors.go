// Package failure holds the client-side error types raised before any
// network call is made, plus the consultation-save inconsistency.
package failure

import (
	"errors"
	"fmt"
)

var (
	ErrNoPatientSelected = &PreconditionError{Action: "", Reason: "no patient selected"}
	ErrNotAuthenticated  = errors.New("not signed in")
)

// PreconditionError reports an action attempted without the state it needs.
type PreconditionError struct {
	Action string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Action == "" {
		return "precondition failed: " + e.Reason
	}
	return fmt.Sprintf("%s: precondition failed: %s", e.Action, e.Reason)
}

// Is matches any PreconditionError with the same reason.
func (e *PreconditionError) Is(target error) bool {
	t, ok := target.(*PreconditionError)
	return ok && t.Reason == e.Reason
}

// NoPatient returns the precondition error for action.
func NoPatient(action string) error {
	return &PreconditionError{Action: action, Reason: ErrNoPatientSelected.Reason}
}

// ValidationError reports user input rejected locally.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InconsistencyError is returned when a multi-step save committed its first
// step and failed a later one. The backend is left in a state that needs a
// manual fix.
type InconsistencyError struct {
	PatientID string
	Committed string
	Failed    string
	Err       error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("patient %s: %s committed but %s failed: %v", e.PatientID, e.Committed, e.Failed, e.Err)
}

func (e *InconsistencyError) Unwrap() error { return e.Err }

// IsUserFacing reports whether err should be shown as a transient notice
// rather than an inline panel error.
func IsUserFacing(err error) bool {
	var pe *PreconditionError
	var ve *ValidationError
	return errors.As(err, &pe) || errors.As(err, &ve) || errors.Is(err, ErrNotAuthenticated)
}
