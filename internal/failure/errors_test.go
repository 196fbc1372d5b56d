package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPreconditionError_Is tests matching by reason regardless of action
func TestPreconditionError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NoPatient("send message"))

	assert.True(t, errors.Is(err, ErrNoPatientSelected))
	assert.Equal(t, "send message: precondition failed: no patient selected", errors.Unwrap(err).Error())
	assert.False(t, errors.Is(err, &PreconditionError{Reason: "other"}))
}

// TestInconsistencyError_Unwrap tests that the cause stays reachable
func TestInconsistencyError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &InconsistencyError{PatientID: "7", Committed: "status update", Failed: "consultation create", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "patient 7")
}

// TestIsUserFacing tests which errors become transient notices
func TestIsUserFacing(t *testing.T) {
	assert.True(t, IsUserFacing(NoPatient("x")))
	assert.True(t, IsUserFacing(Invalid("content", "empty")))
	assert.True(t, IsUserFacing(fmt.Errorf("x: %w", ErrNotAuthenticated)))
	assert.False(t, IsUserFacing(errors.New("network")))
	assert.False(t, IsUserFacing(&InconsistencyError{Err: errors.New("x")}))
}
