package qerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorWrapsSentinel(t *testing.T) {
	err := &ParseError{Cause: errors.New("unexpected token")}
	assert.ErrorIs(t, err, ErrParse)
	assert.Contains(t, err.Error(), "unexpected token")
}

func TestValidationErrorMessageVariantsBySide(t *testing.T) {
	circuitSide := &ValidationError{Backend: "aer", Side: "circuit", Missing: []string{"rzz"}}
	assert.Contains(t, circuitSide.Error(), "circuit")
	assert.Contains(t, circuitSide.Error(), "rzz")
	assert.ErrorIs(t, circuitSide, ErrValidation)

	memorySide := &ValidationError{Backend: "aer", CircuitRef: "bell_pair", Reason: "too big"}
	assert.Contains(t, memorySide.Error(), "bell_pair")
	assert.Contains(t, memorySide.Error(), "too big")
}

func TestOutOfMemoryErrorWrapsSentinel(t *testing.T) {
	err := &OutOfMemoryError{RequiredMB: 500, BudgetMB: 100}
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestBackendErrorWrapsSentinelAndKeepsCauseMessage(t *testing.T) {
	cause := errors.New("device disconnected")
	err := &BackendError{ExperimentIndex: 2, Cause: cause}
	assert.ErrorIs(t, err, ErrBackend)
	assert.Equal(t, "device disconnected", err.Error())
}

func TestPartialFailureErrorWrapsSentinel(t *testing.T) {
	err := &PartialFailureError{Message: "2 of 5 experiments failed"}
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, "2 of 5 experiments failed", err.Error())
}
