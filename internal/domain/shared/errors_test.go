package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("quantity", "must be positive"), ErrValidation},
		{"insufficient", &InsufficientStockError{ProductID: "p1", Requested: 6, Available: 4}, ErrInsufficientStock},
		{"state", &StateError{Entity: "order", ID: "o1", Current: "DELIVERED"}, ErrState},
		{"not found", NewNotFoundError("order", "o1"), ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
		})
	}
}

func TestInsufficientStockCarriesAvailable(t *testing.T) {
	err := fmt.Errorf("reserve: %w", &InsufficientStockError{ProductID: "p1", Requested: 6, Available: 4})

	var ise *InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 4, ise.Available)
	assert.Contains(t, err.Error(), "available 4")
}

func TestStateErrorMessage(t *testing.T) {
	err := &StateError{Entity: "order", ID: "o1", Current: "SHIPPED",
		Message: "Order cannot be cancelled, current status: SHIPPED"}
	assert.Equal(t, "Order cannot be cancelled, current status: SHIPPED", err.Error())
	assert.False(t, IsInvariantViolation(err))

	bug := fmt.Errorf("confirm: %w", &StateError{Entity: "ledger", ID: "p1", Current: "reserved=0", Invariant: true})
	assert.True(t, IsInvariantViolation(bug))
}
