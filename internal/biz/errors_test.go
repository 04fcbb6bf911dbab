package biz

import (
	"errors"
	"fmt"
	"testing"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		reason   string
		is       func(error) bool
		notMatch []func(error) bool
	}{
		{
			name:     "validation",
			err:      ErrValidationRejected("Invalid customer"),
			code:     400,
			reason:   ReasonValidationRejected,
			is:       IsValidationRejected,
			notMatch: []func(error) bool{IsDependencyUnavailable, IsBusinessFailure, IsOrderNotFound},
		},
		{
			name:     "dependency",
			err:      ErrDependencyUnavailable("Inventory service overloaded"),
			code:     503,
			reason:   ReasonDependencyUnavailable,
			is:       IsDependencyUnavailable,
			notMatch: []func(error) bool{IsValidationRejected, IsBusinessFailure},
		},
		{
			name:     "business failure",
			err:      ErrBusinessFailure("Payment failed"),
			code:     402,
			reason:   ReasonPaymentFailed,
			is:       IsBusinessFailure,
			notMatch: []func(error) bool{IsValidationRejected, IsDependencyUnavailable},
		},
		{
			name:   "order not found",
			err:    ErrOrderNotFound("o-1"),
			code:   404,
			reason: ReasonOrderNotFound,
			is:     IsOrderNotFound,
		},
		{
			name:   "wrapped order not found",
			err:    fmt.Errorf("lookup: %w", ErrOrderNotFound("o-1")),
			code:   404,
			reason: ReasonOrderNotFound,
			is:     IsOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, kerrors.Code(tt.err))
			assert.Equal(t, tt.reason, kerrors.Reason(tt.err))
			assert.True(t, tt.is(tt.err))
			for _, other := range tt.notMatch {
				assert.False(t, other(tt.err))
			}
		})
	}

	assert.Equal(t, "o-1", ErrOrderNotFound("o-1").Metadata["orderId"])
	assert.Equal(t, 409, kerrors.Code(ErrOrderTerminal("order is terminal")))

	plain := errors.New("boom")
	assert.False(t, IsValidationRejected(plain))
	assert.False(t, IsOrderNotFound(nil))
	assert.Equal(t, 500, kerrors.Code(plain))
}
