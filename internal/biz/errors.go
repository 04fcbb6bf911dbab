package biz

import (
	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons exposed to API callers.
const (
	ReasonValidationRejected    = "VALIDATION_REJECTED"
	ReasonDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	ReasonPaymentFailed         = "PAYMENT_FAILED"
	ReasonOrderNotFound         = "ORDER_NOT_FOUND"
	ReasonOrderTerminal         = "ORDER_TERMINAL"
)

// ErrValidationRejected reports bad input or dependency data that says no,
// e.g. an unknown customer or product. It is never retried.
func ErrValidationRejected(msg string) *errors.Error {
	return errors.New(400, ReasonValidationRejected, msg)
}

// ErrDependencyUnavailable tells the caller to try again later.
func ErrDependencyUnavailable(msg string) *errors.Error {
	return errors.New(503, ReasonDependencyUnavailable, msg)
}

// ErrBusinessFailure reports a downstream business refusal. The order is cancelled.
func ErrBusinessFailure(msg string) *errors.Error {
	return errors.New(402, ReasonPaymentFailed, msg)
}

// ErrOrderNotFound is returned when the order id is unknown.
func ErrOrderNotFound(orderID string) *errors.Error {
	return errors.New(404, ReasonOrderNotFound, "Order not found").
		WithMetadata(map[string]string{"orderId": orderID})
}

// ErrOrderTerminal is returned when an order can no longer change.
func ErrOrderTerminal(msg string) *errors.Error {
	return errors.New(409, ReasonOrderTerminal, msg)
}

// IsValidationRejected reports whether err is a validation rejection.
func IsValidationRejected(err error) bool {
	return err != nil && errors.Reason(err) == ReasonValidationRejected
}

// IsDependencyUnavailable reports whether err asks the caller to retry later.
func IsDependencyUnavailable(err error) bool {
	return err != nil && errors.Reason(err) == ReasonDependencyUnavailable
}

// IsBusinessFailure reports whether err is a downstream business refusal.
func IsBusinessFailure(err error) bool {
	return err != nil && errors.Reason(err) == ReasonPaymentFailed
}

// IsOrderNotFound reports whether err is an unknown order.
func IsOrderNotFound(err error) bool {
	return err != nil && errors.Reason(err) == ReasonOrderNotFound
}
