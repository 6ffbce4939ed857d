package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("your cart is empty")
	// ErrConflict is returned when an order kept changing underneath a
	// transition.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrInvalidPaymentMethod is returned for unknown payment methods.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrInvalidStatus is returned for unknown order or payment statuses.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidAddress is returned when a required address field is blank.
	ErrInvalidAddress = errors.New("shipping address is incomplete")
)

// ProductUnavailableError is returned at checkout when a cart line points at
// a product that no longer exists.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// InvalidTransitionError is returned for a move the state machine forbids.
// Field is "orderStatus" or "paymentStatus".
type InvalidTransitionError struct {
	Field string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change %s from %q to %q", e.Field, e.From, e.To)
}

// PaymentValidationError describes why payment data was rejected.
type PaymentValidationError struct {
	Message string
}

func (e *PaymentValidationError) Error() string {
	return e.Message
}
