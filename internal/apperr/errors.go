// Package apperr holds the error taxonomy shared by the domain packages.
// Callers match with errors.Is against the sentinels; the typed errors carry
// the details a client needs (which item, which transition).
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnavailable       = errors.New("drug unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrOrderClosed       = errors.New("order can no longer be paid")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrGateway           = errors.New("payment gateway error")
	ErrOwnership         = errors.New("resource does not belong to caller")
)

// ItemError explains why a single line item could not be reserved.
type ItemError struct {
	Kind      error
	DrugID    string
	DrugName  string
	Requested int
	Available int
}

func (e *ItemError) Error() string {
	if errors.Is(e.Kind, ErrInsufficientStock) {
		return fmt.Sprintf("%s: %s (requested %d, available %d)", e.Kind, e.DrugName, e.Requested, e.Available)
	}
	if e.DrugName == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.DrugID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.DrugName)
}

func (e *ItemError) Unwrap() error { return e.Kind }

func Unavailable(drugID, name string) error {
	return &ItemError{Kind: ErrUnavailable, DrugID: drugID, DrugName: name}
}

func InsufficientStock(drugID, name string, requested, available int) error {
	return &ItemError{Kind: ErrInsufficientStock, DrugID: drugID, DrugName: name, Requested: requested, Available: available}
}

type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GatewayError wraps a failed exchange with the payment provider.
type GatewayError struct {
	Op        string
	Reference string
	Message   string
	Err       error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrGateway, e.Op, e.Reference, msg)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }

// Cause returns the transport error behind a GatewayError, if any.
func (e *GatewayError) Cause() error { return e.Err }

// Invalid builds an ErrInvalidInput with a message for the client.
func Invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
