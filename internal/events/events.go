// Package events publishes domain events after their transaction commits.
// Delivery is fire-and-forget: a failed publish never undoes the change.
package events

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Event interface{ Type() string }

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type OrderPlaced struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	Total       decimal.Decimal `json:"total_amount"`
	Items       int             `json:"total_items"`
	Area        string          `json:"delivery_area"`
}

func (OrderPlaced) Type() string { return "order.placed" }

type OrderStatusChanged struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	By          string `json:"by"`
}

func (OrderStatusChanged) Type() string { return "order.status_changed" }

type PaymentSucceeded struct {
	PaymentID string          `json:"payment_id"`
	Reference string          `json:"payment_reference"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   string          `json:"channel"`
	Source    string          `json:"source"`
}

func (PaymentSucceeded) Type() string { return "payment.succeeded" }

type PaymentFailed struct {
	PaymentID string `json:"payment_id"`
	Reference string `json:"payment_reference"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
	Source    string `json:"source"`
}

func (PaymentFailed) Type() string { return "payment.failed" }

// PaymentRefundRequired flags a settled payment whose order can no longer be
// fulfilled.
type PaymentRefundRequired struct {
	PaymentID string          `json:"payment_id"`
	Reference string          `json:"payment_reference"`
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Source    string          `json:"source"`
}

func (PaymentRefundRequired) Type() string { return "payment.refund_required" }

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct{ Log logrus.FieldLogger }

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Log.WithFields(logrus.Fields{"event": e.Type(), "payload": e}).Debug("event")
	return nil
}

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, log logrus.FieldLogger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("event", e.Type()).Warn("publish event failed")
	}
}
