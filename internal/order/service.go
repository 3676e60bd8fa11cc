// Package order turns line items into immutable orders and drives the order
// status state machine.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
	"github.com/MikeMC777/healthnet-pharmacy/internal/cart"
	"github.com/MikeMC777/healthnet-pharmacy/internal/delivery"
	"github.com/MikeMC777/healthnet-pharmacy/internal/events"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/metrics"
)

const (
	attentionPlacedAge     = 24 * time.Hour
	attentionDeliveringAge = 72 * time.Hour
	recentWindow           = 7 * 24 * time.Hour
)

type AreaLookup interface {
	Lookup(ctx context.Context, code string) (*delivery.Area, error)
}

type CartSource interface {
	Lines(ctx context.Context, actor auth.Actor) ([]inventory.Line, error)
	Clear(ctx context.Context, actor auth.Actor) (*cart.Cart, error)
}

type Config struct {
	TaxRate decimal.Decimal
	Pricing delivery.Pricing
}

type Service struct {
	repo  Repository
	areas AreaLookup
	carts CartSource
	pub   events.Publisher
	cfg   Config
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(repo Repository, areas AreaLookup, carts CartSource, pub events.Publisher, cfg Config, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, areas: areas, carts: carts, pub: pub, cfg: cfg, log: log, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func validateMeta(m Meta) error {
	if strings.TrimSpace(m.PhoneNumber) == "" {
		return apperr.Invalid("phone_number is required")
	}
	if strings.TrimSpace(m.Address) == "" {
		return apperr.Invalid("delivery_address is required")
	}
	return nil
}

// CreateFromItems reserves stock and records the order in one transaction.
// Prices come from the locked drug rows, never from the caller.
func (s *Service) CreateFromItems(ctx context.Context, actor auth.Actor, lines []inventory.Line, meta Meta) (*Order, error) {
	if actor.UserID == "" {
		return nil, errors.Wrap(apperr.ErrOwnership, "anonymous order")
	}
	if len(lines) == 0 {
		return nil, apperr.Invalid("order has no items")
	}
	if err := validateMeta(meta); err != nil {
		return nil, err
	}
	area, err := s.areas.Lookup(ctx, meta.Area)
	if err != nil {
		return nil, errors.Wrap(err, "lookup delivery area")
	}

	now := s.now().UTC()
	var o *Order
	err = s.repo.InTx(ctx, func(tx Tx) error {
		drugs, err := inventory.Reserve(ctx, tx, lines)
		if err != nil {
			return err
		}
		number, err := uniqueNumber(ctx, tx, now)
		if err != nil {
			return err
		}
		o = s.build(actor, meta, area, drugs, lines, number, now)
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		metrics.OrderFailures.WithLabelValues(failureReason(err)).Inc()
		s.log.WithError(err).WithField("user_id", actor.UserID).Warn("order rejected")
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.log.WithFields(logrus.Fields{
		"order_id": o.ID, "order_number": o.OrderNumber, "total": o.TotalAmount.StringFixed(2),
	}).Info("order placed")
	events.Emit(ctx, s.pub, s.log, events.OrderPlaced{
		OrderID: o.ID, OrderNumber: o.OrderNumber, UserID: o.UserID,
		Total: o.TotalAmount, Items: o.TotalItems, Area: o.DeliveryArea,
	})
	return o, nil
}

func (s *Service) build(actor auth.Actor, meta Meta, area *delivery.Area, drugs map[string]inventory.Drug,
	lines []inventory.Line, number string, now time.Time) *Order {
	o := &Order{
		ID:               uuid.NewString(),
		OrderNumber:      number,
		UserID:           actor.UserID,
		Status:           StatusPlaced,
		PaymentStatus:    PaymentPending,
		PhoneNumber:      strings.TrimSpace(meta.PhoneNumber),
		DeliveryNotes:    meta.DeliveryNotes,
		DeliveryArea:     meta.Area,
		DeliveryAddress:  strings.TrimSpace(meta.Address),
		DeliveryLandmark: meta.Landmark,
		PlacedAt:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// merge repeated drugs, keeping first-seen order
	qty := map[string]int{}
	var order []string
	for _, l := range lines {
		if _, ok := qty[l.DrugID]; !ok {
			order = append(order, l.DrugID)
		}
		qty[l.DrugID] += l.Quantity
	}

	subtotal := decimal.Zero
	for _, id := range order {
		d := drugs[id]
		total := d.Price.Mul(decimal.NewFromInt(int64(qty[id])))
		o.Items = append(o.Items, Item{
			ID:              uuid.NewString(),
			OrderID:         o.ID,
			DrugID:          d.ID,
			DrugName:        d.Name,
			DrugSlug:        d.Slug,
			DrugDescription: d.Description,
			UnitPrice:       d.Price,
			Quantity:        qty[id],
			TotalPrice:      total,
		})
		subtotal = subtotal.Add(total)
		o.TotalItems += qty[id]
	}
	o.Subtotal = subtotal.Round(2)
	o.Tax = subtotal.Mul(s.cfg.TaxRate).Round(2)
	o.DeliveryFee, _ = s.cfg.Pricing.FeeFor(area, o.Subtotal)
	o.TotalAmount = o.Subtotal.Add(o.Tax).Add(o.DeliveryFee)
	return o
}

// Checkout orders the caller's cart and empties it once the order commits.
func (s *Service) Checkout(ctx context.Context, actor auth.Actor, meta Meta) (*Order, error) {
	lines, err := s.carts.Lines(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperr.Invalid("cart is empty")
	}
	o, err := s.CreateFromItems(ctx, actor, lines, meta)
	if err != nil {
		return nil, err
	}
	if _, err := s.carts.Clear(ctx, actor); err != nil {
		s.log.WithError(err).WithField("order_id", o.ID).Error("clear cart after checkout")
	}
	return o, nil
}

// UpdateStatus is the admin transition entry point.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, actor auth.Actor) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, errors.Wrap(apperr.ErrOwnership, "status changes require an admin")
	}
	if !to.Valid() {
		return nil, apperr.Invalid("unknown status %q", to)
	}
	return s.transition(ctx, id, to, actor, nil)
}

// ConfirmDelivery lets the owner close a delivering order.
func (s *Service) ConfirmDelivery(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	return s.transition(ctx, id, StatusDelivered, actor, func(o *Order) error {
		if !actor.Owns(o.UserID) {
			return errors.Wrapf(apperr.ErrOwnership, "order %s", o.ID)
		}
		if o.Status != StatusDelivering {
			return &apperr.TransitionError{From: string(o.Status), To: string(StatusDelivered)}
		}
		return nil
	})
}

// MarkAsDelivering dispatches a paid order.
func (s *Service) MarkAsDelivering(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, errors.Wrap(apperr.ErrOwnership, "dispatch requires an admin")
	}
	return s.transition(ctx, id, StatusDelivering, actor, func(o *Order) error {
		if o.Status != StatusPlaced {
			return &apperr.TransitionError{From: string(o.Status), To: string(StatusDelivering)}
		}
		if o.PaymentStatus != PaymentPaid {
			return errors.Wrap(&apperr.TransitionError{From: string(o.Status), To: string(StatusDelivering)}, "order is not paid")
		}
		return nil
	})
}

// Cancel lets the owner cancel an order that has not been paid or dispatched.
func (s *Service) Cancel(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	return s.transition(ctx, id, StatusCancelled, actor, func(o *Order) error {
		if !actor.Owns(o.UserID) {
			return errors.Wrapf(apperr.ErrOwnership, "order %s", o.ID)
		}
		if o.Status != StatusPlaced {
			return &apperr.TransitionError{From: string(o.Status), To: string(StatusCancelled)}
		}
		if o.PaymentStatus == PaymentPaid {
			return errors.Wrap(&apperr.TransitionError{From: string(o.Status), To: string(StatusCancelled)}, "paid orders are cancelled by support")
		}
		return nil
	})
}

// transition locks the order, applies guard, then moves it along one edge of
// the state machine. Cancelling puts the items back in stock.
func (s *Service) transition(ctx context.Context, id string, to Status, actor auth.Actor, guard func(*Order) error) (*Order, error) {
	var (
		o    *Order
		from Status
	)
	err := s.repo.InTx(ctx, func(tx Tx) error {
		if _, err := uuid.Parse(id); err != nil {
			return errors.Wrapf(apperr.ErrNotFound, "order %s", id)
		}
		var err error
		o, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return err
			}
		}
		if !CanTransition(o.Status, to) {
			return &apperr.TransitionError{From: string(o.Status), To: string(to)}
		}
		from = o.Status
		now := s.now().UTC()
		o.Status = to
		o.StatusUpdatedAt = &now
		o.StatusUpdatedBy = actor.UserID
		o.UpdatedAt = now
		if to == StatusDelivered {
			o.DeliveredAt = &now
		}
		if err := tx.SaveStatus(ctx, o); err != nil {
			return err
		}
		if to == StatusCancelled {
			lines := make([]inventory.Line, 0, len(o.Items))
			for _, it := range o.Items {
				lines = append(lines, inventory.Line{DrugID: it.DrugID, Quantity: it.Quantity})
			}
			return inventory.Release(ctx, tx, lines)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(to)).Inc()
	s.log.WithFields(logrus.Fields{
		"order_id": o.ID, "from": from, "to": to, "by": actor.UserID,
	}).Info("order status changed")
	events.Emit(ctx, s.pub, s.log, events.OrderStatusChanged{
		OrderID: o.ID, OrderNumber: o.OrderNumber, UserID: o.UserID,
		From: string(from), To: string(to), By: actor.UserID,
	})
	return o, nil
}

// Get returns the order to its owner or an admin.
func (s *Service) Get(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", id)
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(o.UserID) {
		return nil, errors.Wrapf(apperr.ErrOwnership, "order %s", id)
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, actor auth.Actor, f Filter) ([]Order, int, error) {
	if actor.UserID == "" {
		return nil, 0, errors.Wrap(apperr.ErrOwnership, "anonymous history")
	}
	f.UserID = actor.UserID
	return s.repo.List(ctx, f)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Order, int, error) {
	return s.repo.List(ctx, f)
}

// Statistics aggregates over one user's orders, or all orders when userID is empty.
func (s *Service) Statistics(ctx context.Context, userID string) (Stats, error) {
	return s.repo.Statistics(ctx, userID)
}

func (s *Service) RequiresAttention(ctx context.Context) ([]Order, error) {
	now := s.now().UTC()
	return s.repo.RequiresAttention(ctx, now.Add(-attentionPlacedAge), now.Add(-attentionDeliveringAge))
}

func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	st, err := s.repo.Statistics(ctx, "")
	if err != nil {
		return Analytics{}, err
	}
	recent, err := s.repo.CountSince(ctx, s.now().UTC().Add(-recentWindow))
	if err != nil {
		return Analytics{}, err
	}
	attention, err := s.RequiresAttention(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return Analytics{Stats: st, RecentOrders: recent, RequiresAttention: len(attention)}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperr.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, apperr.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
