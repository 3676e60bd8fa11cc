package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

type OrderRepo struct{ s *Store }

var _ order.Repository = (*OrderRepo)(nil)

func (r *OrderRepo) InTx(ctx context.Context, fn func(order.Tx) error) error {
	return r.s.tx(ctx, func(st *state) error { return fn(orderTx{rows{st}}) })
}

func (st *state) order(id string) (*order.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", id)
	}
	o.Items = append([]order.Item(nil), st.orderItems[id]...)
	return &o, nil
}

func (r *OrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	var out *order.Order
	err := r.s.read(func(st *state) error {
		var err error
		out, err = st.order(id)
		return err
	})
	return out, err
}

func matches(o order.Order, f order.Filter) bool {
	switch {
	case f.UserID != "" && o.UserID != f.UserID:
		return false
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus:
		return false
	case f.Area != "" && o.DeliveryArea != f.Area:
		return false
	case f.From != nil && o.PlacedAt.Before(*f.From):
		return false
	case f.To != nil && o.PlacedAt.After(*f.To):
		return false
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	return search == "" || strings.Contains(strings.ToLower(o.OrderNumber), search)
}

func (st *state) filterOrders(keep func(order.Order) bool) []order.Order {
	var out []order.Order
	for _, o := range st.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.After(out[j].PlacedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *OrderRepo) List(_ context.Context, f order.Filter) ([]order.Order, int, error) {
	var (
		out   []order.Order
		total int
	)
	err := r.s.read(func(st *state) error {
		all := st.filterOrders(func(o order.Order) bool { return matches(o, f) })
		total = len(all)
		for _, o := range page(all, f.Limit, f.Offset) {
			o.Items = append([]order.Item(nil), st.orderItems[o.ID]...)
			out = append(out, o)
		}
		return nil
	})
	return out, total, err
}

func (r *OrderRepo) Statistics(_ context.Context, userID string) (order.Stats, error) {
	var st order.Stats
	err := r.s.read(func(s *state) error {
		st = order.Tally(s.filterOrders(func(o order.Order) bool { return userID == "" || o.UserID == userID }))
		return nil
	})
	return st, err
}

func (r *OrderRepo) RequiresAttention(_ context.Context, placedBefore, deliveringBefore time.Time) ([]order.Order, error) {
	var out []order.Order
	err := r.s.read(func(st *state) error {
		out = st.filterOrders(func(o order.Order) bool {
			switch o.Status {
			case order.StatusPlaced:
				return o.PaymentStatus == order.PaymentPaid && !o.PlacedAt.After(placedBefore)
			case order.StatusDelivering:
				since := o.PlacedAt
				if o.StatusUpdatedAt != nil {
					since = *o.StatusUpdatedAt
				}
				return !since.After(deliveringBefore)
			}
			return false
		})
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, err
}

func (r *OrderRepo) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	err := r.s.read(func(st *state) error {
		for _, o := range st.orders {
			if !o.PlacedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}

type orderTx struct{ rows }

func (t orderTx) OrderNumberExists(_ context.Context, number string) (bool, error) {
	for _, o := range t.st.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t orderTx) InsertOrder(_ context.Context, o *order.Order) error {
	row := *o
	row.Items = nil
	t.st.orders[o.ID] = row
	t.st.orderItems[o.ID] = append([]order.Item(nil), o.Items...)
	return nil
}

func (t orderTx) LockOrder(_ context.Context, id string) (*order.Order, error) {
	return t.st.order(id)
}

func (t orderTx) SaveStatus(_ context.Context, o *order.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return errors.Wrapf(apperr.ErrNotFound, "order %s", o.ID)
	}
	cur.Status, cur.StatusUpdatedAt, cur.StatusUpdatedBy = o.Status, o.StatusUpdatedAt, o.StatusUpdatedBy
	cur.DeliveredAt, cur.UpdatedAt = o.DeliveredAt, time.Now().UTC()
	t.st.orders[o.ID] = cur
	return nil
}
