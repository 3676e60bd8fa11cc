package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
	"github.com/MikeMC777/healthnet-pharmacy/internal/payment"
)

type PaymentRepo struct{ s *Store }

var _ payment.Repository = (*PaymentRepo)(nil)

func (r *PaymentRepo) InTx(ctx context.Context, fn func(payment.Tx) error) error {
	return r.s.tx(ctx, func(st *state) error { return fn(paymentTx{st}) })
}

// byReference matches the local reference or the gateway's.
func (st *state) byReference(ref string) (*payment.Payment, error) {
	for _, p := range st.payments {
		if p.PaymentReference == ref || (p.GatewayReference != "" && p.GatewayReference == ref) {
			return &p, nil
		}
	}
	return nil, errors.Wrapf(apperr.ErrPaymentNotFound, "reference %s", ref)
}

func (st *state) savePayment(p *payment.Payment) error {
	if _, ok := st.payments[p.ID]; !ok {
		return errors.Wrapf(apperr.ErrPaymentNotFound, "payment %s", p.ID)
	}
	p.UpdatedAt = time.Now().UTC()
	st.payments[p.ID] = *p
	return nil
}

func (st *state) appendLog(l *payment.Log) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	st.paymentLogs = append(st.paymentLogs, *l)
}

func (r *PaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	return r.s.tx(ctx, func(st *state) error {
		for _, other := range st.payments {
			if other.PaymentReference == p.PaymentReference {
				return errors.Wrapf(apperr.ErrInvalidInput, "reference %s already exists", p.PaymentReference)
			}
		}
		st.payments[p.ID] = *p
		return nil
	})
}

func (r *PaymentRepo) Save(ctx context.Context, p *payment.Payment) error {
	return r.s.tx(ctx, func(st *state) error { return st.savePayment(p) })
}

func (r *PaymentRepo) GetByReference(_ context.Context, reference string) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.s.read(func(st *state) error {
		var err error
		out, err = st.byReference(reference)
		return err
	})
	return out, err
}

func (r *PaymentRepo) GetByID(_ context.Context, id string) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.s.read(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return errors.Wrapf(apperr.ErrPaymentNotFound, "payment %s", id)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *PaymentRepo) ReferenceExists(_ context.Context, reference string) (bool, error) {
	exists := false
	err := r.s.read(func(st *state) error {
		for _, p := range st.payments {
			if p.PaymentReference == reference {
				exists = true
			}
		}
		return nil
	})
	return exists, err
}

func (r *PaymentRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]payment.Payment, error) {
	var out []payment.Payment
	err := r.s.read(func(st *state) error {
		for _, p := range st.payments {
			if p.UserID == userID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), err
}

func (r *PaymentRepo) AppendLog(ctx context.Context, l *payment.Log) error {
	return r.s.tx(ctx, func(st *state) error {
		st.appendLog(l)
		return nil
	})
}

func (r *PaymentRepo) Logs(_ context.Context, paymentID string) ([]payment.Log, error) {
	var out []payment.Log
	err := r.s.read(func(st *state) error {
		for _, l := range st.paymentLogs {
			if l.PaymentID == paymentID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

type paymentTx struct{ st *state }

func (t paymentTx) LockPayment(_ context.Context, reference string) (*payment.Payment, error) {
	return t.st.byReference(reference)
}

func (t paymentTx) SavePayment(_ context.Context, p *payment.Payment) error {
	return t.st.savePayment(p)
}

func (t paymentTx) LockOrderState(_ context.Context, orderID string) (order.Status, order.PaymentStatus, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return "", "", errors.Wrapf(apperr.ErrNotFound, "order %s", orderID)
	}
	return o.Status, o.PaymentStatus, nil
}

func (t paymentTx) SetOrderPaymentStatus(_ context.Context, orderID string, status order.PaymentStatus) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return errors.Wrapf(apperr.ErrNotFound, "order %s", orderID)
	}
	o.PaymentStatus, o.UpdatedAt = status, time.Now().UTC()
	t.st.orders[orderID] = o
	return nil
}

func (t paymentTx) AppendLog(_ context.Context, l *payment.Log) error {
	t.st.appendLog(l)
	return nil
}
