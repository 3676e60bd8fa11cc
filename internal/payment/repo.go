// Package payment starts gateway transactions for orders and reconciles their
// outcome exactly once, whichever of verify, callback or webhook arrives first.
package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

// Tx is the reconciliation unit of work. The payment row and the order's
// payment status are both locked before either is written.
type Tx interface {
	LockPayment(ctx context.Context, reference string) (*Payment, error)
	SavePayment(ctx context.Context, p *Payment) error
	LockOrderState(ctx context.Context, orderID string) (order.Status, order.PaymentStatus, error)
	SetOrderPaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error
	AppendLog(ctx context.Context, l *Log) error
}

type Repository interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	Create(ctx context.Context, p *Payment) error
	Save(ctx context.Context, p *Payment) error
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	GetByID(ctx context.Context, id string) (*Payment, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error)
	AppendLog(ctx context.Context, l *Log) error
	Logs(ctx context.Context, paymentID string) ([]Log, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const paymentColumns = `id, order_id, user_id, payment_reference, gateway_reference, amount::text, currency, status,
	channel, authorization_url, access_code, authorization_code, card_type, last4, exp_month, exp_year, bank,
	fees::text, failure_reason, gateway_response, paid_at, failed_at, refunded_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p            Payment
		amount, fees string
		raw          []byte
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.PaymentReference, &p.GatewayReference, &amount,
		&p.Currency, &p.Status, &p.Channel, &p.AuthorizationURL, &p.AccessCode, &p.AuthorizationCode,
		&p.CardType, &p.Last4, &p.ExpMonth, &p.ExpYear, &p.Bank, &fees, &p.FailureReason, &raw,
		&p.PaidAt, &p.FailedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, errors.Wrap(err, "parse amount")
	}
	if p.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, errors.Wrap(err, "parse fees")
	}
	if len(raw) > 0 {
		p.GatewayResponse = json.RawMessage(raw)
	}
	return &p, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (r *PGRepo) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func (r *PGRepo) Create(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, order_id, user_id, payment_reference, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, p.ID, p.OrderID, p.UserID, p.PaymentReference, p.Amount, p.Currency, p.Status, p.CreatedAt)
	return errors.Wrap(err, "insert payment")
}

const updatePayment = `
	UPDATE payments
	SET gateway_reference=$2, status=$3, channel=$4, authorization_url=$5, access_code=$6, authorization_code=$7,
	    card_type=$8, last4=$9, exp_month=$10, exp_year=$11, bank=$12, fees=$13, failure_reason=$14,
	    gateway_response=$15, paid_at=$16, failed_at=$17, refunded_at=$18, updated_at=NOW()
	WHERE id=$1`

func updateArgs(p *Payment) []any {
	return []any{p.ID, p.GatewayReference, p.Status, p.Channel, p.AuthorizationURL, p.AccessCode,
		p.AuthorizationCode, p.CardType, p.Last4, p.ExpMonth, p.ExpYear, p.Bank, p.Fees, p.FailureReason,
		nullJSON(p.GatewayResponse), p.PaidAt, p.FailedAt, p.RefundedAt}
}

func (r *PGRepo) Save(ctx context.Context, p *Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, updatePayment, updateArgs(p)...)
	return errors.Wrap(err, "save payment")
}

func (r *PGRepo) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE payment_reference=$1 OR (gateway_reference <> '' AND gateway_reference=$1) LIMIT 1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrPaymentNotFound, "reference %s", reference)
	}
	return p, errors.Wrap(err, "get payment")
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrPaymentNotFound, "payment %s", id)
	}
	return p, errors.Wrap(err, "get payment")
}

func (r *PGRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE payment_reference=$1)`, reference).Scan(&exists)
	return exists, errors.Wrap(err, "reference lookup")
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit, offset = clampPage(limit, offset)
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list payments")
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const insertLog = `
	INSERT INTO payment_logs (id, payment_id, event_type, status, request_data, response_data, error_message,
	                          ip_address, user_agent, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

func logArgs(l *Log) []any {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return []any{l.ID, l.PaymentID, l.EventType, l.Status, nullJSON(l.RequestData), nullJSON(l.ResponseData),
		l.ErrorMessage, l.IPAddress, l.UserAgent, l.CreatedAt}
}

func (r *PGRepo) AppendLog(ctx context.Context, l *Log) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, insertLog, logArgs(l)...)
	return errors.Wrap(err, "append payment log")
}

func (r *PGRepo) Logs(ctx context.Context, paymentID string) ([]Log, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, payment_id, event_type, status, request_data, response_data, error_message, ip_address, user_agent, created_at
		FROM payment_logs WHERE payment_id=$1 ORDER BY created_at, id
	`, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "payment logs")
	}
	defer rows.Close()
	var out []Log
	for rows.Next() {
		var (
			l         Log
			req, resp []byte
		)
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.EventType, &l.Status, &req, &resp, &l.ErrorMessage,
			&l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(req) > 0 {
			l.RequestData = req
		}
		if len(resp) > 0 {
			l.ResponseData = resp
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockPayment(ctx context.Context, reference string) (*Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE payment_reference=$1 OR (gateway_reference <> '' AND gateway_reference=$1)
		LIMIT 1 FOR UPDATE`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrPaymentNotFound, "reference %s", reference)
	}
	return p, errors.Wrap(err, "lock payment")
}

func (t *pgTx) SavePayment(ctx context.Context, p *Payment) error {
	_, err := t.tx.Exec(ctx, updatePayment, updateArgs(p)...)
	return errors.Wrap(err, "save payment")
}

func (t *pgTx) LockOrderState(ctx context.Context, orderID string) (order.Status, order.PaymentStatus, error) {
	var (
		status  order.Status
		payment order.PaymentStatus
	)
	err := t.tx.QueryRow(ctx, `SELECT status, payment_status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status, &payment)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", errors.Wrapf(apperr.ErrNotFound, "order %s", orderID)
	}
	return status, payment, errors.Wrap(err, "lock order state")
}

func (t *pgTx) SetOrderPaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=NOW() WHERE id=$1`, orderID, status)
	return errors.Wrap(err, "set order payment status")
}

func (t *pgTx) AppendLog(ctx context.Context, l *Log) error {
	_, err := t.tx.Exec(ctx, insertLog, logArgs(l)...)
	return errors.Wrap(err, "append payment log")
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
