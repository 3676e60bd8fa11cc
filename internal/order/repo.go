package order

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
)

// Tx is the order unit of work. Stock moves share the same transaction.
type Tx interface {
	inventory.Rows
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id string) (*Order, error)
	SaveStatus(ctx context.Context, o *Order) error
}

type Repository interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	Statistics(ctx context.Context, userID string) (Stats, error)
	RequiresAttention(ctx context.Context, placedBefore, deliveringBefore time.Time) ([]Order, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderColumns = `id, order_number, user_id, subtotal::text, tax::text, delivery_fee::text, total_amount::text,
	total_items, status, status_updated_at, status_updated_by, payment_status, phone_number, delivery_notes,
	delivery_area, delivery_address, delivery_landmark, placed_at, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                         Order
		subtotal, tax, fee, total string
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &subtotal, &tax, &fee, &total,
		&o.TotalItems, &o.Status, &o.StatusUpdatedAt, &o.StatusUpdatedBy, &o.PaymentStatus, &o.PhoneNumber,
		&o.DeliveryNotes, &o.DeliveryArea, &o.DeliveryAddress, &o.DeliveryLandmark, &o.PlacedAt,
		&o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	for dst, raw := range map[*decimal.Decimal]string{&o.Subtotal: subtotal, &o.Tax: tax, &o.DeliveryFee: fee, &o.TotalAmount: total} {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parse amount")
		}
		*dst = v
	}
	return &o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, drug_id, drug_name, drug_slug, drug_description, unit_price::text, quantity, total_price::text
		FROM order_items WHERE order_id=$1 ORDER BY drug_name, id
	`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "order items")
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var (
			it          Item
			unit, total string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.DrugID, &it.DrugName, &it.DrugSlug, &it.DrugDescription,
			&unit, &it.Quantity, &total); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, errors.Wrap(err, "parse unit price")
		}
		if it.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, errors.Wrap(err, "parse total price")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{PGRows: inventory.NewPGRows(tx), tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	o.Items, err = loadItems(ctx, r.db, id)
	return o, err
}

func (r *PGRepo) List(ctx context.Context, f Filter) ([]Order, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit, offset := clampPage(f.Limit, f.Offset)
	where := `
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR payment_status = $3)
		  AND ($4 = '' OR delivery_area = $4)
		  AND ($5 = '' OR order_number ILIKE '%'||$5||'%')
		  AND ($6::timestamptz IS NULL OR placed_at >= $6)
		  AND ($7::timestamptz IS NULL OR placed_at <= $7)`
	args := []any{f.UserID, string(f.Status), string(f.PaymentStatus), f.Area, strings.TrimSpace(f.Search), f.From, f.To}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+`
		ORDER BY placed_at DESC LIMIT $8 OFFSET $9`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	out, err := collectOrders(rows)
	return out, total, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) Statistics(ctx context.Context, userID string) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st := Stats{ByStatus: map[Status]int{}, TotalRevenue: decimal.Zero}
	rows, err := r.db.Query(ctx, `
		SELECT status, payment_status, COUNT(*), COALESCE(SUM(total_amount), 0)::text
		FROM orders WHERE ($1 = '' OR user_id = $1)
		GROUP BY status, payment_status
	`, userID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "order statistics")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status  Status
			payment PaymentStatus
			n       int
			sum     string
		)
		if err := rows.Scan(&status, &payment, &n, &sum); err != nil {
			return Stats{}, err
		}
		amount, err := decimal.NewFromString(sum)
		if err != nil {
			return Stats{}, errors.Wrap(err, "parse revenue")
		}
		st.add(status, payment, n, amount)
	}
	return st, rows.Err()
}

func (r *PGRepo) RequiresAttention(ctx context.Context, placedBefore, deliveringBefore time.Time) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE (status = 'placed' AND payment_status = 'paid' AND placed_at <= $1)
		   OR (status = 'delivering' AND COALESCE(status_updated_at, placed_at) <= $2)
		ORDER BY placed_at`, placedBefore, deliveringBefore)
	if err != nil {
		return nil, errors.Wrap(err, "orders requiring attention")
	}
	return collectOrders(rows)
}

func (r *PGRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE placed_at >= $1`, since).Scan(&n)
	return n, errors.Wrap(err, "count recent orders")
}

type pgTx struct {
	*inventory.PGRows
	tx pgx.Tx
}

func (t *pgTx) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number=$1)`, number).Scan(&exists)
	return exists, errors.Wrap(err, "order number lookup")
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, subtotal, tax, delivery_fee, total_amount, total_items,
		                    status, payment_status, phone_number, delivery_notes, delivery_area, delivery_address,
		                    delivery_landmark, placed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())
	`, o.ID, o.OrderNumber, o.UserID, o.Subtotal, o.Tax, o.DeliveryFee, o.TotalAmount, o.TotalItems,
		o.Status, o.PaymentStatus, o.PhoneNumber, o.DeliveryNotes, o.DeliveryArea, o.DeliveryAddress,
		o.DeliveryLandmark, o.PlacedAt); err != nil {
		return errors.Wrap(err, "insert order")
	}
	for _, it := range o.Items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, drug_id, drug_name, drug_slug, drug_description, unit_price, quantity, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, it.ID, o.ID, it.DrugID, it.DrugName, it.DrugSlug, it.DrugDescription, it.UnitPrice, it.Quantity, it.TotalPrice); err != nil {
			return errors.Wrap(err, "insert order item")
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	o.Items, err = loadItems(ctx, t.tx, id)
	return o, err
}

func (t *pgTx) SaveStatus(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, status_updated_at=$3, status_updated_by=$4, delivered_at=$5, updated_at=NOW()
		WHERE id=$1
	`, o.ID, o.Status, o.StatusUpdatedAt, o.StatusUpdatedBy, o.DeliveredAt)
	return errors.Wrap(err, "save order status")
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
