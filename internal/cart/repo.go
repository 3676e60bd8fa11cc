// Package cart keeps one mutable cart per user with derived totals.
package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
)

// Tx is the cart unit of work. GetOrCreateCart locks the user's cart row.
type Tx interface {
	GetOrCreateCart(ctx context.Context, userID string) (*Cart, error)
	Items(ctx context.Context, cartID string) ([]Item, error)
	ItemOwner(ctx context.Context, itemID string) (string, error)
	InsertItem(ctx context.Context, it *Item) error
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, itemID string) error
	DeleteItems(ctx context.Context, cartID string) error
	SaveTotals(ctx context.Context, c *Cart) error
	Drugs(ctx context.Context, ids []string) (map[string]*inventory.Drug, error)
}

type Repository interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

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

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) GetOrCreateCart(ctx context.Context, userID string) (*Cart, error) {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO carts (id, user_id, subtotal, tax, total_amount, total_items, created_at, updated_at)
		VALUES ($1,$2,0,0,0,0,NOW(),NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.NewString(), userID); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	var (
		c                    Cart
		subtotal, tax, total string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, subtotal::text, tax::text, total_amount::text, total_items, created_at, updated_at
		FROM carts WHERE user_id=$1
		FOR UPDATE
	`, userID).Scan(&c.ID, &c.UserID, &subtotal, &tax, &total, &c.TotalItems, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "lock cart")
	}
	if err := parseDecimals(map[*decimal.Decimal]string{&c.Subtotal: subtotal, &c.Tax: tax, &c.Total: total}); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) Items(ctx context.Context, cartID string) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.drug_id, COALESCE(d.name, ''), ci.quantity, ci.unit_price::text,
		       ci.total_price::text, ci.created_at, ci.updated_at
		FROM cart_items ci LEFT JOIN drugs d ON d.id = ci.drug_id
		WHERE ci.cart_id=$1
		ORDER BY ci.created_at, ci.id
	`, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "cart items")
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var (
			it          Item
			unit, total string
		)
		if err := rows.Scan(&it.ID, &it.CartID, &it.DrugID, &it.DrugName, &it.Quantity, &unit, &total,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		if err := parseDecimals(map[*decimal.Decimal]string{&it.UnitPrice: unit, &it.TotalPrice: total}); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *pgTx) ItemOwner(ctx context.Context, itemID string) (string, error) {
	var userID string
	err := t.tx.QueryRow(ctx, `
		SELECT c.user_id FROM cart_items ci JOIN carts c ON c.id = ci.cart_id WHERE ci.id=$1
	`, itemID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errors.Wrapf(apperr.ErrNotFound, "cart item %s", itemID)
	}
	return userID, errors.Wrap(err, "item owner")
}

func (t *pgTx) InsertItem(ctx context.Context, it *Item) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, drug_id, quantity, unit_price, total_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
	`, it.ID, it.CartID, it.DrugID, it.Quantity, it.UnitPrice, it.TotalPrice)
	return errors.Wrap(err, "insert cart item")
}

func (t *pgTx) UpdateItem(ctx context.Context, it *Item) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cart_items SET quantity=$2, total_price=$3, updated_at=NOW() WHERE id=$1
	`, it.ID, it.Quantity, it.TotalPrice)
	if err != nil {
		return errors.Wrap(err, "update cart item")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "cart item %s", it.ID)
	}
	return nil
}

func (t *pgTx) DeleteItem(ctx context.Context, itemID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE id=$1`, itemID)
	return errors.Wrap(err, "delete cart item")
}

func (t *pgTx) DeleteItems(ctx context.Context, cartID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return errors.Wrap(err, "clear cart items")
}

func (t *pgTx) SaveTotals(ctx context.Context, c *Cart) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE carts SET subtotal=$2, tax=$3, total_amount=$4, total_items=$5, updated_at=NOW() WHERE id=$1
	`, c.ID, c.Subtotal, c.Tax, c.Total, c.TotalItems)
	return errors.Wrap(err, "save cart totals")
}

func (t *pgTx) Drugs(ctx context.Context, ids []string) (map[string]*inventory.Drug, error) {
	return inventory.NewPGRows(t.tx).GetDrugs(ctx, ids)
}

func parseDecimals(fields map[*decimal.Decimal]string) error {
	for dst, raw := range fields {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrapf(err, "parse decimal %q", raw)
		}
		*dst = v
	}
	return nil
}
