// Package inventory owns drug stock counts and availability state.
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
)

var ErrDuplicateSlug = errors.Wrap(apperr.ErrInvalidInput, "slug already exists")

type Repository interface {
	GetDrug(ctx context.Context, id string) (*Drug, error)
	GetDrugs(ctx context.Context, ids []string) (map[string]*Drug, error)
	ListDrugs(ctx context.Context, q Query, lowStock int) ([]Drug, error)
	CreateDrug(ctx context.Context, d *Drug) error
	UpdateDrug(ctx context.Context, d *Drug) error
	Statistics(ctx context.Context, lowStock int) (Stats, error)
	InTx(ctx context.Context, fn func(Rows) error) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const drugColumns = `id, name, slug, description, price::text, stock, status, expiry_date, created_at, updated_at`

func scanDrug(row pgx.Row) (*Drug, error) {
	var (
		d     Drug
		price string
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Slug, &d.Description, &price, &d.Stock, &d.Status,
		&d.ExpiryDate, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Wrap(err, "parse price")
	}
	d.Price = p
	return &d, nil
}

func (r *PGRepo) GetDrug(ctx context.Context, id string) (*Drug, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d, err := scanDrug(r.db.QueryRow(ctx, `SELECT `+drugColumns+` FROM drugs WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "drug %s", id)
	}
	return d, errors.Wrap(err, "get drug")
}

func (r *PGRepo) GetDrugs(ctx context.Context, ids []string) (map[string]*Drug, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+drugColumns+` FROM drugs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get drugs")
	}
	return collectDrugs(rows)
}

func collectDrugs(rows pgx.Rows) (map[string]*Drug, error) {
	defer rows.Close()
	out := map[string]*Drug{}
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

var sortColumns = map[string]string{
	"name":       "name",
	"stock":      "stock",
	"price":      "price",
	"created_at": "created_at",
}

func (r *PGRepo) ListDrugs(ctx context.Context, q Query, lowStock int) ([]Drug, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit, offset := clampPage(q.Limit, q.Offset)
	col, ok := sortColumns[q.Sort]
	if !ok {
		col = "name"
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	search := strings.TrimSpace(q.Q)

	rows, err := r.db.Query(ctx, `
		SELECT `+drugColumns+`
		FROM drugs
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%' OR description ILIKE '%'||$1||'%')
		  AND ($2 = '' OR status = $2)
		  AND (NOT $3 OR (stock > 0 AND stock <= $4))
		  AND (NOT $5 OR stock = 0)
		ORDER BY `+col+` `+dir+`
		LIMIT $6 OFFSET $7
	`, search, string(q.Status), q.LowStock, lowStock, q.OutOfStock, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list drugs")
	}
	defer rows.Close()

	var out []Drug
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *PGRepo) CreateDrug(ctx context.Context, d *Drug) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO drugs (id, name, slug, description, price, stock, status, expiry_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Slug, d.Description, d.Price, d.Stock, d.Status, d.ExpiryDate).Scan(&d.CreatedAt, &d.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSlug
	}
	return errors.Wrap(err, "create drug")
}

// UpdateDrug writes catalog fields only. Stock and status go through the ledger.
func (r *PGRepo) UpdateDrug(ctx context.Context, d *Drug) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE drugs
		SET name = $2, description = $3, price = $4, expiry_date = $5, updated_at = NOW()
		WHERE id = $1
	`, d.ID, d.Name, d.Description, d.Price, d.ExpiryDate)
	if err != nil {
		return errors.Wrap(err, "update drug")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "drug %s", d.ID)
	}
	return nil
}

func (r *PGRepo) Statistics(ctx context.Context, lowStock int) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		s     Stats
		value string
	)
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE stock > 0),
		       COUNT(*) FILTER (WHERE stock = 0),
		       COUNT(*) FILTER (WHERE stock > 0 AND stock <= $1),
		       COALESCE(SUM(stock * price) FILTER (WHERE status = 'active'), 0)::text
		FROM drugs
	`, lowStock).Scan(&s.Total, &s.Active, &s.InStock, &s.OutOfStock, &s.LowStock, &value)
	if err != nil {
		return Stats{}, errors.Wrap(err, "drug statistics")
	}
	s.TotalStockValue, err = decimal.NewFromString(value)
	return s, errors.Wrap(err, "parse stock value")
}

func (r *PGRepo) InTx(ctx context.Context, fn func(Rows) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewPGRows(tx)); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// PGRows implements Rows on an open pgx transaction. Order and payment
// repositories embed it so stock moves share their transaction.
type PGRows struct{ tx pgx.Tx }

func NewPGRows(tx pgx.Tx) *PGRows { return &PGRows{tx: tx} }

func (r *PGRows) LockDrugs(ctx context.Context, ids []string) (map[string]*Drug, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+drugColumns+` FROM drugs
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock drugs")
	}
	return collectDrugs(rows)
}

// GetDrugs reads drugs without locking them.
func (r *PGRows) GetDrugs(ctx context.Context, ids []string) (map[string]*Drug, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+drugColumns+` FROM drugs WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get drugs")
	}
	return collectDrugs(rows)
}

func (r *PGRows) SaveStock(ctx context.Context, d *Drug) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE drugs SET stock = $2, status = $3, updated_at = NOW() WHERE id = $1
	`, d.ID, d.Stock, d.Status)
	return errors.Wrap(err, "save stock")
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
