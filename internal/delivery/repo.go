// Package delivery prices deliveries and keeps the delivery area registry.
package delivery

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
)

var ErrDuplicateArea = errors.Wrap(apperr.ErrInvalidInput, "area code already exists")

type Repository interface {
	GetArea(ctx context.Context, code string) (*Area, error)
	ListAreas(ctx context.Context, activeOnly bool) ([]Area, error)
	CreateArea(ctx context.Context, a *Area) error
	UpdateArea(ctx context.Context, a *Area) error
	UpsertArea(ctx context.Context, a *Area) error
	OpenOrders(ctx context.Context, area string) ([]OpenOrder, error)
	OrderCounts(ctx context.Context) (byStatus, byArea map[string]int, err error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const areaColumns = `code, name, description, base_fee::text, is_active, sort_order, landmarks, created_at, updated_at`

func scanArea(row pgx.Row) (*Area, error) {
	var (
		a   Area
		fee string
	)
	if err := row.Scan(&a.Code, &a.Name, &a.Description, &fee, &a.IsActive, &a.SortOrder,
		&a.Landmarks, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	f, err := decimal.NewFromString(fee)
	if err != nil {
		return nil, errors.Wrap(err, "parse base fee")
	}
	a.BaseFee = f
	return &a, nil
}

func (r *PGRepo) GetArea(ctx context.Context, code string) (*Area, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a, err := scanArea(r.db.QueryRow(ctx, `SELECT `+areaColumns+` FROM delivery_areas WHERE code=$1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "area %s", code)
	}
	return a, errors.Wrap(err, "get area")
}

func (r *PGRepo) ListAreas(ctx context.Context, activeOnly bool) ([]Area, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+areaColumns+` FROM delivery_areas
		WHERE (NOT $1 OR is_active)
		ORDER BY sort_order, name
	`, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list areas")
	}
	defer rows.Close()
	var out []Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *PGRepo) CreateArea(ctx context.Context, a *Area) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.db.QueryRow(ctx, `
		INSERT INTO delivery_areas (code, name, description, base_fee, is_active, sort_order, landmarks, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
		RETURNING created_at, updated_at
	`, a.Code, a.Name, a.Description, a.BaseFee, a.IsActive, a.SortOrder, a.Landmarks).Scan(&a.CreatedAt, &a.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateArea
	}
	return errors.Wrap(err, "create area")
}

func (r *PGRepo) UpdateArea(ctx context.Context, a *Area) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE delivery_areas
		SET name=$2, description=$3, base_fee=$4, is_active=$5, sort_order=$6, landmarks=$7, updated_at=NOW()
		WHERE code=$1
	`, a.Code, a.Name, a.Description, a.BaseFee, a.IsActive, a.SortOrder, a.Landmarks)
	if err != nil {
		return errors.Wrap(err, "update area")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(apperr.ErrNotFound, "area %s", a.Code)
	}
	return nil
}

func (r *PGRepo) UpsertArea(ctx context.Context, a *Area) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO delivery_areas (code, name, description, base_fee, is_active, sort_order, landmarks, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
		ON CONFLICT (code) DO UPDATE
		SET name=EXCLUDED.name, description=EXCLUDED.description, base_fee=EXCLUDED.base_fee,
		    is_active=EXCLUDED.is_active, sort_order=EXCLUDED.sort_order, landmarks=EXCLUDED.landmarks,
		    updated_at=NOW()
	`, a.Code, a.Name, a.Description, a.BaseFee, a.IsActive, a.SortOrder, a.Landmarks)
	return errors.Wrap(err, "upsert area")
}

func (r *PGRepo) OpenOrders(ctx context.Context, area string) ([]OpenOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, order_number, user_id, status, delivery_area, delivery_address, delivery_landmark,
		       phone_number, total_amount::text, placed_at
		FROM orders
		WHERE status IN ('placed','delivering') AND ($1 = '' OR delivery_area = $1)
		ORDER BY placed_at
	`, area)
	if err != nil {
		return nil, errors.Wrap(err, "open orders")
	}
	defer rows.Close()
	var out []OpenOrder
	for rows.Next() {
		var (
			o     OpenOrder
			total string
		)
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.Area, &o.Address, &o.Landmark,
			&o.Phone, &total, &o.PlacedAt); err != nil {
			return nil, err
		}
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, errors.Wrap(err, "parse total")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepo) OrderCounts(ctx context.Context) (map[string]int, map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	byStatus, byArea := map[string]int{}, map[string]int{}
	rows, err := r.db.Query(ctx, `SELECT status, delivery_area, COUNT(*) FROM orders GROUP BY status, delivery_area`)
	if err != nil {
		return nil, nil, errors.Wrap(err, "order counts")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status, area string
			n            int
		)
		if err := rows.Scan(&status, &area, &n); err != nil {
			return nil, nil, err
		}
		byStatus[status] += n
		byArea[area] += n
	}
	return byStatus, byArea, rows.Err()
}
