package inventory

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
)

// Rows is the locked view of drug rows inside a transaction. LockDrugs must
// hold the rows until the transaction ends, so concurrent decrements on the
// same drug are serialized.
type Rows interface {
	LockDrugs(ctx context.Context, ids []string) (map[string]*Drug, error)
	SaveStock(ctx context.Context, d *Drug) error
}

// decrement applies the stock rule to an in-memory drug.
func decrement(d *Drug, qty int) error {
	if qty <= 0 {
		return apperr.Invalid("quantity must be positive")
	}
	if qty > d.Stock {
		return apperr.InsufficientStock(d.ID, d.Name, qty, d.Stock)
	}
	d.Stock -= qty
	if d.Stock == 0 && d.Status != StatusInactive {
		d.Status = StatusOutOfStock
	}
	return nil
}

func increment(d *Drug, qty int) error {
	if qty <= 0 {
		return apperr.Invalid("quantity must be positive")
	}
	d.Stock += qty
	if d.Status == StatusOutOfStock {
		d.Status = StatusActive
	}
	return nil
}

// DecrementStock locks the drug row and removes qty units.
func DecrementStock(ctx context.Context, rows Rows, drugID string, qty int) (*Drug, error) {
	d, err := lockOne(ctx, rows, drugID)
	if err != nil {
		return nil, err
	}
	if err := decrement(d, qty); err != nil {
		return nil, err
	}
	return d, errors.Wrap(rows.SaveStock(ctx, d), "save stock")
}

// IncrementStock locks the drug row and restocks qty units.
func IncrementStock(ctx context.Context, rows Rows, drugID string, qty int) (*Drug, error) {
	d, err := lockOne(ctx, rows, drugID)
	if err != nil {
		return nil, err
	}
	if err := increment(d, qty); err != nil {
		return nil, err
	}
	return d, errors.Wrap(rows.SaveStock(ctx, d), "save stock")
}

// Reserve locks every drug in lines (in id order), checks availability and
// stock for the aggregated quantities, then decrements them. The returned
// drugs reflect the state the check ran against, before the decrement.
func Reserve(ctx context.Context, rows Rows, lines []Line) (map[string]Drug, error) {
	want := map[string]int{}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, apperr.Invalid("quantity for %s must be positive", l.DrugID)
		}
		want[l.DrugID] += l.Quantity
	}
	if len(want) == 0 {
		return nil, apperr.Invalid("no items")
	}
	ids := make([]string, 0, len(want))
	for id := range want {
		if !ValidID(id) {
			return nil, apperr.Unavailable(id, "")
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	locked, err := rows.LockDrugs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock drugs")
	}
	seen := make(map[string]Drug, len(ids))
	for _, id := range ids {
		d, ok := locked[id]
		if !ok || !d.IsAvailable() {
			name := ""
			if ok {
				name = d.Name
			}
			return nil, apperr.Unavailable(id, name)
		}
		if !d.IsInStock(want[id]) {
			return nil, apperr.InsufficientStock(id, d.Name, want[id], d.Stock)
		}
		seen[id] = *d
	}
	for _, id := range ids {
		d := locked[id]
		if err := decrement(d, want[id]); err != nil {
			return nil, err
		}
		if err := rows.SaveStock(ctx, d); err != nil {
			return nil, errors.Wrapf(err, "save stock %s", id)
		}
	}
	return seen, nil
}

// Release restocks the given lines, e.g. when an order is cancelled.
func Release(ctx context.Context, rows Rows, lines []Line) error {
	for _, l := range lines {
		if _, err := IncrementStock(ctx, rows, l.DrugID, l.Quantity); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				// the drug left the catalog; nothing to put back
				continue
			}
			return err
		}
	}
	return nil
}

func lockOne(ctx context.Context, rows Rows, id string) (*Drug, error) {
	if !ValidID(id) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "drug %s", id)
	}
	m, err := rows.LockDrugs(ctx, []string{id})
	if err != nil {
		return nil, errors.Wrap(err, "lock drug")
	}
	d, ok := m[id]
	if !ok {
		return nil, errors.Wrapf(apperr.ErrNotFound, "drug %s", id)
	}
	return d, nil
}
