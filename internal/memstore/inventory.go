package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
)

type InventoryRepo struct{ s *Store }

var _ inventory.Repository = (*InventoryRepo)(nil)

func (r *InventoryRepo) GetDrug(_ context.Context, id string) (*inventory.Drug, error) {
	var out *inventory.Drug
	err := r.s.read(func(st *state) error {
		d, ok := st.drugs[id]
		if !ok {
			return errors.Wrapf(apperr.ErrNotFound, "drug %s", id)
		}
		out = &d
		return nil
	})
	return out, err
}

func (r *InventoryRepo) GetDrugs(_ context.Context, ids []string) (map[string]*inventory.Drug, error) {
	var out map[string]*inventory.Drug
	err := r.s.read(func(st *state) error {
		out = st.getDrugs(ids)
		return nil
	})
	return out, err
}

func (st *state) getDrugs(ids []string) map[string]*inventory.Drug {
	out := map[string]*inventory.Drug{}
	for _, id := range ids {
		if d, ok := st.drugs[id]; ok {
			out[id] = &d
		}
	}
	return out
}

func (r *InventoryRepo) ListDrugs(_ context.Context, q inventory.Query, lowStock int) ([]inventory.Drug, error) {
	var out []inventory.Drug
	search := strings.ToLower(strings.TrimSpace(q.Q))
	err := r.s.read(func(st *state) error {
		for _, d := range st.drugs {
			if search != "" && !strings.Contains(strings.ToLower(d.Name), search) &&
				!strings.Contains(strings.ToLower(d.Description), search) {
				continue
			}
			if q.Status != "" && d.Status != q.Status {
				continue
			}
			if q.LowStock && !d.IsLowStock(lowStock) {
				continue
			}
			if q.OutOfStock && d.Stock != 0 {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	sortDrugs(out, q.Sort, q.Desc)
	return page(out, q.Limit, q.Offset), err
}

func sortDrugs(ds []inventory.Drug, by string, desc bool) {
	less := func(a, b inventory.Drug) bool {
		switch by {
		case "stock":
			if a.Stock != b.Stock {
				return a.Stock < b.Stock
			}
		case "price":
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case "created_at":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}
	sort.Slice(ds, func(i, j int) bool {
		if desc {
			return less(ds[j], ds[i])
		}
		return less(ds[i], ds[j])
	})
}

func (r *InventoryRepo) CreateDrug(ctx context.Context, d *inventory.Drug) error {
	return r.s.tx(ctx, func(st *state) error {
		for _, other := range st.drugs {
			if other.Slug == d.Slug {
				return inventory.ErrDuplicateSlug
			}
		}
		now := time.Now().UTC()
		d.CreatedAt, d.UpdatedAt = now, now
		st.drugs[d.ID] = *d
		return nil
	})
}

func (r *InventoryRepo) UpdateDrug(ctx context.Context, d *inventory.Drug) error {
	return r.s.tx(ctx, func(st *state) error {
		cur, ok := st.drugs[d.ID]
		if !ok {
			return errors.Wrapf(apperr.ErrNotFound, "drug %s", d.ID)
		}
		cur.Name, cur.Description, cur.Price = d.Name, d.Description, d.Price
		cur.ExpiryDate = d.ExpiryDate
		cur.UpdatedAt = time.Now().UTC()
		st.drugs[d.ID] = cur
		return nil
	})
}

func (r *InventoryRepo) Statistics(_ context.Context, lowStock int) (inventory.Stats, error) {
	s := inventory.Stats{TotalStockValue: decimal.Zero}
	err := r.s.read(func(st *state) error {
		for _, d := range st.drugs {
			s.Total++
			if d.Status == inventory.StatusActive {
				s.Active++
				s.TotalStockValue = s.TotalStockValue.Add(d.Price.Mul(decimal.NewFromInt(int64(d.Stock))))
			}
			if d.Stock > 0 {
				s.InStock++
			} else {
				s.OutOfStock++
			}
			if d.IsLowStock(lowStock) {
				s.LowStock++
			}
		}
		return nil
	})
	return s, err
}

func (r *InventoryRepo) InTx(ctx context.Context, fn func(inventory.Rows) error) error {
	return r.s.tx(ctx, func(st *state) error { return fn(rows{st}) })
}

// rows implements inventory.Rows on a working copy.
type rows struct{ st *state }

func (r rows) LockDrugs(_ context.Context, ids []string) (map[string]*inventory.Drug, error) {
	return r.st.getDrugs(ids), nil
}

func (r rows) SaveStock(_ context.Context, d *inventory.Drug) error {
	cur, ok := r.st.drugs[d.ID]
	if !ok {
		return errors.Wrapf(apperr.ErrNotFound, "drug %s", d.ID)
	}
	cur.Stock, cur.Status, cur.UpdatedAt = d.Stock, d.Status, time.Now().UTC()
	r.st.drugs[d.ID] = cur
	return nil
}
