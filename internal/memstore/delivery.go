package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/delivery"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

type AreaRepo struct{ s *Store }

var _ delivery.Repository = (*AreaRepo)(nil)

func (r *AreaRepo) GetArea(_ context.Context, code string) (*delivery.Area, error) {
	var out *delivery.Area
	err := r.s.read(func(st *state) error {
		a, ok := st.areas[code]
		if !ok {
			return errors.Wrapf(apperr.ErrNotFound, "area %s", code)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *AreaRepo) ListAreas(_ context.Context, activeOnly bool) ([]delivery.Area, error) {
	var out []delivery.Area
	err := r.s.read(func(st *state) error {
		for _, a := range st.areas {
			if activeOnly && !a.IsActive {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, err
}

func (r *AreaRepo) CreateArea(ctx context.Context, a *delivery.Area) error {
	return r.s.tx(ctx, func(st *state) error {
		if _, ok := st.areas[a.Code]; ok {
			return delivery.ErrDuplicateArea
		}
		now := time.Now().UTC()
		a.CreatedAt, a.UpdatedAt = now, now
		st.areas[a.Code] = *a
		return nil
	})
}

func (r *AreaRepo) UpdateArea(ctx context.Context, a *delivery.Area) error {
	return r.s.tx(ctx, func(st *state) error {
		cur, ok := st.areas[a.Code]
		if !ok {
			return errors.Wrapf(apperr.ErrNotFound, "area %s", a.Code)
		}
		a.CreatedAt, a.UpdatedAt = cur.CreatedAt, time.Now().UTC()
		st.areas[a.Code] = *a
		return nil
	})
}

func (r *AreaRepo) UpsertArea(ctx context.Context, a *delivery.Area) error {
	return r.s.tx(ctx, func(st *state) error {
		now := time.Now().UTC()
		a.CreatedAt, a.UpdatedAt = now, now
		if cur, ok := st.areas[a.Code]; ok {
			a.CreatedAt = cur.CreatedAt
		}
		st.areas[a.Code] = *a
		return nil
	})
}

func (r *AreaRepo) OpenOrders(_ context.Context, area string) ([]delivery.OpenOrder, error) {
	var out []delivery.OpenOrder
	err := r.s.read(func(st *state) error {
		for _, o := range st.orders {
			if o.Status != order.StatusPlaced && o.Status != order.StatusDelivering {
				continue
			}
			if area != "" && o.DeliveryArea != area {
				continue
			}
			out = append(out, delivery.OpenOrder{
				ID: o.ID, OrderNumber: o.OrderNumber, UserID: o.UserID, Status: string(o.Status),
				Area: o.DeliveryArea, Address: o.DeliveryAddress, Landmark: o.DeliveryLandmark,
				Phone: o.PhoneNumber, Total: o.TotalAmount, PlacedAt: o.PlacedAt,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, err
}

func (r *AreaRepo) OrderCounts(_ context.Context) (map[string]int, map[string]int, error) {
	byStatus, byArea := map[string]int{}, map[string]int{}
	err := r.s.read(func(st *state) error {
		for _, o := range st.orders {
			byStatus[string(o.Status)]++
			byArea[o.DeliveryArea]++
		}
		return nil
	})
	return byStatus, byArea, err
}
