package cart

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
)

type Service struct {
	repo    Repository
	taxRate decimal.Decimal
	log     logrus.FieldLogger
}

func NewService(repo Repository, taxRate decimal.Decimal, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, taxRate: taxRate, log: log}
}

// Get returns the caller's cart, creating it on first access.
func (s *Service) Get(ctx context.Context, actor auth.Actor) (*Cart, error) {
	var out *Cart
	err := s.repo.InTx(ctx, func(tx Tx) error {
		c, items, err := s.load(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		Recalculate(c, items, s.taxRate)
		out = c
		return nil
	})
	return out, err
}

func (s *Service) AddItem(ctx context.Context, actor auth.Actor, drugID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, apperr.Invalid("quantity must be positive")
	}
	return s.mutate(ctx, actor, func(tx Tx, c *Cart, items []Item) ([]Item, error) {
		d, err := drug(ctx, tx, drugID)
		if err != nil {
			return nil, err
		}
		if !d.IsAvailable() {
			return nil, apperr.Unavailable(d.ID, d.Name)
		}
		for i := range items {
			it := &items[i]
			if it.DrugID != drugID {
				continue
			}
			if qty > d.Stock-it.Quantity {
				want := it.Quantity + qty
				if want < it.Quantity {
					want = math.MaxInt
				}
				return nil, apperr.InsufficientStock(d.ID, d.Name, want, d.Stock)
			}
			want := it.Quantity + qty
			it.Quantity = want
			it.TotalPrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(want)))
			return items, tx.UpdateItem(ctx, it)
		}
		if !d.IsInStock(qty) {
			return nil, apperr.InsufficientStock(d.ID, d.Name, qty, d.Stock)
		}
		it := Item{
			ID:         uuid.NewString(),
			CartID:     c.ID,
			DrugID:     d.ID,
			DrugName:   d.Name,
			Quantity:   qty,
			UnitPrice:  d.Price,
			TotalPrice: d.Price.Mul(decimal.NewFromInt(int64(qty))),
		}
		if err := tx.InsertItem(ctx, &it); err != nil {
			return nil, err
		}
		return append(items, it), nil
	})
}

// UpdateItemQuantity rewrites an item's quantity; qty <= 0 removes it.
func (s *Service) UpdateItemQuantity(ctx context.Context, actor auth.Actor, itemID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, actor, itemID)
	}
	return s.mutate(ctx, actor, func(tx Tx, c *Cart, items []Item) ([]Item, error) {
		idx, err := findItem(ctx, tx, actor, items, itemID)
		if err != nil {
			return nil, err
		}
		it := &items[idx]
		d, err := drug(ctx, tx, it.DrugID)
		if err != nil {
			return nil, err
		}
		if !d.IsAvailable() {
			return nil, apperr.Unavailable(d.ID, d.Name)
		}
		if !d.IsInStock(qty) {
			return nil, apperr.InsufficientStock(d.ID, d.Name, qty, d.Stock)
		}
		it.Quantity = qty
		it.TotalPrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		return items, tx.UpdateItem(ctx, it)
	})
}

func (s *Service) RemoveItem(ctx context.Context, actor auth.Actor, itemID string) (*Cart, error) {
	return s.mutate(ctx, actor, func(tx Tx, c *Cart, items []Item) ([]Item, error) {
		idx, err := findItem(ctx, tx, actor, items, itemID)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteItem(ctx, itemID); err != nil {
			return nil, err
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
}

// Clear empties the cart but keeps the cart record.
func (s *Service) Clear(ctx context.Context, actor auth.Actor) (*Cart, error) {
	return s.mutate(ctx, actor, func(tx Tx, c *Cart, _ []Item) ([]Item, error) {
		return nil, tx.DeleteItems(ctx, c.ID)
	})
}

// Validate reports stale or unfillable items without changing anything.
func (s *Service) Validate(ctx context.Context, actor auth.Actor) ([]Issue, error) {
	issues := []Issue{}
	err := s.repo.InTx(ctx, func(tx Tx) error {
		_, items, err := s.load(ctx, tx, actor.UserID)
		if err != nil || len(items) == 0 {
			return err
		}
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.DrugID)
		}
		drugs, err := tx.Drugs(ctx, ids)
		if err != nil {
			return err
		}
		for _, it := range items {
			issues = append(issues, inspect(it, drugs[it.DrugID])...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func inspect(it Item, d *inventory.Drug) []Issue {
	base := Issue{ItemID: it.ID, DrugID: it.DrugID, DrugName: it.DrugName}
	if d == nil || !d.IsAvailable() {
		base.Kind = IssueUnavailable
		return []Issue{base}
	}
	var out []Issue
	if !d.IsInStock(it.Quantity) {
		iss := base
		iss.Kind = IssueInsufficientStock
		iss.Requested = it.Quantity
		iss.Available = d.Stock
		out = append(out, iss)
	}
	if !d.Price.Equal(it.UnitPrice) {
		iss := base
		iss.Kind = IssuePriceChanged
		oldPrice, newPrice := it.UnitPrice, d.Price
		iss.OldPrice, iss.NewPrice = &oldPrice, &newPrice
		out = append(out, iss)
	}
	return out
}

// Lines returns the cart content as order lines.
func (s *Service) Lines(ctx context.Context, actor auth.Actor) ([]inventory.Line, error) {
	var lines []inventory.Line
	err := s.repo.InTx(ctx, func(tx Tx) error {
		_, items, err := s.load(ctx, tx, actor.UserID)
		for _, it := range items {
			lines = append(lines, inventory.Line{DrugID: it.DrugID, Quantity: it.Quantity})
		}
		return err
	})
	return lines, err
}

func (s *Service) load(ctx context.Context, tx Tx, userID string) (*Cart, []Item, error) {
	if userID == "" {
		return nil, nil, errors.Wrap(apperr.ErrOwnership, "anonymous cart")
	}
	c, err := tx.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	items, err := tx.Items(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, items, nil
}

// mutate runs fn on the locked cart and persists the recalculated totals.
func (s *Service) mutate(ctx context.Context, actor auth.Actor, fn func(Tx, *Cart, []Item) ([]Item, error)) (*Cart, error) {
	var out *Cart
	err := s.repo.InTx(ctx, func(tx Tx) error {
		c, items, err := s.load(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		items, err = fn(tx, c, items)
		if err != nil {
			return err
		}
		Recalculate(c, items, s.taxRate)
		if err := tx.SaveTotals(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"cart_id": out.ID, "total_items": out.TotalItems}).Debug("cart updated")
	return out, nil
}

func findItem(ctx context.Context, tx Tx, actor auth.Actor, items []Item, itemID string) (int, error) {
	for i := range items {
		if items[i].ID == itemID {
			return i, nil
		}
	}
	if _, err := uuid.Parse(itemID); err != nil {
		return -1, errors.Wrapf(apperr.ErrNotFound, "cart item %s", itemID)
	}
	owner, err := tx.ItemOwner(ctx, itemID)
	if err != nil {
		return -1, err
	}
	if !actor.Owns(owner) {
		return -1, errors.Wrapf(apperr.ErrOwnership, "cart item %s", itemID)
	}
	return -1, errors.Wrapf(apperr.ErrNotFound, "cart item %s", itemID)
}

func drug(ctx context.Context, tx Tx, id string) (*inventory.Drug, error) {
	if !inventory.ValidID(id) {
		return nil, apperr.Unavailable(id, "")
	}
	m, err := tx.Drugs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	d, ok := m[id]
	if !ok {
		return nil, apperr.Unavailable(id, "")
	}
	return d, nil
}
