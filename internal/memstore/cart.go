package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/cart"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
)

type CartRepo struct{ s *Store }

var _ cart.Repository = (*CartRepo)(nil)

func (r *CartRepo) InTx(ctx context.Context, fn func(cart.Tx) error) error {
	return r.s.tx(ctx, func(st *state) error { return fn(cartTx{st}) })
}

type cartTx struct{ st *state }

func (t cartTx) GetOrCreateCart(_ context.Context, userID string) (*cart.Cart, error) {
	if id, ok := t.st.cartByUser[userID]; ok {
		c := t.st.carts[id]
		return &c, nil
	}
	now := time.Now().UTC()
	c := cart.Cart{
		ID: uuid.NewString(), UserID: userID,
		Subtotal: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero,
		CreatedAt: now, UpdatedAt: now,
	}
	t.st.carts[c.ID] = c
	t.st.cartByUser[userID] = c.ID
	return &c, nil
}

func (t cartTx) Items(_ context.Context, cartID string) ([]cart.Item, error) {
	var out []cart.Item
	for _, it := range t.st.cartItems {
		if it.CartID != cartID {
			continue
		}
		if d, ok := t.st.drugs[it.DrugID]; ok {
			it.DrugName = d.Name
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t cartTx) ItemOwner(_ context.Context, itemID string) (string, error) {
	it, ok := t.st.cartItems[itemID]
	if !ok {
		return "", errors.Wrapf(apperr.ErrNotFound, "cart item %s", itemID)
	}
	return t.st.carts[it.CartID].UserID, nil
}

func (t cartTx) InsertItem(_ context.Context, it *cart.Item) error {
	now := time.Now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now
	t.st.cartItems[it.ID] = *it
	return nil
}

func (t cartTx) UpdateItem(_ context.Context, it *cart.Item) error {
	cur, ok := t.st.cartItems[it.ID]
	if !ok {
		return errors.Wrapf(apperr.ErrNotFound, "cart item %s", it.ID)
	}
	cur.Quantity, cur.TotalPrice, cur.UpdatedAt = it.Quantity, it.TotalPrice, time.Now().UTC()
	t.st.cartItems[it.ID] = cur
	return nil
}

func (t cartTx) DeleteItem(_ context.Context, itemID string) error {
	delete(t.st.cartItems, itemID)
	return nil
}

func (t cartTx) DeleteItems(_ context.Context, cartID string) error {
	for id, it := range t.st.cartItems {
		if it.CartID == cartID {
			delete(t.st.cartItems, id)
		}
	}
	return nil
}

func (t cartTx) SaveTotals(_ context.Context, c *cart.Cart) error {
	cur, ok := t.st.carts[c.ID]
	if !ok {
		return errors.Wrapf(apperr.ErrNotFound, "cart %s", c.ID)
	}
	cur.Subtotal, cur.Tax, cur.Total, cur.TotalItems = c.Subtotal, c.Tax, c.Total, c.TotalItems
	cur.UpdatedAt = time.Now().UTC()
	t.st.carts[c.ID] = cur
	return nil
}

func (t cartTx) Drugs(_ context.Context, ids []string) (map[string]*inventory.Drug, error) {
	return t.st.getDrugs(ids), nil
}
