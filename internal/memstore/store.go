// Package memstore is an in-process implementation of every repository,
// used by the memory store driver and by tests. A transaction works on a
// copy of the state and swaps it in on success, so a failed transaction
// leaves nothing behind. Transactions are serialized by one mutex.
package memstore

import (
	"context"
	"sync"

	"github.com/MikeMC777/healthnet-pharmacy/internal/cart"
	"github.com/MikeMC777/healthnet-pharmacy/internal/delivery"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
	"github.com/MikeMC777/healthnet-pharmacy/internal/payment"
)

type state struct {
	drugs       map[string]inventory.Drug
	carts       map[string]cart.Cart
	cartByUser  map[string]string
	cartItems   map[string]cart.Item
	orders      map[string]order.Order
	orderItems  map[string][]order.Item
	payments    map[string]payment.Payment
	paymentLogs []payment.Log
	areas       map[string]delivery.Area
}

func newState() *state {
	return &state{
		drugs:      map[string]inventory.Drug{},
		carts:      map[string]cart.Cart{},
		cartByUser: map[string]string{},
		cartItems:  map[string]cart.Item{},
		orders:     map[string]order.Order{},
		orderItems: map[string][]order.Item{},
		payments:   map[string]payment.Payment{},
		areas:      map[string]delivery.Area{},
	}
}

// clone copies the maps. Values are structs; slices inside them are
// replaced on write, never mutated, so sharing them is safe.
func (s *state) clone() *state {
	c := &state{
		drugs:       make(map[string]inventory.Drug, len(s.drugs)),
		carts:       make(map[string]cart.Cart, len(s.carts)),
		cartByUser:  make(map[string]string, len(s.cartByUser)),
		cartItems:   make(map[string]cart.Item, len(s.cartItems)),
		orders:      make(map[string]order.Order, len(s.orders)),
		orderItems:  make(map[string][]order.Item, len(s.orderItems)),
		payments:    make(map[string]payment.Payment, len(s.payments)),
		paymentLogs: append([]payment.Log(nil), s.paymentLogs...),
		areas:       make(map[string]delivery.Area, len(s.areas)),
	}
	for k, v := range s.drugs {
		c.drugs[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartByUser {
		c.cartByUser[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.areas {
		c.areas[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

// tx runs fn against a working copy and commits it if fn succeeds.
func (s *Store) tx(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

// read runs fn against the committed state.
func (s *Store) read(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }
func (s *Store) Carts() *CartRepo          { return &CartRepo{s: s} }
func (s *Store) Orders() *OrderRepo        { return &OrderRepo{s: s} }
func (s *Store) Payments() *PaymentRepo    { return &PaymentRepo{s: s} }
func (s *Store) Areas() *AreaRepo          { return &AreaRepo{s: s} }

func page[T any](in []T, limit, offset int) []T {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
