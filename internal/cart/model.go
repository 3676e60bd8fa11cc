package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total_amount"`
	TotalItems int             `json:"total_items"`
	Items      []Item          `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Item struct {
	ID         string          `json:"id"`
	CartID     string          `json:"cart_id"`
	DrugID     string          `json:"drug_id"`
	DrugName   string          `json:"drug_name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Recalculate derives the cart totals from items. It is the only place
// totals are written.
func Recalculate(c *Cart, items []Item, taxRate decimal.Decimal) {
	subtotal := decimal.Zero
	n := 0
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
		n += it.Quantity
	}
	if items == nil {
		items = []Item{}
	}
	c.Items = items
	c.Subtotal = subtotal.Round(2)
	c.Tax = subtotal.Mul(taxRate).Round(2)
	c.Total = c.Subtotal.Add(c.Tax)
	c.TotalItems = n
}

const (
	IssueUnavailable       = "no_longer_available"
	IssueInsufficientStock = "insufficient_stock"
	IssuePriceChanged      = "price_changed"
)

// Issue is a diagnostic found by Validate.
type Issue struct {
	ItemID    string           `json:"item_id"`
	DrugID    string           `json:"drug_id"`
	DrugName  string           `json:"drug_name"`
	Kind      string           `json:"issue"`
	Requested int              `json:"requested,omitempty"`
	Available int              `json:"available,omitempty"`
	OldPrice  *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice  *decimal.Decimal `json:"new_price,omitempty"`
}

// AddItemRequest payload.
// swagger:model AddItemRequest
type AddItemRequest struct {
	DrugID   string `json:"drug_id"  example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity int    `json:"quantity" example:"2"`
}

// UpdateItemRequest payload. A quantity of zero or less removes the item.
// swagger:model UpdateItemRequest
type UpdateItemRequest struct {
	Quantity int `json:"quantity" example:"3"`
}
