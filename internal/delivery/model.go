package delivery

import (
	"time"

	"github.com/shopspring/decimal"
)

type Area struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BaseFee     decimal.Decimal `json:"base_fee"`
	IsActive    bool            `json:"is_active"`
	SortOrder   int             `json:"sort_order"`
	Landmarks   []string        `json:"landmarks"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OpenOrder is the slice of an order the dispatch views need.
type OpenOrder struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	Area        string          `json:"area"`
	Address     string          `json:"address"`
	Landmark    string          `json:"landmark,omitempty"`
	Phone       string          `json:"phone_number"`
	Total       decimal.Decimal `json:"total_amount"`
	PlacedAt    time.Time       `json:"placed_at"`
}

type Quote struct {
	AreaCode   string          `json:"area_code"`
	AreaName   string          `json:"area_name,omitempty"`
	KnownArea  bool            `json:"known_area"`
	BaseFee    decimal.Decimal `json:"base_fee"`
	Fee        decimal.Decimal `json:"fee"`
	OrderValue decimal.Decimal `json:"order_value"`
	Discount   string          `json:"discount"` // none | half | free
}

type Route struct {
	Area       Area        `json:"area"`
	OrderCount int         `json:"order_count"`
	Orders     []OpenOrder `json:"orders"`
}

type Stats struct {
	ByStatus map[string]int `json:"by_status"`
	ByArea   map[string]int `json:"by_area"`
	Areas    int            `json:"areas"`
	Active   int            `json:"active_areas"`
}

// AreaRequest payload for creating or updating an area.
// swagger:model AreaRequest
type AreaRequest struct {
	Code        string   `json:"code"        example:"ayeduase"`
	Name        string   `json:"name"        example:"Ayeduase"`
	Description string   `json:"description"`
	BaseFee     string   `json:"base_fee"    example:"200.00"`
	IsActive    *bool    `json:"is_active"`
	SortOrder   int      `json:"sort_order"`
	Landmarks   []string `json:"landmarks"`
}

// FeeRequest payload for the public fee calculator.
// swagger:model FeeRequest
type FeeRequest struct {
	Area       string `json:"area"        example:"bomso"`
	OrderValue string `json:"order_value" example:"75.00"`
}
