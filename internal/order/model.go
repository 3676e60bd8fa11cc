package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"order_number"`
	UserID           string          `json:"user_id"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalItems       int             `json:"total_items"`
	Status           Status          `json:"status"`
	StatusUpdatedAt  *time.Time      `json:"status_updated_at,omitempty"`
	StatusUpdatedBy  string          `json:"status_updated_by,omitempty"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PhoneNumber      string          `json:"phone_number"`
	DeliveryNotes    string          `json:"delivery_notes,omitempty"`
	DeliveryArea     string          `json:"delivery_area"`
	DeliveryAddress  string          `json:"delivery_address"`
	DeliveryLandmark string          `json:"delivery_landmark,omitempty"`
	PlacedAt         time.Time       `json:"placed_at"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Items            []Item          `json:"items,omitempty"`
}

// Item is a frozen snapshot of the drug at order time.
type Item struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	DrugID          string          `json:"drug_id"`
	DrugName        string          `json:"drug_name"`
	DrugSlug        string          `json:"drug_slug"`
	DrugDescription string          `json:"drug_description,omitempty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	TotalPrice      decimal.Decimal `json:"total_price"`
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Meta is the delivery information supplied at checkout.
type Meta struct {
	PhoneNumber   string
	DeliveryNotes string
	Area          string
	Address       string
	Landmark      string
}

type Filter struct {
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	Area          string
	Search        string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

type Stats struct {
	Total        int             `json:"total"`
	ByStatus     map[Status]int  `json:"by_status"`
	Paid         int             `json:"paid"`
	PendingPay   int             `json:"payment_pending"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type Analytics struct {
	Stats
	RecentOrders      int `json:"recent_orders"`
	RequiresAttention int `json:"requires_attention"`
}
