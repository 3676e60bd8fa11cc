package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOutOfStock Status = "out_of_stock"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusOutOfStock:
		return true
	}
	return false
}

type Drug struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Status      Status          `json:"status"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsAvailable reports whether the drug can be sold at all.
func (d *Drug) IsAvailable() bool {
	return d.Status == StatusActive && d.Stock > 0
}

func (d *Drug) IsInStock(qty int) bool {
	return d.Stock >= qty
}

func (d *Drug) IsLowStock(threshold int) bool {
	return d.Stock > 0 && d.Stock <= threshold
}

// ValidID reports whether id has the shape of a drug id.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Line is a requested quantity of one drug.
type Line struct {
	DrugID   string `json:"drug_id"`
	Quantity int    `json:"quantity"`
}

type Query struct {
	Q          string
	Status     Status
	LowStock   bool
	OutOfStock bool
	Sort       string // name | stock | price | created_at
	Desc       bool
	Limit      int
	Offset     int
}

type Stats struct {
	Total           int             `json:"total"`
	Active          int             `json:"active"`
	InStock         int             `json:"in_stock"`
	OutOfStock      int             `json:"out_of_stock"`
	LowStock        int             `json:"low_stock"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
}

// ReportRow is one drug line of the inventory report.
type ReportRow struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Status     Status          `json:"status"`
	StockValue decimal.Decimal `json:"stock_value"`
	LowStock   bool            `json:"low_stock"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// CreateDrugRequest payload for catalog registration.
// swagger:model CreateDrugRequest
type CreateDrugRequest struct {
	Name        string     `json:"name"        example:"Paracetamol 500mg"`
	Slug        string     `json:"slug"        example:"paracetamol-500mg"`
	Description string     `json:"description" example:"Pain reliever"`
	Price       string     `json:"price"       example:"12.50"`
	Stock       int        `json:"stock"       example:"40"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// UpdateDrugRequest payload of partial update. Empty fields are left unchanged.
// swagger:model UpdateDrugRequest
type UpdateDrugRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Price       string     `json:"price"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// StockUpdate sets an absolute stock level.
// swagger:model StockUpdate
type StockUpdate struct {
	DrugID string `json:"drug_id"`
	Stock  int    `json:"stock"  example:"25"`
	Reason string `json:"reason" example:"weekly count"`
}
