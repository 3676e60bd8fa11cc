package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Terminal statuses are never left by reconciliation.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type Payment struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"order_id"`
	UserID            string          `json:"user_id"`
	PaymentReference  string          `json:"payment_reference"`
	GatewayReference  string          `json:"gateway_reference,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            Status          `json:"status"`
	Channel           string          `json:"channel,omitempty"`
	AuthorizationURL  string          `json:"authorization_url,omitempty"`
	AccessCode        string          `json:"access_code,omitempty"`
	AuthorizationCode string          `json:"-"`
	CardType          string          `json:"card_type,omitempty"`
	Last4             string          `json:"last4,omitempty"`
	ExpMonth          string          `json:"exp_month,omitempty"`
	ExpYear           string          `json:"exp_year,omitempty"`
	Bank              string          `json:"bank,omitempty"`
	Fees              decimal.Decimal `json:"fees"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	GatewayResponse   json.RawMessage `json:"-"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	FailedAt          *time.Time      `json:"failed_at,omitempty"`
	RefundedAt        *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p *Payment) markPaid(now time.Time, out *Outcome) {
	p.Status = StatusSuccess
	p.PaidAt = &now
	p.UpdatedAt = now
	p.Channel = out.Channel
	p.Fees = FromMinor(out.FeesMinor)
	p.AuthorizationCode = out.Card.AuthorizationCode
	p.CardType = out.Card.CardType
	p.Last4 = out.Card.Last4
	p.ExpMonth = out.Card.ExpMonth
	p.ExpYear = out.Card.ExpYear
	p.Bank = out.Card.Bank
	p.GatewayResponse = out.Raw
	if out.Reference != "" && p.GatewayReference == "" {
		p.GatewayReference = out.Reference
	}
}

func (p *Payment) markFailed(now time.Time, reason string, raw json.RawMessage) {
	p.Status = StatusFailed
	p.FailedAt = &now
	p.UpdatedAt = now
	p.FailureReason = reason
	if raw != nil {
		p.GatewayResponse = raw
	}
}

// Log is one audit record of an exchange touching a payment.
type Log struct {
	ID           string          `json:"id"`
	PaymentID    string          `json:"payment_id"`
	EventType    string          `json:"event_type"`
	Status       string          `json:"status"`
	RequestData  json.RawMessage `json:"request_data,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Client identifies the HTTP caller for the audit log.
type Client struct {
	IP        string
	UserAgent string
}

const (
	SourceVerify   = "verify"
	SourceCallback = "callback"
	SourceWebhook  = "webhook"
)

// InitResult is returned to the client to continue at the gateway.
// swagger:model InitResult
type InitResult struct {
	PaymentID        string `json:"payment_id"`
	PaymentReference string `json:"payment_reference"`
	CheckoutURL      string `json:"checkout_url"`
	AccessCode       string `json:"access_code"`
}

// InitializeRequest payload.
// swagger:model InitializeRequest
type InitializeRequest struct {
	OrderID string `json:"order_id" example:"5b0c2f0e-4d4c-4b9e-9d3a-2a3f1d5e7c11"`
}

// VerifyRequest payload.
// swagger:model VerifyRequest
type VerifyRequest struct {
	Reference string `json:"reference" example:"HN-PAY-20250101-AB12CD34"`
}

// FeeRequest payload.
// swagger:model PaymentFeeRequest
type FeeRequest struct {
	Amount string `json:"amount" example:"150.00"`
}
