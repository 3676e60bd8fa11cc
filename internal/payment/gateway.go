package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/metrics"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

// Gateway is the external payment provider.
type Gateway interface {
	GenerateReference() string
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	FetchTransaction(ctx context.Context, reference string) (*Outcome, error)
	ParseEvent(body []byte) (*Event, error)
}

type AuthorizationRequest struct {
	Email       string
	AmountMinor int64
	Reference   string
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

type Authorization struct {
	CheckoutURL string
	AccessCode  string
	Reference   string
}

type Card struct {
	AuthorizationCode string `json:"authorization_code"`
	Last4             string `json:"last4"`
	ExpMonth          string `json:"exp_month"`
	ExpYear           string `json:"exp_year"`
	CardType          string `json:"card_type"`
	Bank              string `json:"bank"`
}

// Outcome is a transaction as reported by the gateway.
type Outcome struct {
	Reference       string
	Status          string
	GatewayResponse string
	Channel         string
	AmountMinor     int64
	Currency        string
	FeesMinor       int64
	PaidAt          *time.Time
	Card            Card
	Raw             json.RawMessage
}

// Event is a parsed webhook delivery. Outcome is nil for events that carry
// no transaction.
type Event struct {
	Name    string
	Outcome *Outcome
}

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

type Kind string

const (
	KindSuccess  Kind = "success"
	KindFailed   Kind = "failed"
	KindInFlight Kind = "in_flight"
)

// Classify maps a gateway transaction status onto a reconciliation outcome.
func Classify(status string) Kind {
	switch strings.ToLower(status) {
	case "success":
		return KindSuccess
	case "failed", "reversed":
		return KindFailed
	default: // abandoned, ongoing, pending, processing, queued
		return KindInFlight
	}
}

// Paystack is the HTTP client for the Paystack transaction API.
type Paystack struct {
	HTTP    *http.Client
	BaseURL string
	secret  string
}

func NewPaystack(baseURL, secretKey string, timeout time.Duration) *Paystack {
	return &Paystack{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		secret:  secretKey,
	}
}

// GenerateReference returns HN-PAY-YYYYMMDD-XXXXXXXX.
func (p *Paystack) GenerateReference() string {
	return "HN-PAY-" + time.Now().UTC().Format("20060102") + "-" + order.RandomCode(8)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transaction struct {
	Reference       string  `json:"reference"`
	Status          string  `json:"status"`
	GatewayResponse string  `json:"gateway_response"`
	Channel         string  `json:"channel"`
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency"`
	Fees            *int64  `json:"fees"`
	PaidAt          *string `json:"paid_at"`
	Authorization   Card    `json:"authorization"`
}

func (t transaction) outcome(raw json.RawMessage) *Outcome {
	out := &Outcome{
		Reference:       t.Reference,
		Status:          t.Status,
		GatewayResponse: t.GatewayResponse,
		Channel:         t.Channel,
		AmountMinor:     t.Amount,
		Currency:        t.Currency,
		Card:            t.Authorization,
		Raw:             raw,
	}
	if t.Fees != nil {
		out.FeesMinor = *t.Fees
	}
	if t.PaidAt != nil {
		if ts, err := time.Parse(time.RFC3339, *t.PaidAt); err == nil {
			out.PaidAt = &ts
		}
	}
	return out
}

func (p *Paystack) do(ctx context.Context, op, reference, method, path string, body any) (*envelope, error) {
	start := time.Now()
	env, err := p.exchange(ctx, method, path, body)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GatewayDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Reference: reference, Err: err}
	}
	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = "request declined"
		}
		return nil, &apperr.GatewayError{Op: op, Reference: reference, Message: msg}
	}
	return env, nil
}

func (p *Paystack) exchange(ctx context.Context, method, path string, body any) (*envelope, error) {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request")
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)
	req.Header.Set("Content-Type", "application/json")
	res, err := p.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		if res.StatusCode >= 500 {
			return nil, fmt.Errorf("gateway error: %s", res.Status)
		}
		return nil, errors.Wrap(err, "decode response")
	}
	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway error: %s: %s", res.Status, env.Message)
	}
	return &env, nil
}

func (p *Paystack) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountMinor,
		"reference": req.Reference,
		"currency":  req.Currency,
		"metadata":  req.Metadata,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	env, err := p.do(ctx, "initialize", req.Reference, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &apperr.GatewayError{Op: "initialize", Reference: req.Reference, Err: errors.Wrap(err, "decode data")}
	}
	if data.Reference == "" {
		data.Reference = req.Reference
	}
	return &Authorization{CheckoutURL: data.AuthorizationURL, AccessCode: data.AccessCode, Reference: data.Reference}, nil
}

func (p *Paystack) FetchTransaction(ctx context.Context, reference string) (*Outcome, error) {
	env, err := p.do(ctx, "verify", reference, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	var t transaction
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return nil, &apperr.GatewayError{Op: "verify", Reference: reference, Err: errors.Wrap(err, "decode data")}
	}
	if t.Reference == "" {
		t.Reference = reference
	}
	return t.outcome(env.Data), nil
}

func (p *Paystack) ParseEvent(body []byte) (*Event, error) {
	var raw struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "decode webhook")
	}
	ev := &Event{Name: raw.Event}
	if raw.Event != EventChargeSuccess && raw.Event != EventChargeFailed {
		return ev, nil
	}
	var t transaction
	if err := json.Unmarshal(raw.Data, &t); err != nil {
		return nil, errors.Wrap(err, "decode webhook data")
	}
	if t.Reference == "" {
		return nil, errors.New("webhook without reference")
	}
	ev.Outcome = t.outcome(raw.Data)
	return ev, nil
}
