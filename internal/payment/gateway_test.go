package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
)

func newPaystackServer(t *testing.T, h http.HandlerFunc) *Paystack {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewPaystack(srv.URL+"/", "sk_test", 2*time.Second)
}

func TestPaystackCreateAuthorization(t *testing.T) {
	var got map[string]any
	ps := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"HN-PAY-1"}}`))
	})

	a, err := ps.CreateAuthorization(context.Background(), AuthorizationRequest{
		Email: "a@b.c", AmountMinor: 34000, Reference: "HN-PAY-1", Currency: "GHS",
		Metadata: map[string]string{"order_id": "o1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", a.CheckoutURL)
	assert.Equal(t, "abc", a.AccessCode)
	assert.Equal(t, float64(34000), got["amount"])
	assert.Equal(t, "GHS", got["currency"])
}

func TestPaystackDeclineAndTransportErrors(t *testing.T) {
	declined := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
	})
	_, err := declined.CreateAuthorization(context.Background(), AuthorizationRequest{Reference: "r1"})
	require.ErrorIs(t, err, apperr.ErrGateway)
	var gw *apperr.GatewayError
	require.True(t, errors.As(err, &gw))
	assert.Equal(t, "Invalid key", gw.Message)
	assert.Nil(t, gw.Err)

	broken := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})
	_, err = broken.FetchTransaction(context.Background(), "r1")
	require.ErrorIs(t, err, apperr.ErrGateway)
	require.True(t, errors.As(err, &gw))
	assert.NotNil(t, gw.Err)
	assert.Equal(t, "r1", gw.Reference)
}

func TestPaystackFetchTransaction(t *testing.T) {
	ps := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/HN-PAY-2", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"reference":"HN-PAY-2","status":"success","gateway_response":"Successful","channel":"card",
			"amount":12050,"currency":"GHS","fees":null,"paid_at":"2025-03-01T09:30:00.000Z",
			"authorization":{"authorization_code":"AUTH_1","last4":"4081","exp_month":"12","exp_year":"2030","card_type":"visa","bank":"TEST BANK"}}}`))
	})

	out, err := ps.FetchTransaction(context.Background(), "HN-PAY-2")
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, Classify(out.Status))
	assert.Equal(t, int64(12050), out.AmountMinor)
	assert.Zero(t, out.FeesMinor)
	require.NotNil(t, out.PaidAt)
	assert.Equal(t, 2025, out.PaidAt.Year())
	assert.Equal(t, "4081", out.Card.Last4)
	assert.Equal(t, "AUTH_1", out.Card.AuthorizationCode)
	assert.NotEmpty(t, out.Raw)
}

func TestParseEvent(t *testing.T) {
	ps := &Paystack{}
	ev, err := ps.ParseEvent([]byte(`{"event":"charge.success","data":{"reference":"r1","status":"success","amount":500}}`))
	require.NoError(t, err)
	assert.Equal(t, EventChargeSuccess, ev.Name)
	require.NotNil(t, ev.Outcome)
	assert.Equal(t, "r1", ev.Outcome.Reference)

	ev, err = ps.ParseEvent([]byte(`{"event":"transfer.success","data":{}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Outcome)

	_, err = ps.ParseEvent([]byte(`{"event":"charge.success","data":{"status":"success"}}`))
	assert.Error(t, err)

	_, err = ps.ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindSuccess, Classify("success"))
	assert.Equal(t, KindSuccess, Classify("SUCCESS"))
	assert.Equal(t, KindFailed, Classify("failed"))
	assert.Equal(t, KindFailed, Classify("reversed"))
	for _, s := range []string{"abandoned", "ongoing", "pending", "processing", "queued", ""} {
		assert.Equal(t, KindInFlight, Classify(s), s)
	}
}

func TestGenerateReferenceFormat(t *testing.T) {
	ref := (&Paystack{}).GenerateReference()
	require.True(t, strings.HasPrefix(ref, "HN-PAY-"), ref)
	parts := strings.Split(ref, "-")
	require.Len(t, parts, 4)
	assert.Len(t, parts[2], 8)
	assert.Len(t, parts[3], 8)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	sig := Sign("whsec", body)
	assert.Len(t, sig, 128)
	assert.True(t, VerifySignature("whsec", body, sig))
	assert.True(t, VerifySignature("whsec", body, strings.ToUpper(sig)))
	assert.False(t, VerifySignature("whsec", []byte(`{"event":"charge.failed"}`), sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("whsec", body, ""))
	assert.False(t, VerifySignature("", body, sig))
	assert.False(t, VerifySignature("whsec", body, "zz"))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, int64(12050), ToMinor(decimal.RequireFromString("120.50")))
	assert.Equal(t, int64(1), ToMinor(decimal.RequireFromString("0.005")))
	assert.True(t, FromMinor(12050).Equal(decimal.RequireFromString("120.5")))

	f := CalculateFees(decimal.NewFromInt(100))
	assert.Equal(t, "6.85", f.Fee.StringFixed(2))
	assert.Equal(t, "106.85", f.Total.StringFixed(2))

	small := CalculateFees(decimal.NewFromInt(10))
	assert.Equal(t, "0.39", small.Fee.StringFixed(2))
}
