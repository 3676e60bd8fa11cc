package payment_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
	"github.com/MikeMC777/healthnet-pharmacy/internal/cart"
	"github.com/MikeMC777/healthnet-pharmacy/internal/delivery"
	"github.com/MikeMC777/healthnet-pharmacy/internal/events"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/memstore"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
	"github.com/MikeMC777/healthnet-pharmacy/internal/payment"
)

const webhookSecret = "whsec_test"

// fakeGateway answers from a table of outcomes keyed by reference.
type fakeGateway struct {
	mu       sync.Mutex
	n        int
	initErr  error
	outcomes map[string]*payment.Outcome
	fetches  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{outcomes: map[string]*payment.Outcome{}}
}

func (g *fakeGateway) GenerateReference() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("HN-PAY-20250101-%08d", g.n)
}

func (g *fakeGateway) CreateAuthorization(_ context.Context, req payment.AuthorizationRequest) (*payment.Authorization, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &payment.Authorization{
		CheckoutURL: "https://checkout.test/" + req.Reference,
		AccessCode:  "ac_" + req.Reference,
		Reference:   req.Reference,
	}, nil
}

func (g *fakeGateway) FetchTransaction(_ context.Context, reference string) (*payment.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	out, ok := g.outcomes[reference]
	if !ok {
		return nil, &apperr.GatewayError{Op: "verify", Reference: reference, Message: "Transaction reference not found"}
	}
	cp := *out
	return &cp, nil
}

func (g *fakeGateway) ParseEvent(body []byte) (*payment.Event, error) {
	return (&payment.Paystack{}).ParseEvent(body)
}

// recorder keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type())
	}
	return out
}

type fixture struct {
	store  *memstore.Store
	inv    *inventory.Service
	orders *order.Service
	pay    *payment.Service
	gw     *fakeGateway
	hook   *logtest.Hook
	events *recorder
}

var drugSeq atomic.Int64

var customer = auth.Actor{UserID: "u1", Email: "u1@example.com", Role: auth.RoleCustomer}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	store := memstore.New()
	pricing := delivery.DefaultPricing()
	inv := inventory.NewService(store.Inventory(), 10, log)
	areas := delivery.NewService(store.Areas(), pricing, log)
	carts := cart.NewService(store.Carts(), decimal.Zero, log)
	orders := order.NewService(store.Orders(), areas, carts, nil, order.Config{TaxRate: decimal.Zero, Pricing: pricing}, log)
	gw := newFakeGateway()
	rec := &recorder{}
	pay := payment.NewService(store.Payments(), store.Orders(), gw, rec,
		payment.Config{Currency: "GHS", WebhookSecret: webhookSecret}, log)
	return &fixture{store: store, inv: inv, orders: orders, pay: pay, gw: gw, hook: hook, events: rec}
}

// placeOrder orders one unit of a 40.00 drug; the total is 340.00 with the default delivery fee.
func (f *fixture) placeOrder(t *testing.T, actor auth.Actor) *order.Order {
	t.Helper()
	ctx := context.Background()
	d, err := f.inv.Create(ctx, inventory.CreateDrugRequest{Name: fmt.Sprintf("Drug %d", drugSeq.Add(1)), Price: "40.00", Stock: 10})
	require.NoError(t, err)
	o, err := f.orders.CreateFromItems(ctx, actor, []inventory.Line{{DrugID: d.ID, Quantity: 1}},
		order.Meta{PhoneNumber: "0240000000", Address: "Hall 3"})
	require.NoError(t, err)
	return o
}

func (f *fixture) initialize(t *testing.T, o *order.Order) *payment.InitResult {
	t.Helper()
	res, err := f.pay.Initialize(context.Background(), o.ID, customer, payment.Client{IP: "10.0.0.1"})
	require.NoError(t, err)
	return res
}

func successOutcome(ref string, o *order.Order) *payment.Outcome {
	return &payment.Outcome{
		Reference:       ref,
		Status:          "success",
		GatewayResponse: "Approved",
		Channel:         "card",
		AmountMinor:     payment.ToMinor(o.TotalAmount),
		Currency:        "GHS",
		FeesMinor:       1326,
		Card:            payment.Card{Last4: "4081", CardType: "visa", Bank: "TEST BANK"},
		Raw:             []byte(`{"status":"success"}`),
	}
}

func (f *fixture) orderStatus(t *testing.T, id string) order.PaymentStatus {
	t.Helper()
	o, err := f.store.Orders().GetByID(context.Background(), id)
	require.NoError(t, err)
	return o.PaymentStatus
}

func TestInitializeCreatesPendingPayment(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customer)
	require.Equal(t, "340.00", o.TotalAmount.StringFixed(2))

	res := f.initialize(t, o)
	assert.Equal(t, "https://checkout.test/"+res.PaymentReference, res.CheckoutURL)

	p, err := f.pay.Get(context.Background(), res.PaymentID, customer)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, o.ID, p.OrderID)
	assert.True(t, p.Amount.Equal(o.TotalAmount))
	assert.Equal(t, res.PaymentReference, p.GatewayReference)

	logs, err := f.pay.Logs(context.Background(), p.ID, auth.System)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "initialize", logs[0].EventType)
}

func TestInitializeRejectsForeignAndClosedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)

	_, err := f.pay.Initialize(ctx, o.ID, auth.Actor{UserID: "u2", Email: "x@y.z"}, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrOwnership)

	_, err = f.pay.Initialize(ctx, o.ID, auth.Actor{UserID: "u1"}, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.orders.Cancel(ctx, o.ID, customer)
	require.NoError(t, err)
	_, err = f.pay.Initialize(ctx, o.ID, customer, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrOrderClosed)
}

func TestInitializePaidOrderReturnsAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)
	_, err := f.pay.Reconcile(ctx, payment.SourceVerify, successOutcome(res.PaymentReference, o), payment.Client{})
	require.NoError(t, err)

	_, err = f.pay.Initialize(ctx, o.ID, customer, payment.Client{})
	require.ErrorIs(t, err, apperr.ErrAlreadyPaid)

	history, err := f.pay.History(ctx, customer, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, payment.StatusSuccess, history[0].Status)
}

func TestInitializeGatewayFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gw.initErr = &apperr.GatewayError{Op: "initialize", Message: "Invalid amount"}
	o := f.placeOrder(t, customer)
	_, err := f.pay.Initialize(ctx, o.ID, customer, payment.Client{})
	require.ErrorIs(t, err, apperr.ErrGateway)
	history, err := f.pay.History(ctx, customer, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, payment.StatusFailed, history[0].Status)
	assert.Equal(t, "Invalid amount", history[0].FailureReason)

	f.gw.initErr = &apperr.GatewayError{Op: "initialize", Err: context.DeadlineExceeded}
	_, err = f.pay.Initialize(ctx, o.ID, customer, payment.Client{})
	require.ErrorIs(t, err, apperr.ErrGateway)
	history, err = f.pay.History(ctx, customer, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	statuses := []payment.Status{history[0].Status, history[1].Status}
	assert.Contains(t, statuses, payment.StatusPending)
	assert.Equal(t, order.PaymentPending, f.orderStatus(t, o.ID))
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)
	out := successOutcome(res.PaymentReference, o)

	first, err := f.pay.Reconcile(ctx, payment.SourceWebhook, out, payment.Client{})
	require.NoError(t, err)
	require.Equal(t, payment.StatusSuccess, first.Status)
	require.NotNil(t, first.PaidAt)
	assert.Equal(t, "4081", first.Last4)
	assert.Equal(t, "13.26", first.Fees.StringFixed(2))

	second, err := f.pay.Reconcile(ctx, payment.SourceVerify, out, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, second.Status)
	assert.True(t, first.PaidAt.Equal(*second.PaidAt))
	assert.Equal(t, order.PaymentPaid, f.orderStatus(t, o.ID))

	logs, err := f.pay.Logs(ctx, res.PaymentID, auth.System)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "initialize plus one reconciliation")
}

func TestConcurrentReconcileAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)
	out := successOutcome(res.PaymentReference, o)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			_, err := f.pay.Reconcile(ctx, source, out, payment.Client{})
			assert.NoError(t, err)
		}([]string{payment.SourceVerify, payment.SourceCallback, payment.SourceWebhook}[i%3])
	}
	wg.Wait()

	logs, err := f.pay.Logs(ctx, res.PaymentID, auth.System)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Equal(t, order.PaymentPaid, f.orderStatus(t, o.ID))
}

func TestReconcileFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)

	p, err := f.pay.Reconcile(ctx, payment.SourceWebhook, &payment.Outcome{
		Reference: res.PaymentReference, Status: "failed", GatewayResponse: "Declined",
	}, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, "Declined", p.FailureReason)
	require.NotNil(t, p.FailedAt)
	assert.Equal(t, order.PaymentFailed, f.orderStatus(t, o.ID))

	p, err = f.pay.Reconcile(ctx, payment.SourceVerify, successOutcome(res.PaymentReference, o), payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Nil(t, p.PaidAt)
}

func TestReconcileInFlightThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)

	p, err := f.pay.Reconcile(ctx, payment.SourceVerify, &payment.Outcome{Reference: res.PaymentReference, Status: "ongoing"}, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, p.Status)
	assert.Nil(t, p.PaidAt)
	assert.Nil(t, p.FailedAt)

	p, err = f.pay.Reconcile(ctx, payment.SourceWebhook, successOutcome(res.PaymentReference, o), payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)
}

func TestReconcileAmountMismatchFails(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)
	out := successOutcome(res.PaymentReference, o)
	out.AmountMinor = 100

	p, err := f.pay.Reconcile(context.Background(), payment.SourceWebhook, out, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, "amount mismatch", p.FailureReason)
	assert.NotEqual(t, order.PaymentPaid, f.orderStatus(t, o.ID))
}

func TestReconcileCurrencyMismatchFails(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)
	out := successOutcome(res.PaymentReference, o)
	out.Currency = "NGN"

	p, err := f.pay.Reconcile(context.Background(), payment.SourceWebhook, out, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, "currency mismatch", p.FailureReason)
	assert.Equal(t, order.PaymentFailed, f.orderStatus(t, o.ID))
}

func TestSettlementAfterCancelFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	drugID := o.Items[0].DrugID
	res := f.initialize(t, o)

	cancelled, err := f.orders.Cancel(ctx, o.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	f.gw.outcomes[res.PaymentReference] = successOutcome(res.PaymentReference, o)
	p, err := f.pay.Verify(ctx, res.PaymentReference, customer, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)

	got, err := f.store.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.NotEqual(t, order.PaymentPaid, got.PaymentStatus)

	d, err := f.inv.Get(ctx, drugID)
	require.NoError(t, err)
	assert.Equal(t, 10, d.Stock, "cancelled stock stays released")

	assert.Contains(t, f.events.types(), "payment.refund_required")
	assert.NotContains(t, f.events.types(), "payment.succeeded")
	require.NotNil(t, f.hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, f.hook.LastEntry().Level)

	refunded, err := f.pay.MarkRefunded(ctx, res.PaymentReference, auth.System)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, refunded.Status)
	assert.Equal(t, order.PaymentRefunded, f.orderStatus(t, o.ID))
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pay.Initialize(ctx, "abc", customer, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.pay.Get(ctx, "abc", customer)
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)
	_, err = f.pay.Logs(ctx, "abc", auth.System)
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)
}

func TestReconcileUnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.pay.Reconcile(context.Background(), payment.SourceVerify, &payment.Outcome{Reference: "nope", Status: "success"}, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)
}

func TestSecondPaymentOnPaidOrderKeepsOrderPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	first := f.initialize(t, o)
	second := f.initialize(t, o)

	_, err := f.pay.Reconcile(ctx, payment.SourceWebhook, successOutcome(first.PaymentReference, o), payment.Client{})
	require.NoError(t, err)
	_, err = f.pay.Reconcile(ctx, payment.SourceWebhook, successOutcome(second.PaymentReference, o), payment.Client{})
	require.NoError(t, err)

	assert.Equal(t, order.PaymentPaid, f.orderStatus(t, o.ID))
	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "duplicate settlement for an already paid order" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestVerifyAndCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)

	_, err := f.pay.Verify(ctx, res.PaymentReference, auth.Actor{UserID: "u2"}, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrOwnership)

	_, err = f.pay.Verify(ctx, res.PaymentReference, customer, payment.Client{})
	assert.ErrorIs(t, err, apperr.ErrGateway)

	f.gw.outcomes[res.PaymentReference] = successOutcome(res.PaymentReference, o)
	p, err := f.pay.Callback(ctx, res.PaymentReference, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)

	fetches := f.gw.fetches
	p, err = f.pay.Verify(ctx, res.PaymentReference, customer, payment.Client{})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, p.Status)
	assert.Equal(t, fetches, f.gw.fetches, "settled payments are not re-fetched")
}

func webhookBody(event, ref string, amountMinor int64) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"status":"success","amount":%d,"channel":"card","fees":500,"paid_at":"2025-01-01T10:00:00Z","authorization":{"last4":"4081","card_type":"visa"}}}`,
		event, ref, amountMinor))
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)
	body := webhookBody(payment.EventChargeSuccess, res.PaymentReference, payment.ToMinor(o.TotalAmount))

	t.Run("tampered body is rejected without state change", func(t *testing.T) {
		sig := payment.Sign(webhookSecret, body)
		tampered := append([]byte(nil), body...)
		tampered[len(tampered)-3] = ' '
		err := f.pay.HandleWebhook(ctx, tampered, sig, payment.Client{IP: "1.2.3.4"})
		require.ErrorIs(t, err, apperr.ErrInvalidSignature)

		entry := f.hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "webhook signature rejected", entry.Message)
		assert.Equal(t, order.PaymentPending, f.orderStatus(t, o.ID))
	})

	t.Run("valid delivery settles, redelivery is acknowledged", func(t *testing.T) {
		sig := payment.Sign(webhookSecret, body)
		require.NoError(t, f.pay.HandleWebhook(ctx, body, sig, payment.Client{}))
		require.NoError(t, f.pay.HandleWebhook(ctx, body, sig, payment.Client{}))
		assert.Equal(t, order.PaymentPaid, f.orderStatus(t, o.ID))

		p, err := f.pay.Get(ctx, res.PaymentID, customer)
		require.NoError(t, err)
		require.NotNil(t, p.PaidAt)
		assert.Equal(t, 2025, p.PaidAt.Year())
	})

	t.Run("unknown reference and unknown events are acknowledged", func(t *testing.T) {
		unknown := webhookBody(payment.EventChargeSuccess, "HN-PAY-UNKNOWN", 100)
		assert.NoError(t, f.pay.HandleWebhook(ctx, unknown, payment.Sign(webhookSecret, unknown), payment.Client{}))

		other := []byte(`{"event":"transfer.success","data":{}}`)
		assert.NoError(t, f.pay.HandleWebhook(ctx, other, payment.Sign(webhookSecret, other), payment.Client{}))
	})
}

func TestMarkRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.placeOrder(t, customer)
	res := f.initialize(t, o)

	_, err := f.pay.MarkRefunded(ctx, res.PaymentReference, auth.System)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.pay.Reconcile(ctx, payment.SourceWebhook, successOutcome(res.PaymentReference, o), payment.Client{})
	require.NoError(t, err)

	_, err = f.pay.MarkRefunded(ctx, res.PaymentReference, customer)
	assert.ErrorIs(t, err, apperr.ErrOwnership)

	p, err := f.pay.MarkRefunded(ctx, res.PaymentReference, auth.System)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, p.Status)
	require.NotNil(t, p.RefundedAt)
	assert.Equal(t, order.PaymentRefunded, f.orderStatus(t, o.ID))
}
