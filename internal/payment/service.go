package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
	"github.com/MikeMC777/healthnet-pharmacy/internal/events"
	"github.com/MikeMC777/healthnet-pharmacy/internal/metrics"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

const referenceAttempts = 5

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
}

type Config struct {
	Currency      string
	CallbackURL   string
	WebhookSecret string
}

type Service struct {
	repo   Repository
	orders OrderReader
	gw     Gateway
	pub    events.Publisher
	cfg    Config
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(repo Repository, orders OrderReader, gw Gateway, pub events.Publisher, cfg Config, log logrus.FieldLogger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "GHS"
	}
	return &Service{repo: repo, orders: orders, gw: gw, pub: pub, cfg: cfg, log: log, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Initialize creates a pending payment for the order and asks the gateway for
// a checkout session.
func (s *Service) Initialize(ctx context.Context, orderID string, actor auth.Actor, client Client) (*InitResult, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, errors.Wrapf(apperr.ErrNotFound, "order %s", orderID)
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(o.UserID) {
		return nil, errors.Wrapf(apperr.ErrOwnership, "order %s", orderID)
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, errors.Wrapf(apperr.ErrAlreadyPaid, "order %s", o.OrderNumber)
	}
	if o.Status == order.StatusCancelled || o.Status == order.StatusDelivered {
		return nil, errors.Wrapf(apperr.ErrOrderClosed, "order %s is %s", o.OrderNumber, o.Status)
	}
	if actor.Email == "" {
		return nil, apperr.Invalid("an email address is required to pay")
	}

	ref, err := s.uniqueReference(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Payment{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		UserID:           o.UserID,
		PaymentReference: ref,
		Amount:           o.TotalAmount,
		Currency:         s.cfg.Currency,
		Status:           StatusPending,
		Fees:             decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	req := AuthorizationRequest{
		Email:       actor.Email,
		AmountMinor: ToMinor(p.Amount),
		Reference:   ref,
		Currency:    p.Currency,
		CallbackURL: s.cfg.CallbackURL,
		Metadata: map[string]string{
			"order_id":     o.ID,
			"order_number": o.OrderNumber,
			"payment_id":   p.ID,
			"user_id":      o.UserID,
		},
	}
	reqData, _ := json.Marshal(req)
	authz, err := s.gw.CreateAuthorization(ctx, req)
	if err != nil {
		s.initFailed(ctx, p, err, reqData, client)
		return nil, err
	}

	p.GatewayReference = authz.Reference
	p.AuthorizationURL = authz.CheckoutURL
	p.AccessCode = authz.AccessCode
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	respData, _ := json.Marshal(authz)
	s.appendLog(ctx, &Log{
		PaymentID: p.ID, EventType: "initialize", Status: string(p.Status),
		RequestData: reqData, ResponseData: respData, IPAddress: client.IP, UserAgent: client.UserAgent,
	})
	s.log.WithFields(logrus.Fields{
		"payment_id": p.ID, "reference": ref, "order_id": o.ID, "amount": p.Amount.StringFixed(2),
	}).Info("payment initialized")
	return &InitResult{
		PaymentID:        p.ID,
		PaymentReference: ref,
		CheckoutURL:      authz.CheckoutURL,
		AccessCode:       authz.AccessCode,
	}, nil
}

// initFailed records a failed initialization. A declined request fails the
// payment; a transport error leaves it pending so it can still be verified.
func (s *Service) initFailed(ctx context.Context, p *Payment, err error, reqData []byte, client Client) {
	var gwErr *apperr.GatewayError
	if errors.As(err, &gwErr) && gwErr.Err == nil {
		p.markFailed(s.now().UTC(), gwErr.Message, nil)
		if saveErr := s.repo.Save(ctx, p); saveErr != nil {
			s.log.WithError(saveErr).WithField("payment_id", p.ID).Error("save declined payment")
		}
	}
	s.appendLog(ctx, &Log{
		PaymentID: p.ID, EventType: "initialize", Status: string(p.Status), RequestData: reqData,
		ErrorMessage: err.Error(), IPAddress: client.IP, UserAgent: client.UserAgent,
	})
	s.log.WithError(err).WithField("payment_id", p.ID).Warn("payment initialization failed")
}

func (s *Service) uniqueReference(ctx context.Context) (string, error) {
	for i := 0; i < referenceAttempts; i++ {
		ref := s.gw.GenerateReference()
		exists, err := s.repo.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", errors.New("could not allocate a unique payment reference")
}

// Reconcile applies a gateway outcome to the payment it references. Only a
// payment that is still pending or processing can change; a repeated or late
// delivery for a settled payment is a no-op.
func (s *Service) Reconcile(ctx context.Context, source string, out *Outcome, client Client) (*Payment, error) {
	if out == nil || out.Reference == "" {
		return nil, apperr.Invalid("outcome has no reference")
	}
	var (
		p         *Payment
		result    Kind
		duplicate bool
		orphaned  bool
	)
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		p, err = tx.LockPayment(ctx, out.Reference)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			duplicate = true
			return nil
		}

		now := s.now().UTC()
		result = Classify(out.Status)
		switch result {
		case KindSuccess:
			if reason := s.mismatch(p, out); reason != "" {
				result = KindFailed
				p.markFailed(now, reason, out.Raw)
				if err := s.failOrder(ctx, tx, p.OrderID); err != nil {
					return err
				}
				break
			}
			p.markPaid(now, out)
			if out.PaidAt != nil {
				paid := out.PaidAt.UTC()
				p.PaidAt = &paid
			}
			status, paid, err := tx.LockOrderState(ctx, p.OrderID)
			if err != nil {
				return err
			}
			switch {
			case status == order.StatusCancelled:
				// the money was taken but the stock is gone; leave the order
				// unpaid and hand the payment to support for a refund
				orphaned = true
			case paid == order.PaymentPaid:
				s.log.WithFields(logrus.Fields{
					"order_id": p.OrderID, "reference": p.PaymentReference,
				}).Warn("duplicate settlement for an already paid order")
			default:
				if err := tx.SetOrderPaymentStatus(ctx, p.OrderID, order.PaymentPaid); err != nil {
					return err
				}
			}
		case KindFailed:
			reason := out.GatewayResponse
			if reason == "" {
				reason = "payment " + out.Status
			}
			p.markFailed(now, reason, out.Raw)
			if err := s.failOrder(ctx, tx, p.OrderID); err != nil {
				return err
			}
		default:
			if p.Status == StatusPending {
				p.Status = StatusProcessing
				p.UpdatedAt = now
			}
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		return tx.AppendLog(ctx, &Log{
			PaymentID: p.ID, EventType: source, Status: string(p.Status), ResponseData: out.Raw,
			ErrorMessage: p.FailureReason, IPAddress: client.IP, UserAgent: client.UserAgent,
		})
	})
	if err != nil {
		metrics.PaymentsReconciled.WithLabelValues(source, "error").Inc()
		return nil, err
	}

	fields := logrus.Fields{"payment_id": p.ID, "reference": p.PaymentReference, "source": source}
	if duplicate {
		metrics.PaymentsReconciled.WithLabelValues(source, "duplicate").Inc()
		s.log.WithFields(fields).WithField("status", p.Status).Debug("payment already settled")
		return p, nil
	}
	if orphaned {
		metrics.PaymentsReconciled.WithLabelValues(source, "refund_required").Inc()
		s.log.WithFields(fields).WithField("order_id", p.OrderID).Error("payment settled for a cancelled order, refund required")
		events.Emit(ctx, s.pub, s.log, events.PaymentRefundRequired{
			PaymentID: p.ID, Reference: p.PaymentReference, OrderID: p.OrderID, UserID: p.UserID,
			Amount: p.Amount, Reason: "order cancelled", Source: source,
		})
		return p, nil
	}
	metrics.PaymentsReconciled.WithLabelValues(source, string(result)).Inc()
	switch result {
	case KindSuccess:
		s.log.WithFields(fields).Info("payment succeeded")
		events.Emit(ctx, s.pub, s.log, events.PaymentSucceeded{
			PaymentID: p.ID, Reference: p.PaymentReference, OrderID: p.OrderID, UserID: p.UserID,
			Amount: p.Amount, Channel: p.Channel, Source: source,
		})
	case KindFailed:
		s.log.WithFields(fields).WithField("reason", p.FailureReason).Info("payment failed")
		events.Emit(ctx, s.pub, s.log, events.PaymentFailed{
			PaymentID: p.ID, Reference: p.PaymentReference, OrderID: p.OrderID, UserID: p.UserID,
			Reason: p.FailureReason, Source: source,
		})
	default:
		s.log.WithFields(fields).WithField("gateway_status", out.Status).Debug("payment still in flight")
	}
	return p, nil
}

// mismatch returns why a success outcome cannot settle p, or "".
func (s *Service) mismatch(p *Payment, out *Outcome) string {
	if out.Currency != "" && p.Currency != "" && !strings.EqualFold(out.Currency, p.Currency) {
		return "currency mismatch"
	}
	if out.AmountMinor < ToMinor(p.Amount) {
		return "amount mismatch"
	}
	return ""
}

// failOrder marks the order's payment failed unless another payment already
// settled it.
func (s *Service) failOrder(ctx context.Context, tx Tx, orderID string) error {
	_, status, err := tx.LockOrderState(ctx, orderID)
	if err != nil {
		return err
	}
	if status != order.PaymentPending {
		return nil
	}
	return tx.SetOrderPaymentStatus(ctx, orderID, order.PaymentFailed)
}

// Verify is the client-driven check after returning from the gateway.
func (s *Service) Verify(ctx context.Context, reference string, actor auth.Actor, client Client) (*Payment, error) {
	p, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(p.UserID) {
		return nil, errors.Wrapf(apperr.ErrOwnership, "payment %s", reference)
	}
	return s.fetchAndReconcile(ctx, SourceVerify, p, client)
}

// Callback handles the browser redirect from the gateway. The reference is
// the only input; the gateway is the source of truth.
func (s *Service) Callback(ctx context.Context, reference string, client Client) (*Payment, error) {
	if reference == "" {
		return nil, apperr.Invalid("reference is required")
	}
	p, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.fetchAndReconcile(ctx, SourceCallback, p, client)
}

func (s *Service) fetchAndReconcile(ctx context.Context, source string, p *Payment, client Client) (*Payment, error) {
	if p.Status.Terminal() {
		metrics.PaymentsReconciled.WithLabelValues(source, "duplicate").Inc()
		return p, nil
	}
	out, err := s.gw.FetchTransaction(ctx, p.PaymentReference)
	if err != nil {
		s.log.WithError(err).WithField("reference", p.PaymentReference).Warn("fetch transaction failed")
		return nil, err
	}
	out.Reference = p.PaymentReference
	return s.Reconcile(ctx, source, out, client)
}

// HandleWebhook authenticates and applies a gateway notification. Once the
// signature checks out it never fails: the gateway only needs an
// acknowledgement and retries would not fix a local problem.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string, client Client) error {
	log := s.log.WithFields(logrus.Fields{"ip": client.IP, "source": SourceWebhook})
	if !VerifySignature(s.cfg.WebhookSecret, body, signature) {
		metrics.WebhookSignatureFailures.Inc()
		log.WithError(apperr.ErrInvalidSignature).Warn("webhook signature rejected")
		return apperr.ErrInvalidSignature
	}
	ev, err := s.gw.ParseEvent(body)
	if err != nil {
		log.WithError(err).Error("unreadable webhook")
		return nil
	}
	log = log.WithField("event", ev.Name)
	switch ev.Name {
	case EventChargeSuccess, EventChargeFailed:
		if _, err := s.Reconcile(ctx, SourceWebhook, ev.Outcome, client); err != nil {
			if errors.Is(err, apperr.ErrPaymentNotFound) {
				log.WithField("reference", ev.Outcome.Reference).Warn("webhook for unknown payment")
				return nil
			}
			log.WithError(err).WithField("reference", ev.Outcome.Reference).Error("webhook reconciliation failed")
		}
	default:
		log.Info("webhook event ignored")
	}
	return nil
}

// Get returns a payment to its owner or an admin.
func (s *Service) Get(ctx context.Context, id string, actor auth.Actor) (*Payment, error) {
	p, err := s.byID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(p.UserID) {
		return nil, errors.Wrapf(apperr.ErrOwnership, "payment %s", id)
	}
	return p, nil
}

func (s *Service) History(ctx context.Context, actor auth.Actor, limit, offset int) ([]Payment, error) {
	if actor.UserID == "" {
		return nil, errors.Wrap(apperr.ErrOwnership, "anonymous history")
	}
	out, err := s.repo.ListByUser(ctx, actor.UserID, limit, offset)
	if out == nil && err == nil {
		out = []Payment{}
	}
	return out, err
}

func (s *Service) Logs(ctx context.Context, id string, actor auth.Actor) ([]Log, error) {
	if !actor.IsAdmin() {
		return nil, errors.Wrap(apperr.ErrOwnership, "payment logs require an admin")
	}
	if _, err := s.byID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Logs(ctx, id)
}

func (s *Service) byID(ctx context.Context, id string) (*Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(apperr.ErrPaymentNotFound, "payment %s", id)
	}
	return s.repo.GetByID(ctx, id)
}

// MarkRefunded records a refund settled outside the gateway API.
func (s *Service) MarkRefunded(ctx context.Context, reference string, actor auth.Actor) (*Payment, error) {
	if !actor.IsAdmin() {
		return nil, errors.Wrap(apperr.ErrOwnership, "refunds require an admin")
	}
	var p *Payment
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		p, err = tx.LockPayment(ctx, reference)
		if err != nil {
			return err
		}
		if p.Status != StatusSuccess {
			return apperr.Invalid("only successful payments can be refunded, payment is %s", p.Status)
		}
		now := s.now().UTC()
		p.Status = StatusRefunded
		p.RefundedAt = &now
		p.UpdatedAt = now
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		if _, _, err := tx.LockOrderState(ctx, p.OrderID); err != nil {
			return err
		}
		if err := tx.SetOrderPaymentStatus(ctx, p.OrderID, order.PaymentRefunded); err != nil {
			return err
		}
		return tx.AppendLog(ctx, &Log{PaymentID: p.ID, EventType: "refund", Status: string(p.Status)})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"payment_id": p.ID, "by": actor.UserID}).Info("payment refunded")
	return p, nil
}

func (s *Service) appendLog(ctx context.Context, l *Log) {
	if err := s.repo.AppendLog(ctx, l); err != nil {
		s.log.WithError(err).WithField("payment_id", l.PaymentID).Warn("append payment log failed")
	}
}
