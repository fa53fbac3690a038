// Package checkout drives one placeOrder attempt from gateway order creation through
// payment collection and verification to order creation.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storeapi"
	"github.com/google/uuid"
)

const paymentModeOnline = "ONLINE"

// CheckoutAPI is the part of the commerce API the flow needs.
type CheckoutAPI interface {
	CreateGatewayOrder(ctx context.Context, sess session.Session, amount int64) (*storeapi.GatewayOrder, error)
	VerifyPayment(ctx context.Context, sess session.Session, req storeapi.VerifyPaymentRequest) error
	CreateOrder(ctx context.Context, sess session.Session, req storeapi.CreateOrderRequest) (*domain.Order, error)
}

// Recorder journals attempts. Failures are logged and never stop a checkout.
type Recorder interface {
	CreateAttempt(ctx context.Context, a *repository.Attempt) error
	TransitionAttempt(ctx context.Context, id string, to domain.CheckoutStatus, upd repository.AttemptUpdate) (*repository.Attempt, error)
}

type Request struct {
	// AttemptID identifies the attempt to the gateway bridge; generated when empty.
	AttemptID string
	AddressID string
	Cart      domain.PricedCart
	Notes     string
}

type Flow struct {
	api         CheckoutAPI
	gateway     PaymentGateway
	recorder    Recorder
	log         *slog.Logger
	currency    string
	waitTimeout time.Duration
	now         func() time.Time

	mu         sync.Mutex
	sess       session.Session
	processing bool
}

type FlowOption func(*Flow)

func WithRecorder(r Recorder) FlowOption {
	return func(f *Flow) {
		f.recorder = r
	}
}

func WithLogger(l *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.log = l
	}
}

func WithCurrency(c string) FlowOption {
	return func(f *Flow) {
		f.currency = c
	}
}

// WithWaitTimeout bounds the wait for the payment widget. Zero waits until the
// widget reports or the caller's context ends.
func WithWaitTimeout(d time.Duration) FlowOption {
	return func(f *Flow) {
		f.waitTimeout = d
	}
}

func NewFlow(api CheckoutAPI, gateway PaymentGateway, sess session.Session, opts ...FlowOption) *Flow {
	f := &Flow{
		api:      api,
		gateway:  gateway,
		log:      slog.Default(),
		currency: "INR",
		now:      time.Now,
		sess:     sess,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(slog.String(logger.KeyUserID, sess.Subject))
	return f
}

func (f *Flow) SetSession(sess session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess = sess
}

// Processing reports whether an attempt is running.
func (f *Flow) Processing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processing
}

// Validate checks the preconditions of PlaceOrder without touching the network.
func Validate(addressID string, cart domain.PricedCart) error {
	if addressID == "" {
		return fmt.Errorf("%w: select a delivery address", domain.ErrValidation)
	}
	if cart.Snapshot.IsEmpty() {
		return fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	}
	if domain.ToMinorUnits(cart.Totals.GrandTotal) <= 0 {
		return fmt.Errorf("%w: nothing to pay", domain.ErrValidation)
	}
	return nil
}

// PlaceOrder runs one checkout attempt. The order is created only after the commerce API
// has verified the payment, and the same minor-unit amount is used for the gateway order,
// the widget and verification. Every failure ends the attempt; nothing is retried.
func (f *Flow) PlaceOrder(ctx context.Context, req Request) (*domain.Order, error) {
	if err := Validate(req.AddressID, req.Cart); err != nil {
		return nil, err
	}

	f.mu.Lock()
	sess := f.sess
	if err := sess.Check(f.now()); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if f.processing {
		f.mu.Unlock()
		return nil, domain.ErrCheckoutInProgress
	}
	f.processing = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.processing = false
		f.mu.Unlock()
	}()

	if req.AttemptID == "" {
		req.AttemptID = uuid.NewString()
	}
	a := &attempt{
		Flow:   f,
		sess:   sess,
		req:    req,
		amount: domain.ToMinorUnits(req.Cart.Totals.GrandTotal),
		log:    f.log.With(slog.String(logger.KeyAttemptID, req.AttemptID)),
	}
	a.begin(ctx)

	order, err := a.run(ctx)
	if err != nil {
		a.end(ctx, err)
		return nil, err
	}
	a.transition(ctx, domain.CheckoutStatusCompleted, repository.AttemptUpdate{OrderID: order.ID})
	a.log.InfoContext(ctx, "order placed", slog.String("order_id", order.ID), slog.Int64("amount", a.amount))
	return order, nil
}

// attempt holds the values that must stay identical across the steps of one PlaceOrder call.
type attempt struct {
	*Flow
	sess   session.Session
	req    Request
	amount int64
	log    *slog.Logger
}

func (a *attempt) run(ctx context.Context) (*domain.Order, error) {
	if err := a.gateway.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPaymentGatewayUnavailable, err)
	}

	gwOrder, err := a.api.CreateGatewayOrder(ctx, a.sess, a.amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOrderCreation, err)
	}
	if gwOrder.ID == "" {
		return nil, fmt.Errorf("%w: no gateway order id returned", domain.ErrOrderCreation)
	}
	if gwOrder.Amount != 0 && gwOrder.Amount != a.amount {
		return nil, fmt.Errorf("%w: gateway order amount %d, expected %d", domain.ErrOrderCreation, gwOrder.Amount, a.amount)
	}
	currency := a.currency
	if gwOrder.Currency != "" {
		currency = gwOrder.Currency
	}
	a.transition(ctx, domain.CheckoutStatusGatewayOrderCreated, repository.AttemptUpdate{GatewayOrderID: gwOrder.ID})

	outcome, err := a.collect(ctx, domain.PaymentSession{
		AttemptID:      a.req.AttemptID,
		GatewayOrderID: gwOrder.ID,
		Amount:         a.amount,
		Currency:       currency,
	})
	if err != nil {
		return nil, err
	}
	a.transition(ctx, domain.CheckoutStatusPaymentAuthorized, repository.AttemptUpdate{PaymentID: outcome.PaymentID})

	err = a.api.VerifyPayment(ctx, a.sess, storeapi.VerifyPaymentRequest{
		PaymentID:      outcome.PaymentID,
		GatewayOrderID: gwOrder.ID,
		Signature:      outcome.Signature,
		Amount:         a.amount,
		AddressID:      a.req.AddressID,
		ProductIDs:     a.req.Cart.ProductIDs(),
		Currency:       currency,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrVerification, err)
	}
	a.transition(ctx, domain.CheckoutStatusVerified, repository.AttemptUpdate{})

	totals := a.req.Cart.Totals
	coupon := ""
	if a.req.Cart.Promo.Applied {
		coupon = a.req.Cart.Promo.Code
	}
	order, err := a.api.CreateOrder(ctx, a.sess, storeapi.CreateOrderRequest{
		PaymentID:   outcome.PaymentID,
		AddressID:   a.req.AddressID,
		TotalAmount: totals.GrandTotal,
		OrderStatus: domain.OrderStatusPlaced,
		PaymentMode: paymentModeOnline,
		GST:         totals.Tax,
		Discount:    totals.Discount,
		CouponCode:  coupon,
		Notes:       a.req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOrderPersist, err)
	}
	if order == nil || order.ID == "" {
		return nil, fmt.Errorf("%w: order creation not confirmed", domain.ErrOrderPersist)
	}
	return order, nil
}

// collect opens the widget and waits for the user.
func (a *attempt) collect(ctx context.Context, ps domain.PaymentSession) (domain.PaymentOutcome, error) {
	pending, err := a.gateway.CreateSession(ctx, ps)
	if err != nil {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: %w", domain.ErrPaymentGatewayUnavailable, err)
	}
	a.transition(ctx, domain.CheckoutStatusAwaitingPayment, repository.AttemptUpdate{})

	waitCtx := ctx
	if a.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.waitTimeout)
		defer cancel()
	}
	outcome, err := pending.AwaitOutcome(waitCtx)
	if err != nil {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: %w", domain.ErrPaymentFailed, err)
	}

	switch outcome.Kind {
	case domain.OutcomeCancelled:
		return domain.PaymentOutcome{}, domain.ErrPaymentCancelled
	case domain.OutcomeSucceeded:
	default:
		reason := outcome.Reason
		if reason == "" {
			reason = "payment widget error"
		}
		return domain.PaymentOutcome{}, fmt.Errorf("%w: %s", domain.ErrPaymentFailed, reason)
	}

	if outcome.PaymentID == "" || outcome.Signature == "" {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: incomplete payment callback", domain.ErrPaymentFailed)
	}
	if outcome.GatewayOrderID != "" && outcome.GatewayOrderID != ps.GatewayOrderID {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: payment is for gateway order %s, expected %s",
			domain.ErrVerification, outcome.GatewayOrderID, ps.GatewayOrderID)
	}
	return outcome, nil
}

func (a *attempt) begin(ctx context.Context) {
	if a.recorder == nil {
		return
	}
	coupon := ""
	if a.req.Cart.Promo.Applied {
		coupon = a.req.Cart.Promo.Code
	}
	err := a.recorder.CreateAttempt(ctx, &repository.Attempt{
		ID:          a.req.AttemptID,
		UserID:      a.sess.Subject,
		AddressID:   a.req.AddressID,
		AmountMinor: a.amount,
		Currency:    a.currency,
		CouponCode:  coupon,
	})
	if err != nil {
		a.log.WarnContext(ctx, "failed to record checkout attempt", slog.Any(logger.KeyError, err))
	}
}

func (a *attempt) transition(ctx context.Context, to domain.CheckoutStatus, upd repository.AttemptUpdate) {
	if a.recorder == nil {
		return
	}
	// the journal is written even when the caller has gone away
	if _, err := a.recorder.TransitionAttempt(context.WithoutCancel(ctx), a.req.AttemptID, to, upd); err != nil {
		a.log.WarnContext(ctx, "failed to record checkout transition",
			slog.String(logger.KeyStatus, to.String()), slog.Any(logger.KeyError, err))
	}
}

func (a *attempt) end(ctx context.Context, err error) {
	status := domain.CheckoutStatusFailed
	if errors.Is(err, domain.ErrPaymentCancelled) {
		status = domain.CheckoutStatusCancelled
		a.log.InfoContext(ctx, "payment cancelled by user")
	} else {
		a.log.ErrorContext(ctx, "checkout halted", slog.Any(logger.KeyError, err))
	}
	a.transition(ctx, status, repository.AttemptUpdate{FailureReason: err.Error()})
}
