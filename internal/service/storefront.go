// Package service keeps one cart flow and one checkout flow per signed-in user and runs
// checkout attempts in the background while the browser hosts the payment widget.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/session"
	"github.com/google/uuid"
)

const (
	// IdleTTL is how long a user's flows are kept after their last request
	IdleTTL = 30 * time.Minute

	// CleanupInterval is how often idle users are evicted
	CleanupInterval = time.Minute
)

// StoreAPI is everything the storefront needs from the commerce API.
type StoreAPI interface {
	cart.CartAPI
	checkout.CheckoutAPI
	GetAddresses(ctx context.Context, sess session.Session) ([]domain.DeliveryAddress, error)
}

type Storefront struct {
	api         StoreAPI
	bridge      *checkout.Bridge
	cache       cache.SnapshotCache
	recorder    checkout.Recorder
	log         *slog.Logger
	currency    string
	waitTimeout time.Duration
	idleTTL     time.Duration
	now         func() time.Time

	mu    sync.Mutex
	users map[string]*userFlows

	stopCleanup chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

type Option func(*Storefront)

func WithCache(c cache.SnapshotCache) Option {
	return func(s *Storefront) {
		s.cache = c
	}
}

func WithRecorder(r checkout.Recorder) Option {
	return func(s *Storefront) {
		s.recorder = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Storefront) {
		s.log = l
	}
}

func WithCurrency(c string) Option {
	return func(s *Storefront) {
		s.currency = c
	}
}

func WithPaymentWaitTimeout(d time.Duration) Option {
	return func(s *Storefront) {
		s.waitTimeout = d
	}
}

func WithIdleTTL(d time.Duration) Option {
	return func(s *Storefront) {
		s.idleTTL = d
	}
}

type userFlows struct {
	cart     *cart.Flow
	checkout *checkout.Flow
	lastSeen time.Time
	attempt  *Attempt
}

// Attempt is a checkout running in the background.
type Attempt struct {
	ID    string
	done  chan struct{}
	order *domain.Order
	err   error
}

func (a *Attempt) finish(order *domain.Order, err error) {
	a.order, a.err = order, err
	close(a.done)
}

func (a *Attempt) Done() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the attempt ends or ctx is done.
func (a *Attempt) Wait(ctx context.Context) (*domain.Order, error) {
	select {
	case <-a.done:
		return a.order, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func New(api StoreAPI, bridge *checkout.Bridge, opts ...Option) *Storefront {
	s := &Storefront{
		api:         api,
		bridge:      bridge,
		log:         slog.Default(),
		currency:    "INR",
		idleTTL:     IdleTTL,
		now:         time.Now,
		users:       make(map[string]*userFlows),
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *Storefront) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stopCleanup:
			return
		}
	}
}

// evictIdle drops users that have been idle past the TTL and have nothing in flight.
func (s *Storefront) evictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.idleTTL)
	evicted := 0
	for subject, u := range s.users {
		if u.lastSeen.After(cutoff) {
			continue
		}
		if u.attempt != nil && !u.attempt.Done() {
			continue
		}
		if u.cart.State().Mutating() {
			continue
		}
		u.cart.Detach()
		delete(s.users, subject)
		evicted++
	}
	return evicted
}

// user returns the flows of the session's subject, creating them on first use and
// refreshing the credential they carry.
func (s *Storefront) user(sess session.Session) *userFlows {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[sess.Subject]
	if !ok {
		log := s.log.With(slog.String(logger.KeyUserID, sess.Subject))
		cartOpts := []cart.FlowOption{cart.WithLogger(s.log)}
		if s.cache != nil {
			cartOpts = append(cartOpts, cart.WithCache(s.cache))
		}
		checkoutOpts := []checkout.FlowOption{
			checkout.WithLogger(s.log),
			checkout.WithCurrency(s.currency),
			checkout.WithWaitTimeout(s.waitTimeout),
		}
		if s.recorder != nil {
			checkoutOpts = append(checkoutOpts, checkout.WithRecorder(s.recorder))
		}
		u = &userFlows{
			cart:     cart.NewFlow(s.api, sess, cartOpts...),
			checkout: checkout.NewFlow(s.api, s.bridge, sess, checkoutOpts...),
		}
		s.users[sess.Subject] = u
		log.Debug("user flows created")
	} else {
		u.cart.SetSession(sess)
		u.checkout.SetSession(sess)
	}
	u.lastSeen = s.now()
	return u
}

// Cart returns the cart flow of the session's user.
func (s *Storefront) Cart(sess session.Session) *cart.Flow {
	return s.user(sess).cart
}

func (s *Storefront) Addresses(ctx context.Context, sess session.Session) ([]domain.DeliveryAddress, error) {
	if err := sess.Check(s.now()); err != nil {
		return nil, err
	}
	return s.api.GetAddresses(ctx, sess)
}

// StartCheckout begins a checkout attempt for the user's reconciled cart and returns once
// the payment widget can be opened, or the attempt has already ended.
func (s *Storefront) StartCheckout(ctx context.Context, sess session.Session, addressID string) (checkout.WidgetParams, error) {
	if err := sess.Check(s.now()); err != nil {
		return checkout.WidgetParams{}, err
	}
	u := s.user(sess)

	priced, err := u.cart.Priced()
	if err != nil {
		return checkout.WidgetParams{}, err
	}
	if err := checkout.Validate(addressID, priced); err != nil {
		return checkout.WidgetParams{}, err
	}

	s.mu.Lock()
	if u.attempt != nil && !u.attempt.Done() {
		s.mu.Unlock()
		return checkout.WidgetParams{}, domain.ErrCheckoutInProgress
	}
	a := &Attempt{ID: uuid.NewString(), done: make(chan struct{})}
	u.attempt = a
	s.mu.Unlock()

	opened := s.bridge.Expect(a.ID)
	// the attempt outlives this request: the widget callback arrives on another one
	attemptCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.bridge.Forget(a.ID)
		order, err := u.checkout.PlaceOrder(attemptCtx, checkout.Request{
			AttemptID: a.ID,
			AddressID: addressID,
			Cart:      priced,
		})
		a.finish(order, err)
		if err == nil {
			// the commerce API empties the cart once the order exists
			if _, err := u.cart.LoadCart(attemptCtx); err != nil {
				s.log.WarnContext(attemptCtx, "cart reload after order failed",
					slog.String(logger.KeyAttemptID, a.ID), slog.Any(logger.KeyError, err))
			}
		}
	}()

	select {
	case params := <-opened:
		return params, nil
	case <-a.done:
		return checkout.WidgetParams{}, a.err
	case <-ctx.Done():
		_ = s.bridge.Cancel(a.ID)
		return checkout.WidgetParams{}, ctx.Err()
	}
}

// CompleteCheckout delivers the widget callback and waits for the attempt's result.
func (s *Storefront) CompleteCheckout(ctx context.Context, sess session.Session, attemptID string, outcome domain.PaymentOutcome) (*domain.Order, error) {
	if err := sess.Check(s.now()); err != nil {
		return nil, err
	}
	a, err := s.attempt(sess, attemptID)
	if err != nil {
		return nil, err
	}

	if err := s.bridge.Resolve(attemptID, outcome); err != nil &&
		!errors.Is(err, checkout.ErrOutcomeAlreadyDelivered) && !a.Done() {
		return nil, err
	}
	return a.Wait(ctx)
}

// CancelCheckout reports a dismissed widget for the user's running attempt, if any.
func (s *Storefront) CancelCheckout(sess session.Session) error {
	if err := sess.Check(s.now()); err != nil {
		return err
	}
	u := s.user(sess)
	s.mu.Lock()
	a := u.attempt
	s.mu.Unlock()
	if a == nil || a.Done() {
		return nil
	}
	if err := s.bridge.Cancel(a.ID); err != nil && !errors.Is(err, checkout.ErrOutcomeAlreadyDelivered) {
		return err
	}
	return nil
}

func (s *Storefront) attempt(sess session.Session, attemptID string) (*Attempt, error) {
	u := s.user(sess)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.attempt == nil || u.attempt.ID != attemptID {
		return nil, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	return u.attempt, nil
}

// Close cancels waiting payments, detaches every cart and stops the cleanup loop.
func (s *Storefront) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		s.wg.Wait()
		s.bridge.CancelAll()

		s.mu.Lock()
		defer s.mu.Unlock()
		for _, u := range s.users {
			u.cart.Detach()
		}
	})
	return nil
}
