// Package cart keeps the locally displayed cart in sync with the commerce API.
//
// Edits are applied optimistically through Reduce, confirmed against the server,
// and then reconciled by refetching the authoritative cart whether the edit
// succeeded or not.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storeapi"
	"golang.org/x/sync/singleflight"
)

// CartAPI is the part of the commerce API the flow needs.
type CartAPI interface {
	GetCart(ctx context.Context, sess session.Session) (*domain.CartSnapshot, error)
	UpdateQuantity(ctx context.Context, sess session.Session, lineID string, action storeapi.QuantityAction) error
	RemoveFromCart(ctx context.Context, sess session.Session, variantID string) error
}

type Flow struct {
	api   CartAPI
	cache cache.SnapshotCache
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	sess  session.Session
	state State
	gen   uint64

	fetchSeq atomic.Uint64
	sfg      singleflight.Group // coalesces concurrent LoadCart calls
}

type FlowOption func(*Flow)

// WithCache enables the last-good snapshot fallback.
func WithCache(c cache.SnapshotCache) FlowOption {
	return func(f *Flow) {
		f.cache = c
	}
}

func WithLogger(l *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.log = l
	}
}

func NewFlow(api CartAPI, sess session.Session, opts ...FlowOption) *Flow {
	f := &Flow{
		api:   api,
		log:   slog.Default(),
		now:   time.Now,
		sess:  sess,
		state: State{Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(slog.String(logger.KeyUserID, sess.Subject))
	return f
}

// State returns a copy of the displayed cart.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// SetSession swaps in a refreshed credential for the same user.
func (f *Flow) SetSession(sess session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess = sess
}

func (f *Flow) session() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

// Detach invalidates every request still in flight: their responses are dropped
// without touching state, and new mutations are allowed immediately.
func (f *Flow) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.state = Reduce(f.state, Detached{})
}

// dispatch applies ev unless the flow was detached after gen was taken.
func (f *Flow) dispatch(gen uint64, ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return false
	}
	f.state = Reduce(f.state, ev)
	return true
}

func (f *Flow) generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// LoadCart fetches the authoritative cart. On failure the last loaded snapshot is kept
// and the state moves to StatusError, from which another LoadCart recovers.
// Concurrent calls share one request.
func (f *Flow) LoadCart(ctx context.Context) (State, error) {
	sess := f.session()
	if err := sess.Check(f.now()); err != nil {
		return f.State(), err
	}

	gen := f.generation()
	f.dispatch(gen, LoadStarted{})

	// the shared request outlives any one caller; the client timeout bounds it
	v, err, _ := f.sfg.Do("cart", func() (interface{}, error) {
		return f.fetch(context.WithoutCancel(ctx), sess)
	})
	if err != nil {
		f.log.WarnContext(ctx, "cart load failed", slog.Any(logger.KeyError, err))
		f.dispatch(gen, LoadFailed{Err: err})
		if !errors.Is(err, domain.ErrAuth) {
			f.restore(ctx, gen, sess)
		}
		return f.State(), err
	}

	res := v.(fetched)
	f.dispatch(gen, Loaded{Snapshot: res.snapshot, Seq: res.seq})
	return f.State(), nil
}

type fetched struct {
	snapshot *domain.CartSnapshot
	seq      uint64
}

func (f *Flow) fetch(ctx context.Context, sess session.Session) (fetched, error) {
	seq := f.fetchSeq.Add(1)
	snapshot, err := f.api.GetCart(ctx, sess)
	if err != nil {
		return fetched{}, err
	}
	if f.cache != nil {
		go func(s *domain.CartSnapshot) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := f.cache.Set(ctx, sess.Subject, s); err != nil {
				f.log.Warn("snapshot cache set failed", slog.Any(logger.KeyError, err))
			}
		}(snapshot.Clone())
	}
	return fetched{snapshot: snapshot, seq: seq}, nil
}

// restore shows the cached last-good snapshot when nothing was loaded in this flow yet.
func (f *Flow) restore(ctx context.Context, gen uint64, sess session.Session) {
	if f.cache == nil || f.State().Snapshot != nil {
		return
	}
	snapshot, err := f.cache.Get(ctx, sess.Subject)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.log.WarnContext(ctx, "snapshot cache get failed", slog.Any(logger.KeyError, err))
		}
		return
	}
	f.dispatch(gen, Restored{Snapshot: snapshot})
}

// ChangeQuantity sets a line's quantity. Zero removes the line. The call is rejected
// without effect when the quantity is negative or another mutation is in flight.
func (f *Flow) ChangeQuantity(ctx context.Context, lineID string, quantity int) (State, error) {
	if quantity < 0 {
		return f.State(), fmt.Errorf("%w: quantity must not be negative", domain.ErrValidation)
	}
	if quantity == 0 {
		return f.removeLine(ctx, lineID, true)
	}

	f.mu.Lock()
	sess := f.sess
	if err := sess.Check(f.now()); err != nil {
		f.mu.Unlock()
		return f.State(), err
	}
	if f.state.Mutating() {
		f.mu.Unlock()
		return f.State(), domain.ErrMutationInFlight
	}
	idx := f.state.Snapshot.FindLine(lineID)
	if idx < 0 {
		f.mu.Unlock()
		return f.State(), fmt.Errorf("%w: %s", domain.ErrLineNotFound, lineID)
	}
	previous := f.state.Snapshot.Lines[idx].Quantity
	if previous == quantity {
		f.mu.Unlock()
		return f.State(), nil
	}
	gen := f.gen
	f.state = Reduce(f.state, QuantityChangeStarted{LineID: lineID, Quantity: quantity})
	f.mu.Unlock()

	action, steps := storeapi.ActionIncrement, quantity-previous
	if quantity < previous {
		action, steps = storeapi.ActionDecrement, previous-quantity
	}

	// the API moves a line one unit per request; steps run strictly one after another
	var err error
	for i := 0; i < steps && err == nil; i++ {
		err = f.api.UpdateQuantity(ctx, sess, lineID, action)
	}
	return f.reconcile(ctx, gen, sess, lineID, err)
}

// RemoveLine drops a line. Removals of different lines may overlap; a removal never
// overlaps a quantity change or another removal of the same line.
func (f *Flow) RemoveLine(ctx context.Context, lineID string) (State, error) {
	return f.removeLine(ctx, lineID, false)
}

// removeLine with exclusive set is a quantity change to zero: it is rejected while any
// mutation is in flight.
func (f *Flow) removeLine(ctx context.Context, lineID string, exclusive bool) (State, error) {
	f.mu.Lock()
	sess := f.sess
	if err := sess.Check(f.now()); err != nil {
		f.mu.Unlock()
		return f.State(), err
	}
	if exclusive && f.state.Mutating() {
		f.mu.Unlock()
		return f.State(), domain.ErrMutationInFlight
	}
	if _, busy := f.state.InFlight[lineID]; busy || f.state.quantityInFlight() {
		f.mu.Unlock()
		return f.State(), domain.ErrMutationInFlight
	}
	idx := f.state.Snapshot.FindLine(lineID)
	if idx < 0 {
		f.mu.Unlock()
		return f.State(), fmt.Errorf("%w: %s", domain.ErrLineNotFound, lineID)
	}
	variantID := f.state.Snapshot.Lines[idx].VariantID
	gen := f.gen
	f.state = Reduce(f.state, RemovalStarted{LineID: lineID})
	f.mu.Unlock()

	err := f.api.RemoveFromCart(ctx, sess, variantID)
	return f.reconcile(ctx, gen, sess, lineID, err)
}

// reconcile refetches the authoritative cart after a mutation, overwriting the optimistic
// guess on success and rolling it back on failure.
func (f *Flow) reconcile(ctx context.Context, gen uint64, sess session.Session, lineID string, mutErr error) (State, error) {
	if mutErr != nil {
		f.log.WarnContext(ctx, "cart mutation failed, reloading", slog.String(logger.KeyLineID, lineID), slog.Any(logger.KeyError, mutErr))
		f.dispatch(gen, MutationFailed{LineID: lineID, Err: mutErr})
	}

	res, loadErr := f.fetch(ctx, sess)
	if loadErr != nil {
		f.log.WarnContext(ctx, "cart reload failed", slog.String(logger.KeyLineID, lineID), slog.Any(logger.KeyError, loadErr))
		f.dispatch(gen, LoadFailed{Err: loadErr})
	} else {
		f.dispatch(gen, Loaded{Snapshot: res.snapshot, Seq: res.seq, KeepBanner: mutErr != nil})
	}
	f.dispatch(gen, MutationSettled{LineID: lineID, Succeeded: mutErr == nil, Reloaded: loadErr == nil})

	if mutErr != nil {
		return f.State(), mutErr
	}
	return f.State(), loadErr
}

// SetPromoInput records the text typed into the promo field.
func (f *Flow) SetPromoInput(text string) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Reduce(f.state, PromoInputChanged{Text: text})
	return f.state.clone()
}

// ApplyPromoCode applies a known code, replacing any applied one, and clears the input.
// Unknown codes leave the state untouched and report false.
func (f *Flow) ApplyPromoCode(code string) (State, bool) {
	normalized, pct, ok := LookupPromo(code)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !ok {
		return f.state.clone(), false
	}
	f.state = Reduce(f.state, PromoApplied{Code: normalized, Percent: pct})
	return f.state.clone(), true
}

func (f *Flow) RemovePromoCode() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Reduce(f.state, PromoRemoved{})
	return f.state.clone()
}

// Priced hands a reconciled cart to checkout. It fails while a mutation is in flight
// or when the shown snapshot was not confirmed by the server in this flow.
func (f *Flow) Priced() (domain.PricedCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.state.Mutating():
		return domain.PricedCart{}, domain.ErrMutationInFlight
	case f.state.Snapshot == nil:
		return domain.PricedCart{}, fmt.Errorf("%w: cart not loaded", domain.ErrValidation)
	case f.state.Stale:
		return domain.PricedCart{}, fmt.Errorf("%w: cart not confirmed by server", domain.ErrValidation)
	}
	return domain.PricedCart{
		Snapshot: f.state.Snapshot.Clone(),
		Promo:    f.state.Promo,
		Totals:   f.state.Totals(),
	}, nil
}
