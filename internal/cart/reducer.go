package cart

import (
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

type LoadStarted struct{}

// Loaded replaces the snapshot with an authoritative one. Loads older than the
// snapshot already shown are ignored.
type Loaded struct {
	Snapshot   *domain.CartSnapshot
	Seq        uint64
	KeepBanner bool
}

type LoadFailed struct {
	Err error
}

// Restored shows a last-good snapshot from cache when nothing was loaded yet.
type Restored struct {
	Snapshot *domain.CartSnapshot
}

type QuantityChangeStarted struct {
	LineID   string
	Quantity int
}

type RemovalStarted struct {
	LineID string
}

type MutationFailed struct {
	LineID string
	Err    error
}

// MutationSettled closes a mutation once its reconciling reload has finished.
// Reloaded is false when that reload failed, which leaves the cart in StatusError.
type MutationSettled struct {
	LineID    string
	Succeeded bool
	Reloaded  bool
}

type PromoInputChanged struct {
	Text string
}

type PromoApplied struct {
	Code    string
	Percent decimal.Decimal
}

type PromoRemoved struct{}

type Detached struct{}

func (LoadStarted) isEvent()           {}
func (Loaded) isEvent()                {}
func (LoadFailed) isEvent()            {}
func (Restored) isEvent()              {}
func (QuantityChangeStarted) isEvent() {}
func (RemovalStarted) isEvent()        {}
func (MutationFailed) isEvent()        {}
func (MutationSettled) isEvent()       {}
func (PromoInputChanged) isEvent()     {}
func (PromoApplied) isEvent()          {}
func (PromoRemoved) isEvent()          {}
func (Detached) isEvent()              {}

// Reduce is the cart state transition function. It never mutates s.
func Reduce(s State, ev Event) State {
	next := s.clone()

	switch e := ev.(type) {
	case LoadStarted:
		if !next.Mutating() {
			next.Status = StatusLoading
		}

	case Loaded:
		if e.Seq != 0 && e.Seq < next.LoadedSeq {
			return s
		}
		next.Snapshot = e.Snapshot.Clone()
		next.LoadedSeq = e.Seq
		next.Stale = false
		if !e.KeepBanner {
			next.Banner = ""
		}
		next.deriveStatus()

	case LoadFailed:
		next.Status = StatusError
		next.Banner = reason(e.Err)

	case Restored:
		if next.Snapshot == nil {
			next.Snapshot = e.Snapshot.Clone()
			next.Stale = true
		}

	case QuantityChangeStarted:
		idx := next.Snapshot.FindLine(e.LineID)
		if idx < 0 || e.Quantity < 0 {
			return s
		}
		line := &next.Snapshot.Lines[idx]
		newTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
		delta := newTotal.Sub(line.LineTotal)
		line.Quantity = e.Quantity
		line.LineTotal = newTotal
		next.Snapshot.Subtotal = next.Snapshot.Subtotal.Add(delta)
		next.Snapshot.GrandTotal = next.Snapshot.GrandTotal.Add(delta)
		next.markInFlight(e.LineID, MutationQuantity)

	case RemovalStarted:
		idx := next.Snapshot.FindLine(e.LineID)
		if idx < 0 {
			return s
		}
		removed := next.Snapshot.Lines[idx]
		next.Snapshot.Lines = append(next.Snapshot.Lines[:idx], next.Snapshot.Lines[idx+1:]...)
		next.Snapshot.Subtotal = next.Snapshot.Subtotal.Sub(removed.LineTotal)
		next.Snapshot.GrandTotal = next.Snapshot.GrandTotal.Sub(removed.LineTotal)
		if next.Snapshot.ItemCount > 0 {
			next.Snapshot.ItemCount--
		}
		next.markInFlight(e.LineID, MutationRemoval)

	case MutationFailed:
		next.Status = StatusError
		next.Banner = reason(e.Err)

	case MutationSettled:
		delete(next.InFlight, e.LineID)
		if e.Reloaded || next.Status != StatusError {
			next.deriveStatus()
		}
		if e.Succeeded && e.Reloaded {
			next.Banner = ""
		}

	case PromoInputChanged:
		next.PromoInput = e.Text

	case PromoApplied:
		next.Promo = domain.PromoCode{Code: e.Code, Percent: clampPercent(e.Percent), Applied: true}
		next.PromoInput = ""

	case PromoRemoved:
		next.Promo = domain.PromoCode{}

	case Detached:
		next.InFlight = nil
		next.deriveStatus()
	}

	return next
}

func (s *State) markInFlight(lineID string, kind MutationKind) {
	if s.InFlight == nil {
		s.InFlight = make(map[string]MutationKind)
	}
	s.InFlight[lineID] = kind
	s.Status = StatusMutating
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
