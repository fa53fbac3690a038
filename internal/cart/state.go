package cart

import (
	"maps"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusLoading  Status = "LOADING"
	StatusReady    Status = "READY"
	StatusMutating Status = "MUTATING"
	StatusError    Status = "ERROR"
)

type MutationKind string

const (
	MutationQuantity MutationKind = "quantity"
	MutationRemoval  MutationKind = "removal"
)

// State is the locally displayed cart. It is only ever replaced through Reduce.
type State struct {
	Status   Status               `json:"status"`
	Snapshot *domain.CartSnapshot `json:"snapshot,omitempty"`
	// Stale marks a snapshot restored from the last-good cache rather than fetched this session.
	Stale      bool                    `json:"stale"`
	Promo      domain.PromoCode        `json:"promo"`
	PromoInput string                  `json:"promo_input"`
	Banner     string                  `json:"banner,omitempty"`
	InFlight   map[string]MutationKind `json:"in_flight,omitempty"`
	// LoadedSeq is the sequence number of the fetch that produced Snapshot.
	LoadedSeq uint64 `json:"-"`
}

func (s State) Mutating() bool {
	return len(s.InFlight) > 0
}

func (s State) quantityInFlight() bool {
	for _, k := range s.InFlight {
		if k == MutationQuantity {
			return true
		}
	}
	return false
}

// Totals prices the current snapshot with the applied promo.
func (s State) Totals() domain.Totals {
	pct := decimal.Zero
	if s.Promo.Applied {
		pct = s.Promo.Percent
	}
	return ComputeGrandTotal(s.Snapshot, pct)
}

func (s State) clone() State {
	c := s
	c.Snapshot = s.Snapshot.Clone()
	if s.InFlight != nil {
		c.InFlight = maps.Clone(s.InFlight)
	}
	return c
}

func (s *State) deriveStatus() {
	switch {
	case len(s.InFlight) > 0:
		s.Status = StatusMutating
	case s.Snapshot != nil:
		s.Status = StatusReady
	default:
		s.Status = StatusIdle
	}
}
