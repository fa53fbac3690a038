package cart

import (
	"errors"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(id string, price int64, qty int) domain.CartLine {
	return domain.CartLine{
		ID:        id,
		ProductID: "p-" + id,
		VariantID: "v-" + id,
		UnitPrice: dec(price),
		Quantity:  qty,
		LineTotal: dec(price * int64(qty)),
	}
}

func snapshotOf(lines ...domain.CartLine) *domain.CartSnapshot {
	s := &domain.CartSnapshot{Lines: lines, ItemCount: len(lines)}
	s.Subtotal = s.SumLineTotals()
	s.GrandTotal = s.Subtotal
	return s
}

func readyState(lines ...domain.CartLine) State {
	return Reduce(State{}, Loaded{Snapshot: snapshotOf(lines...), Seq: 1})
}

func TestReduce_Loaded(t *testing.T) {
	s := Reduce(State{Status: StatusLoading, Banner: "old"}, Loaded{Snapshot: snapshotOf(line("a", 100, 1)), Seq: 1})
	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Banner)
	assert.Equal(t, uint64(1), s.LoadedSeq)
}

func TestReduce_LoadedIgnoresOlderFetch(t *testing.T) {
	s := Reduce(State{}, Loaded{Snapshot: snapshotOf(line("a", 100, 2)), Seq: 5})
	older := Reduce(s, Loaded{Snapshot: snapshotOf(line("a", 100, 1)), Seq: 4})
	assert.Equal(t, 2, older.Snapshot.Lines[0].Quantity)
}

func TestReduce_LoadFailedKeepsSnapshot(t *testing.T) {
	s := readyState(line("a", 100, 1))
	s = Reduce(s, LoadFailed{Err: errors.New("boom")})
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "boom", s.Banner)
	require.NotNil(t, s.Snapshot)
	assert.Len(t, s.Snapshot.Lines, 1)
}

func TestReduce_QuantityChangeAppliesDelta(t *testing.T) {
	s := readyState(line("a", 100, 2), line("b", 50, 1))
	next := Reduce(s, QuantityChangeStarted{LineID: "a", Quantity: 5})

	assert.Equal(t, StatusMutating, next.Status)
	assert.Equal(t, 5, next.Snapshot.Lines[0].Quantity)
	assert.True(t, dec(500).Equal(next.Snapshot.Lines[0].LineTotal))
	assert.True(t, dec(550).Equal(next.Snapshot.Subtotal))
	assert.True(t, next.Snapshot.Subtotal.Equal(next.Snapshot.SumLineTotals()))
	assert.Equal(t, MutationQuantity, next.InFlight["a"])

	// input state untouched
	assert.Equal(t, 2, s.Snapshot.Lines[0].Quantity)
	assert.True(t, dec(250).Equal(s.Snapshot.Subtotal))
	assert.Empty(t, s.InFlight)
}

func TestReduce_RemovalStarted(t *testing.T) {
	s := readyState(line("a", 100, 2), line("b", 50, 1))
	next := Reduce(s, RemovalStarted{LineID: "a"})

	require.Len(t, next.Snapshot.Lines, 1)
	assert.Equal(t, "b", next.Snapshot.Lines[0].ID)
	assert.Equal(t, 1, next.Snapshot.ItemCount)
	assert.True(t, dec(50).Equal(next.Snapshot.Subtotal))
	assert.Equal(t, MutationRemoval, next.InFlight["a"])
	assert.Len(t, s.Snapshot.Lines, 2)
}

func TestReduce_UnknownLineIsNoop(t *testing.T) {
	s := readyState(line("a", 100, 1))
	assert.Equal(t, s, Reduce(s, QuantityChangeStarted{LineID: "zzz", Quantity: 3}))
	assert.Equal(t, s, Reduce(s, RemovalStarted{LineID: "zzz"}))
}

func TestReduce_FailurePathReturnsToReady(t *testing.T) {
	s := readyState(line("a", 100, 1))
	s = Reduce(s, QuantityChangeStarted{LineID: "a", Quantity: 2})
	s = Reduce(s, MutationFailed{LineID: "a", Err: errors.New("out of stock")})
	assert.Equal(t, StatusError, s.Status)

	s = Reduce(s, Loaded{Snapshot: snapshotOf(line("a", 100, 1)), Seq: 2, KeepBanner: true})
	s = Reduce(s, MutationSettled{LineID: "a", Succeeded: false, Reloaded: true})

	assert.Equal(t, StatusReady, s.Status)
	assert.Equal(t, "out of stock", s.Banner)
	assert.Equal(t, 1, s.Snapshot.Lines[0].Quantity)
	assert.Empty(t, s.InFlight)
}

func TestReduce_FailedReloadStaysInError(t *testing.T) {
	s := readyState(line("a", 100, 1))
	s = Reduce(s, QuantityChangeStarted{LineID: "a", Quantity: 2})
	s = Reduce(s, LoadFailed{Err: errors.New("offline")})
	s = Reduce(s, MutationSettled{LineID: "a", Succeeded: true, Reloaded: false})

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "offline", s.Banner)
	assert.False(t, s.Mutating())
}

func TestReduce_SuccessClearsBanner(t *testing.T) {
	s := readyState(line("a", 100, 1))
	s.Banner = "earlier failure"
	s = Reduce(s, QuantityChangeStarted{LineID: "a", Quantity: 2})
	s = Reduce(s, Loaded{Snapshot: snapshotOf(line("a", 100, 2)), Seq: 2, KeepBanner: true})
	s = Reduce(s, MutationSettled{LineID: "a", Succeeded: true, Reloaded: true})

	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Banner)
}

func TestReduce_Promo(t *testing.T) {
	s := Reduce(State{}, PromoInputChanged{Text: "ZODIAC20"})
	s = Reduce(s, PromoApplied{Code: "ZODIAC20", Percent: dec(20)})
	assert.True(t, s.Promo.Applied)
	assert.Equal(t, "ZODIAC20", s.Promo.Code)
	assert.Empty(t, s.PromoInput)

	s = Reduce(s, PromoApplied{Code: "SCENT15", Percent: dec(15)})
	assert.Equal(t, "SCENT15", s.Promo.Code, "a new code replaces the applied one")

	s = Reduce(s, PromoRemoved{})
	assert.False(t, s.Promo.Applied)
	assert.True(t, s.Promo.Percent.IsZero())
}

func TestReduce_RestoredOnlyWhenEmpty(t *testing.T) {
	cached := snapshotOf(line("c", 10, 1))
	s := Reduce(State{Status: StatusError}, Restored{Snapshot: cached})
	assert.True(t, s.Stale)
	assert.Equal(t, StatusError, s.Status)

	loaded := readyState(line("a", 100, 1))
	s = Reduce(loaded, Restored{Snapshot: cached})
	assert.False(t, s.Stale)
	assert.Equal(t, "a", s.Snapshot.Lines[0].ID)
}

func TestReduce_Detached(t *testing.T) {
	s := readyState(line("a", 100, 1))
	s = Reduce(s, RemovalStarted{LineID: "a"})
	s = Reduce(s, Detached{})
	assert.False(t, s.Mutating())
	assert.Equal(t, StatusReady, s.Status)
}

func TestState_TotalsUsesAppliedPromo(t *testing.T) {
	s := readyState(line("a", 1000, 1))
	s.Snapshot.Charges = domain.Charges{PlatformFee: dec(20), Tax: dec(49), DeliveryFee: dec(40)}
	s.Promo = domain.PromoCode{Code: "X", Percent: dec(15), Applied: true}

	assert.True(t, decimal.NewFromInt(959).Equal(s.Totals().GrandTotal))

	s.Promo.Applied = false
	assert.True(t, decimal.NewFromInt(1109).Equal(s.Totals().GrandTotal))
}
