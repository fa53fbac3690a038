package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newAttempt(id string) *Attempt {
	return &Attempt{
		ID:          id,
		UserID:      "user-1",
		AddressID:   "addr-1",
		AmountMinor: 95900,
		Currency:    "INR",
		CouponCode:  "SCENT15",
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	repo := setupTestDB(t)
	assert.NoError(t, repo.RunMigrations())
}

func TestCreateAndGetAttempt(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("att-1")))

	a, err := repo.GetAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusInitiated, a.Status)
	assert.Equal(t, int64(95900), a.AmountMinor)
	assert.Equal(t, "SCENT15", a.CouponCode)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestGetAttempt_NotFound(t *testing.T) {
	repo := setupTestDB(t)
	_, err := repo.GetAttempt(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestCreateAttempt_DuplicateID(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("att-1")))
	assert.Error(t, repo.CreateAttempt(ctx, newAttempt("att-1")))
}

func TestTransitionAttempt_HappyPathWritesOneEvent(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("att-1")))

	steps := []struct {
		to  domain.CheckoutStatus
		upd AttemptUpdate
	}{
		{domain.CheckoutStatusGatewayOrderCreated, AttemptUpdate{GatewayOrderID: "order_abc"}},
		{domain.CheckoutStatusAwaitingPayment, AttemptUpdate{}},
		{domain.CheckoutStatusPaymentAuthorized, AttemptUpdate{PaymentID: "pay_1"}},
		{domain.CheckoutStatusVerified, AttemptUpdate{}},
		{domain.CheckoutStatusCompleted, AttemptUpdate{OrderID: "ord-9"}},
	}
	for _, st := range steps {
		_, err := repo.TransitionAttempt(ctx, "att-1", st.to, st.upd)
		require.NoError(t, err, st.to)

		events, err := repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		if st.to.IsTerminal() {
			assert.Len(t, events, 1)
		} else {
			assert.Empty(t, events)
		}
	}

	a, err := repo.GetAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCompleted, a.Status)
	assert.Equal(t, "order_abc", a.GatewayOrderID)
	assert.Equal(t, "pay_1", a.PaymentID)
	assert.Equal(t, "ord-9", a.OrderID)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "att-1", events[0].AggregateID)
	assert.Equal(t, EventCheckoutCompleted, events[0].EventType)

	var payload AttemptEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, int64(95900), payload.Amount)
	assert.Equal(t, "ord-9", payload.OrderID)
}

func TestTransitionAttempt_Illegal(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("att-1")))

	_, err := repo.TransitionAttempt(ctx, "att-1", domain.CheckoutStatusVerified, AttemptUpdate{})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = repo.TransitionAttempt(ctx, "att-1", domain.CheckoutStatusCancelled, AttemptUpdate{FailureReason: "dismissed"})
	require.NoError(t, err)
	_, err = repo.TransitionAttempt(ctx, "att-1", domain.CheckoutStatusFailed, AttemptUpdate{})
	assert.ErrorIs(t, err, ErrIllegalTransition, "terminal attempts stay terminal")

	a, err := repo.GetAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusCancelled, a.Status)
	assert.Equal(t, "dismissed", a.FailureReason)
}

func TestTransitionAttempt_NotFound(t *testing.T) {
	repo := setupTestDB(t)
	_, err := repo.TransitionAttempt(context.Background(), "missing", domain.CheckoutStatusFailed, AttemptUpdate{})
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
}

func TestMarkEventAsProcessed(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"att-1", "att-2"} {
		require.NoError(t, repo.CreateAttempt(ctx, newAttempt(id)))
		_, err := repo.TransitionAttempt(ctx, id, domain.CheckoutStatusFailed, AttemptUpdate{FailureReason: "boom"})
		require.NoError(t, err)
	}

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "att-1", events[0].AggregateID)
	assert.Equal(t, EventCheckoutFailed, events[0].EventType)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	assert.Error(t, repo.MarkEventAsProcessed(ctx, events[0].ID), "already processed")

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "att-2", events[0].AggregateID)

	limited, err := repo.GetUnprocessedEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, limited)
}

func TestFailOrphanedAttempts(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return start }

	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("waiting")))
	_, err := repo.TransitionAttempt(ctx, "waiting", domain.CheckoutStatusGatewayOrderCreated, AttemptUpdate{GatewayOrderID: "o"})
	require.NoError(t, err)
	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("done")))
	_, err = repo.TransitionAttempt(ctx, "done", domain.CheckoutStatusCancelled, AttemptUpdate{})
	require.NoError(t, err)

	repo.now = func() time.Time { return start.Add(time.Hour) }
	require.NoError(t, repo.CreateAttempt(ctx, newAttempt("fresh")))

	n, err := repo.FailOrphanedAttempts(ctx, start.Add(time.Minute), "process restarted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := repo.GetAttempt(ctx, "waiting")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusFailed, a.Status)
	assert.Equal(t, "process restarted", a.FailureReason)

	fresh, err := repo.GetAttempt(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusInitiated, fresh.Status)
}
