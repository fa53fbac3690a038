package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

const (
	EventCheckoutCompleted = "CheckoutCompleted"
	EventCheckoutCancelled = "CheckoutCancelled"
	EventCheckoutFailed    = "CheckoutFailed"
)

// AttemptEvent is the outbox payload for an attempt that reached a terminal status.
type AttemptEvent struct {
	AttemptID      string    `json:"attempt_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	CouponCode     string    `json:"coupon_code,omitempty"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func eventType(s domain.CheckoutStatus) string {
	switch s {
	case domain.CheckoutStatusCompleted:
		return EventCheckoutCompleted
	case domain.CheckoutStatusCancelled:
		return EventCheckoutCancelled
	default:
		return EventCheckoutFailed
	}
}

func insertOutboxEvent(ctx context.Context, tx *sql.Tx, a *Attempt) error {
	payload, err := json.Marshal(AttemptEvent{
		AttemptID:      a.ID,
		UserID:         a.UserID,
		Status:         string(a.Status),
		Amount:         a.AmountMinor,
		Currency:       a.Currency,
		CouponCode:     a.CouponCode,
		GatewayOrderID: a.GatewayOrderID,
		PaymentID:      a.PaymentID,
		OrderID:        a.OrderID,
		Reason:         a.FailureReason,
		OccurredAt:     a.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		a.ID,
		eventType(a.Status),
		string(payload),
		a.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event for %s: %w", a.ID, err)
	}
	return nil
}

// GetUnprocessedEvents returns up to limit unpublished events, oldest first.
func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		var payload string
		var created int64
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = time.UnixMilli(created).UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		r.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("outbox event %d not found or already processed", id)
	}
	return nil
}
