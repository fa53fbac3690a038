// Package repository is the local ledger of checkout attempts and their outbox.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrIllegalTransition = errors.New("illegal checkout status transition")

// Attempt is one invocation of placeOrder as journaled locally.
type Attempt struct {
	ID             string
	UserID         string
	AddressID      string
	Status         domain.CheckoutStatus
	AmountMinor    int64
	Currency       string
	CouponCode     string
	GatewayOrderID string
	PaymentID      string
	OrderID        string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AttemptUpdate holds the fields a transition sets. Empty fields keep their stored value.
type AttemptUpdate struct {
	GatewayOrderID string
	PaymentID      string
	OrderID        string
	FailureReason  string
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type RepoInterface interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	TransitionAttempt(ctx context.Context, id string, to domain.CheckoutStatus, upd AttemptUpdate) (*Attempt, error)
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	FailOrphanedAttempts(ctx context.Context, before time.Time, reason string) (int, error)
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	Close() error
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) CreateAttempt(ctx context.Context, a *Attempt) error {
	now := r.now().UTC()
	if a.Status == "" {
		a.Status = domain.CheckoutStatusInitiated
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	query := `
		INSERT INTO checkout_attempts
			(id, user_id, address_id, status, amount_minor, currency, coupon_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.AddressID,
		string(a.Status),
		a.AmountMinor,
		a.Currency,
		a.CouponCode,
		a.CreatedAt.UnixMilli(),
		a.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkout attempt %s: %w", a.ID, err)
	}
	return nil
}

const attemptColumns = `id, user_id, address_id, status, amount_minor, currency, coupon_code,
	gateway_order_id, payment_id, order_id, failure_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	a := &Attempt{}
	var status string
	var created, updated int64
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.AddressID,
		&status,
		&a.AmountMinor,
		&a.Currency,
		&a.CouponCode,
		&a.GatewayOrderID,
		&a.PaymentID,
		&a.OrderID,
		&a.FailureReason,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.CheckoutStatus(status)
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return a, nil
}

func (r *Repository) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout attempt %s: %w", id, err)
	}
	return a, nil
}

// TransitionAttempt moves an attempt to status to. Moving into a terminal status also
// writes an outbox event in the same transaction.
func (r *Repository) TransitionAttempt(ctx context.Context, id string, to domain.CheckoutStatus, upd AttemptUpdate) (*Attempt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAttempt(tx.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM checkout_attempts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout attempt %s: %w", id, err)
	}
	if !domain.CanTransitionTo(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}

	a.Status = to
	a.UpdatedAt = r.now().UTC()
	if upd.GatewayOrderID != "" {
		a.GatewayOrderID = upd.GatewayOrderID
	}
	if upd.PaymentID != "" {
		a.PaymentID = upd.PaymentID
	}
	if upd.OrderID != "" {
		a.OrderID = upd.OrderID
	}
	if upd.FailureReason != "" {
		a.FailureReason = upd.FailureReason
	}

	query := `
		UPDATE checkout_attempts
		SET status = ?, gateway_order_id = ?, payment_id = ?, order_id = ?, failure_reason = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = tx.ExecContext(ctx, query,
		string(a.Status),
		a.GatewayOrderID,
		a.PaymentID,
		a.OrderID,
		a.FailureReason,
		a.UpdatedAt.UnixMilli(),
		a.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update checkout attempt %s: %w", id, err)
	}

	if to.IsTerminal() {
		if err := insertOutboxEvent(ctx, tx, a); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition of %s: %w", id, err)
	}
	return a, nil
}

// FailOrphanedAttempts fails every non-terminal attempt last touched before the given time.
// Attempts waiting on a payment widget do not survive a restart of the process that owns them.
func (r *Repository) FailOrphanedAttempts(ctx context.Context, before time.Time, reason string) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM checkout_attempts
		WHERE status NOT IN (?, ?, ?) AND updated_at < ?
	`,
		string(domain.CheckoutStatusCompleted),
		string(domain.CheckoutStatusCancelled),
		string(domain.CheckoutStatusFailed),
		before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query orphaned attempts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan attempt id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	failed := 0
	for _, id := range ids {
		if _, err := r.TransitionAttempt(ctx, id, domain.CheckoutStatusFailed, AttemptUpdate{FailureReason: reason}); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
