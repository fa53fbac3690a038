package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
)

var ErrOutcomeAlreadyDelivered = errors.New("payment outcome already delivered")

// WidgetParams is what the browser needs to open the payment widget.
type WidgetParams struct {
	KeyID          string `json:"key_id"`
	AttemptID      string `json:"attempt_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ScriptURL      string `json:"script_url,omitempty"`
}

// Bridge is a PaymentGateway whose widget runs in the user's browser. CreateSession
// publishes WidgetParams to whoever called Expect, and the widget callback comes back
// through Resolve.
type Bridge struct {
	keyID      string
	scriptURL  string
	httpClient *http.Client
	log        *slog.Logger

	acquireMu sync.Mutex
	acquired  bool

	mu      sync.Mutex
	pending map[string]*pendingPayment
}

type BridgeOption func(*Bridge)

// WithScriptProbe makes Acquire check once that the widget script is reachable.
func WithScriptProbe(scriptURL string, hc *http.Client) BridgeOption {
	return func(b *Bridge) {
		b.scriptURL = scriptURL
		if hc != nil {
			b.httpClient = hc
		}
	}
}

func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.log = l
	}
}

func NewBridge(keyID string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		keyID:      keyID,
		httpClient: http.DefaultClient,
		log:        slog.Default(),
		pending:    make(map[string]*pendingPayment),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type pendingPayment struct {
	attemptID string
	opened    chan WidgetParams
	outcome   chan domain.PaymentOutcome
}

func (p *pendingPayment) AwaitOutcome(ctx context.Context) (domain.PaymentOutcome, error) {
	select {
	case o := <-p.outcome:
		return o, nil
	case <-ctx.Done():
		return domain.PaymentOutcome{}, ctx.Err()
	}
}

// Acquire probes the widget script once. A failed probe is retried on the next attempt.
func (b *Bridge) Acquire(ctx context.Context) error {
	if b.scriptURL == "" {
		return nil
	}
	b.acquireMu.Lock()
	defer b.acquireMu.Unlock()
	if b.acquired {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.scriptURL, nil)
	if err != nil {
		return fmt.Errorf("build script probe: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe payment script: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("probe payment script: status %d", resp.StatusCode)
	}
	b.acquired = true
	return nil
}

// Expect registers an attempt before it starts. The returned channel receives the widget
// parameters once the attempt opens its payment session.
func (b *Bridge) Expect(attemptID string) <-chan WidgetParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(attemptID).opened
}

func (b *Bridge) entry(attemptID string) *pendingPayment {
	p, ok := b.pending[attemptID]
	if !ok {
		p = &pendingPayment{
			attemptID: attemptID,
			opened:    make(chan WidgetParams, 1),
			outcome:   make(chan domain.PaymentOutcome, 1),
		}
		b.pending[attemptID] = p
	}
	return p
}

func (b *Bridge) CreateSession(_ context.Context, s domain.PaymentSession) (PendingPayment, error) {
	if s.AttemptID == "" {
		return nil, errors.New("payment session without attempt id")
	}
	b.mu.Lock()
	p := b.entry(s.AttemptID)
	b.mu.Unlock()

	params := WidgetParams{
		KeyID:          b.keyID,
		AttemptID:      s.AttemptID,
		GatewayOrderID: s.GatewayOrderID,
		Amount:         s.Amount,
		Currency:       s.Currency,
		ScriptURL:      b.scriptURL,
	}
	select {
	case p.opened <- params:
	default:
		return nil, fmt.Errorf("payment session for attempt %s already open", s.AttemptID)
	}
	b.log.Debug("payment widget session opened", slog.String(logger.KeyAttemptID, s.AttemptID))
	return p, nil
}

// Resolve delivers the widget callback for an attempt.
func (b *Bridge) Resolve(attemptID string, outcome domain.PaymentOutcome) error {
	b.mu.Lock()
	p, ok := b.pending[attemptID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	select {
	case p.outcome <- outcome:
		return nil
	default:
		return ErrOutcomeAlreadyDelivered
	}
}

// Cancel reports a dismissed widget for the attempt.
func (b *Bridge) Cancel(attemptID string) error {
	return b.Resolve(attemptID, domain.PaymentOutcome{Kind: domain.OutcomeCancelled, Reason: "cancelled"})
}

// Forget drops an attempt once it has finished.
func (b *Bridge) Forget(attemptID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, attemptID)
}

// CancelAll cancels every attempt still waiting, used on shutdown.
func (b *Bridge) CancelAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		_ = b.Cancel(id)
	}
}
