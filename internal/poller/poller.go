// Package poller consumes checkout ledger events and drops cart snapshots that a completed
// order made obsolete.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	c "github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/logger"
	r "github.com/fjod/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const DefaultGroupID = "storefront-snapshots"

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Poller struct {
	reader MessageReader
	cache  c.SnapshotCache
	log    *slog.Logger
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(reader MessageReader, cache c.SnapshotCache, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{reader: reader, cache: cache, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	defer p.Close()
	for {
		if ctx.Err() != nil {
			return
		}
		p.handleNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", slog.Any(logger.KeyError, err))
	}
}

// handleNext reads one message. Only completed checkouts drop the user's snapshot.
func (p *Poller) handleNext(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Warn("error reading message", slog.Any(logger.KeyError, err))
		}
		return
	}

	if eventType(m) != r.EventCheckoutCompleted {
		return
	}

	var event r.AttemptEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.Warn("error parsing message", slog.Any(logger.KeyError, err))
		return
	}
	if event.UserID == "" {
		p.log.Warn("missing user_id", slog.String(logger.KeyAttemptID, event.AttemptID))
		return
	}

	if err := p.cache.Delete(ctx, event.UserID); err != nil {
		p.log.Error("failed to delete cart snapshot",
			slog.String(logger.KeyUserID, event.UserID),
			slog.Any(logger.KeyError, err))
		return
	}
	p.log.Debug("dropped cart snapshot after order",
		slog.String(logger.KeyUserID, event.UserID),
		slog.String(logger.KeyAttemptID, event.AttemptID))
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
