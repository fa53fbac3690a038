// Package publisher relays checkout ledger events from the outbox to Kafka.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/logger"
	r "github.com/fjod/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "storefront-checkout"

// OutboxRepository is the part of the ledger the poller reads and acknowledges.
type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*r.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batchSize int
	repo      OutboxRepository
	writer    MessageWriter
	log       *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
}

func NewOutboxPoller(repo OutboxRepository, writer MessageWriter, log *slog.Logger) *OutboxPoller {
	if log == nil {
		log = slog.Default()
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    writer,
		log:       log,
	}
}

// Run publishes pending events every tick until ctx is done, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn("failed to close kafka writer", slog.Any(logger.KeyError, err))
		}
	}()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch outbox events", slog.Any(logger.KeyError, err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.ErrorContext(ctx, "failed to publish outbox event",
				slog.Int64(logger.KeyEventID, event.ID), slog.Any(logger.KeyError, err))
			// keep order per attempt: later events wait for the next tick
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark outbox event as processed",
				slog.Int64(logger.KeyEventID, event.ID), slog.Any(logger.KeyError, err))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // attempt id keeps one attempt on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
