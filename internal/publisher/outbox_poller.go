// Package publisher drains the checkout outbox into Kafka. Events are
// written by the checkout repository in the same transaction as the
// status change, so everything that reaches the topic really happened.
package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/checkout"
)

const completedTopic = "checkout-completed"

// Outbox is the slice of the checkout repository the poller reads from.
type Outbox interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*checkout.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, eventID int64) error
}

// MessageWriter abstracts kafka.Writer so the poller can be tested
// without a broker.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	outbox    Outbox
	writer    MessageWriter
	logger    *zap.Logger
}

func NewOutboxPoller(outbox Outbox, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  completedTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		tick:      time.Second,
		batchSize: 100,
		outbox:    outbox,
		writer:    w,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.outbox.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if errPublish := p.publish(ctx, event); errPublish != nil {
			p.logger.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID), zap.Error(errPublish))
			continue
		}

		if errMark := p.outbox.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			// The event will be republished next tick; consumers must
			// deduplicate on checkout_id.
			p.logger.Error("failed to mark outbox event as processed",
				zap.Int64("event_id", event.ID), zap.Error(errMark))
			continue
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *checkout.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // checkout id, for per-session ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
