package publisher

import (
	"context"
	"log"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/metrics"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	Topic            = "storefront-orders"
	defaultBatchSize = 100
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays committed outbox rows to Kafka. Delivery is
// at-least-once: a row is marked only after the broker accepted it.
type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	repo      repository.OutboxRepository
	writer    messageWriter
	metrics   *metrics.OutboxMetrics
}

func NewOutboxPoller(repo repository.OutboxRepository, m *metrics.OutboxMetrics, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, m)
}

func newOutboxPoller(repo repository.OutboxRepository, w messageWriter, m *metrics.OutboxMetrics) *OutboxPoller {
	return &OutboxPoller{
		eventTick: time.Second,
		batchSize: defaultBatchSize,
		repo:      repo,
		writer:    w,
		metrics:   m,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.eventTick)
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

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents stops at the first publish failure so events of
// one order never overtake each other.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		log.Printf("failed to fetch outbox events: %v", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			log.Printf("failed to publish outbox event id=%d type=%s: %v", event.ID, event.EventType, err)
			p.metrics.Failed.WithLabelValues(event.EventType).Inc()
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			log.Printf("failed to mark outbox event id=%d as processed: %v", event.ID, err)
			p.metrics.Failed.WithLabelValues(event.EventType).Inc()
			return published
		}
		p.metrics.Published.WithLabelValues(event.EventType).Inc()
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
