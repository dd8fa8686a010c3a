package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/arabiperfum/perfume-store-website/internal/publisher"
	"github.com/arabiperfum/perfume-store-website/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	cartCleanerGroup = "storefront-cart-cleaner"

	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CartClearer empties a cart that was not touched after the given time.
type CartClearer interface {
	ClearIfNotModifiedSince(ctx context.Context, userID string, at time.Time) (bool, error)
}

type orderPlaced struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CartCleaner clears the buyer's cart for every OrderPlaced event. It
// covers confirmations whose synchronous clear failed; carts edited after
// the order are left alone. An offset is committed only once its event is
// handled, so a failed clear is retried and, after a restart, redelivered.
type CartCleaner struct {
	reader       messageReader
	carts        CartClearer
	retryBackoff time.Duration
}

func NewCartCleaner(carts CartClearer, brokers ...string) *CartCleaner {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.Topic,
		GroupID:  cartCleanerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return &CartCleaner{reader: reader, carts: carts, retryBackoff: defaultRetryBackoff}
}

func (c *CartCleaner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CartCleaner) Close() {
	if err := c.reader.Close(); err != nil {
		log.Printf("error closing kafka reader: %v", err)
	}
}

func (c *CartCleaner) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("error fetching message: %v", err)
		return
	}

	if err := c.handleWithRetry(ctx, m); err != nil {
		log.Printf("offset %d left uncommitted: %v", m.Offset, err)
		return
	}
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Printf("error committing offset %d: %v", m.Offset, err)
	}
}

// handleWithRetry retries a failed clear with growing pauses until it
// succeeds or ctx ends.
func (c *CartCleaner) handleWithRetry(ctx context.Context, m kafka.Message) error {
	backoff := c.retryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	for {
		err := c.handle(ctx, m)
		if err == nil {
			return nil
		}
		log.Printf("%v; retrying in %s", err, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// handle returns an error only for failures worth retrying. Events of other
// types and malformed payloads are dropped.
func (c *CartCleaner) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != repository.EventOrderPlaced {
		return nil
	}

	var event orderPlaced
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Printf("error parsing message at offset %d: %v", m.Offset, err)
		return nil
	}
	if event.UserID == "" {
		log.Printf("order %s event has no user_id", event.OrderID)
		return nil
	}

	cleared, err := c.carts.ClearIfNotModifiedSince(ctx, event.UserID, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("clear cart of %s for order %s: %w", event.UserID, event.OrderID, err)
	}
	if cleared {
		log.Printf("cart of %s cleared for order %s", event.UserID, event.OrderID)
	}
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
