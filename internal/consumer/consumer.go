package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"storefront-service/internal/apperr"
	"storefront-service/internal/entity"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// StatusApplier stores operator and courier status updates.
type StatusApplier interface {
	ApplyStatusUpdate(ctx context.Context, update entity.StatusUpdate) error
}

const maxAttempts = 3

type Consumer struct {
	reader  MessageReader
	orders  StatusApplier
	backoff time.Duration
}

func NewConsumer(reader MessageReader, orders StatusApplier) *Consumer {
	return &Consumer{reader: reader, orders: orders, backoff: time.Second}
}

// Start reads order status events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	defer c.reader.Close()

	for {
		// Read message from status topic
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info().Msg("Order status consumer stopped")
				return
			}
			log.Error().Msgf("Error reading message: %v", err)
			continue
		}

		// Process message
		c.processMessage(ctx, msg)
	}
}

// processMessage applies one event, retrying remote failures a few times.
// Events that can never succeed are logged and dropped.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	var update entity.StatusUpdate
	err := json.Unmarshal(msg.Value, &update)
	if err != nil {
		log.Error().Msgf("Error unmarshalling message: %v", err)
		return
	}

	// key -> "order.status.<orderKey>"
	if update.OrderKey == "" {
		listKey := strings.SplitN(string(msg.Key), ".", 3)
		if len(listKey) == 3 && listKey[0] == "order" {
			update.OrderKey = listKey[2]
		}
	}

	for attempt := 1; ; attempt++ {
		err = c.orders.ApplyStatusUpdate(ctx, update)
		if err == nil {
			log.Info().Msgf("Order %s moved to %s", update.OrderKey, update.Status)
			return
		}
		if !apperr.IsRetryable(err) || attempt == maxAttempts {
			log.Error().Msgf("Dropping status event for order %s after %d attempt(s): %v", update.OrderKey, attempt, err)
			return
		}
		select {
		case <-time.After(c.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return
		}
	}
}
