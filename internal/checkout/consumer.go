package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/fjod/go_cart/lineitems/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// Clearer empties a user's cart.
type Clearer interface {
	Clear(ctx context.Context, userID string) domain.Collection
}

var errNoUserID = errors.New("missing or invalid user_id")

// Consumer clears carts once their checkout has completed downstream.
type Consumer struct {
	reader *kafka.Reader
	carts  Clearer
	logger *slog.Logger
}

func NewConsumer(carts Clearer, topic, groupID string, logger *slog.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{reader: reader, carts: carts, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if errors.Is(err, io.EOF) {
			// reader closed
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("reading checkout event", "error", err)
			}
			continue
		}
		if err := c.handle(ctx, m.Value); err != nil {
			c.logger.Warn("skipping checkout event", "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	userID, err := userIDFromEvent(value)
	if err != nil {
		return err
	}
	c.carts.Clear(ctx, userID)
	metrics.CartsClearedByEvent.Inc()
	c.logger.Info("cart cleared after checkout", "user_id", userID)
	return nil
}

// userIDFromEvent accepts user_id as a string or a JSON integer.
func userIDFromEvent(value []byte) (string, error) {
	var payload struct {
		UserID json.RawMessage `json:"user_id"`
	}
	if err := json.Unmarshal(value, &payload); err != nil {
		return "", fmt.Errorf("parsing event: %w", err)
	}
	if len(payload.UserID) == 0 {
		return "", errNoUserID
	}

	var s string
	if err := json.Unmarshal(payload.UserID, &s); err == nil {
		if s == "" {
			return "", errNoUserID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(payload.UserID, &n); err == nil {
		if _, err := n.Int64(); err == nil {
			return n.String(), nil
		}
	}
	return "", errNoUserID
}
