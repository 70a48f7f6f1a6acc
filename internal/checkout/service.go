package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/lineitems/internal/metrics"
	"github.com/fjod/go_cart/lineitems/internal/store"
)

// Carts is the slice of session.Manager checkout needs.
type Carts interface {
	Get(ctx context.Context, userID string) *store.Store
}

type Service struct {
	carts     Carts
	publisher Publisher
	currency  string
	logger    *slog.Logger
}

func NewService(carts Carts, publisher Publisher, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{carts: carts, publisher: publisher, currency: currency, logger: logger}
}

// Checkout hands the user's cart off as an order and takes the ordered
// quantities out of it. Items added while the order is being published stay
// in the cart. The cart is left untouched when the order cannot be built or
// published.
func (s *Service) Checkout(ctx context.Context, userID string, delivery Delivery) (OrderRequest, error) {
	cart := s.carts.Get(ctx, userID)
	items := cart.Items()

	order, err := BuildOrder(userID, items, delivery, s.currency)
	if err != nil {
		return OrderRequest{}, err
	}

	if err := s.publisher.Publish(ctx, order); err != nil {
		s.logger.Error("checkout not published", "user_id", userID, "checkout_id", order.CheckoutID, "error", err)
		return OrderRequest{}, fmt.Errorf("checkout: %w", err)
	}
	metrics.CheckoutsPublished.Inc()

	cart.Deduct(ctx, items)
	s.logger.Info("checkout published",
		"user_id", userID,
		"checkout_id", order.CheckoutID,
		"items", len(order.Items),
		"total", order.TotalAmount.String())
	return order, nil
}
