package checkout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidDelivery = errors.New("invalid delivery details")
)

const EventTypeCheckout = "cart_checkout"

// Delivery is where and to whom the order is dispatched.
type Delivery struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Instructions string `json:"instructions,omitempty"`
}

func (d Delivery) Validate() error {
	if strings.TrimSpace(d.Phone) == "" {
		return fmt.Errorf("%w: phone required", ErrInvalidDelivery)
	}
	if strings.TrimSpace(d.Address) == "" {
		return fmt.Errorf("%w: address required", ErrInvalidDelivery)
	}
	return nil
}

type OrderItem struct {
	ProductID domain.ItemID   `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderRequest captures the cart at checkout time with prices frozen.
type OrderRequest struct {
	CheckoutID  string          `json:"checkout_id"`
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Delivery    Delivery        `json:"delivery"`
	CreatedAt   time.Time       `json:"created_at"`
}

func BuildOrder(userID string, items domain.Collection, delivery Delivery, currency string) (OrderRequest, error) {
	if len(items) == 0 {
		return OrderRequest{}, ErrEmptyCart
	}
	if err := delivery.Validate(); err != nil {
		return OrderRequest{}, err
	}

	order := OrderRequest{
		CheckoutID:  uuid.NewString(),
		UserID:      userID,
		Items:       make([]OrderItem, 0, len(items)),
		TotalAmount: items.TotalValue(),
		Currency:    currency,
		Delivery:    delivery,
		CreatedAt:   time.Now().UTC(),
	}
	for _, it := range items {
		order.Items = append(order.Items, OrderItem{
			ProductID: it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal(),
		})
	}
	return order, nil
}
