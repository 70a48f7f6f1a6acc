package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidLineItem = errors.New("invalid line item")

// LineItem is one catalog entry plus the quantity of it held in the cart.
type LineItem struct {
	ID        ItemID
	Name      string
	UnitPrice decimal.Decimal
	Image     string
	Quantity  int
}

// Entry is what callers hand to an upsert; quantity is owned by the store.
type Entry struct {
	ID        ItemID
	Name      string
	UnitPrice decimal.Decimal
	Image     string

	// set when decoded JSON carried no price; only a new line needs one
	priceMissing bool
}

// Validate checks what a new line needs. Upserts of a known id skip it.
func (e Entry) Validate() error {
	if e.ID.IsZero() {
		return fmt.Errorf("%w: id is required", ErrInvalidLineItem)
	}
	if e.priceMissing {
		return fmt.Errorf("%w: unitPrice is required", ErrInvalidLineItem)
	}
	if e.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price %s is negative", ErrInvalidLineItem, e.UnitPrice)
	}
	return nil
}

func (e Entry) lineItem(quantity int) LineItem {
	return LineItem{
		ID:        e.ID,
		Name:      e.Name,
		UnitPrice: e.UnitPrice,
		Image:     e.Image,
		Quantity:  quantity,
	}
}

// NewLineItem builds a fresh line item holding a single unit of e.
func NewLineItem(e Entry) (LineItem, error) {
	if err := e.Validate(); err != nil {
		return LineItem{}, err
	}
	return e.lineItem(1), nil
}

// Subtotal is unit price times quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type lineItemJSON struct {
	ID        ItemID      `json:"id"`
	Name      string      `json:"name"`
	UnitPrice json.Number `json:"unitPrice"`
	Image     string      `json:"image,omitempty"`
	Quantity  int         `json:"quantity"`
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{
		ID:        li.ID,
		Name:      li.Name,
		UnitPrice: json.Number(li.UnitPrice.String()),
		Image:     li.Image,
		Quantity:  li.Quantity,
	})
}

func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        ItemID           `json:"id"`
		Name      string           `json:"name"`
		UnitPrice *decimal.Decimal `json:"unitPrice"`
		Image     string           `json:"image"`
		Quantity  int              `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return invalid(err)
	}
	if raw.UnitPrice == nil {
		return fmt.Errorf("%w: unitPrice is required", ErrInvalidLineItem)
	}
	*li = LineItem{
		ID:        raw.ID,
		Name:      raw.Name,
		UnitPrice: *raw.UnitPrice,
		Image:     raw.Image,
		Quantity:  raw.Quantity,
	}
	return nil
}

// UnmarshalJSON accepts "price" as an alias of "unitPrice", which is what
// the storefront product pages send. A missing price is not a decode error;
// Validate reports it when the entry would start a new line.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        ItemID           `json:"id"`
		Name      string           `json:"name"`
		UnitPrice *decimal.Decimal `json:"unitPrice"`
		Price     *decimal.Decimal `json:"price"`
		Image     string           `json:"image"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return invalid(err)
	}
	*e = Entry{ID: raw.ID, Name: raw.Name, Image: raw.Image}
	switch {
	case raw.UnitPrice != nil:
		e.UnitPrice = *raw.UnitPrice
	case raw.Price != nil:
		e.UnitPrice = *raw.Price
	default:
		e.priceMissing = true
	}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        ItemID      `json:"id"`
		Name      string      `json:"name"`
		UnitPrice json.Number `json:"unitPrice"`
		Image     string      `json:"image,omitempty"`
	}{e.ID, e.Name, json.Number(e.UnitPrice.String()), e.Image})
}

func invalid(err error) error {
	if errors.Is(err, ErrInvalidLineItem) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidLineItem, err)
}
