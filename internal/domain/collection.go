package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Collection is the ordered set of line items of one cart. Position is
// fixed by the first insertion of an id.
type Collection []LineItem

// Clone returns an independent copy; it never returns nil so an empty
// collection always encodes as [].
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

func (c Collection) IndexOf(id ItemID) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Resolve finds the id a path segment refers to. Path segments lose the
// integer/string distinction, so an exact ParseID match wins and otherwise
// any line whose id prints as raw is taken. Unmatched input falls back to
// ParseID.
func (c Collection) Resolve(raw string) ItemID {
	parsed := ParseID(raw)
	if c.IndexOf(parsed) >= 0 {
		return parsed
	}
	for _, item := range c {
		if item.ID.String() == raw {
			return item.ID
		}
	}
	return parsed
}

func (c Collection) TotalQuantity() int {
	total := 0
	for _, item := range c {
		total += item.Quantity
	}
	return total
}

func (c Collection) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Validate checks the collection invariants: present and unique ids,
// non-negative prices and quantities of at least one.
func (c Collection) Validate() error {
	seen := make(map[ItemID]struct{}, len(c))
	for i, item := range c {
		if item.ID.IsZero() {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidLineItem, i)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidLineItem, item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: id %s has quantity %d", ErrInvalidLineItem, item.ID, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: id %s has negative unit price", ErrInvalidLineItem, item.ID)
		}
	}
	return nil
}

// Encode serializes the collection as a JSON array.
func Encode(c Collection) ([]byte, error) {
	if c == nil {
		c = Collection{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal line items failed: %w", err)
	}
	return data, nil
}

// Decode parses a persisted JSON array and rejects payloads that break the
// collection invariants.
func Decode(data []byte) (Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal line items failed: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		c = Collection{}
	}
	return c, nil
}
