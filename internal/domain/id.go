package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ItemID identifies the catalog entry behind a line item. Callers may use
// integer or string identifiers; the JSON form they arrived in is kept.
type ItemID struct {
	value   string
	numeric bool
}

func IntID(id int64) ItemID {
	return ItemID{value: strconv.FormatInt(id, 10), numeric: true}
}

func StringID(id string) ItemID {
	return ItemID{value: id}
}

// ParseID turns a path segment into an ItemID: canonical decimal digits
// become an integer id, anything else (signs, leading zeros) a string id.
func ParseID(s string) ItemID {
	if !isDigits(s) {
		return StringID(s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != s {
		return StringID(s)
	}
	return IntID(n)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (id ItemID) IsZero() bool {
	return id.value == ""
}

func (id ItemID) String() string {
	return id.value
}

// Int64 reports the integer value of a numeric id.
func (id ItemID) Int64() (int64, bool) {
	if !id.numeric {
		return 0, false
	}
	n, err := strconv.ParseInt(id.value, 10, 64)
	return n, err == nil
}

func (id ItemID) MarshalJSON() ([]byte, error) {
	switch {
	case id.IsZero():
		return []byte("null"), nil
	case id.numeric:
		return []byte(id.value), nil
	default:
		return json.Marshal(id.value)
	}
}

func (id *ItemID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ItemID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: id: %v", ErrInvalidLineItem, err)
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: id %s is neither an integer nor a string", ErrInvalidLineItem, data)
	}
	*id = IntID(n)
	return nil
}
