package types

import (
	"encoding/json"
	"time"
)

// ISO8601 is the timestamp layout used on the wire, UTC with millisecond precision
const ISO8601 = "2006-01-02T15:04:05.000Z07:00"

// DateTime wraps a time.Time struct, allowing for improved dateTime JSON compatibility.
type DateTime struct {
	time.Time
}

// NewDateTime Creates a new DateTime struct, embedding a time.Time struct.
func NewDateTime(time time.Time) *DateTime {
	return &DateTime{Time: time}
}

func (dt *DateTime) MarshalJSON() ([]byte, error) {
	if dt == nil || dt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(dt.UTC().Format(ISO8601))
}

func (dt *DateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		dt.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	dt.Time = t
	return nil
}
