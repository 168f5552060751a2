package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ISO8601 is the timestamp layout used on the wire, always in UTC with millisecond precision.
const ISO8601 = "2006-01-02T15:04:05.000Z"

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
		return json.Marshal(nil)
	}
	return json.Marshal(dt.UTC().Format(ISO8601))
}

func (dt *DateTime) UnmarshalJSON(input []byte) error {
	s := strings.Trim(string(input), "\"")
	if s == "" || s == "null" {
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
