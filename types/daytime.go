package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ISO8601 is the layout used for every timestamp the server emits
const ISO8601 = "2006-01-02T15:04:05.000Z07:00"

// DateTime wraps a time.Time struct, allowing for improved dateTime JSON compatibility.
type DateTime struct {
	time.Time
}

// NewDateTime Creates a new DateTime struct, embedding a time.Time struct.
func NewDateTime(time time.Time) *DateTime {
	return &DateTime{Time: time}
}

func (dt *DateTime) String() string {
	return dt.Time.UTC().Format(ISO8601)
}

func (dt *DateTime) MarshalJSON() ([]byte, error) {
	if dt.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(dt.String())
}

func (dt *DateTime) UnmarshalJSON(input []byte) error {
	s := strings.Trim(string(input), `"`)
	if s == "null" || s == "" {
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
