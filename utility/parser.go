package utility

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseJson decodes an OCPP-J frame into its raw elements
func ParseJson(b []byte) ([]json.RawMessage, error) {
	var array []json.RawMessage
	err := json.Unmarshal(b, &array)
	return array, err
}

// ToFloat converts a meter reading string to a number; ok is false for anything unparsable
func ToFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func NewUUID() string {
	return uuid.New().String()
}

// ShortId returns n hex characters of a fresh uuid, n is capped at 32
func ShortId(n int) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	if n > len(id) {
		n = len(id)
	}
	return id[:n]
}
