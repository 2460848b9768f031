package models

import (
	"encoding/json"
	"time"
)

// QueuedCommand is a remote command held back because its charge point was offline
type QueuedCommand struct {
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload"`
	Timeout  time.Duration   `json:"timeout"`
	QueuedAt time.Time       `json:"queued_at"`
}
