package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request message
type Request interface {
	// GetFeatureName Returns the unique name of the feature, to which this request belongs to.
	GetFeatureName() string
}

// Response message
type Response interface {
	// GetFeatureName Returns the unique name of the feature, to which this request belongs to.
	GetFeatureName() string
}

// RequiredFields is implemented by requests that list the payload keys which must be present
type RequiredFields interface {
	RequiredFields() []string
}

type ErrorCode string

const (
	ProtocolError  ErrorCode = "ProtocolError"
	NotImplemented ErrorCode = "NotImplemented"
	InternalError  ErrorCode = "InternalError"
	GenericError   ErrorCode = "GenericError"
)

var (
	ErrProtocol       = errors.New("protocol error")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotImplemented = errors.New("action not implemented")
)

// CallError is the error returned when the remote side answers a request with a CALLERROR frame
type CallError struct {
	UniqueId         string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

func (e *CallError) Error() string {
	if e.ErrorDescription == "" {
		return string(e.ErrorCode)
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorDescription)
}

// DecodePayload unmarshals a CALL payload into the request and checks that required keys are present
func DecodePayload(raw json.RawMessage, request Request) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: payload is not an object: %v", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if r, ok := request.(RequiredFields); ok {
		for _, name := range r.RequiredFields() {
			value, present := fields[name]
			if !present || string(value) == "null" {
				return fmt.Errorf("%w: missing required field %s", ErrInvalidPayload, name)
			}
		}
	}
	return nil
}
