package ocpp

import (
	"encoding/json"
	"fmt"

	"evcs/utility"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

// Message is one decoded OCPP-J frame; fields not used by the frame type stay empty
type Message struct {
	TypeId           CallType
	UniqueId         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// ProtocolViolation describes a frame that could not be accepted; UniqueId is set when it could be recovered
type ProtocolViolation struct {
	UniqueId string
	Reason   string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolViolation) Unwrap() error {
	return ErrProtocol
}

func violation(id, format string, args ...interface{}) *ProtocolViolation {
	return &ProtocolViolation{UniqueId: id, Reason: fmt.Sprintf(format, args...)}
}

// ParseMessage validates the frame envelope; the payload of a CALL is left raw for the handler to decode
func ParseMessage(data []byte) (*Message, error) {
	fields, err := utility.ParseJson(data)
	if err != nil {
		return nil, violation("", "message is not a json array")
	}
	if len(fields) < 2 {
		return nil, violation("", "expected at least 2 elements, got %d", len(fields))
	}
	var uniqueId string
	_ = json.Unmarshal(fields[1], &uniqueId)

	var rawType float64
	if err := json.Unmarshal(fields[0], &rawType); err != nil {
		return nil, violation(uniqueId, "message type is not a number")
	}
	typeId := CallType(rawType)
	if float64(typeId) != rawType || typeId < CallTypeRequest || typeId > CallTypeError {
		return nil, violation(uniqueId, "invalid message type %v", rawType)
	}
	if uniqueId == "" {
		return nil, violation("", "unique id must be a non-empty string")
	}

	message := &Message{TypeId: typeId, UniqueId: uniqueId}
	switch typeId {
	case CallTypeRequest:
		// elements past the payload are ignored
		if len(fields) < 4 {
			return nil, violation(uniqueId, "call expects at least 4 elements, got %d", len(fields))
		}
		if err := json.Unmarshal(fields[2], &message.Action); err != nil || message.Action == "" {
			return nil, violation(uniqueId, "action must be a non-empty string")
		}
		message.Payload = fields[3]
	case CallTypeResult:
		if len(fields) > 2 {
			message.Payload = fields[2]
		}
	case CallTypeError:
		if len(fields) > 2 {
			var code string
			_ = json.Unmarshal(fields[2], &code)
			message.ErrorCode = ErrorCode(code)
		}
		if len(fields) > 3 {
			_ = json.Unmarshal(fields[3], &message.ErrorDescription)
		}
		if len(fields) > 4 {
			message.ErrorDetails = fields[4]
		}
	}
	return message, nil
}

// CallError converts a CALLERROR frame into an error value
func (m *Message) CallError() *CallError {
	return &CallError{
		UniqueId:         m.UniqueId,
		ErrorCode:        m.ErrorCode,
		ErrorDescription: m.ErrorDescription,
		ErrorDetails:     m.ErrorDetails,
	}
}

// Call An OCPP-J Call message, containing an OCPP Request.
type Call struct {
	UniqueId string
	Action   string
	Payload  interface{}
}

func (call *Call) MarshalJSON() ([]byte, error) {
	payload := call.Payload
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{int(CallTypeRequest), call.UniqueId, call.Action, payload})
}

// CallResult An OCPP-J CallResult message, containing an OCPP Response.
type CallResult struct {
	UniqueId string
	Payload  Response
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	var payload interface{} = callResult.Payload
	if callResult.Payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]interface{}{int(CallTypeResult), callResult.UniqueId, payload})
}

// CallErrorFrame An OCPP-J CallError message.
type CallErrorFrame struct {
	UniqueId         string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     interface{}
}

func (f *CallErrorFrame) MarshalJSON() ([]byte, error) {
	details := f.ErrorDetails
	if details == nil {
		details = struct{}{}
	}
	return json.Marshal([]interface{}{int(CallTypeError), f.UniqueId, string(f.ErrorCode), f.ErrorDescription, details})
}

func NewCallResult(uniqueId string, response Response) *CallResult {
	return &CallResult{UniqueId: uniqueId, Payload: response}
}

func NewCallErrorFrame(uniqueId string, code ErrorCode, description string) *CallErrorFrame {
	return &CallErrorFrame{UniqueId: uniqueId, ErrorCode: code, ErrorDescription: description}
}
