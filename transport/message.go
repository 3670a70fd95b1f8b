package transport

import (
	"encoding/json"
	"evsim/utility"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

type ErrorCode string

const (
	NotImplemented                ErrorCode = "NotImplemented"
	NotSupported                  ErrorCode = "NotSupported"
	InternalError                 ErrorCode = "InternalError"
	ProtocolError                 ErrorCode = "ProtocolError"
	SecurityError                 ErrorCode = "SecurityError"
	FormationViolation            ErrorCode = "FormationViolation"
	PropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	OccurrenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	TypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	GenericError                  ErrorCode = "GenericError"
)

// Call An OCPP-J Call message, containing an OCPP Request.
type Call struct {
	TypeId   CallType
	UniqueId string
	Action   string
	Payload  interface{}
}

func (call *Call) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(call.TypeId)
	fields[1] = call.UniqueId
	fields[2] = call.Action
	fields[3] = emptyIfNil(call.Payload)
	return json.Marshal(fields)
}

// CallResult An OCPP-J CallResult message, containing an OCPP Response.
type CallResult struct {
	TypeId   CallType
	UniqueId string
	Payload  interface{}
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(callResult.TypeId)
	fields[1] = callResult.UniqueId
	fields[2] = emptyIfNil(callResult.Payload)
	return json.Marshal(fields)
}

// CallError An OCPP-J CallError message, answering a Call that could not be processed.
type CallError struct {
	TypeId           CallType
	UniqueId         string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     interface{}
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(callError.TypeId)
	fields[1] = callError.UniqueId
	fields[2] = callError.ErrorCode
	fields[3] = callError.ErrorDescription
	fields[4] = emptyIfNil(callError.ErrorDetails)
	return json.Marshal(fields)
}

func emptyIfNil(v interface{}) interface{} {
	if v == nil {
		return struct{}{}
	}
	return v
}

// Message is a decoded inbound frame; payloads stay raw until a handler decodes them
type Message struct {
	TypeId           CallType
	UniqueId         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

func ParseMessage(data []byte) (*Message, error) {
	fields, err := utility.ParseJson(data)
	if err != nil {
		return nil, utility.Errf("invalid frame: %v", err)
	}
	if len(fields) < 3 {
		return nil, utility.Err("invalid frame: expected at least 3 elements")
	}
	var typeId int
	if err = json.Unmarshal(fields[0], &typeId); err != nil {
		return nil, utility.Err("invalid message type")
	}
	message := &Message{TypeId: CallType(typeId)}
	if err = json.Unmarshal(fields[1], &message.UniqueId); err != nil || message.UniqueId == "" {
		return nil, utility.Err("invalid message unique id")
	}
	switch message.TypeId {
	case CallTypeRequest:
		if len(fields) != 4 {
			return nil, utility.Err("unsupported request format; expected length: 4 elements")
		}
		if err = json.Unmarshal(fields[2], &message.Action); err != nil || message.Action == "" {
			return nil, utility.Err("invalid action in request")
		}
		message.Payload = fields[3]
	case CallTypeResult:
		if len(fields) != 3 {
			return nil, utility.Err("unsupported result format; expected length: 3 elements")
		}
		message.Payload = fields[2]
	case CallTypeError:
		if len(fields) < 4 || len(fields) > 5 {
			return nil, utility.Err("unsupported error format; expected length: 5 elements")
		}
		var code string
		if err = json.Unmarshal(fields[2], &code); err != nil {
			return nil, utility.Err("invalid error code")
		}
		message.ErrorCode = ErrorCode(code)
		if err = json.Unmarshal(fields[3], &message.ErrorDescription); err != nil {
			return nil, utility.Err("invalid error description")
		}
		if len(fields) == 5 {
			message.ErrorDetails = fields[4]
		}
	default:
		return nil, utility.Errf("invalid message type id: %d", typeId)
	}
	return message, nil
}
