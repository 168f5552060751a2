package ocpp

import (
	"bytes"
	"encoding/json"
	"evsim/utility"
	"fmt"
)

// ErrMalformedMessage marks frames that are not valid OCPP-J messages. Such frames are dropped.
var ErrMalformedMessage = utility.Err("malformed message")

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

func (t CallType) String() string {
	switch t {
	case CallTypeRequest:
		return "Call"
	case CallTypeResult:
		return "CallResult"
	case CallTypeError:
		return "CallError"
	default:
		return fmt.Sprintf("CallType(%d)", int(t))
	}
}

// ErrorCode is the OCPP-J error code carried by a CallError.
type ErrorCode string

const (
	ErrorCodeNotImplemented                ErrorCode = "NotImplemented"
	ErrorCodeNotSupported                  ErrorCode = "NotSupported"
	ErrorCodeInternalError                 ErrorCode = "InternalError"
	ErrorCodeProtocolError                 ErrorCode = "ProtocolError"
	ErrorCodeSecurityError                 ErrorCode = "SecurityError"
	ErrorCodeFormationViolation            ErrorCode = "FormationViolation"
	ErrorCodePropertyConstraintViolation   ErrorCode = "PropertyConstraintViolation"
	ErrorCodeOccurrenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	ErrorCodeTypeConstraintViolation       ErrorCode = "TypeConstraintViolation"
	ErrorCodeGenericError                  ErrorCode = "GenericError"
)

// Message is one of *Call, *CallResult or *CallError.
type Message interface {
	GetMessageTypeId() CallType
	GetUniqueId() string
}

// Call An OCPP-J Call message, containing an OCPP Request.
type Call struct {
	UniqueId string
	Action   string
	Payload  json.RawMessage
}

func (call *Call) GetMessageTypeId() CallType {
	return CallTypeRequest
}

func (call *Call) GetUniqueId() string {
	return call.UniqueId
}

func (call *Call) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(CallTypeRequest)
	fields[1] = call.UniqueId
	fields[2] = call.Action
	fields[3] = rawOrEmpty(call.Payload)
	return json.Marshal(fields)
}

// CallResult An OCPP-J CallResult message, containing an OCPP Response.
type CallResult struct {
	UniqueId string
	Payload  json.RawMessage
}

func (callResult *CallResult) GetMessageTypeId() CallType {
	return CallTypeResult
}

func (callResult *CallResult) GetUniqueId() string {
	return callResult.UniqueId
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(CallTypeResult)
	fields[1] = callResult.UniqueId
	fields[2] = rawOrEmpty(callResult.Payload)
	return json.Marshal(fields)
}

// CallError An OCPP-J CallError message. It doubles as a Go error so a failed call can be
// returned to whoever waits for its result.
type CallError struct {
	UniqueId         string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

func (callError *CallError) GetMessageTypeId() CallType {
	return CallTypeError
}

func (callError *CallError) GetUniqueId() string {
	return callError.UniqueId
}

func (callError *CallError) Error() string {
	return fmt.Sprintf("%s: %s", callError.ErrorCode, callError.ErrorDescription)
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(CallTypeError)
	fields[1] = callError.UniqueId
	fields[2] = callError.ErrorCode
	fields[3] = callError.ErrorDescription
	fields[4] = rawOrEmpty(callError.ErrorDetails)
	return json.Marshal(fields)
}

func NewCall(uniqueId string, request Request) (*Call, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", request.GetFeatureName(), err)
	}
	return &Call{UniqueId: uniqueId, Action: request.GetFeatureName(), Payload: payload}, nil
}

func NewCallResult(uniqueId string, response Response) (*CallResult, error) {
	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", response.GetFeatureName(), err)
	}
	return &CallResult{UniqueId: uniqueId, Payload: payload}, nil
}

func NewCallError(uniqueId string, code ErrorCode, description string) *CallError {
	return &CallError{
		UniqueId:         uniqueId,
		ErrorCode:        code,
		ErrorDescription: description,
		ErrorDetails:     json.RawMessage("{}"),
	}
}

// ParseMessage decodes a text frame into a Call, CallResult or CallError. Payloads and details
// come back compacted, the same form the encoder writes. Any structural problem is reported as
// ErrMalformedMessage.
func ParseMessage(data []byte) (Message, error) {
	fields, err := utility.ParseJson(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	for i, field := range fields {
		if fields[i], err = compact(field); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	}
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 elements, got %d", ErrMalformedMessage, len(fields))
	}
	var rawTypeId float64
	if err = json.Unmarshal(fields[0], &rawTypeId); err != nil {
		return nil, fmt.Errorf("%w: invalid message type", ErrMalformedMessage)
	}
	typeId := CallType(rawTypeId)
	if float64(typeId) != rawTypeId {
		return nil, fmt.Errorf("%w: invalid message type %v", ErrMalformedMessage, rawTypeId)
	}
	var uniqueId string
	if err = json.Unmarshal(fields[1], &uniqueId); err != nil || uniqueId == "" {
		return nil, fmt.Errorf("%w: invalid message unique id", ErrMalformedMessage)
	}

	switch typeId {
	case CallTypeRequest:
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: Call expects 4 elements, got %d", ErrMalformedMessage, len(fields))
		}
		var action string
		if err = json.Unmarshal(fields[2], &action); err != nil || action == "" {
			return nil, fmt.Errorf("%w: invalid action in call %s", ErrMalformedMessage, uniqueId)
		}
		if !isObject(fields[3]) {
			return nil, fmt.Errorf("%w: payload of call %s is not an object", ErrMalformedMessage, uniqueId)
		}
		return &Call{UniqueId: uniqueId, Action: action, Payload: fields[3]}, nil
	case CallTypeResult:
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: CallResult expects 3 elements, got %d", ErrMalformedMessage, len(fields))
		}
		if !isObject(fields[2]) {
			return nil, fmt.Errorf("%w: payload of result %s is not an object", ErrMalformedMessage, uniqueId)
		}
		return &CallResult{UniqueId: uniqueId, Payload: fields[2]}, nil
	case CallTypeError:
		if len(fields) != 5 {
			return nil, fmt.Errorf("%w: CallError expects 5 elements, got %d", ErrMalformedMessage, len(fields))
		}
		var code, description string
		if err = json.Unmarshal(fields[2], &code); err != nil {
			return nil, fmt.Errorf("%w: invalid error code in %s", ErrMalformedMessage, uniqueId)
		}
		if err = json.Unmarshal(fields[3], &description); err != nil {
			return nil, fmt.Errorf("%w: invalid error description in %s", ErrMalformedMessage, uniqueId)
		}
		return &CallError{
			UniqueId:         uniqueId,
			ErrorCode:        ErrorCode(code),
			ErrorDescription: description,
			ErrorDetails:     fields[4],
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported message type %d", ErrMalformedMessage, typeId)
	}
}

func isObject(raw json.RawMessage) bool {
	var object map[string]json.RawMessage
	return json.Unmarshal(raw, &object) == nil && object != nil
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, raw); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
