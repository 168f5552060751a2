package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
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

// ParseRawJsonRequest decodes a Call payload into a new value of requestType and validates it.
// The returned error is a *CallError ready to be sent back to the caller.
func ParseRawJsonRequest(raw json.RawMessage, requestType reflect.Type) (Request, *CallError) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	request := reflect.New(requestType).Interface()
	if err := json.Unmarshal(raw, request); err != nil {
		return nil, &CallError{ErrorCode: ErrorCodeFormationViolation, ErrorDescription: err.Error()}
	}
	if err := Validate.Struct(request); err != nil {
		return nil, validationCallError(err)
	}
	result, ok := request.(Request)
	if !ok {
		return nil, &CallError{ErrorCode: ErrorCodeInternalError, ErrorDescription: fmt.Sprintf("%v is not a request type", requestType)}
	}
	return result, nil
}

// ParseRawJsonResponse decodes a CallResult payload into response and validates it.
func ParseRawJsonResponse(raw json.RawMessage, response Response) error {
	if err := json.Unmarshal(raw, response); err != nil {
		return fmt.Errorf("decode %s response: %w", response.GetFeatureName(), err)
	}
	if err := Validate.Struct(response); err != nil {
		return fmt.Errorf("validate %s response: %w", response.GetFeatureName(), err)
	}
	return nil
}

func validationCallError(err error) *CallError {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldError := validationErrors[0]
		code := ErrorCodePropertyConstraintViolation
		if fieldError.Tag() == "required" {
			code = ErrorCodeOccurrenceConstraintViolation
		}
		return &CallError{
			ErrorCode:        code,
			ErrorDescription: fmt.Sprintf("field %s failed on '%s'", fieldError.Namespace(), fieldError.Tag()),
		}
	}
	return &CallError{ErrorCode: ErrorCodeFormationViolation, ErrorDescription: err.Error()}
}
