package ocpp

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawJsonRequest(t *testing.T) {
	requestType := reflect.TypeOf(pingRequest{})

	request, callError := ParseRawJsonRequest(json.RawMessage(`{"name":"abc","kind":"Soft","count":1}`), requestType)
	require.Nil(t, callError)
	ping, ok := request.(*pingRequest)
	require.True(t, ok)
	assert.Equal(t, "abc", ping.Name)

	_, callError = ParseRawJsonRequest(json.RawMessage(`{"count":1}`), requestType)
	require.NotNil(t, callError)
	assert.Equal(t, ErrorCodeOccurrenceConstraintViolation, callError.ErrorCode)

	_, callError = ParseRawJsonRequest(json.RawMessage(`{"name":"abc","kind":"Warm"}`), requestType)
	require.NotNil(t, callError)
	assert.Equal(t, ErrorCodePropertyConstraintViolation, callError.ErrorCode)

	_, callError = ParseRawJsonRequest(json.RawMessage(`{"name":"abc","count":"one"}`), requestType)
	require.NotNil(t, callError)
	assert.Equal(t, ErrorCodeFormationViolation, callError.ErrorCode)
}

type pongResponse struct {
	Status string `json:"status" validate:"required,remoteStartStopStatus"`
}

func (r *pongResponse) GetFeatureName() string { return "Ping" }

func TestParseRawJsonResponse(t *testing.T) {
	var response pongResponse
	require.NoError(t, ParseRawJsonResponse(json.RawMessage(`{"status":"Accepted"}`), &response))
	assert.Equal(t, "Accepted", response.Status)

	assert.Error(t, ParseRawJsonResponse(json.RawMessage(`{"status":"Maybe"}`), &response))
	assert.Error(t, ParseRawJsonResponse(json.RawMessage(`[]`), &response))
}
