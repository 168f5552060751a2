package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]ChargePointStatus{
		"Available":      ChargePointStatusAvailable,
		"charging":       ChargePointStatusCharging,
		"SUSPENDED_EVSE": ChargePointStatusSuspendedEVSE,
		"suspended ev":   ChargePointStatusSuspendedEV,
		"faulted":        ChargePointStatusFaulted,
	}
	for input, expected := range cases {
		status, err := ParseStatus(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, status)
	}
}

func TestParseStatus_NoPartialMatch(t *testing.T) {
	for _, input := range []string{"", "charg", "suspended", "Availablee"} {
		_, err := ParseStatus(input)
		assert.ErrorIs(t, err, ErrInvalidEnumValue, input)
		assert.True(t, IsInvalidEnum(err))
	}
}

func TestParseErrorCode(t *testing.T) {
	code, err := ParseErrorCode("ground_failure")
	require.NoError(t, err)
	assert.Equal(t, GroundFailure, code)

	code, err = ParseErrorCode("NoError")
	require.NoError(t, err)
	assert.Equal(t, NoError, code)

	_, err = ParseErrorCode("Ground")
	assert.ErrorIs(t, err, ErrInvalidEnumValue)
	assert.Len(t, ErrorCodes, 16)
}

func TestDateTime_JSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 20, 30, 400_000_000, time.FixedZone("CET", 3600))
	data, err := json.Marshal(NewDateTime(ts))
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T09:20:30.400Z"`, string(data))

	var decoded DateTime
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(ts))
}
