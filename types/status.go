package types

import (
	"errors"
	"evsim/utility"
	"fmt"
)

// ErrInvalidEnumValue is returned when a status or error code name does not match any known value.
var ErrInvalidEnumValue = utility.Err("invalid enumeration value")

type ChargePointErrorCode string

type ChargePointStatus string

const (
	ConnectorLockFailure           ChargePointErrorCode = "ConnectorLockFailure"
	EVCommunicationError           ChargePointErrorCode = "EVCommunicationError"
	GroundFailure                  ChargePointErrorCode = "GroundFailure"
	HighTemperature                ChargePointErrorCode = "HighTemperature"
	InternalError                  ChargePointErrorCode = "InternalError"
	LocalListConflict              ChargePointErrorCode = "LocalListConflict"
	NoError                        ChargePointErrorCode = "NoError"
	OtherError                     ChargePointErrorCode = "OtherError"
	OverCurrentFailure             ChargePointErrorCode = "OverCurrentFailure"
	OverVoltage                    ChargePointErrorCode = "OverVoltage"
	PowerMeterFailure              ChargePointErrorCode = "PowerMeterFailure"
	PowerSwitchFailure             ChargePointErrorCode = "PowerSwitchFailure"
	ReaderFailure                  ChargePointErrorCode = "ReaderFailure"
	ResetFailure                   ChargePointErrorCode = "ResetFailure"
	UnderVoltage                   ChargePointErrorCode = "UnderVoltage"
	WeakSignal                     ChargePointErrorCode = "WeakSignal"
	ChargePointStatusAvailable     ChargePointStatus    = "Available"
	ChargePointStatusPreparing     ChargePointStatus    = "Preparing"
	ChargePointStatusCharging      ChargePointStatus    = "Charging"
	ChargePointStatusSuspendedEVSE ChargePointStatus    = "SuspendedEVSE"
	ChargePointStatusSuspendedEV   ChargePointStatus    = "SuspendedEV"
	ChargePointStatusFinishing     ChargePointStatus    = "Finishing"
	ChargePointStatusReserved      ChargePointStatus    = "Reserved"
	ChargePointStatusUnavailable   ChargePointStatus    = "Unavailable"
	ChargePointStatusFaulted       ChargePointStatus    = "Faulted"
)

var Statuses = []ChargePointStatus{
	ChargePointStatusAvailable,
	ChargePointStatusPreparing,
	ChargePointStatusCharging,
	ChargePointStatusSuspendedEVSE,
	ChargePointStatusSuspendedEV,
	ChargePointStatusFinishing,
	ChargePointStatusReserved,
	ChargePointStatusUnavailable,
	ChargePointStatusFaulted,
}

var ErrorCodes = []ChargePointErrorCode{
	NoError,
	ConnectorLockFailure,
	EVCommunicationError,
	GroundFailure,
	HighTemperature,
	InternalError,
	LocalListConflict,
	OtherError,
	OverCurrentFailure,
	PowerMeterFailure,
	PowerSwitchFailure,
	ReaderFailure,
	ResetFailure,
	UnderVoltage,
	OverVoltage,
	WeakSignal,
}

// ParseStatus looks a status up by its OCPP name; case, spaces and underscores are ignored,
// anything else must match exactly.
func ParseStatus(name string) (ChargePointStatus, error) {
	key := utility.Normalize(name)
	for _, s := range Statuses {
		if utility.Normalize(string(s)) == key {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: status %q; options: %v", ErrInvalidEnumValue, name, Statuses)
}

// ParseErrorCode looks an error code up by its OCPP name, with the same rules as ParseStatus.
func ParseErrorCode(name string) (ChargePointErrorCode, error) {
	key := utility.Normalize(name)
	for _, c := range ErrorCodes {
		if utility.Normalize(string(c)) == key {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: error code %q; options: %v", ErrInvalidEnumValue, name, ErrorCodes)
}

func IsInvalidEnum(err error) bool {
	return errors.Is(err, ErrInvalidEnumValue)
}
