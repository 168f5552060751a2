package ocpp

import (
	"github.com/go-playground/validator/v10"
)

// Validate checks the `validate` tags carried by the feature payloads. Enumerated OCPP values
// are registered as custom tags so a typo on the wire is reported instead of accepted.
var Validate = validator.New()

func init() {
	registerEnum("authorizationStatus", "Accepted", "Blocked", "Expired", "Invalid", "ConcurrentTx")
	registerEnum("registrationStatus", "Accepted", "Pending", "Rejected")
	registerEnum("remoteStartStopStatus", "Accepted", "Rejected")
	registerEnum("resetType", "Hard", "Soft")
	registerEnum("resetStatus", "Accepted", "Rejected")
	registerEnum("configurationStatus", "Accepted", "Rejected", "RebootRequired", "NotSupported")
	registerEnum("chargePointStatus", "Available", "Preparing", "Charging", "SuspendedEVSE", "SuspendedEV",
		"Finishing", "Reserved", "Unavailable", "Faulted")
	registerEnum("chargePointErrorCode", "ConnectorLockFailure", "EVCommunicationError", "GroundFailure",
		"HighTemperature", "InternalError", "LocalListConflict", "NoError", "OtherError", "OverCurrentFailure",
		"OverVoltage", "PowerMeterFailure", "PowerSwitchFailure", "ReaderFailure", "ResetFailure", "UnderVoltage",
		"WeakSignal")
	registerEnum("messageTrigger", "BootNotification", "DiagnosticsStatusNotification", "FirmwareStatusNotification",
		"Heartbeat", "MeterValues", "StatusNotification")
	registerEnum("triggerMessageStatus", "Accepted", "Rejected", "NotImplemented")
	registerEnum("reason", "DeAuthorized", "EmergencyStop", "EVDisconnected", "HardReset", "Local", "Other",
		"PowerLoss", "Reboot", "Remote", "SoftReset", "UnlockCommand")
}

func registerEnum(tag string, values ...string) {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	err := Validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	})
	if err != nil {
		panic(err)
	}
}
