package core

import "evsim/types"

const StatusNotificationFeatureName = "StatusNotification"

type StatusNotificationRequest struct {
	ConnectorId     int                        `json:"connectorId" validate:"gte=0"`
	ErrorCode       types.ChargePointErrorCode `json:"errorCode" validate:"required,chargePointErrorCode"`
	Info            string                     `json:"info,omitempty" validate:"max=50"`
	Status          types.ChargePointStatus    `json:"status" validate:"required,chargePointStatus"`
	Timestamp       *types.DateTime            `json:"timestamp,omitempty" validate:"omitempty"`
	VendorId        string                     `json:"vendorId,omitempty" validate:"max=255"`
	VendorErrorCode string                     `json:"vendorErrorCode,omitempty" validate:"max=50"`
}

type StatusNotificationResponse struct {
}

func (r StatusNotificationRequest) GetFeatureName() string {
	return StatusNotificationFeatureName
}

func (r StatusNotificationResponse) GetFeatureName() string {
	return StatusNotificationFeatureName
}
