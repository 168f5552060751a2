package internal

import "time"

const (
	EventStatusNotification = "status_notification"
	EventTransactionStart   = "transaction_start"
	EventTransactionStop    = "transaction_stop"
)

// EventHandler receives connector events as they are reported to the central system.
type EventHandler interface {
	OnStatusNotification(event *EventMessage)
	OnTransactionStart(event *EventMessage)
	OnTransactionStop(event *EventMessage)
}

type EventMessage struct {
	Type          string    `json:"type" bson:"type"`
	ChargePointId string    `json:"charge_point_id" bson:"charge_point_id"`
	ConnectorId   int       `json:"connector_id" bson:"connector_id"`
	Time          time.Time `json:"time" bson:"time"`
	IdTag         string    `json:"id_tag" bson:"id_tag"`
	TransactionId int       `json:"transaction_id" bson:"transaction_id"`
	Status        string    `json:"status" bson:"status"`
	ErrorCode     string    `json:"error_code,omitempty" bson:"error_code,omitempty"`
	MeterValue    int       `json:"meter_value" bson:"meter_value"`
	Reason        string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Info          string    `json:"info" bson:"info"`
}

func (e *EventMessage) DataType() string {
	return e.Type
}
