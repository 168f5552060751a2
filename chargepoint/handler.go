package chargepoint

import (
	"context"
	"evsim/ocpp"
	"evsim/ocpp/core"
	"evsim/ocpp/remotetrigger"
	"evsim/types"
	"fmt"
	"reflect"
)

// FollowUp is the asynchronous continuation of a handled request; Run starts after the response
// has been sent. Discard, when set, releases what the handler reserved if Run never starts.
type FollowUp struct {
	Run     func(ctx context.Context)
	Discard func()
}

func getRequestType(action string) (reflect.Type, bool) {
	var requestType reflect.Type
	switch action {
	case core.RemoteStartTransactionFeatureName:
		requestType = reflect.TypeOf(core.RemoteStartTransactionRequest{})
	case core.RemoteStopTransactionFeatureName:
		requestType = reflect.TypeOf(core.RemoteStopTransactionRequest{})
	case core.ResetFeatureName:
		requestType = reflect.TypeOf(core.ResetRequest{})
	case core.ChangeConfigurationFeatureName:
		requestType = reflect.TypeOf(core.ChangeConfigurationRequest{})
	case remotetrigger.TriggerMessageFeatureName:
		requestType = reflect.TypeOf(remotetrigger.TriggerMessageRequest{})
	default:
		return nil, false
	}
	return requestType, true
}

// Dispatch maps an inbound call to its handler. The returned message is the CallResult or
// CallError to send back; a non-nil FollowUp must be started only after that message is sent.
func (cp *ChargePoint) Dispatch(call *ocpp.Call) (ocpp.Message, *FollowUp) {
	requestType, ok := getRequestType(call.Action)
	if !ok {
		cp.logger.Warn(fmt.Sprintf("unsupported action %s", call.Action))
		return ocpp.NewCallError(call.UniqueId, ocpp.ErrorCodeNotImplemented,
			fmt.Sprintf("Action %s not implemented", call.Action)), nil
	}
	request, callError := ocpp.ParseRawJsonRequest(call.Payload, requestType)
	if callError != nil {
		callError.UniqueId = call.UniqueId
		cp.logger.Warn(fmt.Sprintf("invalid %s request: %s", call.Action, callError.ErrorDescription))
		return callError, nil
	}

	var response ocpp.Response
	var followUp *FollowUp
	switch req := request.(type) {
	case *core.RemoteStartTransactionRequest:
		response, followUp = cp.OnRemoteStartTransaction(req)
	case *core.RemoteStopTransactionRequest:
		response, followUp = cp.OnRemoteStopTransaction(req)
	case *core.ResetRequest:
		response = cp.OnReset(req)
	case *core.ChangeConfigurationRequest:
		response = cp.OnChangeConfiguration(req)
	case *remotetrigger.TriggerMessageRequest:
		response, followUp = cp.OnTriggerMessage(req)
	}

	result, err := ocpp.NewCallResult(call.UniqueId, response)
	if err != nil {
		if followUp != nil && followUp.Discard != nil {
			followUp.Discard()
		}
		return ocpp.NewCallError(call.UniqueId, ocpp.ErrorCodeInternalError, err.Error()), nil
	}
	return result, followUp
}

func (cp *ChargePoint) handleCall(call *ocpp.Call) {
	message, followUp := cp.Dispatch(call)
	if err := cp.send(message); err != nil {
		cp.logger.Error(fmt.Sprintf("send response to %s", call.Action), err)
		cp.discard(followUp)
		return
	}
	if !cp.follow(followUp) {
		cp.logger.Warn(fmt.Sprintf("%s accepted during shutdown; not started", call.Action))
	}
}

// follow launches followUp, discarding it when the session no longer takes tasks.
func (cp *ChargePoint) follow(followUp *FollowUp) bool {
	if followUp == nil {
		return true
	}
	if cp.launch(followUp.Run) {
		return true
	}
	cp.discard(followUp)
	return false
}

func (cp *ChargePoint) discard(followUp *FollowUp) {
	if followUp != nil && followUp.Discard != nil {
		followUp.Discard()
	}
}

func (cp *ChargePoint) OnRemoteStartTransaction(request *core.RemoteStartTransactionRequest) (*core.RemoteStartTransactionResponse, *FollowUp) {
	if !cp.running() {
		cp.logger.FeatureEvent(core.RemoteStartTransactionFeatureName, cp.id, "rejected: session is closing")
		return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusRejected), nil
	}
	if request.ConnectorId != nil && *request.ConnectorId != cp.connector.Id() {
		cp.logger.FeatureEvent(core.RemoteStartTransactionFeatureName, cp.id,
			fmt.Sprintf("rejected: unknown connector %d", *request.ConnectorId))
		return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusRejected), nil
	}
	tx, ok := cp.connector.TryBegin(request.IdTag)
	if !ok {
		cp.logger.FeatureEvent(core.RemoteStartTransactionFeatureName, cp.id,
			fmt.Sprintf("rejected: connector is %s", cp.connector.Snapshot().String()))
		return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusRejected), nil
	}
	cp.logger.FeatureEvent(core.RemoteStartTransactionFeatureName, cp.id, fmt.Sprintf("accepted for %s", request.IdTag))
	return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusAccepted), &FollowUp{
		Run: func(ctx context.Context) {
			cp.startTransaction(ctx, tx)
		},
		Discard: func() {
			cp.connector.Abandon(tx)
		},
	}
}

func (cp *ChargePoint) OnRemoteStopTransaction(request *core.RemoteStopTransactionRequest) (*core.RemoteStopTransactionResponse, *FollowUp) {
	tx, ok := cp.connector.BeginStop(*request.TransactionId)
	if !ok {
		cp.logger.FeatureEvent(core.RemoteStopTransactionFeatureName, cp.id,
			fmt.Sprintf("rejected: transaction %d is not active", *request.TransactionId))
		return core.NewRemoteStopTransactionResponse(types.RemoteStartStopStatusRejected), nil
	}
	cp.logger.FeatureEvent(core.RemoteStopTransactionFeatureName, cp.id, fmt.Sprintf("accepted for transaction %d", tx.Id))
	return core.NewRemoteStopTransactionResponse(types.RemoteStartStopStatusAccepted), &FollowUp{
		Run: func(ctx context.Context) {
			cp.stopTransaction(ctx, tx, core.ReasonRemote)
		},
	}
}

func (cp *ChargePoint) OnReset(request *core.ResetRequest) *core.ResetResponse {
	cp.logger.FeatureEvent(core.ResetFeatureName, cp.id, fmt.Sprintf("%s reset requested", request.Type))
	return core.NewResetResponse(core.ResetStatusAccepted)
}

func (cp *ChargePoint) OnChangeConfiguration(request *core.ChangeConfigurationRequest) *core.ChangeConfigurationResponse {
	cp.logger.FeatureEvent(core.ChangeConfigurationFeatureName, cp.id, fmt.Sprintf("%s = %s", request.Key, request.Value))
	return core.NewChangeConfigurationResponse(core.ConfigurationStatusAccepted)
}

// OnTriggerMessage accepts the messages the charge point can send on demand; the message itself
// follows the response.
func (cp *ChargePoint) OnTriggerMessage(request *remotetrigger.TriggerMessageRequest) (*remotetrigger.TriggerMessageResponse, *FollowUp) {
	if request.ConnectorId != nil && *request.ConnectorId != 0 && *request.ConnectorId != cp.connector.Id() {
		cp.logger.FeatureEvent(remotetrigger.TriggerMessageFeatureName, cp.id,
			fmt.Sprintf("rejected: unknown connector %d", *request.ConnectorId))
		return remotetrigger.NewTriggerMessageResponse(remotetrigger.TriggerMessageStatusRejected), nil
	}

	var send func() error
	switch request.RequestedMessage {
	case remotetrigger.MessageTriggerBootNotification:
		send = func() error {
			_, err := cp.sendCall(cp.bootRequest())
			return err
		}
	case remotetrigger.MessageTriggerHeartbeat:
		send = func() error {
			_, err := cp.sendCall(core.HeartbeatRequest{})
			return err
		}
	case remotetrigger.MessageTriggerStatusNotification:
		send = func() error {
			return cp.notifyStatus(cp.connector.Status(), "")
		}
	case remotetrigger.MessageTriggerMeterValues:
		send = func() error {
			snapshot := cp.connector.Snapshot()
			tx, open := cp.connector.Transaction()
			return cp.sendMeterValues(Sample{
				InTransaction: open && tx.state != TransactionPending,
				TransactionId: tx.Id,
				Meter:         snapshot.Meter,
				Current:       snapshot.Current,
				Voltage:       snapshot.Voltage,
				Power:         snapshot.Power,
				Soc:           snapshot.Soc,
			})
		}
	default:
		cp.logger.FeatureEvent(remotetrigger.TriggerMessageFeatureName, cp.id,
			fmt.Sprintf("%s is not supported", request.RequestedMessage))
		return remotetrigger.NewTriggerMessageResponse(remotetrigger.TriggerMessageStatusNotImplemented), nil
	}

	cp.logger.FeatureEvent(remotetrigger.TriggerMessageFeatureName, cp.id, fmt.Sprintf("%s requested", request.RequestedMessage))
	return remotetrigger.NewTriggerMessageResponse(remotetrigger.TriggerMessageStatusAccepted), &FollowUp{
		Run: func(ctx context.Context) {
			if err := send(); err != nil {
				cp.logger.Error(fmt.Sprintf("triggered %s", request.RequestedMessage), err)
			}
		},
	}
}
