package chargepoint

import (
	"context"
	"errors"
	"evsim/internal"
	"evsim/metrics/counters"
	"evsim/ocpp"
	"evsim/ocpp/core"
	"evsim/types"
	"fmt"
	"time"
)

// startTransaction walks a pending transaction through Preparing and the StartTransaction
// exchange to Charging. Every step re-checks that tx is still the connector's transaction.
func (cp *ChargePoint) startTransaction(ctx context.Context, tx *Transaction) {
	cp.seqMu.Lock()
	defer cp.seqMu.Unlock()

	if err := cp.connector.Prepare(tx); err != nil {
		cp.logger.Warn(fmt.Sprintf("start for %s abandoned: %v", tx.IdTag, err))
		cp.abort(tx, err.Error())
		return
	}
	if err := cp.notifyStatus(types.ChargePointStatusPreparing, ""); err != nil {
		cp.logger.Error("start transaction", err)
		return
	}
	if !cp.sleep(ctx, cp.conf.Timing.SettleDelay) {
		return
	}

	meterStart := cp.connector.Meter()
	request := core.StartTransactionRequest{
		ConnectorId: cp.connector.Id(),
		IdTag:       tx.IdTag,
		MeterStart:  meterStart,
		Timestamp:   types.NewDateTime(time.Now()),
	}
	pending, err := cp.sendCall(request)
	if err != nil {
		cp.logger.Error("start transaction", err)
		return
	}
	payload, err := cp.correlator.Await(ctx, pending, cp.conf.Timing.CorrelationTimeout)
	if ctx.Err() != nil {
		return
	}
	var response core.StartTransactionResponse
	if err == nil {
		err = ocpp.ParseRawJsonResponse(payload, &response)
	}
	if err != nil {
		if errors.Is(err, ocpp.ErrCorrelationTimeout) {
			cp.logger.Error(fmt.Sprintf("no transaction id for %s", tx.IdTag), err)
		} else {
			cp.logger.Error(fmt.Sprintf("start transaction for %s", tx.IdTag), err)
		}
		cp.abort(tx, err.Error())
		return
	}

	if err = cp.connector.Assign(tx, response.TransactionId, meterStart); err != nil {
		cp.logger.Warn(fmt.Sprintf("transaction %d: %v", response.TransactionId, err))
		return
	}
	counters.CountTransactionStart(cp.id)
	cp.logger.FeatureEvent(core.StartTransactionFeatureName, cp.id,
		fmt.Sprintf("transaction %d started for %s; meter %d", tx.Id, tx.IdTag, meterStart))
	cp.emit(&internal.EventMessage{
		Type:          internal.EventTransactionStart,
		IdTag:         tx.IdTag,
		TransactionId: tx.Id,
		Status:        string(response.IdTagInfo.Status),
		MeterValue:    meterStart,
	})

	if response.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		cp.logger.FeatureEvent(core.StartTransactionFeatureName, cp.id,
			fmt.Sprintf("id tag %s is %s", tx.IdTag, response.IdTagInfo.Status))
		cp.runStop(ctx, tx, core.ReasonDeAuthorized, true)
		return
	}
	if err = cp.connector.Charge(tx); err != nil {
		cp.logger.Warn(fmt.Sprintf("transaction %d cannot charge: %v", tx.Id, err))
		cp.runStop(ctx, tx, core.ReasonOther, true)
		return
	}
	if err = cp.notifyStatus(types.ChargePointStatusCharging, ""); err != nil {
		cp.logger.Error("start transaction", err)
		return
	}
	cp.launch(func(ctx context.Context) {
		cp.meterLoop(ctx, tx)
	})
}

// abort drops a transaction that never got an id and reports Available again.
func (cp *ChargePoint) abort(tx *Transaction, info string) {
	if !cp.connector.Abandon(tx) {
		return
	}
	if err := cp.notifyStatus(types.ChargePointStatusAvailable, ""); err != nil {
		cp.logger.Error("abort transaction", err)
	}
	cp.logger.FeatureEvent(core.StartTransactionFeatureName, cp.id, fmt.Sprintf("start for %s aborted: %s", tx.IdTag, info))
}

// stopTransaction runs the stop sequence for a transaction already marked as stopping.
func (cp *ChargePoint) stopTransaction(ctx context.Context, tx *Transaction, reason core.Reason) {
	cp.seqMu.Lock()
	defer cp.seqMu.Unlock()
	cp.runStop(ctx, tx, reason, true)
}

// runStop must be called with seqMu held. Without delays it is the best effort variant used on
// shutdown. A cancelled ctx leaves the rest of the sequence to the shutdown path.
func (cp *ChargePoint) runStop(ctx context.Context, tx *Transaction, reason core.Reason, delays bool) {
	meterStop, err := cp.connector.Finish(tx)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("transaction %d: %v", tx.Id, err))
	}
	if err = cp.notifyStatus(types.ChargePointStatusFinishing, ""); err != nil {
		cp.logger.Error("stop transaction", err)
	}
	if delays && !cp.sleep(ctx, cp.conf.Timing.SettleDelay) {
		return
	}

	request := core.StopTransactionRequest{
		IdTag:         tx.IdTag,
		MeterStop:     meterStop,
		Timestamp:     types.NewDateTime(time.Now()),
		TransactionId: tx.Id,
		Reason:        reason,
	}
	if _, err = cp.sendCall(request); err != nil {
		cp.logger.Error("stop transaction", err)
	}
	cp.connector.MarkStopSent(tx)
	counters.CountTransactionStop(cp.id, string(reason))
	cp.logger.FeatureEvent(core.StopTransactionFeatureName, cp.id,
		fmt.Sprintf("transaction %d stopped: %s; meter %d", tx.Id, reason, meterStop))
	cp.emit(&internal.EventMessage{
		Type:          internal.EventTransactionStop,
		IdTag:         tx.IdTag,
		TransactionId: tx.Id,
		Status:        string(types.ChargePointStatusFinishing),
		MeterValue:    meterStop,
		Reason:        string(reason),
		Info:          fmt.Sprintf("consumed %d Wh", meterStop-tx.MeterStart),
	})

	if delays && !cp.sleep(ctx, cp.conf.Timing.FollowUpDelay) {
		return
	}
	cp.release(tx)
}

func (cp *ChargePoint) release(tx *Transaction) {
	if err := cp.connector.Release(tx); err != nil {
		cp.logger.Warn(fmt.Sprintf("transaction %d: %v", tx.Id, err))
	}
	if err := cp.notifyStatus(types.ChargePointStatusAvailable, ""); err != nil {
		cp.logger.Error("stop transaction", err)
	}
}
