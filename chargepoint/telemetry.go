package chargepoint

import (
	"context"
	"evsim/metrics/counters"
	"evsim/ocpp/core"
	"evsim/types"
	"fmt"
	"strconv"
	"time"
)

// meterLoop reports a sample every meter interval while tx is charging. A full battery stops
// the transaction with EVDisconnected; a send failure ends the loop.
func (cp *ChargePoint) meterLoop(ctx context.Context, tx *Transaction) {
	ticker := time.NewTicker(cp.conf.Simulation.MeterInterval)
	defer ticker.Stop()
	for {
		sample, full, ok := cp.connector.Tick(tx)
		if !ok {
			return
		}
		if full {
			cp.logger.FeatureEvent(core.MeterValuesFeatureName, cp.id, "battery full")
			if _, ok = cp.connector.BeginStop(tx.Id); ok {
				cp.stopTransaction(ctx, tx, core.ReasonEVDisconnected)
			}
			return
		}
		if err := cp.sendMeterValues(sample); err != nil {
			cp.logger.Error("meter values", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (cp *ChargePoint) sendMeterValues(sample Sample) error {
	periodic := func(value string, measurand types.Measurand, unit types.UnitOfMeasure, phase types.Phase) types.SampledValue {
		return types.SampledValue{
			Value:     value,
			Context:   types.ReadingContextSamplePeriodic,
			Format:    types.ValueFormatRaw,
			Measurand: measurand,
			Phase:     phase,
			Unit:      unit,
		}
	}
	request := core.MeterValuesRequest{
		ConnectorId: cp.connector.Id(),
		MeterValue: []types.MeterValue{
			{
				Timestamp: types.NewDateTime(time.Now()),
				SampledValue: []types.SampledValue{
					periodic(strconv.Itoa(sample.Meter), types.MeasurandEnergyActiveImportRegister, types.UnitOfMeasureWh, ""),
					periodic(fmt.Sprintf("%.2f", sample.Current), types.MeasurandCurrentImport, types.UnitOfMeasureA, types.PhaseL1),
					periodic(fmt.Sprintf("%.2f", sample.Voltage), types.MeasurandVoltage, types.UnitOfMeasureV, types.PhaseL1),
					periodic(fmt.Sprintf("%.2f", sample.Power), types.MeasurandPowerActiveImport, types.UnitOfMeasureW, ""),
					periodic(fmt.Sprintf("%.1f", sample.Soc), types.MeasurandSoC, types.UnitOfMeasurePercent, ""),
				},
			},
		},
	}
	if sample.InTransaction {
		transactionId := sample.TransactionId
		request.TransactionId = &transactionId
	}
	if _, err := cp.sendCall(request); err != nil {
		return err
	}
	counters.ObserveMeter(cp.id, sample.Meter, sample.Soc, sample.Power)
	cp.logger.FeatureEvent(core.MeterValuesFeatureName, cp.id,
		fmt.Sprintf("meter: %d Wh; current: %.2f A; power: %.2f W; soc: %.1f %%", sample.Meter, sample.Current, sample.Power, sample.Soc))
	return nil
}
