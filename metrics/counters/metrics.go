package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var framesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "frames_total",
	Help:      "Number of OCPP-J frames by direction and message type.",
}, []string{"charge_point_id", "direction", "type"})

var callsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "calls_sent_total",
	Help:      "Number of outbound calls by action.",
}, []string{"charge_point_id", "action"})

var malformedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "malformed_frames_total",
	Help:      "Number of inbound frames dropped as malformed.",
}, []string{"charge_point_id"})

var statusGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "connector",
	Name:      "status",
	Help:      "Current connector status, 1 for the active one.",
}, []string{"charge_point_id", "status"})

var meterGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "connector",
	Name:      "meter_wh",
	Help:      "Cumulative energy register.",
}, []string{"charge_point_id"})

var socGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "connector",
	Name:      "soc_percent",
	Help:      "Simulated battery state of charge.",
}, []string{"charge_point_id"})

var powerGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "connector",
	Name:      "power_w",
	Help:      "Instantaneous charging power.",
}, []string{"charge_point_id"})

var transactionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "transactions_started_total",
	Help:      "Number of transactions started.",
}, []string{"charge_point_id"})

var transactionsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "transactions_stopped_total",
	Help:      "Number of transactions stopped by reason.",
}, []string{"charge_point_id", "reason"})

func CountFrame(chargePointId, direction, messageType string) {
	if len(chargePointId) == 0 {
		return
	}
	framesCounter.With(prometheus.Labels{"charge_point_id": chargePointId, "direction": direction, "type": messageType}).Inc()
}

func CountCall(chargePointId, action string) {
	if len(chargePointId) == 0 || len(action) == 0 {
		return
	}
	callsCounter.With(prometheus.Labels{"charge_point_id": chargePointId, "action": action}).Inc()
}

func CountMalformed(chargePointId string) {
	if len(chargePointId) == 0 {
		return
	}
	malformedCounter.With(prometheus.Labels{"charge_point_id": chargePointId}).Inc()
}

// ObserveStatus sets the gauge of the new status to 1 and the previous one to 0.
func ObserveStatus(chargePointId, from, to string) {
	if len(chargePointId) == 0 {
		return
	}
	if len(from) > 0 {
		statusGauge.With(prometheus.Labels{"charge_point_id": chargePointId, "status": from}).Set(0)
	}
	statusGauge.With(prometheus.Labels{"charge_point_id": chargePointId, "status": to}).Set(1)
}

func ObserveMeter(chargePointId string, meter int, soc, power float64) {
	if len(chargePointId) == 0 {
		return
	}
	labels := prometheus.Labels{"charge_point_id": chargePointId}
	meterGauge.With(labels).Set(float64(meter))
	socGauge.With(labels).Set(soc)
	powerGauge.With(labels).Set(power)
}

func CountTransactionStart(chargePointId string) {
	if len(chargePointId) == 0 {
		return
	}
	transactionsStarted.With(prometheus.Labels{"charge_point_id": chargePointId}).Inc()
}

func CountTransactionStop(chargePointId, reason string) {
	if len(chargePointId) == 0 {
		return
	}
	transactionsStopped.With(prometheus.Labels{"charge_point_id": chargePointId, "reason": reason}).Inc()
}
