package chargepoint

import (
	"context"
	"encoding/json"
	"evsim/internal"
	"evsim/internal/config"
	"evsim/metrics/counters"
	"evsim/ocpp"
	"evsim/ocpp/core"
	"evsim/types"
	"evsim/utility"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrNotRunning = utility.Err("charge point is not connected")

// Transport is a connected OCPP-J message channel. Receive blocks until a frame arrives and fails
// once the channel is closed; Close unblocks a pending Receive.
type Transport interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

type ChargePoint struct {
	conf       *config.Config
	id         string
	transport  Transport
	logger     internal.LogHandler
	connector  *Connector
	correlator *ocpp.Correlator
	handlers   []internal.EventHandler
	input      io.Reader
	output     io.Writer

	// serializes start and stop sequences
	seqMu sync.Mutex
	tasks sync.WaitGroup

	mutex             sync.Mutex
	session           context.Context
	closing           bool
	events            chan *internal.EventMessage
	heartbeatInterval time.Duration
	lastHeartbeat     time.Time
	bootStatus        core.RegistrationStatus
	reportedStatus    types.ChargePointStatus
}

func NewChargePoint(conf *config.Config, transport Transport, logger internal.LogHandler) *ChargePoint {
	return &ChargePoint{
		conf:              conf,
		id:                conf.ChargePoint.Id,
		transport:         transport,
		logger:            logger,
		connector:         NewConnector(conf.ChargePoint.ConnectorId, conf.Simulation),
		correlator:        ocpp.NewCorrelator(),
		heartbeatInterval: conf.Timing.HeartbeatInterval,
	}
}

// AddEventHandler registers a receiver of connector events; call before Run.
func (cp *ChargePoint) AddEventHandler(handler internal.EventHandler) {
	cp.handlers = append(cp.handlers, handler)
}

// SetConsole attaches the operator console streams; the console unit runs only when enabled in
// the configuration and an input is set.
func (cp *ChargePoint) SetConsole(input io.Reader, output io.Writer) {
	cp.input = input
	cp.output = output
}

func (cp *ChargePoint) Connector() *Connector {
	return cp.connector
}

// Run connects to the central system and serves the session until ctx is done, the connection is
// lost or the operator quits. A lost connection is returned as the error.
func (cp *ChargePoint) Run(ctx context.Context) error {
	if err := cp.transport.Connect(ctx); err != nil {
		return err
	}
	cp.logger.FeatureEvent("Connect", cp.id, "connected to central system")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	stopEvents := cp.open(ctx)

	group.Go(func() error {
		defer cancel()
		return cp.receive(ctx)
	})

	if err := cp.boot(ctx); err != nil {
		cp.logger.Error("boot", err)
		cancel()
	} else {
		group.Go(func() error {
			defer cancel()
			return cp.heartbeat(ctx)
		})
		if cp.conf.Console.Enabled && cp.input != nil {
			group.Go(func() error {
				defer cancel()
				return cp.console(ctx)
			})
		}
	}

	<-ctx.Done()
	cp.shutdown()
	stopEvents()
	_ = cp.transport.Close()
	err := group.Wait()
	cp.logger.FeatureEvent("Disconnect", cp.id, "session ended")
	return err
}

// open marks the session running and starts the event worker; the returned func stops it.
func (cp *ChargePoint) open(ctx context.Context) func() {
	events := make(chan *internal.EventMessage, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			cp.deliver(event)
		}
	}()

	cp.mutex.Lock()
	cp.session = ctx
	cp.closing = false
	cp.events = events
	cp.mutex.Unlock()

	return func() {
		cp.mutex.Lock()
		cp.events = nil
		cp.mutex.Unlock()
		close(events)
		<-done
	}
}

// launch runs task in the session task group; it refuses once shutdown has begun.
func (cp *ChargePoint) launch(task func(ctx context.Context)) bool {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()
	if cp.session == nil || cp.closing {
		return false
	}
	ctx := cp.session
	cp.tasks.Add(1)
	go func() {
		defer cp.tasks.Done()
		task(ctx)
	}()
	return true
}

func (cp *ChargePoint) running() bool {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()
	return cp.session != nil && !cp.closing
}

func (cp *ChargePoint) receive(ctx context.Context) error {
	for {
		data, err := cp.transport.Receive()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			cp.logger.Error("receive", err)
			return err
		}
		cp.logger.RawDataEvent("IN", string(data))
		cp.handleFrame(data)
	}
}

func (cp *ChargePoint) handleFrame(data []byte) {
	message, err := ocpp.ParseMessage(data)
	if err != nil {
		counters.CountMalformed(cp.id)
		cp.logger.Error("dropped frame", err)
		return
	}
	counters.CountFrame(cp.id, "in", message.GetMessageTypeId().String())

	switch m := message.(type) {
	case *ocpp.Call:
		cp.handleCall(m)
	case *ocpp.CallResult:
		call, ok := cp.correlator.Resolve(m)
		if !ok {
			cp.logger.Warn(fmt.Sprintf("result for unknown call %s", m.UniqueId))
			return
		}
		cp.onResult(call, m.Payload)
	case *ocpp.CallError:
		call, ok := cp.correlator.Reject(m)
		if !ok {
			cp.logger.Warn(fmt.Sprintf("error for unknown call %s: %s", m.UniqueId, m.Error()))
			return
		}
		cp.logger.FeatureEvent(call.Action, cp.id, fmt.Sprintf("call rejected by central system: %s", m.Error()))
	}
}

// onResult handles results nobody awaits.
func (cp *ChargePoint) onResult(call *ocpp.PendingCall, payload json.RawMessage) {
	if call.Action != core.HeartbeatFeatureName {
		return
	}
	var response core.HeartbeatResponse
	if err := ocpp.ParseRawJsonResponse(payload, &response); err != nil {
		cp.logger.Warn(fmt.Sprintf("heartbeat response: %v", err))
		return
	}
	cp.mutex.Lock()
	cp.lastHeartbeat = time.Now()
	cp.mutex.Unlock()
}

// sendCall registers and sends an outbound request; the pending call is forgotten if sending fails.
func (cp *ChargePoint) sendCall(request ocpp.Request) (*ocpp.PendingCall, error) {
	pending := cp.correlator.Register(request.GetFeatureName())
	call, err := ocpp.NewCall(pending.UniqueId, request)
	if err != nil {
		cp.correlator.Forget(pending.UniqueId)
		return nil, err
	}
	if err = cp.send(call); err != nil {
		cp.correlator.Forget(pending.UniqueId)
		return nil, fmt.Errorf("send %s: %w", call.Action, err)
	}
	counters.CountCall(cp.id, call.Action)
	return pending, nil
}

func (cp *ChargePoint) send(message ocpp.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	cp.logger.RawDataEvent("OUT", string(data))
	if err = cp.transport.Send(data); err != nil {
		return err
	}
	counters.CountFrame(cp.id, "out", message.GetMessageTypeId().String())
	return nil
}

func (cp *ChargePoint) bootRequest() core.BootNotificationRequest {
	return core.BootNotificationRequest{
		ChargePointVendor:       cp.conf.ChargePoint.Vendor,
		ChargePointModel:        cp.conf.ChargePoint.Model,
		ChargePointSerialNumber: cp.conf.SerialNumber(),
		FirmwareVersion:         cp.conf.ChargePoint.FirmwareVersion,
		MeterType:               cp.conf.ChargePoint.MeterType,
		MeterSerialNumber:       cp.conf.ChargePoint.MeterSerialNumber,
	}
}

func (cp *ChargePoint) boot(ctx context.Context) error {
	pending, err := cp.sendCall(cp.bootRequest())
	if err != nil {
		return err
	}
	payload, err := cp.correlator.Await(ctx, pending, cp.conf.Timing.BootTimeout)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var response core.BootNotificationResponse
	if err == nil {
		err = ocpp.ParseRawJsonResponse(payload, &response)
	}
	if err != nil {
		// the session goes on with the configured heartbeat interval
		cp.logger.Error("boot notification", err)
	} else {
		cp.mutex.Lock()
		cp.bootStatus = response.Status
		if response.Status == core.RegistrationStatusAccepted && cp.conf.Timing.UseServerInterval && response.Interval > 0 {
			cp.heartbeatInterval = time.Duration(response.Interval) * time.Second
		}
		interval := cp.heartbeatInterval
		cp.mutex.Unlock()
		cp.logger.FeatureEvent(core.BootNotificationFeatureName, cp.id,
			fmt.Sprintf("registration %s; heartbeat interval %v", response.Status, interval))
	}
	return cp.notifyStatus(types.ChargePointStatusAvailable, "")
}

func (cp *ChargePoint) heartbeat(ctx context.Context) error {
	cp.mutex.Lock()
	interval := cp.heartbeatInterval
	cp.mutex.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for _, call := range cp.correlator.Expire(cp.conf.Timing.PendingCallTTL) {
			cp.logger.Warn(fmt.Sprintf("%s call %s expired without response", call.Action, call.UniqueId))
		}
		if _, err := cp.sendCall(core.HeartbeatRequest{}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			cp.logger.Error("heartbeat", err)
			return err
		}
	}
}

// notifyStatus reports the current connector status to the central system.
func (cp *ChargePoint) notifyStatus(status types.ChargePointStatus, info string) error {
	errorCode := cp.connector.ErrorCode()
	request := core.StatusNotificationRequest{
		ConnectorId: cp.connector.Id(),
		ErrorCode:   errorCode,
		Status:      status,
		Info:        info,
		Timestamp:   types.NewDateTime(time.Now()),
	}
	cp.mutex.Lock()
	previous := cp.reportedStatus
	cp.reportedStatus = status
	cp.mutex.Unlock()
	counters.ObserveStatus(cp.id, string(previous), string(status))
	cp.emit(&internal.EventMessage{
		Type:      internal.EventStatusNotification,
		Status:    string(status),
		ErrorCode: string(errorCode),
		Info:      info,
	})
	if _, err := cp.sendCall(request); err != nil {
		return err
	}
	cp.logger.FeatureEvent(core.StatusNotificationFeatureName, cp.id, fmt.Sprintf("%s; %s", status, errorCode))
	return nil
}

// emit queues an event for the registered handlers; events are dropped when no session runs.
func (cp *ChargePoint) emit(event *internal.EventMessage) {
	cp.mutex.Lock()
	defer cp.mutex.Unlock()
	if cp.events == nil || len(cp.handlers) == 0 {
		return
	}
	event.ChargePointId = cp.id
	event.ConnectorId = cp.connector.Id()
	event.Time = time.Now()
	select {
	case cp.events <- event:
	default:
		cp.logger.Warn(fmt.Sprintf("event queue is full; %s dropped", event.Type))
	}
}

func (cp *ChargePoint) deliver(event *internal.EventMessage) {
	for _, handler := range cp.handlers {
		switch event.Type {
		case internal.EventStatusNotification:
			handler.OnStatusNotification(event)
		case internal.EventTransactionStart:
			handler.OnTransactionStart(event)
		case internal.EventTransactionStop:
			handler.OnTransactionStop(event)
		}
	}
}

// shutdown waits for in-flight sequences to observe cancellation, then closes whatever transaction
// is still open so the connector is left Available.
func (cp *ChargePoint) shutdown() {
	cp.mutex.Lock()
	cp.closing = true
	cp.mutex.Unlock()
	cp.tasks.Wait()

	cp.seqMu.Lock()
	defer cp.seqMu.Unlock()
	tx, state, stopSent := cp.connector.openTransaction()
	if tx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cp.conf.Timing.CorrelationTimeout)
	defer cancel()
	switch {
	case state == TransactionPending:
		cp.logger.FeatureEvent("Shutdown", cp.id, "abandoning transaction without id")
		cp.abort(tx, "shutdown")
	case stopSent:
		cp.release(tx)
	default:
		cp.logger.FeatureEvent("Shutdown", cp.id, fmt.Sprintf("stopping transaction %d", tx.Id))
		cp.runStop(ctx, tx, core.ReasonLocal, false)
	}
}

func (cp *ChargePoint) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
