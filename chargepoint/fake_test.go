package chargepoint

import (
	"context"
	"encoding/json"
	"evsim/client"
	"evsim/internal/config"
	"evsim/ocpp"
	"evsim/ocpp/core"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) FeatureEvent(feature, id, text string) {}
func (nopLogger) Debug(text string)                     {}
func (nopLogger) Warn(text string)                      {}
func (nopLogger) Error(text string, err error)          {}
func (nopLogger) RawDataEvent(direction, data string)   {}

// fakeTransport connects the charge point to an in-memory central system.
type fakeTransport struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 100),
		out:    make(chan []byte, 100),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	select {
	case <-f.closed:
		return client.ErrClosed
	default:
	}
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return client.ErrClosed
	}
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, client.ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// responder returns the result payload for a call, or nil to leave it unanswered.
type responder func(call *ocpp.Call) interface{}

func defaultResponder(call *ocpp.Call) interface{} {
	now := time.Now().UTC().Format(time.RFC3339)
	switch call.Action {
	case core.BootNotificationFeatureName:
		return map[string]interface{}{"currentTime": now, "interval": 300, "status": "Accepted"}
	case core.HeartbeatFeatureName:
		return map[string]interface{}{"currentTime": now}
	case core.StartTransactionFeatureName:
		return map[string]interface{}{"idTagInfo": map[string]string{"status": "Accepted"}, "transactionId": 42}
	default:
		return map[string]interface{}{}
	}
}

// centralSystem records every message the charge point sends and answers its calls.
type centralSystem struct {
	transport *fakeTransport
	respond   responder
	mutex     sync.Mutex
	messages  []ocpp.Message
	sequence  int
}

func startCentralSystem(transport *fakeTransport, respond responder) *centralSystem {
	cs := &centralSystem{transport: transport, respond: respond}
	go cs.loop()
	return cs
}

func (cs *centralSystem) loop() {
	for {
		select {
		case data := <-cs.transport.out:
			cs.handle(data)
		case <-cs.transport.closed:
			for {
				select {
				case data := <-cs.transport.out:
					cs.handle(data)
				default:
					return
				}
			}
		}
	}
}

func (cs *centralSystem) handle(data []byte) {
	message, err := ocpp.ParseMessage(data)
	if err != nil {
		return
	}
	cs.mutex.Lock()
	cs.messages = append(cs.messages, message)
	cs.mutex.Unlock()

	call, ok := message.(*ocpp.Call)
	if !ok {
		return
	}
	payload := cs.respond(call)
	if payload == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	cs.push(&ocpp.CallResult{UniqueId: call.UniqueId, Payload: raw})
}

func (cs *centralSystem) push(message ocpp.Message) {
	data, _ := json.Marshal(message)
	cs.transport.in <- data
}

// request sends a call to the charge point and returns its id.
func (cs *centralSystem) request(action string, payload interface{}) string {
	cs.mutex.Lock()
	cs.sequence++
	id := fmt.Sprintf("cs-%d", cs.sequence)
	cs.mutex.Unlock()
	raw, _ := json.Marshal(payload)
	cs.push(&ocpp.Call{UniqueId: id, Action: action, Payload: raw})
	return id
}

func (cs *centralSystem) snapshot() []ocpp.Message {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return append([]ocpp.Message(nil), cs.messages...)
}

func (cs *centralSystem) reply(id string) ocpp.Message {
	for _, message := range cs.snapshot() {
		if message.GetUniqueId() == id && message.GetMessageTypeId() != ocpp.CallTypeRequest {
			return message
		}
	}
	return nil
}

func (cs *centralSystem) awaitReply(t *testing.T, id string) ocpp.Message {
	var reply ocpp.Message
	require.Eventually(t, func() bool {
		reply = cs.reply(id)
		return reply != nil
	}, 2*time.Second, 5*time.Millisecond, "no reply to %s", id)
	return reply
}

func (cs *centralSystem) calls(action string) []*ocpp.Call {
	var calls []*ocpp.Call
	for _, message := range cs.snapshot() {
		if call, ok := message.(*ocpp.Call); ok && call.Action == action {
			calls = append(calls, call)
		}
	}
	return calls
}

func (cs *centralSystem) statuses() []string {
	var statuses []string
	for _, call := range cs.calls(core.StatusNotificationFeatureName) {
		var request core.StatusNotificationRequest
		_ = json.Unmarshal(call.Payload, &request)
		statuses = append(statuses, string(request.Status))
	}
	return statuses
}

// indexOf returns the position of the first message matching match, or -1.
func (cs *centralSystem) indexOf(match func(message ocpp.Message) bool) int {
	for i, message := range cs.snapshot() {
		if match(message) {
			return i
		}
	}
	return -1
}

func testConfig() *config.Config {
	conf := &config.Config{}
	conf.ChargePoint.Id = "CP1"
	conf.ChargePoint.Vendor = "EVSim"
	conf.ChargePoint.Model = "Simulator"
	conf.ChargePoint.ConnectorId = 1
	conf.CentralSystem.SubProtocol = "ocpp1.6"
	conf.Timing = config.Timing{
		HeartbeatInterval:  time.Hour,
		SettleDelay:        5 * time.Millisecond,
		FollowUpDelay:      5 * time.Millisecond,
		CorrelationTimeout: 200 * time.Millisecond,
		BootTimeout:        200 * time.Millisecond,
		PendingCallTTL:     time.Minute,
	}
	conf.Simulation = config.Simulation{
		MeterInterval:      20 * time.Millisecond,
		AccelerationFactor: 12,
		BatteryCapacityWh:  50000,
		InitialSoc:         20,
		MaxCurrent:         16,
		Voltage:            230,
		TaperThreshold:     80,
		CurrentJitter:      0.5,
	}
	return conf
}

type session struct {
	cp        *ChargePoint
	cs        *centralSystem
	transport *fakeTransport
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// startSession runs a charge point against the fake central system and waits for the boot
// sequence to report Available.
func startSession(t *testing.T, conf *config.Config, respond responder, setup ...func(cp *ChargePoint)) *session {
	transport := newFakeTransport()
	cs := startCentralSystem(transport, respond)
	cp := NewChargePoint(conf, transport, nopLogger{})
	for _, f := range setup {
		f(cp)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cp: cp, cs: cs, transport: transport, cancel: cancel, done: make(chan struct{})}
	go func() {
		s.err = cp.Run(ctx)
		close(s.done)
	}()
	t.Cleanup(func() {
		cancel()
		_ = transport.Close()
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
		}
	})
	require.Eventually(t, func() bool {
		return len(cs.statuses()) > 0
	}, 2*time.Second, 5*time.Millisecond)
	return s
}

func (s *session) stop(t *testing.T) error {
	s.cancel()
	return s.wait(t)
}

func (s *session) wait(t *testing.T) error {
	select {
	case <-s.done:
		return s.err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func (s *session) awaitStatuses(t *testing.T, expected ...string) {
	require.Eventually(t, func() bool {
		statuses := s.cs.statuses()
		if len(statuses) < len(expected) {
			return false
		}
		tail := statuses[len(statuses)-len(expected):]
		for i := range expected {
			if tail[i] != expected[i] {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond, "statuses %v do not end with %v", s.cs.statuses(), expected)
}

func resultPayload(t *testing.T, message ocpp.Message) map[string]interface{} {
	result, ok := message.(*ocpp.CallResult)
	require.True(t, ok, "expected CallResult, got %T", message)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	return payload
}
