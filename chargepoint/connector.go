package chargepoint

import (
	"context"
	"evsim/internal/config"
	"evsim/types"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

const (
	eventPrepare = "prepare"
	eventCharge  = "charge"
	eventFinish  = "finish"
	eventRelease = "release"
)

type TransactionState int

const (
	// TransactionPending is accepted locally, waiting for the central system to assign an id.
	TransactionPending TransactionState = iota
	TransactionActive
	TransactionStopping
)

func (s TransactionState) String() string {
	switch s {
	case TransactionPending:
		return "pending"
	case TransactionActive:
		return "active"
	case TransactionStopping:
		return "stopping"
	default:
		return fmt.Sprintf("TransactionState(%d)", int(s))
	}
}

// Transaction is the charging session owned by the connector. Fields are guarded by the
// connector mutex.
type Transaction struct {
	Id         int
	IdTag      string
	MeterStart int
	StartedAt  time.Time
	state      TransactionState
	stopSent   bool
}

// Connector holds the status lifecycle and the simulated electrical state of the single socket.
type Connector struct {
	mutex       sync.Mutex
	id          int
	fsm         *fsm.FSM
	errorCode   types.ChargePointErrorCode
	transaction *Transaction
	meter       int
	current     float64
	power       float64
	soc         float64
	charging    bool
	sim         config.Simulation
	random      *rand.Rand
}

// Snapshot is a consistent copy of the connector state.
type Snapshot struct {
	ConnectorId      int                        `json:"connector_id"`
	Status           types.ChargePointStatus    `json:"status"`
	ErrorCode        types.ChargePointErrorCode `json:"error_code"`
	TransactionId    int                        `json:"transaction_id,omitempty"`
	TransactionState string                     `json:"transaction_state,omitempty"`
	IdTag            string                     `json:"id_tag,omitempty"`
	Meter            int                        `json:"meter_wh"`
	Current          float64                    `json:"current_a"`
	Voltage          float64                    `json:"voltage_v"`
	Power            float64                    `json:"power_w"`
	Soc              float64                    `json:"soc_percent"`
	Charging         bool                       `json:"charging"`
}

func NewConnector(id int, sim config.Simulation) *Connector {
	c := &Connector{
		id:        id,
		errorCode: types.NoError,
		soc:       sim.InitialSoc,
		sim:       sim,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.fsm = fsm.NewFSM(
		string(types.ChargePointStatusAvailable),
		fsm.Events{
			{Name: eventPrepare, Src: []string{string(types.ChargePointStatusAvailable)}, Dst: string(types.ChargePointStatusPreparing)},
			{Name: eventCharge, Src: []string{
				string(types.ChargePointStatusPreparing),
				string(types.ChargePointStatusSuspendedEV),
				string(types.ChargePointStatusSuspendedEVSE),
			}, Dst: string(types.ChargePointStatusCharging)},
			{Name: eventFinish, Src: []string{
				string(types.ChargePointStatusPreparing),
				string(types.ChargePointStatusCharging),
				string(types.ChargePointStatusSuspendedEV),
				string(types.ChargePointStatusSuspendedEVSE),
				string(types.ChargePointStatusReserved),
				string(types.ChargePointStatusUnavailable),
				string(types.ChargePointStatusFaulted),
			}, Dst: string(types.ChargePointStatusFinishing)},
			{Name: eventRelease, Src: []string{
				string(types.ChargePointStatusPreparing),
				string(types.ChargePointStatusFinishing),
			}, Dst: string(types.ChargePointStatusAvailable)},
		},
		fsm.Callbacks{},
	)
	return c
}

// SetRandom replaces the jitter source; tests use a fixed seed.
func (c *Connector) SetRandom(random *rand.Rand) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.random = random
}

func (c *Connector) Id() int {
	return c.id
}

func (c *Connector) Status() types.ChargePointStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.status()
}

func (c *Connector) status() types.ChargePointStatus {
	return types.ChargePointStatus(c.fsm.Current())
}

func (c *Connector) ErrorCode() types.ChargePointErrorCode {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.errorCode
}

// SetStatus applies an operator or fault driven status unconditionally. The open transaction,
// if any, is left untouched. Returns the previous status.
func (c *Connector) SetStatus(status types.ChargePointStatus) types.ChargePointStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	previous := c.status()
	c.fsm.SetState(string(status))
	return previous
}

func (c *Connector) SetErrorCode(code types.ChargePointErrorCode) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errorCode = code
}

// transition fires a lifecycle event; force moves to the event destination even when the
// current status does not allow it.
func (c *Connector) transition(event string, target types.ChargePointStatus, force bool) error {
	err := c.fsm.Event(context.Background(), event)
	if err == nil {
		return nil
	}
	if force {
		c.fsm.SetState(string(target))
	}
	return fmt.Errorf("%s from %s: %w", event, c.status(), err)
}

// TryBegin opens a pending transaction when the connector is Available and idle.
func (c *Connector) TryBegin(idTag string) (*Transaction, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.status() != types.ChargePointStatusAvailable || c.transaction != nil {
		return nil, false
	}
	c.transaction = &Transaction{IdTag: idTag, state: TransactionPending}
	return c.transaction, true
}

// Prepare moves an idle connector to Preparing on behalf of tx.
func (c *Connector) Prepare(tx *Transaction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction != tx || tx.state != TransactionPending {
		return fmt.Errorf("transaction is no longer pending")
	}
	return c.transition(eventPrepare, types.ChargePointStatusPreparing, false)
}

// Meter returns the cumulative energy register.
func (c *Connector) Meter() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.meter
}

// Abandon drops a transaction that never got an id and returns the connector to Available.
func (c *Connector) Abandon(tx *Transaction) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction != tx {
		return false
	}
	c.transaction = nil
	c.charging = false
	if c.status() != types.ChargePointStatusAvailable {
		_ = c.transition(eventRelease, types.ChargePointStatusAvailable, true)
	}
	return true
}

// Assign installs the server assigned id on a pending transaction.
func (c *Connector) Assign(tx *Transaction, id, meterStart int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction != tx || tx.state != TransactionPending {
		return fmt.Errorf("transaction is no longer pending")
	}
	tx.Id = id
	tx.MeterStart = meterStart
	tx.StartedAt = time.Now()
	tx.state = TransactionActive
	return nil
}

// Charge moves to Charging and starts drawing the configured current.
func (c *Connector) Charge(tx *Transaction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction != tx || tx.state != TransactionActive {
		return fmt.Errorf("transaction %d is not active", tx.Id)
	}
	if err := c.transition(eventCharge, types.ChargePointStatusCharging, false); err != nil {
		return err
	}
	c.charging = true
	c.current = c.sim.MaxCurrent
	c.power = c.current * c.sim.Voltage
	return nil
}

// BeginStop marks the active transaction with the given id as stopping. It fails when no
// transaction is open, the id is still unknown or differs, or a stop is already under way.
func (c *Connector) BeginStop(transactionId int) (*Transaction, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	tx := c.transaction
	if tx == nil || tx.state != TransactionActive || tx.Id != transactionId {
		return nil, false
	}
	tx.state = TransactionStopping
	return tx, true
}

// BeginStopActive is BeginStop for whatever transaction is active.
func (c *Connector) BeginStopActive() (*Transaction, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	tx := c.transaction
	if tx == nil || tx.state != TransactionActive {
		return nil, false
	}
	tx.state = TransactionStopping
	return tx, true
}

// Finish stops drawing current and moves to Finishing. Returns the meter value to report.
func (c *Connector) Finish(tx *Transaction) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	tx.state = TransactionStopping
	c.charging = false
	c.current = 0
	c.power = 0
	if c.status() == types.ChargePointStatusFinishing {
		return c.meter, nil
	}
	return c.meter, c.transition(eventFinish, types.ChargePointStatusFinishing, true)
}

func (c *Connector) MarkStopSent(tx *Transaction) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	tx.stopSent = true
}

// Release closes the transaction, resets the battery to its baseline and returns to Available.
func (c *Connector) Release(tx *Transaction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction == tx {
		c.transaction = nil
	}
	c.charging = false
	c.soc = c.sim.InitialSoc
	if c.status() == types.ChargePointStatusAvailable {
		return nil
	}
	return c.transition(eventRelease, types.ChargePointStatusAvailable, true)
}

// Transaction returns a copy of the open transaction.
func (c *Connector) Transaction() (Transaction, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction == nil {
		return Transaction{}, false
	}
	return *c.transaction, true
}

// current transaction pointer with its state, for the shutdown path
func (c *Connector) openTransaction() (*Transaction, TransactionState, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction == nil {
		return nil, 0, false
	}
	return c.transaction, c.transaction.state, c.transaction.stopSent
}

// SetCurrent overrides the instantaneous current until the next telemetry tick.
func (c *Connector) SetCurrent(amps float64) (float64, error) {
	if amps < 0 || math.IsNaN(amps) || math.IsInf(amps, 0) {
		return 0, fmt.Errorf("invalid current %v", amps)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.current = amps
	c.power = amps * c.sim.Voltage
	return c.power, nil
}

// Sample is one telemetry reading taken under the connector lock.
type Sample struct {
	// set when the reading belongs to a transaction with an assigned id
	InTransaction bool
	TransactionId int
	Meter         int
	Current       float64
	Voltage       float64
	Power         float64
	Soc           float64
}

// Tick advances the charging simulation by one meter interval for tx. ok is false when tx is
// no longer charging; full reports a battery at 100%, in which case nothing is advanced.
func (c *Connector) Tick(tx *Transaction) (sample Sample, full bool, ok bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.transaction != tx || tx.state != TransactionActive || !c.charging {
		return Sample{}, false, false
	}
	if c.soc >= 100 {
		c.soc = 100
		return Sample{}, true, true
	}

	window := c.sim.MeterInterval.Seconds() * c.sim.AccelerationFactor
	energy := c.power * window / 3600
	if energy > 0 {
		c.meter += int(energy)
		c.soc += energy / c.sim.BatteryCapacityWh * 100
	}
	if c.soc > 100 {
		c.soc = 100
	}

	rate := 1.0
	if c.soc >= c.sim.TaperThreshold {
		rate = (100 - c.soc) / (100 - c.sim.TaperThreshold)
	}
	jitter := 0.0
	if c.sim.CurrentJitter > 0 {
		jitter = (c.random.Float64()*2 - 1) * c.sim.CurrentJitter
	}
	c.current = math.Max(0, c.sim.MaxCurrent*rate+jitter)
	c.power = c.current * c.sim.Voltage

	return Sample{
		InTransaction: true,
		TransactionId: tx.Id,
		Meter:         c.meter,
		Current:       c.current,
		Voltage:       c.sim.Voltage,
		Power:         c.power,
		Soc:           c.soc,
	}, false, true
}

func (c *Connector) Snapshot() Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	snapshot := Snapshot{
		ConnectorId: c.id,
		Status:      c.status(),
		ErrorCode:   c.errorCode,
		Meter:       c.meter,
		Current:     c.current,
		Voltage:     c.sim.Voltage,
		Power:       c.power,
		Soc:         c.soc,
		Charging:    c.charging,
	}
	if c.transaction != nil {
		snapshot.TransactionId = c.transaction.Id
		snapshot.TransactionState = c.transaction.state.String()
		snapshot.IdTag = c.transaction.IdTag
	}
	return snapshot
}

func (s Snapshot) String() string {
	tx := "none"
	if s.TransactionState != "" {
		tx = strconv.Itoa(s.TransactionId) + " (" + s.TransactionState + ")"
	}
	return fmt.Sprintf("status: %s; error: %s; transaction: %s; id tag: %s; meter: %d Wh; current: %.2f A; voltage: %.2f V; power: %.2f W; soc: %.1f %%; charging: %v",
		s.Status, s.ErrorCode, tx, s.IdTag, s.Meter, s.Current, s.Voltage, s.Power, s.Soc, s.Charging)
}
