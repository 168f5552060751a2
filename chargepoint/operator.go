package chargepoint

import (
	"context"
	"errors"
	"evsim/ocpp/core"
	"evsim/types"
	"evsim/utility"
	"fmt"
	"strings"
)

var (
	ErrRejected     = utility.Err("rejected in current state")
	ErrInvalidInput = utility.Err("invalid input")
	ErrQuit         = utility.Err("quit")
)

// Info is what the info command reports.
type Info struct {
	Snapshot
	ChargePointId     string `json:"charge_point_id"`
	Registration      string `json:"registration"`
	HeartbeatInterval string `json:"heartbeat_interval"`
	LastHeartbeat     string `json:"last_heartbeat"`
	PendingCalls      int    `json:"pending_calls"`
}

const helpText = `commands:
  status <status>   set connector status (Available, Preparing, Charging, SuspendedEV, SuspendedEVSE, Finishing, Reserved, Unavailable, Faulted)
  error <code>      set error code (NoError, GroundFailure, OverCurrentFailure, ...)
  start <idTag>     start a transaction
  stop              stop the active transaction
  current <amps>    set charging current
  info              show current state
  help              show this list
  quit | exit       end the session`

// Start begins a local transaction for idTag, with the same preconditions as a remote start.
func (cp *ChargePoint) Start(idTag string) error {
	idTag = strings.TrimSpace(idTag)
	if idTag == "" || len(idTag) > 20 {
		return fmt.Errorf("%w: id tag must be 1 to 20 characters", ErrInvalidInput)
	}
	if !cp.running() {
		return ErrNotRunning
	}
	tx, ok := cp.connector.TryBegin(idTag)
	if !ok {
		return fmt.Errorf("%w: connector is %s", ErrRejected, cp.connector.Status())
	}
	if !cp.launch(func(ctx context.Context) { cp.startTransaction(ctx, tx) }) {
		cp.connector.Abandon(tx)
		return ErrNotRunning
	}
	cp.logger.FeatureEvent("Operator", cp.id, fmt.Sprintf("start for %s", idTag))
	return nil
}

// Stop ends the active transaction with reason Local.
func (cp *ChargePoint) Stop() error {
	if !cp.running() {
		return ErrNotRunning
	}
	tx, ok := cp.connector.BeginStopActive()
	if !ok {
		return fmt.Errorf("%w: no active transaction", ErrRejected)
	}
	if !cp.launch(func(ctx context.Context) { cp.stopTransaction(ctx, tx, core.ReasonLocal) }) {
		return ErrNotRunning
	}
	cp.logger.FeatureEvent("Operator", cp.id, fmt.Sprintf("stop for transaction %d", tx.Id))
	return nil
}

// SetStatus forces the connector status and reports it.
func (cp *ChargePoint) SetStatus(name string) (types.ChargePointStatus, error) {
	status, err := types.ParseStatus(name)
	if err != nil {
		return "", err
	}
	if !cp.running() {
		return "", ErrNotRunning
	}
	cp.connector.SetStatus(status)
	return status, cp.notifyStatus(status, "")
}

// SetError sets the error code and reports it along with the current status.
func (cp *ChargePoint) SetError(name string) (types.ChargePointErrorCode, error) {
	code, err := types.ParseErrorCode(name)
	if err != nil {
		return "", err
	}
	if !cp.running() {
		return "", ErrNotRunning
	}
	cp.connector.SetErrorCode(code)
	return code, cp.notifyStatus(cp.connector.Status(), "")
}

// SetCurrent parses amps and applies it; returns the resulting power.
func (cp *ChargePoint) SetCurrent(value string) (float64, error) {
	amps, err := utility.ToFloat(value)
	if err != nil {
		return 0, fmt.Errorf("%w: current %q", ErrInvalidInput, value)
	}
	power, err := cp.connector.SetCurrent(amps)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return power, nil
}

func (cp *ChargePoint) Info() Info {
	cp.mutex.Lock()
	info := Info{
		ChargePointId:     cp.id,
		Registration:      string(cp.bootStatus),
		HeartbeatInterval: cp.heartbeatInterval.String(),
		LastHeartbeat:     utility.TimeAgo(cp.lastHeartbeat),
	}
	cp.mutex.Unlock()
	info.Snapshot = cp.connector.Snapshot()
	info.PendingCalls = cp.correlator.Len()
	return info
}

// Execute runs one console command line and returns the text to show.
func (cp *ChargePoint) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	command := strings.ToLower(fields[0])
	arg := strings.Join(fields[1:], " ")
	needArg := func() error {
		if arg == "" {
			return fmt.Errorf("%w: usage: %s <value>", ErrInvalidInput, command)
		}
		return nil
	}

	switch command {
	case "status":
		if err := needArg(); err != nil {
			return "", err
		}
		status, err := cp.SetStatus(arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("status set to %s", status), nil
	case "error":
		if err := needArg(); err != nil {
			return "", err
		}
		code, err := cp.SetError(arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("error code set to %s", code), nil
	case "start":
		if err := needArg(); err != nil {
			return "", err
		}
		if err := cp.Start(arg); err != nil {
			return "", err
		}
		return fmt.Sprintf("starting transaction for %s", arg), nil
	case "stop":
		if err := cp.Stop(); err != nil {
			return "", err
		}
		return "stopping transaction", nil
	case "current":
		if err := needArg(); err != nil {
			return "", err
		}
		power, err := cp.SetCurrent(arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("current set to %s A; power %.2f W", arg, power), nil
	case "info":
		info := cp.Info()
		return fmt.Sprintf("%s; %s; registration: %s; heartbeat every %s, last %s",
			info.ChargePointId, info.Snapshot.String(), info.Registration, info.HeartbeatInterval, info.LastHeartbeat), nil
	case "help":
		return helpText, nil
	case "quit", "exit":
		return "", ErrQuit
	default:
		return "", fmt.Errorf("%w: unknown command %s; type help", ErrInvalidInput, command)
	}
}

// console reads operator commands until quit, end of input or the end of the session.
func (cp *ChargePoint) console(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go scanLines(cp.input, lines, done)
	cp.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				cp.logger.Debug("console input closed")
				lines = nil
				continue
			}
			text, err := cp.Execute(line)
			if errors.Is(err, ErrQuit) {
				cp.logger.FeatureEvent("Operator", cp.id, "quit")
				return nil
			}
			if err != nil {
				cp.printf("error: %v\n", err)
				continue
			}
			if text != "" {
				cp.printf("%s\n", text)
			}
		}
	}
}

func (cp *ChargePoint) printf(format string, args ...interface{}) {
	if cp.output != nil {
		_, _ = fmt.Fprintf(cp.output, format, args...)
	}
}

