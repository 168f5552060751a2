package ocpp

import (
	"context"
	"encoding/json"
	"evsim/utility"
	"sync"
	"time"
)

var ErrCorrelationTimeout = utility.Err("timed out waiting for call result")

// PendingCall is an outbound Call that has not been answered yet.
type PendingCall struct {
	UniqueId string
	Action   string
	IssuedAt time.Time
	done     chan outcome
}

type outcome struct {
	payload json.RawMessage
	err     *CallError
}

// Correlator issues unique ids for outbound calls and matches CallResult/CallError messages
// back to them. Every call is recorded at send time and removed on receipt, expiry or Forget.
type Correlator struct {
	mutex   sync.Mutex
	pending map[string]*PendingCall
	newId   func() string
	now     func() time.Time
}

func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]*PendingCall),
		newId:   utility.NewUUID,
		now:     time.Now,
	}
}

// Register records a new pending call for action and returns it with a fresh unique id.
func (c *Correlator) Register(action string) *PendingCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	id := c.newId()
	for _, exists := c.pending[id]; exists; _, exists = c.pending[id] {
		id = c.newId()
	}
	call := &PendingCall{
		UniqueId: id,
		Action:   action,
		IssuedAt: c.now(),
		done:     make(chan outcome, 1),
	}
	c.pending[id] = call
	return call
}

// Resolve completes the pending call matching the result id; false for unknown ids.
func (c *Correlator) Resolve(result *CallResult) (*PendingCall, bool) {
	return c.complete(result.UniqueId, outcome{payload: result.Payload})
}

// Reject completes the pending call matching the error id; false for unknown ids.
func (c *Correlator) Reject(callError *CallError) (*PendingCall, bool) {
	return c.complete(callError.UniqueId, outcome{err: callError})
}

func (c *Correlator) complete(id string, o outcome) (*PendingCall, bool) {
	c.mutex.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mutex.Unlock()
	if !ok {
		return nil, false
	}
	call.done <- o
	return call, true
}

func (c *Correlator) Forget(id string) {
	c.mutex.Lock()
	delete(c.pending, id)
	c.mutex.Unlock()
}

// Await blocks until the call is answered, the timeout elapses or ctx is done. A CallError answer
// is returned as the error; on timeout the call is forgotten and ErrCorrelationTimeout returned.
func (c *Correlator) Await(ctx context.Context, call *PendingCall, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case o := <-call.done:
		if o.err != nil {
			return nil, o.err
		}
		return o.payload, nil
	case <-timer.C:
		c.Forget(call.UniqueId)
		return nil, ErrCorrelationTimeout
	case <-ctx.Done():
		c.Forget(call.UniqueId)
		return nil, ctx.Err()
	}
}

// Expire drops calls older than ttl and returns them.
func (c *Correlator) Expire(ttl time.Duration) []*PendingCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var expired []*PendingCall
	deadline := c.now().Add(-ttl)
	for id, call := range c.pending {
		if call.IssuedAt.Before(deadline) {
			expired = append(expired, call)
			delete(c.pending, id)
		}
	}
	return expired
}

func (c *Correlator) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.pending)
}
