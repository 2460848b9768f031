package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"evcs/internal"
	"evcs/metrics/counters"
	"evcs/models"
	"evcs/ocpp"
	"evcs/ocpp/core"
	"evcs/types"
	"evcs/utility"
)

const (
	DefaultRemoteTimeout        = 30 * time.Second
	ErrorCodeChargePointOffline = "ChargePointOffline"
)

var (
	ErrRemoteCommandTimeout  = errors.New("remote command timed out")
	ErrRemoteCommandRejected = errors.New("remote command rejected")
)

// CommandResult is the outcome of a remote command that did not fail outright
type CommandResult struct {
	Success          bool            `json:"success"`
	Status           string          `json:"status,omitempty"`
	TransactionId    string          `json:"transactionId,omitempty"`
	ErrorCode        string          `json:"errorCode,omitempty"`
	ErrorDescription string          `json:"errorDescription,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type pendingRequest struct {
	chargePointId string
	action        string
	response      chan *ocpp.Message
}

// RemoteCommandDispatcher sends server initiated calls and correlates their responses
type RemoteCommandDispatcher struct {
	registry *Registry
	queue    CommandQueue
	logger   internal.LogHandler
	timeout  time.Duration
	mutex    sync.Mutex
	pending  map[string]*pendingRequest
	newId    func() string
	// replays holds one *sync.Mutex per charge point so queued commands go out one drain at a time
	replays  sync.Map
}

func NewRemoteCommandDispatcher(registry *Registry, queue CommandQueue, logger internal.LogHandler, timeout time.Duration) *RemoteCommandDispatcher {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	if queue == nil {
		queue = NewMemoryCommandQueue()
	}
	return &RemoteCommandDispatcher{
		registry: registry,
		queue:    queue,
		logger:   logger,
		timeout:  timeout,
		pending:  make(map[string]*pendingRequest),
		newId:    utility.NewUUID,
	}
}

// SendRemoteCommand delivers the command when the charge point is connected and queues it otherwise
func (d *RemoteCommandDispatcher) SendRemoteCommand(ctx context.Context, chargePointId, action string, payload interface{}, timeout time.Duration) (*CommandResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", action, err)
	}
	if timeout <= 0 {
		timeout = d.timeout
	}

	ws := d.registry.Lookup(chargePointId)
	if ws == nil {
		command := &models.QueuedCommand{
			Action:   action,
			Payload:  raw,
			Timeout:  timeout,
			QueuedAt: time.Now().UTC(),
		}
		if err = d.queue.Enqueue(chargePointId, command); err != nil {
			counters.CountRemoteCommand(action, "failed")
			return nil, fmt.Errorf("queue %s for %s: %w", action, chargePointId, err)
		}
		d.logger.FeatureEvent(action, chargePointId, "charge point is offline, command queued")
		counters.CountRemoteCommand(action, "offline")
		// the charge point may have connected and drained its queue between the lookup and the enqueue
		if d.registry.Lookup(chargePointId) != nil {
			go d.ProcessQueuedCommands(chargePointId)
		}
		return &CommandResult{
			Success:          false,
			ErrorCode:        ErrorCodeChargePointOffline,
			ErrorDescription: "charge point is offline, command queued for delivery on reconnect",
		}, nil
	}
	return d.send(ctx, ws, action, raw, timeout)
}

func (d *RemoteCommandDispatcher) send(ctx context.Context, ws *WebSocket, action string, payload json.RawMessage, timeout time.Duration) (*CommandResult, error) {
	chargePointId := ws.ID()
	id := d.newId()
	data, err := json.Marshal(&ocpp.Call{UniqueId: id, Action: action, Payload: payload})
	if err != nil {
		return nil, err
	}

	pending := &pendingRequest{
		chargePointId: chargePointId,
		action:        action,
		response:      make(chan *ocpp.Message, 1),
	}
	d.mutex.Lock()
	d.pending[id] = pending
	d.mutex.Unlock()

	d.logger.RawDataEvent("OUT", string(data))
	if err = ws.Write(data); err != nil {
		d.take(id, chargePointId)
		counters.CountRemoteCommand(action, "failed")
		return nil, fmt.Errorf("send %s to %s: %w", action, chargePointId, err)
	}
	counters.CountFrame("out", "CALL")
	d.logger.MessageEvent(&models.MessageLog{
		ChargePointId: chargePointId,
		MessageType:   "CALL",
		Action:        action,
		Payload:       string(payload),
		Direction:     models.DirectionOut,
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var message *ocpp.Message
	select {
	case message = <-pending.response:
	case <-timer.C:
		if d.take(id, chargePointId) != nil {
			d.logger.Warn(fmt.Sprintf("%s: no response to %s %s within %s", chargePointId, action, id, timeout))
			counters.CountRemoteCommand(action, "timeout")
			return nil, fmt.Errorf("%s %s to %s: %w", action, id, chargePointId, ErrRemoteCommandTimeout)
		}
		message = <-pending.response
	case <-ctx.Done():
		if d.take(id, chargePointId) != nil {
			counters.CountRemoteCommand(action, "timeout")
			return nil, fmt.Errorf("%s %s to %s: %w: %w", action, id, chargePointId, ErrRemoteCommandTimeout, ctx.Err())
		}
		message = <-pending.response
	}
	return d.result(chargePointId, action, message)
}

func (d *RemoteCommandDispatcher) result(chargePointId, action string, message *ocpp.Message) (*CommandResult, error) {
	if message.TypeId == ocpp.CallTypeError {
		callError := message.CallError()
		d.logger.FeatureEvent(action, chargePointId, fmt.Sprintf("rejected: %s", callError))
		counters.CountRemoteCommand(action, "error")
		return nil, fmt.Errorf("%w: %w", ErrRemoteCommandRejected, callError)
	}
	result := &CommandResult{Success: true, Payload: message.Payload}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(message.Payload, &fields); err == nil {
		_ = json.Unmarshal(fields["status"], &result.Status)
		result.TransactionId = rawToString(fields["transactionId"])
	}
	d.logger.FeatureEvent(action, chargePointId, fmt.Sprintf("response status: %s", result.Status))
	if result.Status == string(types.RemoteStartStopStatusRejected) {
		counters.CountRemoteCommand(action, "rejected")
	} else {
		counters.CountRemoteCommand(action, "accepted")
	}
	return result, nil
}

// rawToString accepts a json string or number
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// take removes the pending entry; only one of response, timeout or cancellation gets it
func (d *RemoteCommandDispatcher) take(id, chargePointId string) *pendingRequest {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	pending, ok := d.pending[id]
	if !ok || pending.chargePointId != chargePointId {
		return nil
	}
	delete(d.pending, id)
	return pending
}

// HandleResponse routes a CALLRESULT or CALLERROR to the waiting command; unmatched ids are ignored
func (d *RemoteCommandDispatcher) HandleResponse(chargePointId string, message *ocpp.Message) bool {
	pending := d.take(message.UniqueId, chargePointId)
	if pending == nil {
		d.logger.FeatureEvent("response", chargePointId, fmt.Sprintf("no pending request for id %s, ignored", message.UniqueId))
		return false
	}
	pending.response <- message
	return true
}

// PendingCount reports requests still waiting for a response
func (d *RemoteCommandDispatcher) PendingCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

func (d *RemoteCommandDispatcher) replayLock(chargePointId string) *sync.Mutex {
	lock, _ := d.replays.LoadOrStore(chargePointId, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// ProcessQueuedCommands drains the queue of a freshly connected charge point and replays it in order.
// Commands that cannot be sent because the charge point went away are put back in the queue.
func (d *RemoteCommandDispatcher) ProcessQueuedCommands(chargePointId string) {
	lock := d.replayLock(chargePointId)
	lock.Lock()
	defer lock.Unlock()

	commands, err := d.queue.Drain(chargePointId)
	if err != nil {
		d.logger.Error(fmt.Sprintf("drain command queue of %s", chargePointId), err)
	}
	if len(commands) == 0 {
		return
	}
	ws := d.registry.Lookup(chargePointId)
	if ws == nil {
		d.requeue(chargePointId, commands)
		return
	}
	d.logger.FeatureEvent("queue", chargePointId, fmt.Sprintf("replaying %d queued commands", len(commands)))
	for i, command := range commands {
		if d.registry.Lookup(chargePointId) != ws {
			d.requeue(chargePointId, commands[i:])
			return
		}
		result, err := d.send(context.Background(), ws, command.Action, command.Payload, command.Timeout)
		if err != nil {
			d.logger.Error(fmt.Sprintf("queued %s for %s", command.Action, chargePointId), err)
			continue
		}
		d.logger.FeatureEvent(command.Action, chargePointId, fmt.Sprintf("queued command delivered, status %s", result.Status))
	}
}

func (d *RemoteCommandDispatcher) requeue(chargePointId string, commands []*models.QueuedCommand) {
	if err := d.queue.Requeue(chargePointId, commands); err != nil {
		d.logger.Error(fmt.Sprintf("%s disconnected, %d queued commands lost", chargePointId, len(commands)), err)
		return
	}
	d.logger.Warn(fmt.Sprintf("%s disconnected before %d queued commands could be sent, kept in queue", chargePointId, len(commands)))
}

func (d *RemoteCommandDispatcher) SendRemoteStartTransaction(ctx context.Context, chargePointId string, connectorId int, idTag string, reservationId *int) (*CommandResult, error) {
	request := core.NewRemoteStartTransactionRequest(connectorId, idTag, reservationId)
	return d.SendRemoteCommand(ctx, chargePointId, request.GetFeatureName(), request, 0)
}

func (d *RemoteCommandDispatcher) SendRemoteStopTransaction(ctx context.Context, chargePointId string, transactionId string) (*CommandResult, error) {
	request := core.NewRemoteStopTransactionRequest(transactionId)
	return d.SendRemoteCommand(ctx, chargePointId, request.GetFeatureName(), request, 0)
}
