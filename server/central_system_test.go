package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"evcs/internal"
	"evcs/internal/config"
	"evcs/models"
	"evcs/ocpp"
	"evcs/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const frameWait = 5 * time.Second

type testSystem struct {
	cs       *CentralSystem
	database *internal.MemoryDatabase
	queue    *MemoryCommandQueue
	logger   *internal.Logger
	ws       *httptest.Server
}

func newTestSystem(t *testing.T, configure func(conf *config.Config)) *testSystem {
	t.Helper()
	return newTestSystemWithQueue(t, configure, nil)
}

// newTestSystemWithQueue lets wrap put a decorator around the memory queue the system uses
func newTestSystemWithQueue(t *testing.T, configure func(conf *config.Config), wrap func(queue *MemoryCommandQueue) CommandQueue) *testSystem {
	t.Helper()
	conf, err := config.Default()
	require.NoError(t, err)
	conf.Remote.Timeout = 2 * time.Second
	conf.Api.RateLimit = 0
	if configure != nil {
		configure(conf)
	}

	database := internal.NewMemoryDatabase()
	logger := internal.NewLogger(zap.NewNop(), time.UTC)
	logger.SetDatabase(database)
	queue := NewMemoryCommandQueue()
	var commandQueue CommandQueue = queue
	if wrap != nil {
		commandQueue = wrap(queue)
	}

	cs := NewCentralSystemWith(conf, database, commandQueue, logger)
	ws := httptest.NewServer(cs.Server().Handler())
	t.Cleanup(func() {
		for _, id := range cs.Registry().ListConnected() {
			if conn := cs.Registry().Lookup(id); conn != nil {
				_ = conn.Close(websocket.CloseGoingAway, "")
			}
		}
		ws.Close()
		logger.Close()
	})
	return &testSystem{cs: cs, database: database, queue: queue, logger: logger, ws: ws}
}

func (s *testSystem) url(path string) string {
	return "ws" + strings.TrimPrefix(s.ws.URL, "http") + path
}

// waitConnected blocks until the id is registered
func (s *testSystem) waitConnected(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.cs.Registry().Lookup(id) != nil
	}, frameWait, 10*time.Millisecond)
}

type testChargePoint struct {
	t    *testing.T
	id   string
	conn *websocket.Conn
}

func (s *testSystem) connect(t *testing.T, id string) *testChargePoint {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{types.SubProtocol16}}
	conn, response, err := dialer.Dial(s.url("/ocpp/"+id), nil)
	require.NoError(t, err)
	assert.Equal(t, types.SubProtocol16, response.Header.Get("Sec-WebSocket-Protocol"))
	t.Cleanup(func() { _ = conn.Close() })

	cp := &testChargePoint{t: t, id: id, conn: conn}
	_ = conn.SetReadDeadline(time.Now().Add(frameWait))
	var ack connectionAck
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "Connected", ack.Status)
	assert.Equal(t, id, ack.ChargePointId)
	require.NotNil(t, ack.CurrentTime)
	return cp
}

func (cp *testChargePoint) send(frame interface{}) {
	cp.t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(cp.t, err)
	require.NoError(cp.t, cp.conn.WriteMessage(websocket.TextMessage, data))
}

func (cp *testChargePoint) sendRaw(data string) {
	cp.t.Helper()
	require.NoError(cp.t, cp.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (cp *testChargePoint) read() []json.RawMessage {
	cp.t.Helper()
	_ = cp.conn.SetReadDeadline(time.Now().Add(frameWait))
	_, data, err := cp.conn.ReadMessage()
	require.NoError(cp.t, err)
	var frame []json.RawMessage
	require.NoError(cp.t, json.Unmarshal(data, &frame))
	require.GreaterOrEqual(cp.t, len(frame), 3)
	return frame
}

// call sends a CALL and returns the response frame, which must echo the unique id
func (cp *testChargePoint) call(uniqueId, action string, payload interface{}) []json.RawMessage {
	cp.t.Helper()
	cp.send([]interface{}{2, uniqueId, action, payload})
	frame := cp.read()
	assert.Equal(cp.t, uniqueId, frameString(frame[1]))
	return frame
}

func (cp *testChargePoint) result(uniqueId, action string, payload interface{}, response interface{}) {
	cp.t.Helper()
	frame := cp.call(uniqueId, action, payload)
	require.Equal(cp.t, 3, frameInt(frame[0]), "expected CALLRESULT, got %s", frame)
	require.NoError(cp.t, json.Unmarshal(frame[2], response))
}

func frameInt(raw json.RawMessage) int {
	var value int
	_ = json.Unmarshal(raw, &value)
	return value
}

func frameString(raw json.RawMessage) string {
	var value string
	_ = json.Unmarshal(raw, &value)
	return value
}

type idTagInfoResponse struct {
	IdTagInfo struct {
		Status      string `json:"status"`
		ExpiryDate  string `json:"expiryDate"`
		ParentIdTag string `json:"parentIdTag"`
	} `json:"idTagInfo"`
	TransactionId *string `json:"transactionId"`
}

func TestChargePointSession(t *testing.T) {
	system := newTestSystem(t, nil)
	system.database.AddUser(&models.User{Id: "USER1", Email: "u1@example.com", Verified: true})
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	var boot struct {
		Status      string `json:"status"`
		Interval    int    `json:"interval"`
		CurrentTime string `json:"currentTime"`
	}
	cp.result("19223201", "BootNotification", map[string]interface{}{
		"chargePointVendor": "VendorX",
		"chargePointModel":  "ModelY",
	}, &boot)
	assert.Equal(t, "Accepted", boot.Status)
	assert.Equal(t, 300, boot.Interval)
	_, err := time.Parse(time.RFC3339Nano, boot.CurrentTime)
	assert.NoError(t, err)

	var empty map[string]interface{}
	cp.result("s1", "StatusNotification", map[string]interface{}{
		"connectorId": 1, "errorCode": "NoError", "status": "Available",
	}, &empty)
	assert.Empty(t, empty)

	var heartbeat struct {
		CurrentTime string `json:"currentTime"`
	}
	cp.result("h1", "Heartbeat", map[string]interface{}{}, &heartbeat)
	assert.NotEmpty(t, heartbeat.CurrentTime)

	var authorize idTagInfoResponse
	cp.result("a1", "Authorize", map[string]interface{}{"idTag": "USER1"}, &authorize)
	assert.Equal(t, "Accepted", authorize.IdTagInfo.Status)
	assert.Equal(t, "USER1", authorize.IdTagInfo.ParentIdTag)

	var start idTagInfoResponse
	cp.result("t1", "StartTransaction", map[string]interface{}{
		"connectorId": 1, "idTag": "USER1", "meterStart": 1000, "timestamp": "2026-03-01T12:00:00Z",
	}, &start)
	assert.Equal(t, "Accepted", start.IdTagInfo.Status)
	require.NotNil(t, start.TransactionId)
	transactionId := *start.TransactionId
	assert.True(t, strings.HasPrefix(transactionId, "TXN-CP1-"))

	cp.result("m1", "MeterValues", map[string]interface{}{
		"connectorId":   1,
		"transactionId": transactionId,
		"meterValue": []map[string]interface{}{{
			"timestamp": "2026-03-01T12:10:00Z",
			"sampledValue": []map[string]interface{}{
				{"value": "1200", "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
				{"value": "7400", "measurand": "Power.Active.Import", "unit": "W"},
			},
		}},
	}, &empty)

	var stop idTagInfoResponse
	cp.result("t2", "StopTransaction", map[string]interface{}{
		"transactionId": transactionId, "meterStop": 1500, "timestamp": "2026-03-01T12:30:00Z", "reason": "Local",
	}, &stop)
	assert.Equal(t, "Accepted", stop.IdTagInfo.Status)

	transaction, err := system.database.GetTransaction(transactionId)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, transaction.Status)
	assert.Equal(t, 500.0, *transaction.EnergyConsumed)

	charger, err := system.database.GetCharger("CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerStatusAvailable, charger.Status)

	info, ok := system.cs.Registry().Info("CP1")
	require.True(t, ok)
	assert.NotNil(t, info.LastHeartbeat)
}

func TestMessageLogRecordsBothDirections(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")

	var heartbeat map[string]interface{}
	cp.result("h1", "Heartbeat", map[string]interface{}{}, &heartbeat)
	system.logger.Close()

	var in, out bool
	for _, entry := range system.database.MessageLogs() {
		if entry.Action != "Heartbeat" {
			continue
		}
		in = in || (entry.Direction == models.DirectionIn && entry.MessageType == "CALL")
		out = out || (entry.Direction == models.DirectionOut && entry.MessageType == "CALLRESULT")
	}
	assert.True(t, in)
	assert.True(t, out)
}

func TestMalformedFramesGetProtocolError(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		wantId string
	}{
		{"not json", "hello", ""},
		{"object instead of array", `{"a":1}`, ""},
		{"unknown type", `[7,"x1","Heartbeat",{}]`, "x1"},
		{"short call", `[2,"x2","Heartbeat"]`, "x2"},
		{"empty action", `[2,"x3","",{}]`, "x3"},
	}
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp.sendRaw(tt.frame)
			frame := cp.read()
			assert.Equal(t, 4, frameInt(frame[0]))
			assert.Equal(t, tt.wantId, frameString(frame[1]))
			assert.Equal(t, string(ocpp.ProtocolError), frameString(frame[2]))
		})
	}

	// the connection stays usable
	var heartbeat map[string]interface{}
	cp.result("h1", "Heartbeat", nil, &heartbeat)
	assert.NotEmpty(t, heartbeat["currentTime"])

	// trailing elements after the payload do not make a call malformed
	cp.send([]interface{}{2, "h3", "Heartbeat", map[string]interface{}{}, "trailing"})
	trailing := cp.read()
	assert.Equal(t, 3, frameInt(trailing[0]))
	assert.Equal(t, "h3", frameString(trailing[1]))
}

func TestUnknownActionIsNotImplemented(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")

	frame := cp.call("d1", "DataTransfer", map[string]interface{}{"vendorId": "X"})
	assert.Equal(t, 4, frameInt(frame[0]))
	assert.Equal(t, string(ocpp.NotImplemented), frameString(frame[2]))
	require.Len(t, frame, 5)
	assert.JSONEq(t, `{}`, string(frame[4]))
}

func TestInvalidPayloads(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")

	frame := cp.call("b1", "BootNotification", map[string]interface{}{"chargePointVendor": "VendorX"})
	assert.Equal(t, 4, frameInt(frame[0]))
	assert.Equal(t, string(ocpp.InternalError), frameString(frame[2]))

	var authorize idTagInfoResponse
	cp.result("a1", "Authorize", map[string]interface{}{}, &authorize)
	assert.Equal(t, "Invalid", authorize.IdTagInfo.Status)

	var start idTagInfoResponse
	cp.result("t1", "StartTransaction", map[string]interface{}{"connectorId": "one"}, &start)
	assert.Equal(t, "Blocked", start.IdTagInfo.Status)
	assert.Nil(t, start.TransactionId)

	var meter map[string]interface{}
	cp.result("m1", "MeterValues", "garbage", &meter)
	assert.Empty(t, meter)
}

func TestResponsesKeepRequestOrder(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")

	ids := []string{"o1", "o2", "o3", "o4", "o5"}
	for _, id := range ids {
		cp.send([]interface{}{2, id, "Heartbeat", map[string]interface{}{}})
	}
	for _, id := range ids {
		frame := cp.read()
		assert.Equal(t, id, frameString(frame[1]))
	}
}

func TestInvalidPathIsClosedWithProtocolError(t *testing.T) {
	system := newTestSystem(t, nil)
	for _, path := range []string{"/ocpp/", "/ocpp", "/chargers/CP1", "/ocpp/CP1/extra"} {
		t.Run(path, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(system.url(path), nil)
			require.NoError(t, err)
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(frameWait))
			_, _, err = conn.ReadMessage()
			assert.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError), "got %v", err)
		})
	}
	assert.Empty(t, system.cs.Registry().ListConnected())
}

func TestReconnectReplacesPreviousConnection(t *testing.T) {
	system := newTestSystem(t, nil)
	first := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")
	previous := system.cs.Registry().Lookup("CP1")

	second := system.connect(t, "CP1")
	require.Eventually(t, func() bool {
		return system.cs.Registry().Lookup("CP1") != previous
	}, frameWait, 10*time.Millisecond)

	_ = first.conn.SetReadDeadline(time.Now().Add(frameWait))
	_, _, err := first.conn.ReadMessage()
	assert.Error(t, err)

	var heartbeat map[string]interface{}
	second.result("h1", "Heartbeat", nil, &heartbeat)
	assert.Equal(t, []string{"CP1"}, system.cs.Registry().ListConnected())
}

func TestDisconnectUnregisters(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	require.NoError(t, cp.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool {
		return system.cs.Registry().Lookup("CP1") == nil
	}, frameWait, 10*time.Millisecond)
}

type commandOutcome struct {
	result *CommandResult
	err    error
}

func sendAsync(fn func() (*CommandResult, error)) <-chan commandOutcome {
	done := make(chan commandOutcome, 1)
	go func() {
		result, err := fn()
		done <- commandOutcome{result: result, err: err}
	}()
	return done
}

func waitOutcome(t *testing.T, done <-chan commandOutcome) commandOutcome {
	t.Helper()
	select {
	case outcome := <-done:
		return outcome
	case <-time.After(frameWait):
		require.FailNow(t, "remote command did not complete")
		return commandOutcome{}
	}
}

func TestRemoteStartDelivered(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	done := sendAsync(func() (*CommandResult, error) {
		return system.cs.Commands().SendRemoteStartTransaction(context.Background(), "CP1", 1, "USER1", nil)
	})

	frame := cp.read()
	require.Len(t, frame, 4)
	assert.Equal(t, 2, frameInt(frame[0]))
	assert.Equal(t, "RemoteStartTransaction", frameString(frame[2]))
	assert.JSONEq(t, `{"connectorId":1,"idTag":"USER1"}`, string(frame[3]))
	cp.send([]interface{}{3, frameString(frame[1]), map[string]interface{}{"status": "Accepted"}})

	outcome := waitOutcome(t, done)
	require.NoError(t, outcome.err)
	assert.True(t, outcome.result.Success)
	assert.Equal(t, "Accepted", outcome.result.Status)
	assert.Equal(t, 0, system.cs.Commands().PendingCount())
}

func TestConcurrentCommandsCorrelateById(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	startDone := sendAsync(func() (*CommandResult, error) {
		return system.cs.Commands().SendRemoteStartTransaction(context.Background(), "CP1", 1, "USER1", nil)
	})
	stopDone := sendAsync(func() (*CommandResult, error) {
		return system.cs.Commands().SendRemoteStopTransaction(context.Background(), "CP1", "TXN-1")
	})

	calls := map[string]string{}
	for i := 0; i < 2; i++ {
		frame := cp.read()
		calls[frameString(frame[2])] = frameString(frame[1])
	}
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls["RemoteStartTransaction"], calls["RemoteStopTransaction"])

	// answer in reverse order
	cp.send([]interface{}{3, calls["RemoteStopTransaction"], map[string]interface{}{"status": "Rejected"}})
	cp.send([]interface{}{3, calls["RemoteStartTransaction"], map[string]interface{}{"status": "Accepted", "transactionId": 42}})

	start := waitOutcome(t, startDone)
	require.NoError(t, start.err)
	assert.Equal(t, "Accepted", start.result.Status)
	assert.Equal(t, "42", start.result.TransactionId)

	stop := waitOutcome(t, stopDone)
	require.NoError(t, stop.err)
	assert.True(t, stop.result.Success)
	assert.Equal(t, "Rejected", stop.result.Status)
}

func TestRemoteCommandCallError(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	done := sendAsync(func() (*CommandResult, error) {
		return system.cs.Commands().SendRemoteStopTransaction(context.Background(), "CP1", "TXN-1")
	})
	frame := cp.read()
	cp.send([]interface{}{4, frameString(frame[1]), "GenericError", "no such transaction", map[string]interface{}{}})

	outcome := waitOutcome(t, done)
	require.Error(t, outcome.err)
	assert.ErrorIs(t, outcome.err, ErrRemoteCommandRejected)
	var callError *ocpp.CallError
	require.True(t, errors.As(outcome.err, &callError))
	assert.Equal(t, ocpp.GenericError, callError.ErrorCode)
	assert.Equal(t, "no such transaction", callError.ErrorDescription)
}

func TestRemoteCommandTimeoutIgnoresLateResponse(t *testing.T) {
	system := newTestSystem(t, func(conf *config.Config) {
		conf.Remote.Timeout = 100 * time.Millisecond
	})
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	done := sendAsync(func() (*CommandResult, error) {
		return system.cs.Commands().SendRemoteStartTransaction(context.Background(), "CP1", 1, "USER1", nil)
	})
	frame := cp.read()

	outcome := waitOutcome(t, done)
	assert.ErrorIs(t, outcome.err, ErrRemoteCommandTimeout)
	assert.Nil(t, outcome.result)
	assert.Equal(t, 0, system.cs.Commands().PendingCount())

	cp.send([]interface{}{3, frameString(frame[1]), map[string]interface{}{"status": "Accepted"}})
	var heartbeat map[string]interface{}
	cp.result("h1", "Heartbeat", nil, &heartbeat)
	assert.Equal(t, 0, system.cs.Commands().PendingCount())
}

func TestRemoteCommandContextCancel(t *testing.T) {
	system := newTestSystem(t, nil)
	cp := system.connect(t, "CP1")
	system.waitConnected(t, "CP1")

	ctx, cancel := context.WithCancel(context.Background())
	done := sendAsync(func() (*CommandResult, error) {
		return system.cs.Commands().SendRemoteStopTransaction(ctx, "CP1", "TXN-1")
	})
	_ = cp.read()
	cancel()

	outcome := waitOutcome(t, done)
	assert.ErrorIs(t, outcome.err, ErrRemoteCommandTimeout)
	assert.ErrorIs(t, outcome.err, context.Canceled)
	assert.Equal(t, 0, system.cs.Commands().PendingCount())
}

func TestOfflineCommandsReplayOnceOnConnect(t *testing.T) {
	system := newTestSystem(t, nil)
	commands := system.cs.Commands()

	result, err := commands.SendRemoteStartTransaction(context.Background(), "CP2", 1, "USER1", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, ErrorCodeChargePointOffline, result.ErrorCode)

	_, err = commands.SendRemoteStopTransaction(context.Background(), "CP2", "TXN-7")
	require.NoError(t, err)
	assert.Equal(t, 2, system.queue.Len("CP2"))

	cp := system.connect(t, "CP2")
	first := cp.read()
	assert.Equal(t, "RemoteStartTransaction", frameString(first[2]))
	cp.send([]interface{}{3, frameString(first[1]), map[string]interface{}{"status": "Accepted"}})

	second := cp.read()
	assert.Equal(t, "RemoteStopTransaction", frameString(second[2]))
	assert.JSONEq(t, `{"transactionId":"TXN-7"}`, string(second[3]))
	cp.send([]interface{}{3, frameString(second[1]), map[string]interface{}{"status": "Accepted"}})

	require.Eventually(t, func() bool {
		return commands.PendingCount() == 0
	}, frameWait, 10*time.Millisecond)
	assert.Equal(t, 0, system.queue.Len("CP2"))

	// nothing is replayed on the next connection
	require.NoError(t, cp.conn.Close())
	require.Eventually(t, func() bool {
		return system.cs.Registry().Lookup("CP2") == nil
	}, frameWait, 10*time.Millisecond)
	again := system.connect(t, "CP2")
	var heartbeat map[string]interface{}
	again.result("h1", "Heartbeat", nil, &heartbeat)
}

// racingQueue runs beforeEnqueue once, just before the first command lands in the queue
type racingQueue struct {
	*MemoryCommandQueue
	beforeEnqueue func()
}

func (q *racingQueue) Enqueue(chargePointId string, command *models.QueuedCommand) error {
	if q.beforeEnqueue != nil {
		hook := q.beforeEnqueue
		q.beforeEnqueue = nil
		hook()
	}
	return q.MemoryCommandQueue.Enqueue(chargePointId, command)
}

func TestCommandQueuedWhileChargePointConnectsIsDelivered(t *testing.T) {
	racing := &racingQueue{}
	system := newTestSystemWithQueue(t, nil, func(queue *MemoryCommandQueue) CommandQueue {
		racing.MemoryCommandQueue = queue
		return racing
	})
	commands := system.cs.Commands()

	var cp *testChargePoint
	racing.beforeEnqueue = func() {
		// the charge point connects and finds an empty queue after the dispatcher saw it offline
		cp = system.connect(t, "CP3")
		system.waitConnected(t, "CP3")
		commands.ProcessQueuedCommands("CP3")
	}

	result, err := commands.SendRemoteStartTransaction(context.Background(), "CP3", 1, "USER1", nil)
	require.NoError(t, err)
	assert.Equal(t, ErrorCodeChargePointOffline, result.ErrorCode)
	require.NotNil(t, cp)

	frame := cp.read()
	assert.Equal(t, 2, frameInt(frame[0]))
	assert.Equal(t, "RemoteStartTransaction", frameString(frame[2]))
	cp.send([]interface{}{3, frameString(frame[1]), map[string]interface{}{"status": "Accepted"}})

	require.Eventually(t, func() bool {
		return commands.PendingCount() == 0
	}, frameWait, 10*time.Millisecond)
	assert.Equal(t, 0, system.queue.Len("CP3"))
}

func TestReplayKeepsCommandsWhenChargePointIsGone(t *testing.T) {
	queue := NewMemoryCommandQueue()
	logger := internal.NewLogger(zap.NewNop(), time.UTC)
	t.Cleanup(logger.Close)
	commands := NewRemoteCommandDispatcher(NewRegistry(), queue, logger, time.Second)

	for _, idTag := range []string{"A", "B"} {
		result, err := commands.SendRemoteStartTransaction(context.Background(), "CP4", 1, idTag, nil)
		require.NoError(t, err)
		assert.Equal(t, ErrorCodeChargePointOffline, result.ErrorCode)
	}
	commands.ProcessQueuedCommands("CP4")
	require.Equal(t, 2, queue.Len("CP4"))

	_, err := commands.SendRemoteStopTransaction(context.Background(), "CP4", "TXN-9")
	require.NoError(t, err)
	commands.ProcessQueuedCommands("CP4")

	queued, err := queue.Drain("CP4")
	require.NoError(t, err)
	require.Len(t, queued, 3)
	assert.JSONEq(t, `{"connectorId":1,"idTag":"A"}`, string(queued[0].Payload))
	assert.JSONEq(t, `{"connectorId":1,"idTag":"B"}`, string(queued[1].Payload))
	assert.Equal(t, "RemoteStopTransaction", queued[2].Action)
}
