package server

import (
	"errors"
	"strings"
	"testing"
	"time"

	"evcs/internal"
	"evcs/models"
	"evcs/ocpp"
	"evcs/ocpp/core"
	"evcs/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var handlerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*SystemHandler, *internal.MemoryDatabase, *internal.Logger) {
	t.Helper()
	database := internal.NewMemoryDatabase()
	logger := internal.NewLogger(zap.NewNop(), time.UTC)
	logger.SetDatabase(database)
	t.Cleanup(logger.Close)

	handler := NewSystemHandler(database, NewRegistry(), logger)
	handler.SetAuthParameters(true, 0)
	handler.now = func() time.Time { return handlerNow }
	return handler, database, logger
}

func bootCharger(t *testing.T, handler *SystemHandler, chargePointId string) {
	t.Helper()
	_, err := handler.OnBootNotification(chargePointId, &core.BootNotificationRequest{
		ChargePointVendor: "VendorX",
		ChargePointModel:  "ModelY",
	})
	require.NoError(t, err)
}

func startTransaction(t *testing.T, handler *SystemHandler, chargePointId string, meterStart int) string {
	t.Helper()
	response, err := handler.OnStartTransaction(chargePointId, &core.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "TAG1",
		MeterStart:  meterStart,
	})
	require.NoError(t, err)
	require.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)
	require.NotNil(t, response.TransactionId)
	return *response.TransactionId
}

func energyReading(value string) []types.MeterValue {
	return []types.MeterValue{{
		Timestamp: types.NewDateTime(handlerNow),
		SampledValue: []types.SampledValue{{
			Value:     value,
			Measurand: types.MeasurandEnergyActiveImportRegister,
			Unit:      types.UnitOfMeasureWh,
		}},
	}}
}

func TestBootNotificationRegistersCharger(t *testing.T) {
	handler, database, _ := newTestHandler(t)

	response, err := handler.OnBootNotification("CP1", &core.BootNotificationRequest{
		ChargePointVendor:     "VendorX",
		ChargePointModel:      "ModelY",
		ChargeBoxSerialNumber: "SN-42",
		FirmwareVersion:       "1.0.3",
	})
	require.NoError(t, err)
	assert.Equal(t, core.RegistrationStatusAccepted, response.Status)
	assert.Equal(t, core.DefaultHeartbeatInterval, response.Interval)
	assert.True(t, handlerNow.Equal(response.CurrentTime.Time))

	charger, err := database.GetCharger("CP1")
	require.NoError(t, err)
	assert.Equal(t, models.ChargerStatusAvailable, charger.Status)
	assert.Equal(t, "VendorX", charger.Vendor)
	assert.Equal(t, "SN-42", charger.SerialNumber)

	// a second boot updates the same record
	bootCharger(t, handler, "CP1")
	again, err := database.GetCharger(charger.Id)
	require.NoError(t, err)
	assert.Equal(t, charger.Id, again.Id)
	assert.Empty(t, again.SerialNumber)
}

func TestHeartbeatReturnsCurrentTime(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	handler.registry.Register("CP1", &WebSocket{id: "CP1"})

	response, err := handler.OnHeartbeat("CP1", &core.HeartbeatRequest{})
	require.NoError(t, err)
	assert.True(t, handlerNow.Equal(response.CurrentTime.Time))

	info, ok := handler.registry.Info("CP1")
	require.True(t, ok)
	require.NotNil(t, info.LastHeartbeat)
	assert.True(t, handlerNow.Equal(*info.LastHeartbeat))
}

func TestStatusNotificationMapsChargerStatus(t *testing.T) {
	tests := []struct {
		status core.ChargePointStatus
		want   models.ChargerStatus
	}{
		{core.ChargePointStatusAvailable, models.ChargerStatusAvailable},
		{core.ChargePointStatusPreparing, models.ChargerStatusOccupied},
		{core.ChargePointStatusCharging, models.ChargerStatusOccupied},
		{core.ChargePointStatusSuspendedEV, models.ChargerStatusOccupied},
		{core.ChargePointStatusFinishing, models.ChargerStatusOccupied},
		{core.ChargePointStatusReserved, models.ChargerStatusOccupied},
		{core.ChargePointStatusSuspendedEVSE, models.ChargerStatusOffline},
		{core.ChargePointStatusUnavailable, models.ChargerStatusOffline},
		{core.ChargePointStatusFaulted, models.ChargerStatusMaintenance},
	}
	handler, database, _ := newTestHandler(t)
	bootCharger(t, handler, "CP1")

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			_, err := handler.OnStatusNotification("CP1", &core.StatusNotificationRequest{
				ConnectorId: 1,
				ErrorCode:   core.NoError,
				Status:      tt.status,
			})
			require.NoError(t, err)
			charger, err := database.GetCharger("CP1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, charger.Status)
		})
	}
}

func TestStatusNotificationBeforeBootIsAcknowledged(t *testing.T) {
	handler, database, _ := newTestHandler(t)

	response, err := handler.OnStatusNotification("CP9", &core.StatusNotificationRequest{
		ConnectorId: 1,
		ErrorCode:   core.NoError,
		Status:      core.ChargePointStatusAvailable,
	})
	require.NoError(t, err)
	assert.NotNil(t, response)

	_, err = database.GetCharger("CP9")
	assert.True(t, errors.Is(err, internal.ErrNotFound))
}

func TestAuthorize(t *testing.T) {
	expiry := handlerNow.Add(24 * time.Hour)
	tests := []struct {
		name         string
		idTag        string
		acceptAll    bool
		wantStatus   types.AuthorizationStatus
		wantParent   string
		wantExpiry   time.Time
		wantRejected bool
	}{
		{"empty tag", "", true, types.AuthorizationStatusInvalid, "", handlerNow, true},
		{"unknown tag accepted", "NOPE", true, types.AuthorizationStatusAccepted, "", expiry, false},
		{"unknown tag refused", "NOPE", false, types.AuthorizationStatusInvalid, "", handlerNow, true},
		{"unverified user", "U2", true, types.AuthorizationStatusBlocked, "U2", handlerNow, true},
		{"verified user", "U1", true, types.AuthorizationStatusAccepted, "U1", expiry, false},
		{"verified user by email", "driver@example.com", false, types.AuthorizationStatusAccepted, "U1", expiry, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, database, logger := newTestHandler(t)
			handler.SetAuthParameters(tt.acceptAll, 0)
			database.AddUser(&models.User{Id: "U1", Email: "driver@example.com", Verified: true})
			database.AddUser(&models.User{Id: "U2", Email: "pending@example.com", Verified: false})

			response, err := handler.OnAuthorize("CP1", &core.AuthorizeRequest{IdTag: tt.idTag})
			require.NoError(t, err)
			info := response.IdTagInfo
			assert.Equal(t, tt.wantStatus, info.Status)
			assert.Equal(t, tt.wantParent, info.ParentIdTag)
			require.NotNil(t, info.ExpiryDate)
			assert.True(t, tt.wantExpiry.Equal(info.ExpiryDate.Time))

			logger.Close()
			assert.Equal(t, tt.wantRejected, hasRejection(database, core.AuthorizeFeatureName))
		})
	}
}

func TestAuthorizeCachesLookups(t *testing.T) {
	handler, database, _ := newTestHandler(t)
	handler.SetAuthParameters(false, time.Minute)

	response, err := handler.OnAuthorize("CP1", &core.AuthorizeRequest{IdTag: "U9"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusInvalid, response.IdTagInfo.Status)

	database.AddUser(&models.User{Id: "U9", Verified: true})
	response, err = handler.OnAuthorize("CP1", &core.AuthorizeRequest{IdTag: "U9"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusInvalid, response.IdTagInfo.Status)

	handler.SetAuthParameters(false, 0)
	response, err = handler.OnAuthorize("CP1", &core.AuthorizeRequest{IdTag: "U9"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)
}

func hasRejection(database *internal.MemoryDatabase, action string) bool {
	for _, entry := range database.MessageLogs() {
		if entry.MessageType == models.MessageTypeBusinessRejection && entry.Action == action {
			return true
		}
	}
	return false
}

func TestTransactionLifecycle(t *testing.T) {
	handler, database, _ := newTestHandler(t)
	bootCharger(t, handler, "CP1")

	transactionId := startTransaction(t, handler, "CP1", 1000)
	assert.True(t, strings.HasPrefix(transactionId, "TXN-CP1-"))

	transaction, err := database.GetTransaction(transactionId)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusActive, transaction.Status)
	assert.Equal(t, 1000, transaction.MeterStart)
	charger, _ := database.GetCharger("CP1")
	assert.Equal(t, models.ChargerStatusOccupied, charger.Status)

	_, err = handler.OnMeterValues("CP1", &core.MeterValuesRequest{
		ConnectorId:   1,
		TransactionId: &transactionId,
		MeterValue:    energyReading("1250"),
	})
	require.NoError(t, err)
	transaction, _ = database.GetTransaction(transactionId)
	require.NotNil(t, transaction.EnergyConsumed)
	assert.Equal(t, 250.0, *transaction.EnergyConsumed)

	response, err := handler.OnStopTransaction("CP1", &core.StopTransactionRequest{
		IdTag:         "TAG1",
		MeterStop:     1500,
		TransactionId: transactionId,
		Reason:        core.ReasonLocal,
	})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)

	transaction, _ = database.GetTransaction(transactionId)
	assert.Equal(t, models.TransactionStatusCompleted, transaction.Status)
	require.NotNil(t, transaction.MeterStop)
	assert.Equal(t, 1500, *transaction.MeterStop)
	assert.Equal(t, 500.0, *transaction.EnergyConsumed)
	assert.Equal(t, string(core.ReasonLocal), transaction.Reason)
	require.NotNil(t, transaction.TimeStop)
	charger, _ = database.GetCharger("CP1")
	assert.Equal(t, models.ChargerStatusAvailable, charger.Status)

	// readings after the stop leave the record untouched
	_, err = handler.OnMeterValues("CP1", &core.MeterValuesRequest{
		ConnectorId:   1,
		TransactionId: &transactionId,
		MeterValue:    energyReading("9000"),
	})
	require.NoError(t, err)
	transaction, _ = database.GetTransaction(transactionId)
	assert.Equal(t, 500.0, *transaction.EnergyConsumed)

	// stopping twice is refused
	response, err = handler.OnStopTransaction("CP1", &core.StopTransactionRequest{MeterStop: 1600, TransactionId: transactionId})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.IdTagInfo.Status)
}

func TestStopTransactionClampsNegativeEnergy(t *testing.T) {
	handler, database, _ := newTestHandler(t)
	bootCharger(t, handler, "CP1")
	transactionId := startTransaction(t, handler, "CP1", 1000)

	_, err := handler.OnStopTransaction("CP1", &core.StopTransactionRequest{MeterStop: 900, TransactionId: transactionId})
	require.NoError(t, err)

	transaction, err := database.GetTransaction(transactionId)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *transaction.EnergyConsumed)
	assert.Equal(t, 900, *transaction.MeterStop)
}

func TestStopUnknownTransactionIsBlocked(t *testing.T) {
	handler, database, logger := newTestHandler(t)

	response, err := handler.OnStopTransaction("CP1", &core.StopTransactionRequest{MeterStop: 10, TransactionId: "TXN-missing"})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.IdTagInfo.Status)
	require.NotNil(t, response.IdTagInfo.ExpiryDate)

	logger.Close()
	assert.True(t, hasRejection(database, core.StopTransactionFeatureName))
}

func TestStartTransactionWithoutBootStillStarts(t *testing.T) {
	handler, database, _ := newTestHandler(t)

	transactionId := startTransaction(t, handler, "CP7", 0)
	_, err := database.GetTransaction(transactionId)
	assert.NoError(t, err)
}

func TestMeterValuesWithoutTransaction(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	unknown := "TXN-unknown"

	response, err := handler.OnMeterValues("CP1", &core.MeterValuesRequest{ConnectorId: 1, MeterValue: energyReading("10")})
	require.NoError(t, err)
	assert.NotNil(t, response)

	response, err = handler.OnMeterValues("CP1", &core.MeterValuesRequest{ConnectorId: 1, TransactionId: &unknown, MeterValue: energyReading("10")})
	require.NoError(t, err)
	assert.NotNil(t, response)
}

func TestInvalidRequestPolicies(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	cause := ocpp.ErrInvalidPayload

	response, err := handler.OnInvalidRequest("CP1", core.AuthorizeFeatureName, cause)
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusInvalid, response.(*core.AuthorizeResponse).IdTagInfo.Status)

	response, err = handler.OnInvalidRequest("CP1", core.StartTransactionFeatureName, cause)
	require.NoError(t, err)
	start := response.(*core.StartTransactionResponse)
	assert.Equal(t, types.AuthorizationStatusBlocked, start.IdTagInfo.Status)
	assert.Nil(t, start.TransactionId)

	response, err = handler.OnInvalidRequest("CP1", core.StopTransactionFeatureName, cause)
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.(*core.StopTransactionResponse).IdTagInfo.Status)

	response, err = handler.OnInvalidRequest("CP1", core.MeterValuesFeatureName, cause)
	require.NoError(t, err)
	assert.IsType(t, &core.MeterValuesResponse{}, response)

	_, err = handler.OnInvalidRequest("CP1", core.BootNotificationFeatureName, cause)
	assert.ErrorIs(t, err, ocpp.ErrInvalidPayload)
}

type recordingListener struct {
	events []*internal.EventMessage
}

func (r *recordingListener) OnStatusNotification(event *internal.EventMessage) {
	r.events = append(r.events, event)
}

func (r *recordingListener) OnTransactionStart(event *internal.EventMessage) {
	r.events = append(r.events, event)
}

func (r *recordingListener) OnTransactionStop(event *internal.EventMessage) {
	r.events = append(r.events, event)
}

func (r *recordingListener) OnAuthorize(event *internal.EventMessage) {
	r.events = append(r.events, event)
}

func TestEventListenersReceiveTransactionEvents(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	listener := &recordingListener{}
	handler.AddEventListener(listener)
	bootCharger(t, handler, "CP1")

	transactionId := startTransaction(t, handler, "CP1", 100)
	_, err := handler.OnStopTransaction("CP1", &core.StopTransactionRequest{MeterStop: 400, TransactionId: transactionId})
	require.NoError(t, err)

	require.Len(t, listener.events, 2)
	assert.Equal(t, core.StartTransactionFeatureName, listener.events[0].Type)
	assert.Equal(t, transactionId, listener.events[1].TransactionId)
	assert.Equal(t, 300.0, listener.events[1].EnergyConsumed)
}

func TestStopTransactionOfAnotherChargePointIsBlocked(t *testing.T) {
	handler, database, logger := newTestHandler(t)
	bootCharger(t, handler, "CP1")
	bootCharger(t, handler, "CP2")
	transactionId := startTransaction(t, handler, "CP1", 1000)

	response, err := handler.OnStopTransaction("CP2", &core.StopTransactionRequest{MeterStop: 1500, TransactionId: transactionId})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.IdTagInfo.Status)

	transaction, err := database.GetTransaction(transactionId)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusActive, transaction.Status)
	assert.Nil(t, transaction.MeterStop)

	owner, _ := database.GetCharger("CP1")
	assert.Equal(t, models.ChargerStatusOccupied, owner.Status)
	other, _ := database.GetCharger("CP2")
	assert.Equal(t, models.ChargerStatusAvailable, other.Status)

	logger.Close()
	assert.True(t, hasRejection(database, core.StopTransactionFeatureName))
}

// staleDatabase serves transactions as they were when first read, like a concurrent stop would see them
type staleDatabase struct {
	*internal.MemoryDatabase
	snapshots map[string]*models.Transaction
}

func (s *staleDatabase) GetTransaction(transactionId string) (*models.Transaction, error) {
	if snapshot, ok := s.snapshots[transactionId]; ok {
		result := *snapshot
		return &result, nil
	}
	transaction, err := s.MemoryDatabase.GetTransaction(transactionId)
	if err == nil {
		s.snapshots[transactionId] = transaction
	}
	return transaction, err
}

func TestSecondStopOfClosedTransactionIsBlocked(t *testing.T) {
	handler, memory, _ := newTestHandler(t)
	database := &staleDatabase{MemoryDatabase: memory, snapshots: make(map[string]*models.Transaction)}
	handler.database = database
	bootCharger(t, handler, "CP1")
	transactionId := startTransaction(t, handler, "CP1", 1000)

	response, err := handler.OnStopTransaction("CP1", &core.StopTransactionRequest{MeterStop: 1500, TransactionId: transactionId})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusAccepted, response.IdTagInfo.Status)

	response, err = handler.OnStopTransaction("CP1", &core.StopTransactionRequest{MeterStop: 1900, TransactionId: transactionId})
	require.NoError(t, err)
	assert.Equal(t, types.AuthorizationStatusBlocked, response.IdTagInfo.Status)

	transaction, err := memory.GetTransaction(transactionId)
	require.NoError(t, err)
	assert.Equal(t, 1500, *transaction.MeterStop)
	assert.Equal(t, 500.0, *transaction.EnergyConsumed)
}
