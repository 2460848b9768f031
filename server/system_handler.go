package server

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"evcs/accounting"
	"evcs/internal"
	"evcs/metrics/counters"
	"evcs/models"
	"evcs/ocpp"
	"evcs/ocpp/core"
	"evcs/types"

	"github.com/patrickmn/go-cache"
)

const authorizationValidity = 24 * time.Hour

type SystemHandler struct {
	database         internal.Database
	logger           internal.LogHandler
	registry         *Registry
	eventHandlers    []internal.EventHandler
	userCache        *cache.Cache
	acceptUnknownTag bool
	now              func() time.Time
}

func NewSystemHandler(database internal.Database, registry *Registry, logger internal.LogHandler) *SystemHandler {
	return &SystemHandler{
		database:         database,
		registry:         registry,
		logger:           logger,
		acceptUnknownTag: true,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SetAuthParameters controls how id tags without a user are treated and how long lookups are cached
func (h *SystemHandler) SetAuthParameters(acceptUnknownTag bool, cacheTTL time.Duration) {
	h.acceptUnknownTag = acceptUnknownTag
	if cacheTTL > 0 {
		h.userCache = cache.New(cacheTTL, 2*cacheTTL)
	} else {
		h.userCache = nil
	}
}

func (h *SystemHandler) AddEventListener(handler internal.EventHandler) {
	h.eventHandlers = append(h.eventHandlers, handler)
}

func (h *SystemHandler) notify(fire func(handler internal.EventHandler)) {
	for _, handler := range h.eventHandlers {
		fire(handler)
	}
}

// reject records a business rejection in the message log
func (h *SystemHandler) reject(chargePointId, action, reason string) {
	h.logger.FeatureEvent(action, chargePointId, fmt.Sprintf("rejected: %s", reason))
	h.logger.MessageEvent(&models.MessageLog{
		ChargePointId: chargePointId,
		MessageType:   models.MessageTypeBusinessRejection,
		Action:        action,
		Payload:       reason,
		Direction:     models.DirectionOut,
	})
}

func (h *SystemHandler) expiredNow(status types.AuthorizationStatus) *types.IdTagInfo {
	return types.NewIdTagInfo(status).WithExpiry(types.NewDateTime(h.now()))
}

// OnInvalidRequest answers a request whose payload could not be decoded or misses required fields
func (h *SystemHandler) OnInvalidRequest(chargePointId, action string, cause error) (ocpp.Response, error) {
	switch action {
	case core.AuthorizeFeatureName:
		h.reject(chargePointId, action, cause.Error())
		return core.NewAuthorizationResponse(h.expiredNow(types.AuthorizationStatusInvalid)), nil
	case core.StartTransactionFeatureName:
		h.reject(chargePointId, action, cause.Error())
		return core.NewStartTransactionResponse(h.expiredNow(types.AuthorizationStatusBlocked), ""), nil
	case core.StopTransactionFeatureName:
		h.reject(chargePointId, action, cause.Error())
		return core.NewStopTransactionResponse(h.expiredNow(types.AuthorizationStatusBlocked)), nil
	case core.MeterValuesFeatureName:
		h.reject(chargePointId, action, cause.Error())
		return core.NewMeterValuesResponse(), nil
	default:
		return nil, cause
	}
}

func (h *SystemHandler) OnBootNotification(chargePointId string, request *core.BootNotificationRequest) (*core.BootNotificationResponse, error) {
	if request.ChargePointVendor == "" || request.ChargePointModel == "" {
		return nil, fmt.Errorf("%w: vendor and model are required", ocpp.ErrInvalidPayload)
	}
	charger, err := h.database.UpsertChargerByChargePointId(chargePointId, &models.ChargerInfo{
		Vendor:          request.ChargePointVendor,
		Model:           request.ChargePointModel,
		SerialNumber:    request.SerialNumber(),
		FirmwareVersion: request.FirmwareVersion,
		Status:          models.ChargerStatusAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("register charger %s: %w", chargePointId, err)
	}
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("boot confirmed; charger %s, serial number: %s", charger.Id, request.SerialNumber()))
	return core.NewBootNotificationResponse(types.NewDateTime(h.now()), core.DefaultHeartbeatInterval, core.RegistrationStatusAccepted), nil
}

func (h *SystemHandler) OnStatusNotification(chargePointId string, request *core.StatusNotificationRequest) (*core.StatusNotificationResponse, error) {
	status := accounting.MapStatus(request.Status)
	err := h.database.UpdateChargerStatus(chargePointId, status)
	if errors.Is(err, internal.ErrNotFound) {
		h.logger.Warn(fmt.Sprintf("%s: status %s received before boot notification", chargePointId, request.Status))
	} else if err != nil {
		return nil, fmt.Errorf("update charger status %s: %w", chargePointId, err)
	}
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("connector #%d status %s; charger %s", request.ConnectorId, request.Status, status))

	h.notify(func(handler internal.EventHandler) {
		handler.OnStatusNotification(&internal.EventMessage{
			Type:          request.GetFeatureName(),
			ChargePointId: chargePointId,
			ConnectorId:   request.ConnectorId,
			Time:          h.now(),
			Status:        string(request.Status),
			Info:          string(request.ErrorCode),
		})
	})
	return core.NewStatusNotificationResponse(), nil
}

func (h *SystemHandler) OnHeartbeat(chargePointId string, request *core.HeartbeatRequest) (*core.HeartbeatResponse, error) {
	now := h.now()
	if h.registry != nil {
		h.registry.Heartbeat(chargePointId, now)
	}
	return core.NewHeartbeatResponse(types.NewDateTime(now)), nil
}

func (h *SystemHandler) findUser(idTag string) (*models.User, error) {
	if h.userCache != nil {
		if cached, ok := h.userCache.Get(idTag); ok {
			user, _ := cached.(*models.User)
			return user, nil
		}
	}
	user, err := h.database.FindUserByIdOrEmail(idTag)
	if err != nil {
		return nil, err
	}
	if h.userCache != nil {
		h.userCache.SetDefault(idTag, user)
	}
	return user, nil
}

func (h *SystemHandler) OnAuthorize(chargePointId string, request *core.AuthorizeRequest) (*core.AuthorizeResponse, error) {
	id := request.IdTag
	var info *types.IdTagInfo
	if id == "" {
		h.reject(chargePointId, request.GetFeatureName(), "empty id tag")
		info = h.expiredNow(types.AuthorizationStatusInvalid)
	} else {
		user, err := h.findUser(id)
		switch {
		case err != nil:
			h.logger.Error(fmt.Sprintf("user lookup for %s", id), err)
			h.reject(chargePointId, request.GetFeatureName(), fmt.Sprintf("user lookup failed for %s", id))
			info = h.expiredNow(types.AuthorizationStatusInvalid)
		case user == nil && h.acceptUnknownTag:
			info = types.NewIdTagInfo(types.AuthorizationStatusAccepted).WithExpiry(types.NewDateTime(h.now().Add(authorizationValidity)))
		case user == nil:
			h.reject(chargePointId, request.GetFeatureName(), fmt.Sprintf("unknown id tag %s", id))
			info = h.expiredNow(types.AuthorizationStatusInvalid)
		case !user.Verified:
			h.reject(chargePointId, request.GetFeatureName(), fmt.Sprintf("user %s is not verified", user.Id))
			info = h.expiredNow(types.AuthorizationStatusBlocked)
			info.ParentIdTag = user.Id
		default:
			info = types.NewIdTagInfo(types.AuthorizationStatusAccepted).WithExpiry(types.NewDateTime(h.now().Add(authorizationValidity)))
			info.ParentIdTag = user.Id
		}
	}

	h.notify(func(handler internal.EventHandler) {
		handler.OnAuthorize(&internal.EventMessage{
			Type:          request.GetFeatureName(),
			ChargePointId: chargePointId,
			Time:          h.now(),
			IdTag:         id,
			Status:        string(info.Status),
		})
	})
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("id tag: %s; authorization status: %s", id, info.Status))
	return core.NewAuthorizationResponse(info), nil
}

func (h *SystemHandler) OnStartTransaction(chargePointId string, request *core.StartTransactionRequest) (*core.StartTransactionResponse, error) {
	blocked := func(reason string) (*core.StartTransactionResponse, error) {
		h.reject(chargePointId, request.GetFeatureName(), reason)
		return core.NewStartTransactionResponse(h.expiredNow(types.AuthorizationStatusBlocked), ""), nil
	}
	if request.IdTag == "" {
		return blocked("empty id tag")
	}

	now := h.now()
	timeStart := now
	if request.Timestamp != nil && !request.Timestamp.IsZero() {
		timeStart = request.Timestamp.UTC()
	}
	transaction := &models.Transaction{
		TransactionId: accounting.NewTransactionId(chargePointId, now),
		ChargePointId: chargePointId,
		ConnectorId:   request.ConnectorId,
		IdTag:         request.IdTag,
		ReservationId: request.ReservationId,
		MeterStart:    request.MeterStart,
		Status:        models.TransactionStatusActive,
		TimeStart:     timeStart,
	}
	if err := h.database.CreateTransaction(transaction); err != nil {
		h.logger.Error("create transaction", err)
		return blocked(fmt.Sprintf("transaction not created: %s", err))
	}
	if err := h.database.UpdateChargerStatus(chargePointId, accounting.MapStatus(core.ChargePointStatusCharging)); err != nil {
		h.logger.Warn(fmt.Sprintf("%s: charger status not updated on transaction start: %s", chargePointId, err))
	}
	counters.TransactionStarted()

	h.notify(func(handler internal.EventHandler) {
		handler.OnTransactionStart(&internal.EventMessage{
			Type:          request.GetFeatureName(),
			ChargePointId: chargePointId,
			ConnectorId:   request.ConnectorId,
			Time:          timeStart,
			IdTag:         request.IdTag,
			TransactionId: transaction.TransactionId,
			Status:        string(transaction.Status),
		})
	})
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("started transaction %s on connector %d, meter start %d", transaction.TransactionId, request.ConnectorId, request.MeterStart))
	return core.NewStartTransactionResponse(types.NewIdTagInfo(types.AuthorizationStatusAccepted), transaction.TransactionId), nil
}

func (h *SystemHandler) OnStopTransaction(chargePointId string, request *core.StopTransactionRequest) (*core.StopTransactionResponse, error) {
	blocked := func(reason string) (*core.StopTransactionResponse, error) {
		h.reject(chargePointId, request.GetFeatureName(), reason)
		return core.NewStopTransactionResponse(h.expiredNow(types.AuthorizationStatusBlocked)), nil
	}

	transaction, err := h.database.GetTransaction(request.TransactionId)
	if err != nil {
		return blocked(fmt.Sprintf("transaction %s: %s", request.TransactionId, err))
	}
	if transaction.ChargePointId != chargePointId {
		return blocked(fmt.Sprintf("transaction %s belongs to %s", transaction.TransactionId, transaction.ChargePointId))
	}
	if !transaction.IsActive() {
		return blocked(fmt.Sprintf("transaction %s is %s", transaction.TransactionId, transaction.Status))
	}

	energy, negative := accounting.EnergyConsumed(float64(transaction.MeterStart), float64(request.MeterStop))
	if negative {
		h.logger.Warn(fmt.Sprintf("%s: transaction %s meter stop %d is below meter start %d", chargePointId, transaction.TransactionId, request.MeterStop, transaction.MeterStart))
	}
	timeStop := h.now()
	if request.Timestamp != nil && !request.Timestamp.IsZero() {
		timeStop = request.Timestamp.UTC()
	}
	update := &models.TransactionUpdate{
		MeterStop:      request.MeterStop,
		EnergyConsumed: energy,
		Status:         models.TransactionStatusCompleted,
		TimeStop:       timeStop,
		Reason:         string(request.Reason),
	}
	closed, err := h.database.UpdateTransaction(transaction.TransactionId, update)
	if err != nil {
		h.logger.Error("update transaction", err)
		return blocked(fmt.Sprintf("transaction %s not updated: %s", transaction.TransactionId, err))
	}
	if !closed {
		return blocked(fmt.Sprintf("transaction %s was already closed", transaction.TransactionId))
	}
	if err = h.database.UpdateChargerStatus(chargePointId, accounting.MapStatus(core.ChargePointStatusAvailable)); err != nil {
		h.logger.Warn(fmt.Sprintf("%s: charger status not updated on transaction stop: %s", chargePointId, err))
	}
	counters.TransactionStopped()

	h.notify(func(handler internal.EventHandler) {
		handler.OnTransactionStop(&internal.EventMessage{
			Type:           request.GetFeatureName(),
			ChargePointId:  chargePointId,
			ConnectorId:    transaction.ConnectorId,
			Time:           timeStop,
			IdTag:          request.IdTag,
			TransactionId:  transaction.TransactionId,
			Status:         string(update.Status),
			Info:           string(request.Reason),
			EnergyConsumed: energy,
		})
	})
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("stopped transaction %s; consumed %v; %d samples in transaction data", transaction.TransactionId, energy, len(request.TransactionData)))
	return core.NewStopTransactionResponse(types.NewIdTagInfo(types.AuthorizationStatusAccepted)), nil
}

func (h *SystemHandler) OnMeterValues(chargePointId string, request *core.MeterValuesRequest) (*core.MeterValuesResponse, error) {
	sample := accounting.ExtractSample(request.MeterValue)
	if sample.Power != nil {
		counters.ObservePowerRate(chargePointId, strconv.Itoa(request.ConnectorId), *sample.Power)
	}
	if request.TransactionId == nil || !sample.HasEnergy() {
		return core.NewMeterValuesResponse(), nil
	}

	transactionId := *request.TransactionId
	transaction, err := h.database.GetTransaction(transactionId)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("%s: meter values for transaction %s: %s", chargePointId, transactionId, err))
		return core.NewMeterValuesResponse(), nil
	}
	if !transaction.IsActive() {
		h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("transaction %s is %s, meter values ignored", transactionId, transaction.Status))
		return core.NewMeterValuesResponse(), nil
	}
	energy, negative := accounting.EnergyConsumed(float64(transaction.MeterStart), *sample.Energy)
	if negative {
		h.logger.Warn(fmt.Sprintf("%s: transaction %s energy reading %v is below meter start %d", chargePointId, transactionId, *sample.Energy, transaction.MeterStart))
	}
	updated, err := h.database.UpdateTransactionEnergy(transactionId, energy)
	if err != nil {
		h.logger.Error(fmt.Sprintf("update energy of %s", transactionId), err)
	} else if updated {
		h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("transaction %s consumed %v", transactionId, energy))
	}
	return core.NewMeterValuesResponse(), nil
}
