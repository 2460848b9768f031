package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"evcs/internal"
	"evcs/internal/config"
	"evcs/internal/errorlistener"
	"evcs/metrics/counters"
	"evcs/models"
	"evcs/ocpp"
	"evcs/ocpp/core"
	"evcs/telegram"
	"evcs/types"

	"github.com/gorilla/websocket"
)

type CentralSystem struct {
	conf     *config.Config
	server   *Server
	api      *Api
	logger   internal.LogHandler
	database internal.Database
	registry *Registry
	handler  *SystemHandler
	commands *RemoteCommandDispatcher
	closers  []func() error
}

// connectionAck is sent once after a successful upgrade, outside of the OCPP-J framing
type connectionAck struct {
	Status        string          `json:"status"`
	ChargePointId string          `json:"chargePointId"`
	CurrentTime   *types.DateTime `json:"currentTime"`
}

var frameTypes = map[ocpp.CallType]string{
	ocpp.CallTypeRequest: "CALL",
	ocpp.CallTypeResult:  "CALLRESULT",
	ocpp.CallTypeError:   "CALLERROR",
}

func (cs *CentralSystem) Registry() *Registry {
	return cs.registry
}

func (cs *CentralSystem) Commands() *RemoteCommandDispatcher {
	return cs.commands
}

func (cs *CentralSystem) Handler() *SystemHandler {
	return cs.handler
}

func (cs *CentralSystem) Server() *Server {
	return cs.server
}

func (cs *CentralSystem) Api() *Api {
	return cs.api
}

func (cs *CentralSystem) handleConnect(ws *WebSocket) {
	chargePointId := ws.ID()
	if previous := cs.registry.Register(chargePointId, ws); previous != nil && previous != ws {
		cs.logger.FeatureEvent("connect", chargePointId, "replacing previous connection")
		_ = previous.Close(websocket.CloseNormalClosure, "replaced by a new connection")
	}

	ack := connectionAck{
		Status:        "Connected",
		ChargePointId: chargePointId,
		CurrentTime:   types.NewDateTime(time.Now().UTC()),
	}
	data, _ := json.Marshal(ack)
	if err := ws.Write(data); err != nil {
		cs.logger.Error(fmt.Sprintf("send connection ack to %s", chargePointId), err)
	}
	cs.logMessage(chargePointId, "Connected", "", data, models.DirectionOut)

	go cs.commands.ProcessQueuedCommands(chargePointId)
}

func (cs *CentralSystem) handleDisconnect(ws *WebSocket) {
	if cs.registry.Unregister(ws.ID(), ws) {
		cs.logger.FeatureEvent("disconnect", ws.ID(), "connection removed from registry")
	}
}

func (cs *CentralSystem) logMessage(chargePointId, messageType, action string, data []byte, direction models.Direction) {
	cs.logger.MessageEvent(&models.MessageLog{
		ChargePointId: chargePointId,
		MessageType:   messageType,
		Action:        action,
		Payload:       string(data),
		Direction:     direction,
	})
}

func (cs *CentralSystem) handleIncomingMessage(ws *WebSocket, data []byte) {
	chargePointId := ws.ID()
	message, err := ocpp.ParseMessage(data)
	if err != nil {
		counters.CountFrame("in", "invalid")
		cs.logMessage(chargePointId, "Invalid", "", data, models.DirectionIn)
		var violation *ocpp.ProtocolViolation
		uniqueId := ""
		if errors.As(err, &violation) {
			uniqueId = violation.UniqueId
		}
		cs.logger.Warn(fmt.Sprintf("%s: %s", chargePointId, err))
		cs.sendFrame(ws, ocpp.NewCallErrorFrame(uniqueId, ocpp.ProtocolError, err.Error()), "CALLERROR", "")
		return
	}

	frameType := frameTypes[message.TypeId]
	counters.CountFrame("in", frameType)
	cs.logMessage(chargePointId, frameType, message.Action, data, models.DirectionIn)

	if message.TypeId != ocpp.CallTypeRequest {
		cs.commands.HandleResponse(chargePointId, message)
		return
	}

	response, err := cs.handleCall(chargePointId, message)
	if err != nil {
		code := ocpp.InternalError
		if errors.Is(err, ocpp.ErrNotImplemented) {
			code = ocpp.NotImplemented
		}
		cs.logger.Warn(fmt.Sprintf("%s: %s %s failed: %s", chargePointId, message.Action, message.UniqueId, err))
		cs.sendFrame(ws, ocpp.NewCallErrorFrame(message.UniqueId, code, err.Error()), "CALLERROR", message.Action)
		return
	}
	cs.sendFrame(ws, ocpp.NewCallResult(message.UniqueId, response), "CALLRESULT", message.Action)
}

func (cs *CentralSystem) sendFrame(ws *WebSocket, frame json.Marshaler, frameType, action string) {
	data, err := frame.MarshalJSON()
	if err != nil {
		cs.logger.Error("error encoding response", err)
		return
	}
	cs.logger.RawDataEvent("OUT", string(data))
	if err = ws.Write(data); err != nil {
		cs.logger.FeatureEvent(action, ws.ID(), fmt.Sprintf("response not sent: %s", err))
		return
	}
	counters.CountFrame("out", frameType)
	cs.logMessage(ws.ID(), frameType, action, data, models.DirectionOut)
}

// handleCall decodes the payload for the action and runs its handler
func (cs *CentralSystem) handleCall(chargePointId string, message *ocpp.Message) (ocpp.Response, error) {
	h := cs.handler
	action := message.Action
	payload := message.Payload
	switch action {
	case core.BootNotificationFeatureName:
		request := &core.BootNotificationRequest{}
		if err := ocpp.DecodePayload(payload, request); err != nil {
			return h.OnInvalidRequest(chargePointId, action, err)
		}
		return h.OnBootNotification(chargePointId, request)
	case core.StatusNotificationFeatureName:
		request := &core.StatusNotificationRequest{}
		if err := ocpp.DecodePayload(payload, request); err != nil {
			return h.OnInvalidRequest(chargePointId, action, err)
		}
		return h.OnStatusNotification(chargePointId, request)
	case core.HeartbeatFeatureName:
		return h.OnHeartbeat(chargePointId, &core.HeartbeatRequest{})
	case core.AuthorizeFeatureName:
		request := &core.AuthorizeRequest{}
		if err := ocpp.DecodePayload(payload, request); err != nil {
			return h.OnInvalidRequest(chargePointId, action, err)
		}
		return h.OnAuthorize(chargePointId, request)
	case core.StartTransactionFeatureName:
		request := &core.StartTransactionRequest{}
		if err := ocpp.DecodePayload(payload, request); err != nil {
			return h.OnInvalidRequest(chargePointId, action, err)
		}
		return h.OnStartTransaction(chargePointId, request)
	case core.StopTransactionFeatureName:
		request := &core.StopTransactionRequest{}
		if err := ocpp.DecodePayload(payload, request); err != nil {
			return h.OnInvalidRequest(chargePointId, action, err)
		}
		return h.OnStopTransaction(chargePointId, request)
	case core.MeterValuesFeatureName:
		request := &core.MeterValuesRequest{}
		if err := ocpp.DecodePayload(payload, request); err != nil {
			return h.OnInvalidRequest(chargePointId, action, err)
		}
		return h.OnMeterValues(chargePointId, request)
	default:
		return nil, fmt.Errorf("%w: %s", ocpp.ErrNotImplemented, action)
	}
}

// Start runs the websocket listener and, when enabled, the trigger api; it blocks until the listener stops
func (cs *CentralSystem) Start() error {
	if cs.conf.Api.Enabled {
		go func() {
			if err := cs.api.Start(); err != nil {
				cs.logger.Error("api server failed", err)
			}
		}()
	}
	return cs.server.Start()
}

// Shutdown stops the listeners, closes open charge point connections and releases backends
func (cs *CentralSystem) Shutdown(ctx context.Context) error {
	var errs []error
	if err := cs.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if cs.conf.Api.Enabled {
		if err := cs.api.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range cs.registry.ListConnected() {
		if ws := cs.registry.Lookup(id); ws != nil {
			_ = ws.Close(websocket.CloseGoingAway, "server shutdown")
		}
	}
	for _, closer := range cs.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewCentralSystemWith assembles the system around the given backends
func NewCentralSystemWith(conf *config.Config, database internal.Database, queue CommandQueue, logger internal.LogHandler) *CentralSystem {
	cs := &CentralSystem{
		conf:     conf,
		logger:   logger,
		database: database,
		registry: NewRegistry(),
	}

	cs.handler = NewSystemHandler(database, cs.registry, logger)
	cs.handler.SetAuthParameters(conf.Auth.AcceptUnknownTag, conf.Auth.CacheTTL)
	cs.handler.AddEventListener(errorlistener.NewErrorListener(logger))

	cs.commands = NewRemoteCommandDispatcher(cs.registry, queue, logger, conf.Remote.Timeout)

	// websocket listener
	wsServer := NewServer(conf, logger)
	wsServer.AddSupportedSubProtocol(types.SubProtocol16)
	wsServer.SetConnectHandler(cs.handleConnect)
	wsServer.SetDisconnectHandler(cs.handleDisconnect)
	wsServer.SetMessageHandler(cs.handleIncomingMessage)
	cs.server = wsServer

	cs.api = NewServerApi(conf, logger, database, cs.commands, cs.registry)
	return cs
}

func openDatabase(conf *config.Config) (internal.Database, error) {
	switch conf.Database.Driver {
	case "mongo":
		mongo, err := internal.NewMongoClient(conf)
		if err != nil {
			return nil, err
		}
		if err = mongo.Ping(); err != nil {
			return nil, fmt.Errorf("mongodb ping: %w", err)
		}
		return mongo, nil
	case "postgres", "sqlite":
		return internal.NewSqlDatabase(conf)
	case "memory", "":
		return internal.NewMemoryDatabase(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", conf.Database.Driver)
	}
}

// NewCentralSystem builds every backend from the configuration
func NewCentralSystem(conf *config.Config, logService *internal.Logger) (*CentralSystem, error) {
	database, err := openDatabase(conf)
	if err != nil {
		return nil, fmt.Errorf("database setup failed: %w", err)
	}
	log.Printf("database driver: %s", conf.Database.Driver)
	logService.SetDatabase(database)

	var queue CommandQueue = NewMemoryCommandQueue()
	var closers []func() error
	if conf.Redis.Enabled {
		redisQueue, err := internal.NewRedisCommandQueue(conf)
		if err != nil {
			return nil, fmt.Errorf("redis setup failed: %w", err)
		}
		queue = redisQueue
		closers = append(closers, redisQueue.Close)
		log.Println("redis command queue is configured and enabled")
	}

	cs := NewCentralSystemWith(conf, database, queue, logService)
	cs.closers = closers

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.Token, conf.Telegram.ChatIds)
		if err != nil {
			return nil, fmt.Errorf("telegram bot setup failed: %w", err)
		}
		telegramBot.SetConnectionLister(cs.registry)
		telegramBot.Start()
		cs.handler.AddEventListener(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}
	return cs, nil
}
