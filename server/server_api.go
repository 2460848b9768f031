package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"evcs/internal"
	"evcs/internal/config"
	"evcs/ocpp"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

const (
	remoteStartEndpoint = "/chargers/:id/remote-start"
	remoteStopEndpoint  = "/chargers/:id/remote-stop"
	connectedEndpoint   = "/chargers/connected"
)

// Api is the operator facing http trigger for remote commands
type Api struct {
	conf       *config.Config
	httpServer *http.Server
	handler    http.Handler
	database   internal.Database
	commands   *RemoteCommandDispatcher
	registry   *Registry
	logger     internal.LogHandler
}

type remoteStartBody struct {
	ConnectorId   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	ReservationId *int   `json:"reservationId,omitempty"`
}

type remoteStopBody struct {
	TransactionId string `json:"transactionId"`
}

type errorBody struct {
	Success          bool   `json:"success"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

func NewServerApi(conf *config.Config, logger internal.LogHandler, database internal.Database, commands *RemoteCommandDispatcher, registry *Registry) *Api {
	api := Api{
		conf:     conf,
		logger:   logger,
		database: database,
		commands: commands,
		registry: registry,
	}
	router := httprouter.New()
	router.POST(remoteStartEndpoint, api.handleRemoteStart)
	router.POST(remoteStopEndpoint, api.handleRemoteStop)
	router.GET(connectedEndpoint, api.handleConnected)

	var handler http.Handler = router
	if conf.Api.RateLimit > 0 {
		limiter := NewIPRateLimiter(rate.Limit(conf.Api.RateLimit), conf.Api.Burst)
		handler = limiter.Middleware(router)
	}
	api.handler = handler
	api.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", conf.Api.BindIP, conf.Api.Port),
		Handler: handler,
	}
	return &api
}

// Handler exposes the routed handler including the rate limiter
func (s *Api) Handler() http.Handler {
	return s.handler
}

func (s *Api) Start() error {
	var err error
	if s.conf.Api.TLS {
		cert, certErr := tls.LoadX509KeyPair(s.conf.Api.CertFile, s.conf.Api.KeyFile)
		if certErr != nil {
			return fmt.Errorf("api: failed to load certificate: %v", certErr)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Api) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Api) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("api: write response", err)
	}
}

func (s *Api) writeError(w http.ResponseWriter, status int, code, description string) {
	s.writeJSON(w, status, errorBody{ErrorCode: code, ErrorDescription: description})
}

// resolveChargePoint maps the charger id from the path to the id the charge point connects with
func (s *Api) resolveChargePoint(w http.ResponseWriter, id string) (string, bool) {
	charger, err := s.database.GetCharger(id)
	if errors.Is(err, internal.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("charger %s not found", id))
		return "", false
	}
	if err != nil {
		s.logger.Error(fmt.Sprintf("api: charger lookup %s", id), err)
		s.writeError(w, http.StatusInternalServerError, string(ocpp.InternalError), "charger lookup failed")
		return "", false
	}
	return charger.ChargePointId, true
}

func (s *Api) writeResult(w http.ResponseWriter, action, chargePointId string, result *CommandResult, err error) {
	var callError *ocpp.CallError
	switch {
	case err == nil && result.ErrorCode == ErrorCodeChargePointOffline:
		s.writeJSON(w, http.StatusAccepted, result)
	case err == nil:
		s.writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrRemoteCommandTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "RemoteCommandTimeout", err.Error())
	case errors.As(err, &callError):
		s.writeError(w, http.StatusBadGateway, string(callError.ErrorCode), callError.ErrorDescription)
	default:
		s.logger.Error(fmt.Sprintf("api: %s to %s", action, chargePointId), err)
		s.writeError(w, http.StatusInternalServerError, string(ocpp.InternalError), err.Error())
	}
}

func (s *Api) handleRemoteStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var body remoteStartBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IdTag == "" || body.ConnectorId <= 0 {
		s.logger.Warn(fmt.Sprintf("api: invalid remote start request from %s", r.RemoteAddr))
		s.writeError(w, http.StatusBadRequest, "BadRequest", "connectorId and idTag are required")
		return
	}
	chargePointId, ok := s.resolveChargePoint(w, params.ByName("id"))
	if !ok {
		return
	}
	result, err := s.commands.SendRemoteStartTransaction(r.Context(), chargePointId, body.ConnectorId, body.IdTag, body.ReservationId)
	s.writeResult(w, "RemoteStartTransaction", chargePointId, result, err)
}

func (s *Api) handleRemoteStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	var body remoteStopBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TransactionId == "" {
		s.logger.Warn(fmt.Sprintf("api: invalid remote stop request from %s", r.RemoteAddr))
		s.writeError(w, http.StatusBadRequest, "BadRequest", "transactionId is required")
		return
	}
	chargePointId, ok := s.resolveChargePoint(w, params.ByName("id"))
	if !ok {
		return
	}
	result, err := s.commands.SendRemoteStopTransaction(r.Context(), chargePointId, body.TransactionId)
	s.writeResult(w, "RemoteStopTransaction", chargePointId, result, err)
}

func (s *Api) handleConnected(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	ids := s.registry.ListConnected()
	connections := make([]ConnectionInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := s.registry.Info(id); ok {
			connections = append(connections, info)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"chargePointIds": ids,
		"connections":    connections,
	})
}
