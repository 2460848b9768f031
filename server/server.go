package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"evcs/internal"
	"evcs/internal/config"
	"evcs/utility"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	wsPrefix   = "/ocpp/"
	wsEndpoint = "/ocpp/*id"
	writeWait  = 10 * time.Second
)

var ErrConnectionClosed = errors.New("connection closed")

type Server struct {
	conf              *config.Config
	httpServer        *http.Server
	router            *httprouter.Router
	upgrader          websocket.Upgrader
	messageHandler    func(ws *WebSocket, data []byte)
	connectHandler    func(ws *WebSocket)
	disconnectHandler func(ws *WebSocket)
	logger            internal.LogHandler
	pingInterval      time.Duration
}

// WebSocket is one charge point connection; writes are serialized
type WebSocket struct {
	conn        *websocket.Conn
	id          string
	connectedAt time.Time
	mutex       sync.Mutex
	closed      bool
	done        chan struct{}
}

func (ws *WebSocket) ID() string {
	return ws.id
}

func (ws *WebSocket) ConnectedAt() time.Time {
	return ws.connectedAt
}

// Write sends one text frame; concurrent callers are queued on the connection mutex
func (ws *WebSocket) Write(data []byte) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	if ws.closed {
		return ErrConnectionClosed
	}
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocket) ping() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	if ws.closed {
		return ErrConnectionClosed
	}
	return ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame with the given code and closes the socket; repeated calls are no-ops
func (ws *WebSocket) Close(code int, text string) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	if ws.closed {
		return nil
	}
	ws.closed = true
	close(ws.done)
	_ = ws.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	return ws.conn.Close()
}

func NewServer(conf *config.Config, logger internal.LogHandler) *Server {
	server := Server{
		conf:         conf,
		logger:       logger,
		upgrader:     websocket.Upgrader{Subprotocols: []string{}},
		pingInterval: conf.Listen.PingInterval,
	}
	server.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	// register itself as a router for httpServer handler
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	server.Register(router)
	server.router = router
	server.httpServer = &http.Server{
		Handler: router,
	}
	return &server
}

func (s *Server) AddSupportedSubProtocol(proto string) {
	for _, sub := range s.upgrader.Subprotocols {
		if sub == proto {
			return
		}
	}
	s.upgrader.Subprotocols = append(s.upgrader.Subprotocols, proto)
}

func (s *Server) SetMessageHandler(handler func(ws *WebSocket, data []byte)) {
	s.messageHandler = handler
}

func (s *Server) SetConnectHandler(handler func(ws *WebSocket)) {
	s.connectHandler = handler
}

func (s *Server) SetDisconnectHandler(handler func(ws *WebSocket)) {
	s.disconnectHandler = handler
}

// Handler exposes the router, used to mount the server under httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(wsEndpoint, s.handleWsRequest)
	router.NotFound = http.HandlerFunc(s.rejectWsRequest)
}

func chargePointIdFromPath(path string) string {
	if !strings.HasPrefix(path, wsPrefix) {
		return ""
	}
	return strings.TrimPrefix(path, wsPrefix)
}

func (s *Server) negotiate(r *http.Request) http.Header {
	requestedProto := ""
	for _, proto := range websocket.Subprotocols(r) {
		if len(s.upgrader.Subprotocols) == 0 || utility.Contains(s.upgrader.Subprotocols, proto) {
			requestedProto = proto
			break
		}
	}
	responseHeader := http.Header{}
	if requestedProto != "" {
		responseHeader.Add("Sec-WebSocket-Protocol", requestedProto)
	}
	return responseHeader
}

// rejectWsRequest answers any path outside /ocpp/<id>: websocket clients get a 1002 close frame
func (s *Server) rejectWsRequest(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}
	s.reject(w, r, fmt.Sprintf("invalid connection path %s", r.URL.Path))
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, reason string) {
	s.logger.Warn(fmt.Sprintf("rejecting connection from %s: %s", r.RemoteAddr, reason))
	conn, err := s.upgrader.Upgrade(w, r, s.negotiate(r))
	if err != nil {
		s.logger.Error("upgrade failed", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseProtocolError, reason),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (s *Server) handleWsRequest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id := chargePointIdFromPath(r.URL.Path)
	if id == "" {
		s.reject(w, r, "charge point id is missing")
		return
	}
	if strings.Contains(id, "/") {
		s.reject(w, r, fmt.Sprintf("invalid charge point id %q", id))
		return
	}
	s.logger.Debug(fmt.Sprintf("connection initiated from remote %s", r.RemoteAddr))

	conn, err := s.upgrader.Upgrade(w, r, s.negotiate(r))
	if err != nil {
		s.logger.Error("upgrade failed", err)
		return
	}

	s.logger.FeatureEvent("connect", id, fmt.Sprintf("upgraded socket, subprotocol %q", conn.Subprotocol()))
	ws := &WebSocket{
		conn:        conn,
		id:          id,
		connectedAt: time.Now().UTC(),
		done:        make(chan struct{}),
	}

	if s.connectHandler != nil {
		s.connectHandler(ws)
	}
	if s.pingInterval > 0 {
		go s.pinger(ws)
	}
	go s.messageReader(ws)
}

func (s *Server) pinger(ws *WebSocket) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				s.logger.Debug(fmt.Sprintf("ping to %s failed: %s", ws.id, err))
				return
			}
		case <-ws.done:
			return
		}
	}
}

func (s *Server) extendDeadline(ws *WebSocket) {
	if s.pingInterval > 0 {
		_ = ws.conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	}
}

// messageReader handles frames one at a time, so a charge point sees its responses in request order
func (s *Server) messageReader(ws *WebSocket) {
	conn := ws.conn
	s.extendDeadline(ws)
	conn.SetPongHandler(func(string) error {
		s.extendDeadline(ws)
		return nil
	})
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.FeatureEvent("disconnect", ws.id, "leaving session")
			} else {
				s.logger.FeatureEvent("disconnect", ws.id, fmt.Sprintf("closing session: %s", err))
			}
			if err = ws.Close(websocket.CloseNormalClosure, ""); err != nil {
				s.logger.Warn(fmt.Sprintf("error while closing socket %s %s", ws.id, err))
			}
			if s.disconnectHandler != nil {
				s.disconnectHandler(ws)
			}
			return
		}
		s.extendDeadline(ws)
		s.logger.RawDataEvent("IN", string(message))
		if s.messageHandler != nil {
			s.messageHandler(ws, message)
		}
	}
}

func (s *Server) Start() error {
	if s.conf == nil {
		return errors.New("configuration not loaded")
	}
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	s.logger.Debug(fmt.Sprintf("starting server on %s", serverAddress))
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.Listen.TLS {
		s.logger.Debug("starting https TLS server")
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Debug("starting http server")
		err = s.httpServer.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections; hijacked websockets are closed by the caller
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
