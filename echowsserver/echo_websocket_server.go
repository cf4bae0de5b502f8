// This package contains the implementation of a simple echo websocket server used to exercise
// websocket resources against a live peer.
package echowsserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Text message which makes the server close the connection with a 1000 close code and
// CloseCommandReason as reason instead of echoing it.
const (
	CloseCommand       = "__close__"
	CloseCommandReason = "close requested by client"
)

// Structure for the websocket server
type EchoWebsocketServer struct {
	// Underlying http.Server
	httpServer *http.Server
	// Listener bound when server starts
	listener net.Listener
	// Websocket upgrader
	upgrader websocket.Upgrader
	// Indicates that server has started
	started bool
	// Context bound to websocket server lifetime
	serverCtx context.Context
	// Cancel function used to stop server
	cancelServerCtx context.CancelFunc
	// Internal mutex used to coordinate start/stop
	startMu *sync.Mutex
	// Logger
	logger *zap.Logger
	// Reference to instruments used to record server metrics
	instruments *echoWebsocketServerInstruments
}

// # Description
//
// Factory which creates a new, non-started EchoWebsocketServer.
//
// # Inputs
//
//   - httpServer: The underlying HTTP Server to use. The provided HTTP Server handler will be
//     overridden with this server handler. If nil is provided, a default HTTP server listening
//     on localhost:8080 will be used. Use port 0 to bind a random port.
//   - protocols: Sub-protocols the server accepts, by order of preference. Can be nil.
//   - logger: Logger to use. If nil, a Nop logger will be used
//   - meterProvider: Meter provider used to record server metrics. If nil, the global meter
//     provider is used.
//
// # Returns
//
// A new, non-started EchoWebsocketServer or an error if the server instruments could not be
// created.
func NewEchoWebsocketServer(
	httpServer *http.Server,
	protocols []string,
	logger *zap.Logger,
	meterProvider metric.MeterProvider) (*EchoWebsocketServer, error) {
	if httpServer == nil {
		httpServer = &http.Server{Addr: "localhost:8080"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	instruments, err := newEchoWebsocketServerInstruments(meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	wssrv := &EchoWebsocketServer{
		httpServer:  httpServer,
		upgrader:    websocket.Upgrader{Subprotocols: protocols},
		started:     false,
		startMu:     &sync.Mutex{},
		logger:      logger,
		instruments: instruments,
	}
	httpServer.Handler = wssrv
	return wssrv, nil
}

// # Description
//
// Bind the server address and start accepting incoming websocket connections in the background.
func (srv *EchoWebsocketServer) Start() error {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.started {
		return fmt.Errorf("server already started")
	}
	listener, err := net.Listen("tcp", srv.httpServer.Addr)
	if err != nil {
		return err
	}
	srv.listener = listener
	srv.serverCtx, srv.cancelServerCtx = context.WithCancel(context.Background())
	srv.started = true
	go func() {
		err := srv.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.logger.Error("echo server stopped unexpectedly", zap.Error(err))
		}
	}()
	srv.logger.Info("echo server started", zap.String("address", listener.Addr().String()))
	return nil
}

// # Description
//
// Stop the websocket server and drop all client connections.
func (srv *EchoWebsocketServer) Stop() error {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started {
		return fmt.Errorf("server not started")
	}
	srv.started = false
	srv.cancelServerCtx()
	return srv.httpServer.Close()
}

// Return the websocket URL of the started server (ws://host:port).
func (srv *EchoWebsocketServer) URL() string {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.listener == nil {
		return "ws://" + srv.httpServer.Addr
	}
	return "ws://" + srv.listener.Addr().String()
}

// # Description
//
// Server handler which accepts incoming websocket connections.
func (srv *EchoWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionId := uuid.New().String()
	logger := srv.logger.With(zap.String("session_id", sessionId))
	c, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("an error occurred while accepting client connection", zap.Error(err))
		return
	}
	logger.Info("new client connection", zap.String("protocol", c.Subprotocol()))
	go srv.closeWatchdog(srv.serverCtx, c)
	go srv.runClientSession(logger, c)
}

// Manages the client session and handle echo feature until the connection is closed.
func (srv *EchoWebsocketServer) runClientSession(logger *zap.Logger, conn *websocket.Conn) {
	defer conn.Close()
	defer srv.instruments.connectionOpened()()
	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				logger.Info("connection closed", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
				return
			}
			if errors.Is(err, io.EOF) ||
				strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				logger.Info("connection closed", zap.Error(err))
				return
			}
			logger.Warn("read error", zap.Error(err))
			return
		}
		logger.Debug("message received", zap.Int("type", mt), zap.Int("length", len(message)))
		if mt == websocket.TextMessage && string(message) == CloseCommand {
			err = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, CloseCommandReason))
			if err != nil {
				logger.Warn("close error", zap.Error(err))
			}
			// Keep reading until the client acknowledges the close message
			continue
		}
		err = conn.WriteMessage(mt, message)
		if err != nil {
			logger.Warn("write error", zap.Error(err))
			return
		}
		srv.instruments.messagesCounter.Add(srv.serverCtx, 1)
	}
}

// This function waits for a cancellation signal on provided context Done channel
// and close the provided websocket connection
func (srv *EchoWebsocketServer) closeWatchdog(ctx context.Context, conn *websocket.Conn) {
	<-ctx.Done()
	conn.Close()
}
