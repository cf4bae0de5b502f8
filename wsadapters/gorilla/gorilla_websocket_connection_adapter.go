// Package which contains a WebsocketConnectionAdapterInterface implementation for
// gorilla/websocket library (https://github.com/gorilla/websocket).
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gbdevw/gowsresource/wsadapters"
	"github.com/gorilla/websocket"
)

// Delay used as write deadline for control frames (ping & close)
const controlFrameDeadline = 60 * time.Second

// Adapter for gorilla/websocket library
type GorillaWebsocketConnectionAdapter struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Base dialer. Protocols provided to Dial are added to a copy.
	dialer *websocket.Dialer
	// Base headers to use when opening a connection
	requestHeader http.Header
	// Internal mutex
	mu sync.Mutex
	// Internal channel of channels used to manage ping/pong
	//
	// The channel that is sent is used to wait for pong or an error.
	pingRequests chan chan error
}

// # Description
//
// Factory which creates a new GorillaWebsocketConnectionAdapter.
//
// # Inputs
//
//   - dialer: Optional dialer to use when using Dial method. If nil, the default dialer
//     defined by gorilla library will be used. Use dialer.TLSClientConfig to accept specific
//     server certificate errors.
//
//   - requestHeader: Base headers which will be used during Dial (Origin, Cookie, ...).
//
// # Returns
//
// New GorillaWebsocketConnectionAdapter
func NewGorillaWebsocketConnectionAdapter(dialer *websocket.Dialer, requestHeader http.Header) *GorillaWebsocketConnectionAdapter {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &GorillaWebsocketConnectionAdapter{
		conn:          nil,
		dialer:        dialer,
		requestHeader: requestHeader,
		mu:            sync.Mutex{},
		// Use a chan with capacity so ping requests can be recorded before sending ping message.
		pingRequests: make(chan chan error, 10),
	}
}

// # Description
//
// Dial opens a connection to the websocket server and performs a WebSocket handshake. The
// provided protocols are offered in addition to the dialer ones and the provided headers are
// added to the base headers.
func (adapter *GorillaWebsocketConnectionAdapter) Dial(
	ctx context.Context,
	target url.URL,
	protocols []string,
	header http.Header) (*http.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		adapter.mu.Lock()
		defer adapter.mu.Unlock()
		if adapter.conn != nil {
			return nil, wsadapters.ErrAlreadyConnected
		}
		dialer := *adapter.dialer
		dialer.Subprotocols = append(append([]string{}, adapter.dialer.Subprotocols...), protocols...)
		requestHeader := adapter.requestHeader.Clone()
		if requestHeader == nil {
			requestHeader = http.Header{}
		}
		for key, values := range header {
			for _, value := range values {
				requestHeader.Add(key, value)
			}
		}
		conn, res, err := dialer.DialContext(ctx, target.String(), requestHeader)
		if err != nil {
			return res, err
		}
		// Pong handler runs on the goroutine which calls Read
		conn.SetPongHandler(func(string) error {
			propagateToFirstActiveListener(adapter.pingRequests, nil)
			return nil
		})
		adapter.conn = conn
		return res, nil
	}
}

// # Description
//
// Send a close message with the provided status code and an optional close reason and close
// the underlying network connection. Pending Ping calls return a WebsocketCloseError.
func (adapter *GorillaWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return fmt.Errorf("close failed: %w", wsadapters.ErrNotConnected)
	}
	deadline := time.Now().Add(controlFrameDeadline)
	if ctxDeadline, ok := ctx.Deadline(); ok {
		deadline = ctxDeadline
	}
	err := adapter.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(int(code), reason), deadline)
	propagateToAllActiveListeners(adapter.pingRequests, wsadapters.WebsocketCloseError{
		Code:   code,
		Reason: reason,
		Err:    fmt.Errorf("client closed the connection"),
	})
	// Release the network connection and void it in any case
	adapter.conn.Close()
	adapter.conn = nil
	if errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to close websocket: %w", net.ErrClosed)
	}
	return err
}

// # Description
//
// Send a Ping message to the websocket server and block until a Pong response is received.
//
// A separate goroutine must continuously call Read method in order to process messages from the
// server so pong replies from the server can be processed.
func (adapter *GorillaWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("ping failed: %w", wsadapters.ErrNotConnected)
		}
		// pong channel has capacity so a late notification never blocks the reader
		pong := make(chan error, 1)
		select {
		case adapter.pingRequests <- pong:
		case <-ctx.Done():
			return ctx.Err()
		}
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlFrameDeadline))
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-pong:
			return err
		}
	}
}

// # Description
//
// Read a single message from the websocket server. Read blocks until a message is received
// from the server or until connection closes. Control frames are handled by gorilla: pings are
// answered, pongs unlock one pending Ping call, close frames end in a WebsocketCloseError.
func (adapter *GorillaWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return -1, nil, fmt.Errorf("read failed: %w", wsadapters.ErrNotConnected)
		}
		msgType, msg, err := conn.ReadMessage()
		if err == nil {
			if msgType == websocket.TextMessage {
				return wsadapters.Text, msg, nil
			}
			return wsadapters.Binary, msg, nil
		}
		var closeErr wsadapters.WebsocketCloseError
		if ce, ok := err.(*websocket.CloseError); ok {
			closeErr = wsadapters.WebsocketCloseError{
				Code:   wsadapters.StatusCode(ce.Code),
				Reason: ce.Text,
				Err:    err,
			}
		} else if errors.Is(err, io.EOF) ||
			errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, net.ErrClosed) ||
			strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
			closeErr = wsadapters.WebsocketCloseError{
				Code:   wsadapters.AbnormalClosure,
				Reason: err.Error(),
				Err:    err,
			}
		} else {
			return -1, nil, err
		}
		// Drop the connection if it has not been replaced meanwhile
		adapter.mu.Lock()
		if adapter.conn == conn {
			adapter.conn.Close()
			adapter.conn = nil
		}
		adapter.mu.Unlock()
		propagateToAllActiveListeners(adapter.pingRequests, closeErr)
		return -1, nil, closeErr
	}
}

// # Description
//
// Write a single message to the websocket server. gorilla supports one concurrent writer: the
// caller must serialize Write calls.
func (adapter *GorillaWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("write failed: %w", wsadapters.ErrNotConnected)
		}
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetWriteDeadline(deadline); err != nil {
				return err
			}
			defer conn.SetWriteDeadline(time.Time{})
		}
		gorillaType := websocket.BinaryMessage
		if msgType == wsadapters.Text {
			gorillaType = websocket.TextMessage
		}
		return conn.WriteMessage(gorillaType, msg)
	}
}

// Return the underlying *websocket.Conn if any. Returned value has to be type asserted.
//
// The method is not part of WebsocketConnectionAdapterInterface: the connection stays owned by
// the adapter and this accessor is meant for tests and diagnostics only.
func (adapter *GorillaWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

// Store current conn reference so other routines can use the connection concurrently.
func (adapter *GorillaWebsocketConnectionAdapter) current() *websocket.Conn {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

// Propagate a notification to the first writeable (non-blocking write) channel received.
//
// The function returns false if the notification could not be propagated: either because no channel
// was received or because all received channels were not writeable.
func propagateToFirstActiveListener(listeners chan chan error, notification error) bool {
	for {
		select {
		case listener := <-listeners:
			select {
			case listener <- notification:
				return true
			default:
				continue
			}
		default:
			return false
		}
	}
}

// Propagate a notification to all writeable (non-blocking write) channels received through
// the provided channel.
func propagateToAllActiveListeners(listeners chan chan error, notification error) {
	for {
		select {
		case listener := <-listeners:
			select {
			case listener <- notification:
			default:
			}
		default:
			return
		}
	}
}
