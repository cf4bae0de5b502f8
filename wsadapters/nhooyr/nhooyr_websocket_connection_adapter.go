// Package which contains a WebsocketConnectionAdapterInterface implementation for
// nhooyr/websocket library (https://github.com/nhooyr/websocket).
package wsadapternhooyr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gbdevw/gowsresource/wsadapters"
	"nhooyr.io/websocket"
)

// Adapter for nhooyr/websocket library
type NhooyrWebsocketConnectionAdapter struct {
	// Underlying websocket connection
	conn *websocket.Conn
	// Base dial options. Protocols and headers provided to Dial are merged into a copy.
	opts *websocket.DialOptions
	// Maximum size of a received message in bytes. Zero keeps the library default (32768).
	readLimit int64
	// Internal mutex
	mu sync.Mutex
}

// # Description
//
// Factory which creates a new NhooyrWebsocketConnectionAdapter.
//
// # Inputs
//
//   - opts: Optional base dial options to use when calling Dial method. Can be nil. Use the
//     HTTPClient transport TLS configuration to accept specific server certificate errors.
//   - readLimit: Optional maximum size of received messages. Nil keeps the library default.
//
// # Returns
//
// New NhooyrWebsocketConnectionAdapter
func NewNhooyrWebsocketConnectionAdapter(opts *websocket.DialOptions, readLimit *int64) *NhooyrWebsocketConnectionAdapter {
	adapter := &NhooyrWebsocketConnectionAdapter{
		conn: nil,
		opts: opts,
		mu:   sync.Mutex{},
	}
	if readLimit != nil {
		adapter.readLimit = *readLimit
	}
	return adapter
}

// # Description
//
// Dial opens a connection to the websocket server and performs a WebSocket handshake. The
// provided protocols and headers are added to the base dial options.
//
// # Returns
//
// The server response to websocket handshake or an error if any.
func (adapter *NhooyrWebsocketConnectionAdapter) Dial(
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
		conn, res, err := websocket.Dial(ctx, target.String(), adapter.buildDialOptions(protocols, header))
		if err != nil {
			return res, err
		}
		if adapter.readLimit > 0 {
			conn.SetReadLimit(adapter.readLimit)
		}
		adapter.conn = conn
		return res, nil
	}
}

// # Description
//
// Send a close message with the provided status code and an optional close reason and drop
// the websocket connection.
func (adapter *NhooyrWebsocketConnectionAdapter) Close(ctx context.Context, code wsadapters.StatusCode, reason string) error {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if adapter.conn == nil {
		return fmt.Errorf("close failed: %w", wsadapters.ErrNotConnected)
	}
	err := adapter.conn.Close(convertToNhooyrStatusCode(code), reason)
	// Void connection in any case
	adapter.conn = nil
	if err != nil && err.Error() == "failed to close WebSocket: already wrote close" {
		return fmt.Errorf("failed to close WebSocket: %w", net.ErrClosed)
	}
	return err
}

// # Description
//
// Send a Ping message to the websocket server and block until a Pong response is received, a
// timeout occurs or until connection is closed.
//
// A concurrent goroutine must call Read method so that control frames, pong included, are
// processed and ping does not hang.
func (adapter *NhooyrWebsocketConnectionAdapter) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("ping failed: %w", wsadapters.ErrNotConnected)
		}
		return conn.Ping(ctx)
	}
}

// # Description
//
// Read a single message from the websocket server. Read blocks until a message is received
// from the server or until connection closes.
//
// When the connection is closed, the connection is dropped and a WebsocketCloseError is
// returned with the received status code or 1006 if none was received.
func (adapter *NhooyrWebsocketConnectionAdapter) Read(ctx context.Context) (wsadapters.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return -1, nil, fmt.Errorf("read failed: %w", wsadapters.ErrNotConnected)
		}
		msgType, msg, err := conn.Read(ctx)
		if err == nil {
			return convertFromNhooyrMsgType(msgType), msg, nil
		}
		status := websocket.CloseStatus(err)
		if status == -1 && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			return -1, nil, err
		}
		// Drop the existing connection if it has not been replaced meanwhile
		adapter.mu.Lock()
		if adapter.conn == conn {
			adapter.conn = nil
		}
		adapter.mu.Unlock()
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			return -1, nil, wsadapters.WebsocketCloseError{
				Code:   convertFromNhooyrStatusCode(closeErr.Code),
				Reason: closeErr.Reason,
				Err:    err,
			}
		}
		return -1, nil, wsadapters.WebsocketCloseError{
			Code:   wsadapters.AbnormalClosure,
			Reason: "websocket connection abnormal closure",
			Err:    err,
		}
	}
}

// # Description
//
// Write a single message to the websocket server. Write blocks until message is sent to the
// server or until an error occurs: context timeout, cancellation, connection closed, ....
func (adapter *NhooyrWebsocketConnectionAdapter) Write(ctx context.Context, msgType wsadapters.MessageType, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		conn := adapter.current()
		if conn == nil {
			return fmt.Errorf("write failed: %w", wsadapters.ErrNotConnected)
		}
		return conn.Write(ctx, convertToNhooyrMsgType(msgType), msg)
	}
}

// Return the underlying *websocket.Conn if any. Returned value has to be type asserted.
//
// The method is not part of WebsocketConnectionAdapterInterface: the connection stays owned by
// the adapter and this accessor is meant for tests and diagnostics only.
func (adapter *NhooyrWebsocketConnectionAdapter) GetUnderlyingWebsocketConnection() any {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Store current conn reference so other routines can use the connection concurrently.
func (adapter *NhooyrWebsocketConnectionAdapter) current() *websocket.Conn {
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	return adapter.conn
}

// Copy base dial options and merge the provided protocols and headers.
func (adapter *NhooyrWebsocketConnectionAdapter) buildDialOptions(protocols []string, header http.Header) *websocket.DialOptions {
	opts := websocket.DialOptions{}
	if adapter.opts != nil {
		opts = *adapter.opts
	}
	opts.Subprotocols = append(append([]string{}, opts.Subprotocols...), protocols...)
	opts.HTTPHeader = opts.HTTPHeader.Clone()
	if opts.HTTPHeader == nil {
		opts.HTTPHeader = http.Header{}
	}
	for key, values := range header {
		for _, value := range values {
			opts.HTTPHeader.Add(key, value)
		}
	}
	return &opts
}

var toNhooyrStatusCodes = map[wsadapters.StatusCode]websocket.StatusCode{
	wsadapters.NormalClosure:           websocket.StatusNormalClosure,
	wsadapters.GoingAway:               websocket.StatusGoingAway,
	wsadapters.ProtocolError:           websocket.StatusProtocolError,
	wsadapters.UnsupportedData:         websocket.StatusUnsupportedData,
	wsadapters.NoStatusReceived:        websocket.StatusNoStatusRcvd,
	wsadapters.AbnormalClosure:         websocket.StatusAbnormalClosure,
	wsadapters.InvalidFramePayloadData: websocket.StatusInvalidFramePayloadData,
	wsadapters.PolicyViolation:         websocket.StatusPolicyViolation,
	wsadapters.MessageTooBig:           websocket.StatusMessageTooBig,
	wsadapters.MandatoryExtension:      websocket.StatusMandatoryExtension,
	wsadapters.InternalError:           websocket.StatusInternalError,
	wsadapters.TLSHandshake:            websocket.StatusTLSHandshake,
}

// Convert a status code to nhooyr enum. Application codes (3000-4999) are kept as is, other
// unknown codes become websocket.StatusAbnormalClosure.
func convertToNhooyrStatusCode(code wsadapters.StatusCode) websocket.StatusCode {
	if converted, ok := toNhooyrStatusCodes[code]; ok {
		return converted
	}
	if code >= 3000 && code <= 4999 {
		return websocket.StatusCode(code)
	}
	return websocket.StatusAbnormalClosure
}

// Convert a status code from nhooyr enum. Application codes (3000-4999) are kept as is, other
// unknown codes become wsadapters.AbnormalClosure.
func convertFromNhooyrStatusCode(code websocket.StatusCode) wsadapters.StatusCode {
	for converted, nhooyrCode := range toNhooyrStatusCodes {
		if nhooyrCode == code {
			return converted
		}
	}
	if code >= 3000 && code <= 4999 {
		return wsadapters.StatusCode(code)
	}
	return wsadapters.AbnormalClosure
}

// Convert message type to nhooyr message type. Default to binary if no match.
func convertToNhooyrMsgType(msgType wsadapters.MessageType) websocket.MessageType {
	if msgType == wsadapters.Text {
		return websocket.MessageText
	}
	return websocket.MessageBinary
}

// Convert nhooyr message type to message type. Default to binary if no match.
func convertFromNhooyrMsgType(msgType websocket.MessageType) wsadapters.MessageType {
	if msgType == websocket.MessageText {
		return wsadapters.Text
	}
	return wsadapters.Binary
}
