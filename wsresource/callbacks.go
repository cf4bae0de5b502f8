package wsresource

import (
	"context"
	"sync"

	"github.com/gbdevw/gowsresource/wsadapters"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler called once the connection is open.
type ConnectHandler func(ctx context.Context)

// Handler called once a ping has been acknowledged by the server.
type PingHandler func(ctx context.Context)

// Handler called once a queued message has been written. bytesWritten is the number of bytes
// handed to the connection (decoded bytes for binary messages).
type SendHandler func(ctx context.Context, bytesWritten int)

// Handler called for each received message. Binary messages are delivered base64 encoded and
// length is the length of payload.
type MessageHandler func(ctx context.Context, length int, payload string)

// Handler called once the connection is closed, either by Close or by the peer.
type CloseHandler func(ctx context.Context, code wsadapters.StatusCode, reason string)

// Handler called for every failure, tagged with the operation it occurred in.
type ErrorHandler func(ctx context.Context, err ResourceError)

// Registry of user provided handlers. One handler per kind, the last registration wins. Handlers
// are called from background goroutines and each call is traced.
type callbackRegistry struct {
	mu        sync.RWMutex
	tracer    trace.Tracer
	onConnect ConnectHandler
	onPing    PingHandler
	onSend    SendHandler
	onMessage MessageHandler
	onClose   CloseHandler
	onError   ErrorHandler
}

func (registry *callbackRegistry) setOnConnect(handler ConnectHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onConnect = handler
}

func (registry *callbackRegistry) setOnPing(handler PingHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onPing = handler
}

func (registry *callbackRegistry) setOnSend(handler SendHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onSend = handler
}

func (registry *callbackRegistry) setOnMessage(handler MessageHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onMessage = handler
}

func (registry *callbackRegistry) setOnClose(handler CloseHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onClose = handler
}

func (registry *callbackRegistry) setOnError(handler ErrorHandler) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onError = handler
}

// Call the connect handler, if any.
func (registry *callbackRegistry) connected(ctx context.Context) {
	registry.mu.RLock()
	handler := registry.onConnect
	registry.mu.RUnlock()
	if handler == nil {
		return
	}
	ctx, span := registry.tracer.Start(ctx, spanOnConnect, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	handler(ctx)
}

// Call the ping handler, if any.
func (registry *callbackRegistry) pinged(ctx context.Context) {
	registry.mu.RLock()
	handler := registry.onPing
	registry.mu.RUnlock()
	if handler == nil {
		return
	}
	ctx, span := registry.tracer.Start(ctx, spanOnPing, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	handler(ctx)
}

// Call the send handler, if any.
func (registry *callbackRegistry) sent(ctx context.Context, bytesWritten int) {
	registry.mu.RLock()
	handler := registry.onSend
	registry.mu.RUnlock()
	if handler == nil {
		return
	}
	ctx, span := registry.tracer.Start(ctx, spanOnSend,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int(attrMsgLength, bytesWritten)))
	defer span.End()
	handler(ctx, bytesWritten)
}

// Call the message handler, if any.
func (registry *callbackRegistry) message(ctx context.Context, length int, payload string) {
	registry.mu.RLock()
	handler := registry.onMessage
	registry.mu.RUnlock()
	if handler == nil {
		return
	}
	ctx, span := registry.tracer.Start(ctx, spanOnMessage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int(attrMsgLength, length)))
	defer span.End()
	handler(ctx, length, payload)
}

// Call the close handler, if any.
func (registry *callbackRegistry) closed(ctx context.Context, code wsadapters.StatusCode, reason string) {
	registry.mu.RLock()
	handler := registry.onClose
	registry.mu.RUnlock()
	if handler == nil {
		return
	}
	ctx, span := registry.tracer.Start(ctx, spanOnClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
		))
	defer span.End()
	handler(ctx, code, reason)
}

// Call the error handler, if any.
func (registry *callbackRegistry) failed(ctx context.Context, err ResourceError) {
	registry.mu.RLock()
	handler := registry.onError
	registry.mu.RUnlock()
	if handler == nil {
		return
	}
	ctx, span := registry.tracer.Start(ctx, spanOnError,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrErrorCategory, err.Category.String())))
	defer span.End()
	handler(ctx, err)
}
