// Package wsresource contains a client side websocket resource which funnels concurrent caller
// requests (connect, send, ping, close) into one correctly ordered sequence of operations on a
// single websocket connection and reports their outcome through callbacks.
package wsresource

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gbdevw/gowsresource/wsadapters"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Close code and reason recorded by the first accepted Close call.
type CloseDescriptor struct {
	// Close code sent to the server
	Code wsadapters.StatusCode
	// Close reason sent to the server
	Reason string
}

// Client side websocket resource.
//
// Public methods never block on network I/O: they record the request and schedule a background
// driver which waits for the connection attempt to resolve, checks the ready state and then uses
// the connection. Outcomes are reported through the registered handlers.
//
// A resource supports a single connection. Create a new resource to reconnect.
type WebsocketResource struct {
	// Resource unique ID
	id string
	// Target websocket server URL
	target *url.URL
	// Websocket connection adapter. Owned by the resource.
	conn wsadapters.WebsocketConnectionAdapterInterface
	// Configuration options
	opts *WebsocketResourceConfigurationOptions
	// Logger
	logger *zap.Logger
	// Tracer used to instrument drivers
	tracer trace.Tracer
	// Instruments used to record metrics
	instruments *websocketResourceInstruments
	// User provided handlers
	callbacks *callbackRegistry
	// Ready state
	state readyStateMachine
	// Gate released once the connection attempt has resolved
	gate *connectionGate
	// Pending writes
	queue writeQueue
	// Executor which serializes drain attempts and the transport close
	executor sequentialExecutor
	// Optional rate limiter applied before each write. Nil if rate limiting is disabled.
	limiter *rate.Limiter
	// Protects closeDescriptor
	closeMu sync.Mutex
	// Close code and reason recorded by Close
	closeDescriptor *CloseDescriptor
	// Context bound to the connection lifetime. Used by the receive and keep-alive loops.
	sessionCtx context.Context
	// Cancel function associated to sessionCtx
	stopSession context.CancelFunc
	// Channel closed once the resource is closed
	closedCh chan struct{}
	// Ensures closedCh is closed once
	closedOnce sync.Once
}

// # Description
//
// Factory - Return a new, not connected websocket resource in Connecting state.
//
// # Inputs
//   - target: Target websocket server URL. Scheme must be ws or wss.
//   - conn: Websocket connection adapter the resource will use. The resource takes ownership of
//     the adapter which must not be used elsewhere.
//   - opts: Configuration options. If nil, default options are used.
//   - logger: Logger to use. If nil, logs are discarded.
//   - tracerProvider: OpenTelemetry tracer provider to use. If nil, global TracerProvider is used.
//   - meterProvider: OpenTelemetry meter provider to use. If nil, global MeterProvider is used.
//
// # Return
//
// A new websocket resource or an error if an input or the provided options are invalid.
func NewWebsocketResource(
	target *url.URL,
	conn wsadapters.WebsocketConnectionAdapterInterface,
	opts *WebsocketResourceConfigurationOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*WebsocketResource, error) {
	if target == nil {
		return nil, fmt.Errorf("provided url is nil")
	}
	if target.Scheme != "ws" && target.Scheme != "wss" {
		return nil, fmt.Errorf("provided url scheme must be ws or wss: got %q", target.Scheme)
	}
	if conn == nil {
		return nil, fmt.Errorf("provided connection adapter is nil")
	}
	if opts == nil {
		opts = NewWebsocketResourceConfigurationOptions()
	}
	err := Validate(opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	// Decorate provided connection adapter if needed
	_, ok := conn.(*wsadapters.WebsocketConnectionAdapterInstrumentationDecorator)
	if !ok {
		conn, err = wsadapters.NewWebsocketConnectionAdapterInstrumentationDecorator(conn, tracerProvider)
		if err != nil {
			return nil, err
		}
	}
	id := uuid.NewString()
	instruments, err := newWebsocketResourceInstruments(
		meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion)), id)
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if opts.SendRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.SendRateLimit), opts.SendRateBurst)
	}
	tracer := tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion))
	sessionCtx, stopSession := context.WithCancel(context.Background())
	return &WebsocketResource{
		id:          id,
		target:      target,
		conn:        conn,
		opts:        opts,
		logger:      logger.With(zap.String("resource_id", id), zap.String("url", target.String())),
		tracer:      tracer,
		instruments: instruments,
		callbacks:   &callbackRegistry{tracer: tracer},
		gate:        newConnectionGate(),
		limiter:     limiter,
		sessionCtx:  sessionCtx,
		stopSession: stopSession,
		closedCh:    make(chan struct{}),
	}, nil
}

/*************************************************************************************************/
/* PUBLIC API                                                                                    */
/*************************************************************************************************/

// Return the resource unique ID.
func (resource *WebsocketResource) ID() string {
	return resource.id
}

// Return the current ready state. Never blocks.
func (resource *WebsocketResource) GetReadyState() ReadyState {
	return resource.state.Load()
}

// Return a channel which is closed once the resource is closed: the connection attempt failed,
// the close sequence has completed or the peer closed the connection.
func (resource *WebsocketResource) Closed() <-chan struct{} {
	return resource.closedCh
}

// Return the close code and reason recorded by the first accepted Close call, if any.
func (resource *WebsocketResource) GetCloseDescriptor() (CloseDescriptor, bool) {
	resource.closeMu.Lock()
	defer resource.closeMu.Unlock()
	if resource.closeDescriptor == nil {
		return CloseDescriptor{}, false
	}
	return *resource.closeDescriptor, true
}

// Set the handler called once the connection is open.
func (resource *WebsocketResource) OnConnect(handler ConnectHandler) {
	resource.callbacks.setOnConnect(handler)
}

// Set the handler called once a ping has been acknowledged.
func (resource *WebsocketResource) OnPing(handler PingHandler) {
	resource.callbacks.setOnPing(handler)
}

// Set the handler called once a queued message has been written.
func (resource *WebsocketResource) OnSend(handler SendHandler) {
	resource.callbacks.setOnSend(handler)
}

// Set the handler called for each received message.
func (resource *WebsocketResource) OnMessage(handler MessageHandler) {
	resource.callbacks.setOnMessage(handler)
}

// Set the handler called once the connection is closed.
func (resource *WebsocketResource) OnClose(handler CloseHandler) {
	resource.callbacks.setOnClose(handler)
}

// Set the handler called for every failure.
func (resource *WebsocketResource) OnError(handler ErrorHandler) {
	resource.callbacks.setOnError(handler)
}

// # Description
//
// Start opening the connection to the target server with the provided sub-protocols and
// headers. The method does not block: the outcome is reported by the connect handler or by the
// error handler with the Connection category.
//
// Operations requested before the connection attempt resolves wait for it.
//
// # Return
//
// ErrResourceClosed if the resource is closing or closed, ErrConnectAlreadyRequested if Connect
// has already been called. Nil otherwise.
func (resource *WebsocketResource) Connect(protocols []string, options map[string]string) error {
	state := resource.state.Load()
	if state == Closing || state == Closed {
		return ErrResourceClosed
	}
	if !resource.gate.Arm() {
		return ErrConnectAlreadyRequested
	}
	header := http.Header{}
	for key, value := range options {
		header.Set(key, value)
	}
	go resource.performConnect(protocols, header)
	return nil
}

// Send a ping once the connection attempt has resolved. The outcome is reported by the ping
// handler or by the error handler with the Ping category. Ignored if the resource is not open.
func (resource *WebsocketResource) Ping() {
	go resource.performPing()
}

// Queue a text message. Messages are written one at a time in the order they have been queued.
// Ignored if the resource is closing or closed.
func (resource *WebsocketResource) Send(text string) {
	resource.enqueue(PendingWrite{Message: text, IsBinary: false})
}

// Queue a binary message provided as a standard base64 encoded string. The decoded bytes are
// written. Ignored if the resource is closing or closed.
func (resource *WebsocketResource) SendBinary(data string) {
	resource.enqueue(PendingWrite{Message: data, IsBinary: true})
}

// # Description
//
// Close the connection with the provided code and reason. The method is a no-op if the resource
// is already closing or closed.
//
// If a connection attempt is outstanding, the method blocks until it resolves. The close
// sequence itself runs in background: the outcome is reported by the close handler or by the
// error handler with the Close category. The resource ends in Closed state in all cases.
func (resource *WebsocketResource) Close(code wsadapters.StatusCode, reason string) {
	state := resource.state.Load()
	if state == Closing || state == Closed {
		return
	}
	resource.gate.Synchronize()
	origin, ok := resource.state.TransitionFromAny(Closing, Connecting, Open)
	if !ok {
		// The connection attempt failed or another Close won
		return
	}
	descriptor := CloseDescriptor{Code: code, Reason: reason}
	resource.closeMu.Lock()
	resource.closeDescriptor = &descriptor
	resource.closeMu.Unlock()
	resource.logger.Info("closing websocket connection",
		zap.String("from", origin.String()),
		zap.Int("code", int(code)),
		zap.String("reason", reason))
	go resource.performClose(descriptor)
}

// # Description
//
// Close the resource with GoingAway code and wait until the close sequence has completed or the
// provided context is done. Close runs in background so an outstanding connection attempt
// cannot hold Dispose past the context deadline.
//
// # Return
//
// Nil once the resource is closed, the context error otherwise.
func (resource *WebsocketResource) Dispose(ctx context.Context) error {
	go resource.Close(wsadapters.GoingAway, "Disposed")
	select {
	case <-resource.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*************************************************************************************************/
/* DRIVERS                                                                                       */
/*************************************************************************************************/

// Connect driver. Releases the gate as its final step whatever the outcome.
func (resource *WebsocketResource) performConnect(protocols []string, header http.Header) {
	defer resource.gate.Release()
	ctx, span := resource.tracer.Start(context.Background(), spanConnect,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrResourceId, resource.id)))
	defer span.End()
	if state := resource.state.Load(); state != Connecting {
		// Close has been accepted before the attempt started
		span.AddEvent(eventAbandoned, trace.WithAttributes(attribute.String(attrReadyState, state.String())))
		resource.logger.Debug("connection attempt abandoned", zap.String("state", state.String()))
		return
	}
	dialCtx, cancel := withTimeout(ctx, resource.opts.ConnectTimeoutMs)
	defer cancel()
	_, err := resource.conn.Dial(dialCtx, *resource.target, protocols, header)
	if err != nil {
		handleError(err, span, codes.Error, "connection failed")
		resource.logger.Warn("connection failed", zap.Error(err))
		transitioned := resource.state.Transition(Connecting, Closed)
		resource.report(ctx, CategoryConnection, err)
		if transitioned {
			resource.finalize(ctx)
		}
		return
	}
	if !resource.state.Transition(Connecting, Open) {
		// Close has been accepted while dialing: the close driver closes the connection
		span.AddEvent(eventAbandoned, trace.WithAttributes(
			attribute.String(attrReadyState, resource.state.Load().String())))
		return
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	resource.logger.Info("websocket connection opened")
	resource.callbacks.connected(ctx)
	// Messages are delivered after the connect handler has returned
	go resource.receiveLoop()
	if resource.opts.KeepAliveIntervalMs > 0 {
		go resource.keepAlive(millis(resource.opts.KeepAliveIntervalMs))
	}
	// Drain attempts made before Connect have been abandoned: schedule one per stranded entry
	for i := resource.queue.Len(); i > 0; i-- {
		go resource.performWrite()
	}
}

// Ping driver.
func (resource *WebsocketResource) performPing() {
	ctx, span := resource.tracer.Start(context.Background(), spanPing,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrResourceId, resource.id)))
	defer span.End()
	resource.gate.Synchronize()
	if state := resource.state.Load(); state != Open {
		span.AddEvent(eventAbandoned, trace.WithAttributes(attribute.String(attrReadyState, state.String())))
		resource.logger.Debug("ping abandoned", zap.String("state", state.String()))
		return
	}
	pingCtx, cancel := withTimeout(ctx, resource.opts.PingTimeoutMs)
	defer cancel()
	err := resource.conn.Ping(pingCtx)
	if handlePotentialError(err, span) != nil {
		resource.logger.Warn("ping failed", zap.Error(err))
		resource.report(ctx, CategoryPing, err)
		return
	}
	resource.callbacks.pinged(ctx)
}

// Queue a pending write and schedule one drain attempt.
func (resource *WebsocketResource) enqueue(write PendingWrite) {
	if state := resource.state.Load(); state == Closing || state == Closed {
		resource.logger.Debug("message dropped", zap.String("state", state.String()))
		return
	}
	resource.queue.Push(write)
	go resource.performWrite()
}

// Drain driver: wait for the connection attempt to resolve, then write at most one queued
// message on the sequential executor.
func (resource *WebsocketResource) performWrite() {
	if resource.queue.Empty() {
		return
	}
	resource.gate.Synchronize()
	resource.executor.Submit(resource.drainOne)
}

// Write the head of the queue. Must run on the sequential executor.
func (resource *WebsocketResource) drainOne() {
	ctx, span := resource.tracer.Start(context.Background(), spanDrain,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrResourceId, resource.id)))
	defer span.End()
	if state := resource.state.Load(); state != Open {
		// Entry stays queued
		span.AddEvent(eventAbandoned, trace.WithAttributes(attribute.String(attrReadyState, state.String())))
		resource.logger.Debug("drain abandoned", zap.String("state", state.String()))
		return
	}
	write, ok := resource.queue.TryPop()
	if !ok {
		span.AddEvent(eventQueueEmpty)
		return
	}
	span.SetAttributes(
		attribute.Bool(attrMsgBinary, write.IsBinary),
		attribute.Int(attrQueueLength, resource.queue.Len()))
	msgType := wsadapters.Text
	payload := []byte(write.Message)
	if write.IsBinary {
		msgType = wsadapters.Binary
		decoded, err := base64.StdEncoding.DecodeString(write.Message)
		if err != nil {
			err = fmt.Errorf("failed to decode binary message: %w", err)
			handleError(err, span, codes.Error, "invalid binary message")
			resource.report(ctx, CategorySend, err)
			return
		}
		payload = decoded
	}
	writeCtx, cancel := withTimeout(ctx, resource.opts.WriteTimeoutMs)
	defer cancel()
	if resource.limiter != nil {
		if err := resource.limiter.Wait(writeCtx); err != nil {
			err = fmt.Errorf("send rate limit: %w", err)
			handleError(err, span, codes.Error, "rate limit wait failed")
			resource.report(ctx, CategorySend, err)
			return
		}
	}
	err := resource.conn.Write(writeCtx, msgType, payload)
	if handlePotentialError(err, span) != nil {
		resource.logger.Warn("write failed", zap.Error(err), zap.Int("length", len(payload)))
		resource.report(ctx, CategorySend, err)
		return
	}
	span.SetAttributes(attribute.Int(attrMsgLength, len(payload)))
	resource.instruments.recordSent(ctx, len(payload))
	resource.callbacks.sent(ctx, len(payload))
}

// Close driver. The transport close runs on the sequential executor so it never overlaps a write.
func (resource *WebsocketResource) performClose(descriptor CloseDescriptor) {
	ctx, span := resource.tracer.Start(context.Background(), spanClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrResourceId, resource.id),
			attribute.Int(attrCloseCode, int(descriptor.Code)),
			attribute.String(attrCloseReason, descriptor.Reason),
		))
	defer span.End()
	resource.gate.Synchronize()
	result := make(chan error, 1)
	resource.executor.Submit(func() {
		closeCtx, cancel := withTimeout(ctx, resource.opts.CloseTimeoutMs)
		defer cancel()
		result <- resource.conn.Close(closeCtx, descriptor.Code, descriptor.Reason)
	})
	err := <-result
	resource.state.Transition(Closing, Closed)
	if handlePotentialError(err, span) != nil {
		resource.logger.Warn("close failed", zap.Error(err))
		resource.report(ctx, CategoryClose, err)
	} else {
		resource.logger.Info("websocket connection closed")
		resource.callbacks.closed(ctx, descriptor.Code, descriptor.Reason)
	}
	resource.finalize(ctx)
}

// Send pings on a regular basis while the connection is open.
func (resource *WebsocketResource) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-resource.sessionCtx.Done():
			return
		case <-ticker.C:
			if resource.state.Load() != Open {
				return
			}
			resource.performPing()
		}
	}
}

/*************************************************************************************************/
/* UTILS                                                                                         */
/*************************************************************************************************/

// Report an error to the error handler and record it.
func (resource *WebsocketResource) report(ctx context.Context, category ErrorCategory, err error) {
	resource.instruments.recordError(ctx, category)
	resource.callbacks.failed(ctx, ResourceError{Category: category, Err: err})
}

// Stop the session loops and signal the resource is closed. Subsequent calls do nothing.
func (resource *WebsocketResource) finalize(ctx context.Context) {
	resource.stopSession()
	resource.closedOnce.Do(func() {
		trace.SpanFromContext(ctx).AddEvent(eventClosed)
		close(resource.closedCh)
	})
}

// Derive a context with the provided timeout (milliseconds). 0 disables the timeout.
func withTimeout(ctx context.Context, timeoutMs int64) (context.Context, context.CancelFunc) {
	if timeoutMs > 0 {
		return context.WithTimeout(ctx, millis(timeoutMs))
	}
	return context.WithCancel(ctx)
}
