package wsadapters

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Name of the handshake response header which carries the negotiated sub-protocol
const headerNegotiatedProtocol = "Sec-WebSocket-Protocol"

// Decorator which traces every transport operation of a WebsocketConnectionAdapterInterface
// implementation. Dial spans carry the negotiated sub-protocol and Read spans carry the close
// code and reason when the connection ends.
type WebsocketConnectionAdapterInstrumentationDecorator struct {
	// Decorated adapter
	decorated WebsocketConnectionAdapterInterface
	// Tracer used for instrumentation
	tracer trace.Tracer
}

// # Description
//
// Wrap the provided adapter in a decorator which traces its operations.
//
// # Inputs
//
//   - decorated: Adapter to instrument. Must not be nil.
//   - tracerProvider: Tracer provider to use. If nil, global tracer provider is used.
//
// # Returns
//
// The decorator or ErrNilAdapter if the provided adapter is nil.
func NewWebsocketConnectionAdapterInstrumentationDecorator(
	decorated WebsocketConnectionAdapterInterface,
	tracerProvider trace.TracerProvider,
) (*WebsocketConnectionAdapterInstrumentationDecorator, error) {
	if decorated == nil {
		return nil, ErrNilAdapter
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &WebsocketConnectionAdapterInstrumentationDecorator{
		decorated: decorated,
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}, nil
}

// Trace the handshake: target, offered and negotiated sub-protocols, response status.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Dial(
	ctx context.Context,
	target url.URL,
	protocols []string,
	header http.Header) (*http.Response, error) {
	ctx, span := decorator.tracer.Start(ctx, spanDial,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrUrl, target.String()),
			attribute.StringSlice(attrProtocols, protocols),
		))
	defer span.End()
	resp, err := decorator.decorated.Dial(ctx, target, protocols, header)
	if resp != nil {
		span.SetAttributes(attribute.Int(attrHttpStatusCode, resp.StatusCode))
	}
	if err != nil {
		recordFailure(span, err)
		return resp, err
	}
	if resp != nil {
		span.SetAttributes(attribute.String(attrNegotiatedProtocol, resp.Header.Get(headerNegotiatedProtocol)))
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return resp, nil
}

// Trace the close handshake with the code and reason sent to the server.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Close(ctx context.Context, code StatusCode, reason string) error {
	ctx, span := decorator.tracer.Start(ctx, spanClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
		))
	defer span.End()
	err := decorator.decorated.Close(ctx, code, reason)
	if err != nil {
		recordFailure(span, err)
	}
	return err
}

// Trace a ping/pong round trip.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Ping(ctx context.Context) error {
	ctx, span := decorator.tracer.Start(ctx, spanPing, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	err := decorator.decorated.Ping(ctx)
	if err != nil {
		recordFailure(span, err)
	}
	return err
}

// Trace a read. The end of the connection is recorded as an event with the close code and
// reason instead of a span error when the peer sent a close frame.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Read(ctx context.Context) (MessageType, []byte, error) {
	ctx, span := decorator.tracer.Start(ctx, spanRead, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	msgType, msg, err := decorator.decorated.Read(ctx)
	if err != nil {
		var closeErr WebsocketCloseError
		if errors.As(err, &closeErr) {
			span.AddEvent(eventClosed, trace.WithAttributes(
				attribute.Int(attrCloseCode, int(closeErr.Code)),
				attribute.String(attrCloseReason, closeErr.Reason),
			))
			if closeErr.Code != AbnormalClosure {
				return msgType, msg, err
			}
		}
		recordFailure(span, err)
		return msgType, msg, err
	}
	span.AddEvent(eventReceived, trace.WithAttributes(
		attribute.Int(attrMessageByteSize, len(msg)),
		attribute.Int(attrMessageType, int(msgType)),
	))
	return msgType, msg, nil
}

// Trace a write with the message size and type.
func (decorator *WebsocketConnectionAdapterInstrumentationDecorator) Write(ctx context.Context, msgType MessageType, msg []byte) error {
	ctx, span := decorator.tracer.Start(ctx, spanWrite,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int(attrMessageByteSize, len(msg)),
			attribute.Int(attrMessageType, int(msgType)),
		))
	defer span.End()
	err := decorator.decorated.Write(ctx, msgType, msg)
	if err != nil {
		recordFailure(span, err)
	}
	return err
}

// Record the error on the span and flag it as failed.
func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
