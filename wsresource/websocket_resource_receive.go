package wsresource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gbdevw/gowsresource/wsadapters"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reason used when the connection ends without a close message from the peer.
const abnormalClosureReason = "connection lost"

// Read messages until the session ends. Runs on its own goroutine once the connection is open.
func (resource *WebsocketResource) receiveLoop() {
	for {
		msgType, msg, err := resource.conn.Read(resource.sessionCtx)
		if err != nil {
			if resource.state.Load() != Open {
				// The close driver owns the end of the connection
				return
			}
			resource.handleReadError(err)
			return
		}
		resource.handleMessage(msgType, msg)
	}
}

// Decode a received message and hand it to the message handler.
func (resource *WebsocketResource) handleMessage(msgType wsadapters.MessageType, msg []byte) {
	ctx, span := resource.tracer.Start(context.Background(), spanReceive,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String(attrResourceId, resource.id),
			attribute.Bool(attrMsgBinary, msgType == wsadapters.Binary),
		))
	defer span.End()
	resource.instruments.recordReceived(ctx)
	var payload string
	if msgType == wsadapters.Text {
		if !utf8.Valid(msg) {
			err := fmt.Errorf("received text message is not valid UTF-8 (%d bytes)", len(msg))
			handleError(err, span, codes.Error, "invalid text message")
			resource.logger.Warn("invalid message received", zap.Error(err))
			resource.report(ctx, CategoryReceive, err)
			return
		}
		payload = string(msg)
	} else {
		payload = base64.StdEncoding.EncodeToString(msg)
	}
	span.SetAttributes(attribute.Int(attrMsgLength, len(payload)))
	resource.callbacks.message(ctx, len(payload), payload)
}

// Finalize a connection which ended while open: closed by the peer or lost. A close error with
// the 1006 code means no close frame was received and is handled as a lost connection.
func (resource *WebsocketResource) handleReadError(err error) {
	ctx, span := resource.tracer.Start(context.Background(), spanPeerClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrResourceId, resource.id)))
	defer span.End()
	var closeErr wsadapters.WebsocketCloseError
	isCloseErr := errors.As(err, &closeErr)
	peerClosed := isCloseErr && closeErr.Code != wsadapters.AbnormalClosure
	if !resource.state.Transition(Open, Closed) {
		// Close has been accepted meanwhile: the close driver ends the session
		span.AddEvent(eventAbandoned, trace.WithAttributes(
			attribute.String(attrReadyState, resource.state.Load().String())))
		return
	}
	code := wsadapters.AbnormalClosure
	reason := abnormalClosureReason
	if peerClosed {
		code = closeErr.Code
		reason = closeErr.Reason
	} else {
		handleError(err, span, codes.Error, "connection lost")
		resource.logger.Warn("connection lost", zap.Error(err))
		resource.report(ctx, CategoryReceive, err)
	}
	span.SetAttributes(
		attribute.Int(attrCloseCode, int(code)),
		attribute.String(attrCloseReason, reason))
	if !isCloseErr {
		// The connection may still be up: release it. 1006 cannot be sent on the wire.
		resource.executor.Submit(func() {
			closeCtx, cancel := withTimeout(context.Background(), resource.opts.CloseTimeoutMs)
			defer cancel()
			if cerr := resource.conn.Close(closeCtx, wsadapters.InternalError, "read failure"); cerr != nil {
				resource.logger.Debug("failed to release connection", zap.Error(cerr))
			}
		})
	}
	resource.logger.Info("websocket connection ended",
		zap.Int("code", int(code)),
		zap.String("reason", reason))
	resource.callbacks.closed(ctx, code, reason)
	resource.finalize(ctx)
}
