package wsresource

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer and meter
	pkgName = "gowsresource.wsresource"
	// Package version
	pkgVersion = "0.1.0"

	// Namespace used by spans, events and attributes
	namespace = "wsresource"
	// Sub-namespace used by spans related to operation drivers
	driversNamespace = namespace + ".driver"
	// Sub-namespace used by spans related to user provided callbacks
	callbacksNamespace = namespace + ".callback"

	// Name of span used to trace the connect driver
	spanConnect = driversNamespace + ".connect"
	// Name of span used to trace the ping driver
	spanPing = driversNamespace + ".ping"
	// Name of span used to trace one drain attempt
	spanDrain = driversNamespace + ".drain"
	// Name of span used to trace the close driver
	spanClose = driversNamespace + ".close"
	// Name of span used to trace the processing of one received message
	spanReceive = driversNamespace + ".receive"
	// Name of span used to trace the finalization of a connection closed by the peer
	spanPeerClose = driversNamespace + ".peer_close"

	// Name of span used to trace OnConnect callback call
	spanOnConnect = callbacksNamespace + ".on_connect"
	// Name of span used to trace OnPing callback call
	spanOnPing = callbacksNamespace + ".on_ping"
	// Name of span used to trace OnSend callback call
	spanOnSend = callbacksNamespace + ".on_send"
	// Name of span used to trace OnMessage callback call
	spanOnMessage = callbacksNamespace + ".on_message"
	// Name of span used to trace OnClose callback call
	spanOnClose = callbacksNamespace + ".on_close"
	// Name of span used to trace OnError callback call
	spanOnError = callbacksNamespace + ".on_error"

	// Event used in span to signal an operation was abandoned because the resource is not open
	eventAbandoned = namespace + ".abandoned"
	// Event used in span to signal the drain attempt found the queue empty
	eventQueueEmpty = namespace + ".queue_empty"
	// Event used in span to signal the resource is closed
	eventClosed = namespace + ".closed"

	// Attribute used to store the resource ID
	attrResourceId = namespace + ".resource_id"
	// Attribute used to indicate the ready state observed by a driver
	attrReadyState = namespace + ".ready_state"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate close reason
	attrCloseReason = namespace + ".close_reason"
	// Attribute used to indicate the error category
	attrErrorCategory = namespace + ".error.category"
	// Attribute used to indicate the message length
	attrMsgLength = namespace + ".message.length"
	// Attribute used to indicate whether the message is binary
	attrMsgBinary = namespace + ".message.binary"
	// Attribute used to indicate the number of messages left in the write queue
	attrQueueLength = namespace + ".queue.length"
)

// # Description
//
// The function records the input error in the provided span using span.RecordError(err) and set
// the span status with the provided code and description. The function returns the provided error.
//
// # Usage tips
//
// The function is meant to replace code blocks like this one:
//
//	if err != nil {
//			span.RecordError(err)
//			span.SetStatus(code, description)
//			return err
//	}
//
// By:
//
//	if err != nil {
//			return handleError(err, span, code, description)
//	}
func handleError(err error, span trace.Span, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return err
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
