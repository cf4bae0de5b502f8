package wsresource

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Names of the instruments which record websocket resource metrics.
const (
	metricMessagesSent     = namespace + ".messages.sent"
	metricBytesSent        = namespace + ".bytes.sent"
	metricMessagesReceived = namespace + ".messages.received"
	metricErrors           = namespace + ".errors"
)

// Internal structure used to retain references to instruments that record WebsocketResource metrics.
type websocketResourceInstruments struct {
	// Counter of messages written to the connection
	messagesSent metric.Int64Counter
	// Counter of bytes written to the connection
	bytesSent metric.Int64Counter
	// Counter of messages received from the connection
	messagesReceived metric.Int64Counter
	// Counter of errors reported to the error callback, by category
	errors metric.Int64Counter
	// Attributes added to every measurement
	resourceAttrs metric.MeasurementOption
}

// Create the instruments used by a resource from the provided meter.
func newWebsocketResourceInstruments(meter metric.Meter, resourceId string) (*websocketResourceInstruments, error) {
	messagesSent, err := meter.Int64Counter(metricMessagesSent,
		metric.WithDescription("Number of messages written to the websocket connection"))
	if err != nil {
		return nil, err
	}
	bytesSent, err := meter.Int64Counter(metricBytesSent,
		metric.WithUnit("By"),
		metric.WithDescription("Number of bytes written to the websocket connection"))
	if err != nil {
		return nil, err
	}
	messagesReceived, err := meter.Int64Counter(metricMessagesReceived,
		metric.WithDescription("Number of messages received from the websocket connection"))
	if err != nil {
		return nil, err
	}
	errors, err := meter.Int64Counter(metricErrors,
		metric.WithDescription("Number of errors reported by the websocket resource"))
	if err != nil {
		return nil, err
	}
	return &websocketResourceInstruments{
		messagesSent:     messagesSent,
		bytesSent:        bytesSent,
		messagesReceived: messagesReceived,
		errors:           errors,
		resourceAttrs:    metric.WithAttributes(attribute.String(attrResourceId, resourceId)),
	}, nil
}

func (instruments *websocketResourceInstruments) recordSent(ctx context.Context, byteLength int) {
	instruments.messagesSent.Add(ctx, 1, instruments.resourceAttrs)
	instruments.bytesSent.Add(ctx, int64(byteLength), instruments.resourceAttrs)
}

func (instruments *websocketResourceInstruments) recordReceived(ctx context.Context) {
	instruments.messagesReceived.Add(ctx, 1, instruments.resourceAttrs)
}

func (instruments *websocketResourceInstruments) recordError(ctx context.Context, category ErrorCategory) {
	instruments.errors.Add(ctx, 1,
		instruments.resourceAttrs,
		metric.WithAttributes(attribute.String(attrErrorCategory, category.String())))
}
