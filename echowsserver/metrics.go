package echowsserver

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// Names of the instruments which record echo server metrics.
const (
	instrumentationName          = "gowsresource.echowsserver"
	metricActiveConnectionsGauge = "echowsserver.connections.active"
	metricConnectionsCounter     = "echowsserver.connections.total"
	metricMessagesCounter        = "echowsserver.messages.echoed"
)

// Internal structure used to retain references to instruments that record EchoWebsocketServer
// metrics, and the values they observe.
type echoWebsocketServerInstruments struct {
	// Number of open client connections
	activeConnections atomic.Int64
	// Number of connections accepted during the server lifetime
	openedConnections atomic.Int64
	// Gauge that monitors the number of active connections
	activeConnectionsGauge metric.Int64ObservableGauge
	// Counter that monitors the total number of opened connections
	connectionsCounter metric.Int64ObservableCounter
	// Counter of echoed messages
	messagesCounter metric.Int64Counter
}

// Create the instruments from the provided meter.
func newEchoWebsocketServerInstruments(meter metric.Meter) (*echoWebsocketServerInstruments, error) {
	instruments := &echoWebsocketServerInstruments{}
	activeConnectionsGauge, err := meter.Int64ObservableGauge(metricActiveConnectionsGauge,
		metric.WithDescription("Number of open client connections"),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(instruments.activeConnections.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	connectionsCounter, err := meter.Int64ObservableCounter(metricConnectionsCounter,
		metric.WithDescription("Number of client connections accepted since the server was created"),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(instruments.openedConnections.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	messagesCounter, err := meter.Int64Counter(metricMessagesCounter,
		metric.WithDescription("Number of messages echoed back to clients"))
	if err != nil {
		return nil, err
	}
	instruments.activeConnectionsGauge = activeConnectionsGauge
	instruments.connectionsCounter = connectionsCounter
	instruments.messagesCounter = messagesCounter
	return instruments, nil
}

// Record a new client connection. The returned function records its end.
func (instruments *echoWebsocketServerInstruments) connectionOpened() func() {
	instruments.openedConnections.Add(1)
	instruments.activeConnections.Add(1)
	return func() {
		instruments.activeConnections.Add(-1)
	}
}
