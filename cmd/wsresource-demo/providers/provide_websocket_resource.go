package providers

import (
	"context"
	"net/url"

	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/configuration"
	"github.com/gbdevw/gowsresource/echowsserver"
	"github.com/gbdevw/gowsresource/wsadapters"
	"github.com/gbdevw/gowsresource/wsresource"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Build the websocket resource. The resource is disposed when the application stops.
//
// The echo server is a dependency so it starts before and stops after the resource.
func ProvideWebsocketResource(
	lc fx.Lifecycle,
	config configuration.Configuration,
	_ *echowsserver.EchoWebsocketServer,
	conn wsadapters.WebsocketConnectionAdapterInterface,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*wsresource.WebsocketResource, error) {
	target, err := url.Parse(config.ServerUrl)
	if err != nil {
		return nil, err
	}
	opts := wsresource.NewWebsocketResourceConfigurationOptions().
		WithKeepAliveIntervalMs(config.KeepAliveIntervalMs).
		WithSendRateLimit(config.SendRateLimit)
	resource, err := wsresource.NewWebsocketResource(target, conn, opts, logger.Named("resource"), tracerProvider, nil)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return resource.Dispose(ctx)
		},
	})
	return resource, nil
}
