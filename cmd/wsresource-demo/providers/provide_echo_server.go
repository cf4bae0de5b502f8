package providers

import (
	"context"
	"net/http"

	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/configuration"
	"github.com/gbdevw/gowsresource/echowsserver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Start the embedded echo server unless the demo targets another server. Returns nil if the
// embedded server is disabled.
func ProvideEchoServer(lc fx.Lifecycle, config configuration.Configuration, logger *zap.Logger) (*echowsserver.EchoWebsocketServer, error) {
	if config.EchoServerAddr == "" {
		return nil, nil
	}
	srv, err := echowsserver.NewEchoWebsocketServer(&http.Server{
		Addr:     config.EchoServerAddr,
		ErrorLog: zap.NewStdLog(logger),
	}, nil, logger.Named("echo"), nil)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop()
		},
	})
	return srv, nil
}
