package main

import (
	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/configuration"
	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/providers"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(providers.ProvideApplicationContext),
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideTracerProvider),
		fx.Provide(providers.ProvideEchoServer),
		fx.Provide(providers.ProvideWebsocketConnectionAdapter),
		fx.Provide(providers.ProvideWebsocketResource),
		// Use invoke to force dependencies to be instantiated and hooks to be registered
		fx.Invoke(providers.RunDemo),
	).Run()
}
