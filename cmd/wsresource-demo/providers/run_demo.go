package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"

	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/configuration"
	"github.com/gbdevw/gowsresource/wsadapters"
	"github.com/gbdevw/gowsresource/wsresource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Register the demo handlers and start the demo once the application has started: connect, send
// text and binary messages, ping and close once every message has been echoed back. The
// application shuts down once the resource is closed.
func RunDemo(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	config configuration.Configuration,
	resource *wsresource.WebsocketResource,
	logger *zap.Logger) {
	logger = logger.Named("demo")
	// Text messages plus one binary message
	expected := int64(config.MessageCount + 1)
	var received atomic.Int64
	resource.OnConnect(func(ctx context.Context) {
		logger.Info("connected", zap.String("resource_id", resource.ID()))
	})
	resource.OnPing(func(ctx context.Context) {
		logger.Info("pong received")
	})
	resource.OnSend(func(ctx context.Context, bytesWritten int) {
		logger.Info("message sent", zap.Int("bytes", bytesWritten))
	})
	resource.OnMessage(func(ctx context.Context, length int, payload string) {
		logger.Info("message received", zap.Int("length", length), zap.String("payload", payload))
		if received.Add(1) == expected {
			resource.Close(wsadapters.NormalClosure, "demo completed")
		}
	})
	resource.OnClose(func(ctx context.Context, code wsadapters.StatusCode, reason string) {
		logger.Info("closed", zap.String("code", code.String()), zap.String("reason", reason))
	})
	resource.OnError(func(ctx context.Context, err wsresource.ResourceError) {
		logger.Error("websocket error", zap.String("category", err.Category.String()), zap.Error(err.Err))
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := resource.Connect(nil, map[string]string{"User-Agent": "wsresource-demo"}); err != nil {
				return err
			}
			// Messages are queued until the connection is open
			for i := 0; i < config.MessageCount; i++ {
				resource.Send(fmt.Sprintf("message-%d", i))
			}
			resource.SendBinary(base64.StdEncoding.EncodeToString([]byte("binary message")))
			resource.Ping()
			go func() {
				<-resource.Closed()
				logger.Info("resource closed: stopping", zap.String("state", resource.GetReadyState().String()))
				if err := shutdowner.Shutdown(); err != nil {
					logger.Error("shutdown failed", zap.Error(err))
				}
			}()
			return nil
		},
	})
}
