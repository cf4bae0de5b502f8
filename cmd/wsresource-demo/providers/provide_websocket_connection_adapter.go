package providers

import (
	"fmt"

	"github.com/gbdevw/gowsresource/cmd/wsresource-demo/configuration"
	"github.com/gbdevw/gowsresource/wsadapters"
	"github.com/gbdevw/gowsresource/wsadapters/gorilla"
	wsadapternhooyr "github.com/gbdevw/gowsresource/wsadapters/nhooyr"
)

func ProvideWebsocketConnectionAdapter(config configuration.Configuration) (wsadapters.WebsocketConnectionAdapterInterface, error) {
	switch config.Adapter {
	case "nhooyr":
		return wsadapternhooyr.NewNhooyrWebsocketConnectionAdapter(nil, nil), nil
	case "gorilla":
		return gorilla.NewGorillaWebsocketConnectionAdapter(nil, nil), nil
	default:
		return nil, fmt.Errorf("unknown websocket adapter %q: use nhooyr or gorilla", config.Adapter)
	}
}
