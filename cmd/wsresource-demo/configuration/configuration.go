package configuration

import (
	"os"
	"strconv"
)

// Demo configuration, loaded from environment variables.
type Configuration struct {
	// URL of the target websocket server. Defaults to the embedded echo server.
	ServerUrl string
	// Address the embedded echo server listens on. Empty disables the embedded server.
	EchoServerAddr string
	// Websocket library used by the resource: nhooyr (default) or gorilla
	Adapter string
	// Number of messages sent by the demo
	MessageCount int
	// Interval between automatic pings (milliseconds). 0 disables them.
	KeepAliveIntervalMs int64
	// Maximum number of messages sent per second. 0 disables rate limiting.
	SendRateLimit float64
	// Indicates whether tracing is enabled or not
	TracingEnabled string
	// Endpoint of the OTLP/HTTP tracing backend
	TracingEndpoint string
}

func LoadConfiguration() (Configuration, error) {
	config := Configuration{
		ServerUrl:       os.Getenv("WSRDEMO_SERVER_URL"),
		EchoServerAddr:  os.Getenv("WSRDEMO_ECHO_SERVER_ADDR"),
		Adapter:         os.Getenv("WSRDEMO_ADAPTER"),
		MessageCount:    5,
		TracingEnabled:  os.Getenv("WSRDEMO_TRACING_ENABLED"),
		TracingEndpoint: os.Getenv("WSRDEMO_TRACING_ENDPOINT"),
	}
	if config.ServerUrl == "" {
		if config.EchoServerAddr == "" {
			config.EchoServerAddr = "localhost:8081"
		}
		config.ServerUrl = "ws://" + config.EchoServerAddr
	}
	if config.Adapter == "" {
		config.Adapter = "nhooyr"
	}
	if raw := os.Getenv("WSRDEMO_MESSAGE_COUNT"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return Configuration{}, err
		}
		config.MessageCount = count
	}
	if raw := os.Getenv("WSRDEMO_KEEPALIVE_INTERVAL_MS"); raw != "" {
		interval, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Configuration{}, err
		}
		config.KeepAliveIntervalMs = interval
	}
	if raw := os.Getenv("WSRDEMO_SEND_RATE_LIMIT"); raw != "" {
		limit, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Configuration{}, err
		}
		config.SendRateLimit = limit
	}
	return config, nil
}
