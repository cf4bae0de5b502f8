package wsresource

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Defines configuration options for a websocket resource.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type WebsocketResourceConfigurationOptions struct {
	// Maximum delay (milliseconds) to open the websocket connection.
	//
	// Defaults to 30000 (30 seconds) - 0 disables the timeout.
	ConnectTimeoutMs int64 `validate:"gte=0"`
	// Maximum delay (milliseconds) to write a single message.
	//
	// Defaults to 30000 (30 seconds) - 0 disables the timeout.
	WriteTimeoutMs int64 `validate:"gte=0"`
	// Maximum delay (milliseconds) to send a ping and receive the matching pong.
	//
	// Defaults to 10000 (10 seconds) - 0 disables the timeout.
	PingTimeoutMs int64 `validate:"gte=0"`
	// Maximum delay (milliseconds) to complete the closing handshake.
	//
	// Defaults to 10000 (10 seconds) - 0 disables the timeout.
	CloseTimeoutMs int64 `validate:"gte=0"`
	// Interval (milliseconds) between two automatic pings while the connection is open.
	//
	// Defaults to 0 which disables automatic pings.
	KeepAliveIntervalMs int64 `validate:"gte=0"`
	// Maximum number of messages written per second.
	//
	// Defaults to 0 which disables rate limiting.
	SendRateLimit float64 `validate:"gte=0"`
	// Maximum number of messages which can be written in a burst when rate limiting is enabled.
	//
	// Defaults to 1. Must be at least 1.
	SendRateBurst int `validate:"gte=1"`
}

// # Description
//
// Set opts.ConnectTimeoutMs and return the modified object. The method does not validate inputs.
//
// # ConnectTimeoutMs
//
// This option defines the maximum delay (milliseconds) to open the websocket connection. A value
// of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 30 seconds (= 30000).
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithConnectTimeoutMs(
	value int64) *WebsocketResourceConfigurationOptions {
	opts.ConnectTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.WriteTimeoutMs and return the modified object. The method does not validate inputs.
//
// # WriteTimeoutMs
//
// This option defines the maximum delay (milliseconds) to write one queued message. A value of 0
// disables the timeout.
//
// Must be greater or equal to 0. Defaults to 30 seconds (= 30000).
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithWriteTimeoutMs(
	value int64) *WebsocketResourceConfigurationOptions {
	opts.WriteTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.PingTimeoutMs and return the modified object. The method does not validate inputs.
//
// # PingTimeoutMs
//
// This option defines the maximum delay (milliseconds) to send a ping and get the pong back. A
// value of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 10 seconds (= 10000).
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithPingTimeoutMs(
	value int64) *WebsocketResourceConfigurationOptions {
	opts.PingTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.CloseTimeoutMs and return the modified object. The method does not validate inputs.
//
// # CloseTimeoutMs
//
// This option defines the maximum delay (milliseconds) to complete the closing handshake. Once
// the delay has elapsed, the connection is considered closed and the close error is reported. A
// value of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 10 seconds (= 10000).
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithCloseTimeoutMs(
	value int64) *WebsocketResourceConfigurationOptions {
	opts.CloseTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.KeepAliveIntervalMs and return the modified object. The method does not validate inputs.
//
// # KeepAliveIntervalMs
//
// This option defines the delay (milliseconds) between two automatic pings sent while the
// connection is open. Automatic pings report their outcome through the ping and error callbacks
// like pings requested with Ping.
//
// Must be greater or equal to 0. Defaults to 0 (disabled).
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithKeepAliveIntervalMs(
	value int64) *WebsocketResourceConfigurationOptions {
	opts.KeepAliveIntervalMs = value
	return opts
}

// # Description
//
// Set opts.SendRateLimit and return the modified object. The method does not validate inputs.
//
// # SendRateLimit
//
// This option defines the maximum number of messages per second the resource writes to the
// connection. Queued messages wait for their turn; their order is preserved.
//
// Must be greater or equal to 0. Defaults to 0 (unlimited).
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithSendRateLimit(
	value float64) *WebsocketResourceConfigurationOptions {
	opts.SendRateLimit = value
	return opts
}

// # Description
//
// Set opts.SendRateBurst and return the modified object. The method does not validate inputs.
//
// # SendRateBurst
//
// This option defines how many messages can be written at once before the rate limit applies.
// Ignored when SendRateLimit is 0.
//
// Must be greater or equal to 1. Defaults to 1.
//
// # Return
//
// The modified options.
func (opts *WebsocketResourceConfigurationOptions) WithSendRateBurst(
	value int) *WebsocketResourceConfigurationOptions {
	opts.SendRateBurst = value
	return opts
}

// # Description
//
// Factory which creates a new WebsocketResourceConfigurationOptions object with nice defaults.
// Settings can then be modified by the user by using With*** methods.
//
// # Default settings
//
//   - ConnectTimeoutMs = 30000 (30 seconds).
//   - WriteTimeoutMs = 30000 (30 seconds).
//   - PingTimeoutMs = 10000 (10 seconds).
//   - CloseTimeoutMs = 10000 (10 seconds).
//   - KeepAliveIntervalMs = 0 , no automatic pings.
//   - SendRateLimit = 0 , no rate limiting.
//   - SendRateBurst = 1.
func NewWebsocketResourceConfigurationOptions() *WebsocketResourceConfigurationOptions {
	return &WebsocketResourceConfigurationOptions{
		ConnectTimeoutMs:    30000,
		WriteTimeoutMs:      30000,
		PingTimeoutMs:       10000,
		CloseTimeoutMs:      10000,
		KeepAliveIntervalMs: 0,
		SendRateLimit:       0,
		SendRateBurst:       1,
	}
}

// # Description
//
// Helper function which validates WebsocketResourceConfigurationOptions. Options are valid if:
//   - opts is not nil
//   - all timeouts and the keep-alive interval are greater or equal to 0
//   - opts.SendRateLimit is greater or equal to 0
//   - opts.SendRateBurst is greater or equal to 1
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
// You will need to assert the error if it's not nil eg. err.(validator.ValidationErrors) to access
// the array of errors.
func Validate(opts *WebsocketResourceConfigurationOptions) error {
	return validator.New().Struct(opts)
}

// Convert a delay expressed in milliseconds to a time.Duration.
func millis(value int64) time.Duration {
	return time.Duration(value) * time.Millisecond
}
