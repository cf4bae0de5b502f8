package wsadapters

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// Mock for WebsocketConnectionAdapterInterface
type WebsocketConnectionAdapterInterfaceMock struct {
	mock.Mock
}

// Factory
func NewWebsocketConnectionAdapterInterfaceMock() *WebsocketConnectionAdapterInterfaceMock {
	return &WebsocketConnectionAdapterInterfaceMock{
		Mock: mock.Mock{},
	}
}

// Mocked Dial method. The first returned value must be a *http.Response (typed nil allowed).
func (mock *WebsocketConnectionAdapterInterfaceMock) Dial(
	ctx context.Context,
	target url.URL,
	protocols []string,
	header http.Header) (*http.Response, error) {
	args := mock.Called(ctx, target, protocols, header)
	return args.Get(0).(*http.Response), args.Error(1)
}

// Mocked Close method
func (mock *WebsocketConnectionAdapterInterfaceMock) Close(ctx context.Context, code StatusCode, reason string) error {
	args := mock.Called(ctx, code, reason)
	return args.Error(0)
}

// Mocked Ping method
func (mock *WebsocketConnectionAdapterInterfaceMock) Ping(ctx context.Context) error {
	args := mock.Called(ctx)
	return args.Error(0)
}

// Mocked Read method. Use -1 as message type with an error.
func (mock *WebsocketConnectionAdapterInterfaceMock) Read(ctx context.Context) (MessageType, []byte, error) {
	args := mock.Called(ctx)
	return MessageType(args.Int(0)), args.Get(1).([]byte), args.Error(2)
}

// Mocked Write method
func (mock *WebsocketConnectionAdapterInterfaceMock) Write(ctx context.Context, msgType MessageType, msg []byte) error {
	args := mock.Called(ctx, msgType, msg)
	return args.Error(0)
}
