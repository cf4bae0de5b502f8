package wsresource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gbdevw/gowsresource/wsadapters"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for WebsocketResource unit tests
type WebsocketResourceUnitTestSuite struct {
	suite.Suite
}

// Run WebsocketResourceUnitTestSuite test suite
func TestWebsocketResourceUnitTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketResourceUnitTestSuite))
}

/*************************************************************************************************/
/* HELPERS                                                                                       */
/*************************************************************************************************/

// Delay used by tests to wait for asynchronous outcomes
const testTimeout = 2 * time.Second

// Records every handler call on buffered channels.
type callbackRecorder struct {
	connected chan struct{}
	pings     chan struct{}
	sent      chan int
	messages  chan string
	closes    chan CloseDescriptor
	errors    chan ResourceError
}

// Create a recorder and register it on the provided resource.
func newCallbackRecorder(resource *WebsocketResource) *callbackRecorder {
	recorder := &callbackRecorder{
		connected: make(chan struct{}, 10),
		pings:     make(chan struct{}, 100),
		sent:      make(chan int, 1000),
		messages:  make(chan string, 100),
		closes:    make(chan CloseDescriptor, 10),
		errors:    make(chan ResourceError, 100),
	}
	resource.OnConnect(func(ctx context.Context) { recorder.connected <- struct{}{} })
	resource.OnPing(func(ctx context.Context) { recorder.pings <- struct{}{} })
	resource.OnSend(func(ctx context.Context, bytesWritten int) { recorder.sent <- bytesWritten })
	resource.OnMessage(func(ctx context.Context, length int, payload string) {
		recorder.messages <- payload
	})
	resource.OnClose(func(ctx context.Context, code wsadapters.StatusCode, reason string) {
		recorder.closes <- CloseDescriptor{Code: code, Reason: reason}
	})
	resource.OnError(func(ctx context.Context, err ResourceError) { recorder.errors <- err })
	return recorder
}

// Wait for a value on the provided channel or fail the test.
func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(testTimeout):
		t.Fatal("timeout while waiting for a callback")
	}
	var zero T
	return zero
}

// Fail the test if a value is received on the provided channel within a short delay.
func requireNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case value := <-ch:
		t.Fatalf("unexpected callback: %v", value)
	case <-time.After(50 * time.Millisecond):
	}
}

// Wait for the resource closed signal or fail the test.
func requireClosed(t *testing.T, resource *WebsocketResource) {
	t.Helper()
	select {
	case <-resource.Closed():
	case <-time.After(testTimeout):
		t.Fatal("timeout while waiting for the resource to close")
	}
	require.Equal(t, Closed, resource.GetReadyState())
}

// Configure the mock so Read blocks until the session ends.
func expectBlockingRead(connMock *wsadapters.WebsocketConnectionAdapterInterfaceMock) {
	connMock.On("Read", mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(-1, []byte(nil), context.Canceled)
}

// Configure the mock so Dial succeeds.
func expectDial(connMock *wsadapters.WebsocketConnectionAdapterInterfaceMock) {
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return((*http.Response)(nil), nil)
}

// Configure the mock so written payloads are forwarded to the returned channel.
func captureWrites(connMock *wsadapters.WebsocketConnectionAdapterInterfaceMock, msgType wsadapters.MessageType) chan []byte {
	writes := make(chan []byte, 1000)
	connMock.On("Write", mock.Anything, msgType, mock.Anything).Run(func(args mock.Arguments) {
		writes <- args.Get(2).([]byte)
	}).Return(nil)
	return writes
}

// Create a resource which uses the provided mock.
func newTestResource(t *testing.T, connMock *wsadapters.WebsocketConnectionAdapterInterfaceMock, opts *WebsocketResourceConfigurationOptions) *WebsocketResource {
	t.Helper()
	target, err := url.Parse("ws://localhost:8080/ws")
	require.NoError(t, err)
	resource, err := NewWebsocketResource(target, connMock, opts, nil, nil, nil)
	require.NoError(t, err)
	return resource
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test the factory rejects invalid inputs
func (suite *WebsocketResourceUnitTestSuite) TestFactoryErrors() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	target, err := url.Parse("ws://localhost")
	require.NoError(suite.T(), err)
	_, err = NewWebsocketResource(nil, connMock, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = NewWebsocketResource(target, nil, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	httpTarget, err := url.Parse("http://localhost")
	require.NoError(suite.T(), err)
	_, err = NewWebsocketResource(httpTarget, connMock, nil, nil, nil, nil)
	require.Error(suite.T(), err)
	_, err = NewWebsocketResource(target, connMock, NewWebsocketResourceConfigurationOptions().WithSendRateBurst(0), nil, nil, nil)
	require.Error(suite.T(), err)
	resource, err := NewWebsocketResource(target, connMock, nil, nil, nil, nil)
	require.NoError(suite.T(), err)
	require.NotEmpty(suite.T(), resource.ID())
	require.Equal(suite.T(), Connecting, resource.GetReadyState())
	_, ok := resource.conn.(*wsadapters.WebsocketConnectionAdapterInstrumentationDecorator)
	require.True(suite.T(), ok)
}

// # Description
//
// Test the connect scenario: Connect with no protocols and headers opens the connection, calls
// the connect handler and two sends are written in order with their byte length reported.
func (suite *WebsocketResourceUnitTestSuite) TestConnectAndSend() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	writes := captureWrites(connMock, wsadapters.Text)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	require.Equal(suite.T(), Open, resource.GetReadyState())
	resource.Send("ping-1")
	resource.Send("ping-2")
	require.Equal(suite.T(), "ping-1", string(receive(suite.T(), writes)))
	require.Equal(suite.T(), "ping-2", string(receive(suite.T(), writes)))
	require.Equal(suite.T(), len("ping-1"), receive(suite.T(), recorder.sent))
	require.Equal(suite.T(), len("ping-2"), receive(suite.T(), recorder.sent))
	requireNothing(suite.T(), recorder.errors)
}

// Test protocols and options are forwarded to Dial as sub-protocols and headers
func (suite *WebsocketResourceUnitTestSuite) TestConnectForwardsProtocolsAndHeaders() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	protocols := []string{"chat", "superchat"}
	connMock.On("Dial", mock.Anything, mock.Anything, protocols, mock.MatchedBy(func(header http.Header) bool {
		return header.Get("Authorization") == "Bearer token" && header.Get("X-Client") == "tests"
	})).Return((*http.Response)(nil), nil)
	expectBlockingRead(connMock)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(protocols, map[string]string{
		"Authorization": "Bearer token",
		"X-Client":      "tests",
	}))
	receive(suite.T(), recorder.connected)
	connMock.AssertExpectations(suite.T())
}

// Test Connect can only be called once
func (suite *WebsocketResourceUnitTestSuite) TestConnectTwice() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	require.ErrorIs(suite.T(), resource.Connect(nil, nil), ErrConnectAlreadyRequested)
	receive(suite.T(), recorder.connected)
	require.ErrorIs(suite.T(), resource.Connect(nil, nil), ErrConnectAlreadyRequested)
	connMock.AssertNumberOfCalls(suite.T(), "Dial", 1)
}

// # Description
//
// Test the unreachable server scenario: the connect handler is never called, the error handler
// is called once with the Connection category, the resource ends closed and a following Send
// produces no write and no callback.
func (suite *WebsocketResourceUnitTestSuite) TestConnectFailure() {
	dialErr := fmt.Errorf("dial tcp 127.0.0.1:1: connect: connection refused")
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return((*http.Response)(nil), dialErr)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryConnection, rerr.Category)
	require.ErrorIs(suite.T(), rerr, dialErr)
	requireClosed(suite.T(), resource)
	resource.Send("lost")
	requireNothing(suite.T(), recorder.connected)
	requireNothing(suite.T(), recorder.sent)
	requireNothing(suite.T(), recorder.errors)
	connMock.AssertNotCalled(suite.T(), "Write", mock.Anything, mock.Anything, mock.Anything)
	require.True(suite.T(), resource.queue.Empty())
	require.ErrorIs(suite.T(), resource.Connect(nil, nil), ErrResourceClosed)
	// Close after a failed connect does nothing
	resource.Close(wsadapters.NormalClosure, "done")
	connMock.AssertNotCalled(suite.T(), "Close", mock.Anything, mock.Anything, mock.Anything)
}

// # Description
//
// Test messages sent before the connection attempt resolves are delayed and written once open,
// exactly once each and in call order. Some messages are queued before Connect is called and
// others while the handshake is in progress.
func (suite *WebsocketResourceUnitTestSuite) TestSendsBeforeOpenAreWrittenInOrder() {
	release := make(chan struct{})
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
	}).Return((*http.Response)(nil), nil)
	expectBlockingRead(connMock)
	writes := captureWrites(connMock, wsadapters.Text)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	n := 20
	for i := 0; i < n/2; i++ {
		resource.Send(fmt.Sprintf("msg-%02d", i))
	}
	require.NoError(suite.T(), resource.Connect(nil, nil))
	for i := n / 2; i < n; i++ {
		resource.Send(fmt.Sprintf("msg-%02d", i))
	}
	requireNothing(suite.T(), writes)
	close(release)
	receive(suite.T(), recorder.connected)
	for i := 0; i < n; i++ {
		require.Equal(suite.T(), fmt.Sprintf("msg-%02d", i), string(receive(suite.T(), writes)))
		require.Equal(suite.T(), 6, receive(suite.T(), recorder.sent))
	}
	requireNothing(suite.T(), writes)
	require.True(suite.T(), resource.queue.Empty())
}

// Test concurrent producers: every message is written once and each producer's order is kept
func (suite *WebsocketResourceUnitTestSuite) TestConcurrentSendsBeforeOpen() {
	release := make(chan struct{})
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
	}).Return((*http.Response)(nil), nil)
	expectBlockingRead(connMock)
	writes := captureWrites(connMock, wsadapters.Text)
	resource := newTestResource(suite.T(), connMock, nil)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	producers := 5
	perProducer := 20
	wg := sync.WaitGroup{}
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				resource.Send(fmt.Sprintf("%d:%d", p, i))
			}
		}(p)
	}
	wg.Wait()
	close(release)
	next := make([]int, producers)
	for k := 0; k < producers*perProducer; k++ {
		var p, i int
		_, err := fmt.Sscanf(string(receive(suite.T(), writes)), "%d:%d", &p, &i)
		require.NoError(suite.T(), err)
		require.Equal(suite.T(), next[p], i)
		next[p]++
	}
	requireNothing(suite.T(), writes)
}

// Test the decoded bytes of a binary message are written
func (suite *WebsocketResourceUnitTestSuite) TestSendBinaryRoundTrip() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	writes := captureWrites(connMock, wsadapters.Binary)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	payload := []byte{0x00, 0xff, 0x10, 0x80, 'a'}
	resource.SendBinary(base64.StdEncoding.EncodeToString(payload))
	require.NoError(suite.T(), resource.Connect(nil, nil))
	require.Equal(suite.T(), payload, receive(suite.T(), writes))
	require.Equal(suite.T(), len(payload), receive(suite.T(), recorder.sent))
}

// Test an invalid base64 message is consumed and reported as a Send error
func (suite *WebsocketResourceUnitTestSuite) TestSendBinaryInvalidBase64() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	writes := captureWrites(connMock, wsadapters.Text)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.SendBinary("not base64 !")
	resource.Send("next")
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategorySend, rerr.Category)
	require.Equal(suite.T(), "next", string(receive(suite.T(), writes)))
}

// Test a failed write is reported once and does not prevent the next messages from being written
func (suite *WebsocketResourceUnitTestSuite) TestSendFailureKeepsQueue() {
	writeErr := fmt.Errorf("broken pipe")
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Write", mock.Anything, wsadapters.Text, []byte("first")).Return(writeErr).Once()
	writes := captureWrites(connMock, wsadapters.Text)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.Send("first")
	resource.Send("second")
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategorySend, rerr.Category)
	require.ErrorIs(suite.T(), rerr, writeErr)
	require.Equal(suite.T(), "second", string(receive(suite.T(), writes)))
	require.Equal(suite.T(), len("second"), receive(suite.T(), recorder.sent))
	// The failed message is not written again
	requireNothing(suite.T(), writes)
	requireNothing(suite.T(), recorder.errors)
}

// Test a ping while open calls the ping handler and a failed ping calls the error handler
func (suite *WebsocketResourceUnitTestSuite) TestPing() {
	pingErr := fmt.Errorf("pong timeout")
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Ping", mock.Anything).Return(nil).Once()
	connMock.On("Ping", mock.Anything).Return(pingErr).Once()
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.Ping()
	receive(suite.T(), recorder.pings)
	resource.Ping()
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryPing, rerr.Category)
	require.ErrorIs(suite.T(), rerr, pingErr)
	requireNothing(suite.T(), recorder.pings)
}

// # Description
//
// Test a ping requested while the connection attempt is in progress waits for it and, as the
// attempt fails, never reaches the connection and produces no ping or ping error callback.
func (suite *WebsocketResourceUnitTestSuite) TestPingBeforeFailedConnect() {
	release := make(chan struct{})
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
	}).Return((*http.Response)(nil), fmt.Errorf("connection refused"))
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	resource.Ping()
	requireNothing(suite.T(), recorder.pings)
	close(release)
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryConnection, rerr.Category)
	requireClosed(suite.T(), resource)
	requireNothing(suite.T(), recorder.pings)
	requireNothing(suite.T(), recorder.errors)
	connMock.AssertNotCalled(suite.T(), "Ping", mock.Anything)
}

// Test a ping requested before Connect is abandoned silently
func (suite *WebsocketResourceUnitTestSuite) TestPingBeforeConnect() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	resource.Ping()
	requireNothing(suite.T(), recorder.pings)
	requireNothing(suite.T(), recorder.errors)
	connMock.AssertNotCalled(suite.T(), "Ping", mock.Anything)
}

// # Description
//
// Test the close scenario: Close(1000, "done") while open and without pending writes closes the
// connection with the same code and reason, calls the close handler with them and the state goes
// through Closing before ending Closed.
func (suite *WebsocketResourceUnitTestSuite) TestClose() {
	release := make(chan struct{})
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Run(func(args mock.Arguments) {
		<-release
	}).Return(nil).Once()
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	require.Equal(suite.T(), Open, resource.GetReadyState())
	resource.Close(wsadapters.NormalClosure, "done")
	require.Equal(suite.T(), Closing, resource.GetReadyState())
	descriptor, ok := resource.GetCloseDescriptor()
	require.True(suite.T(), ok)
	require.Equal(suite.T(), CloseDescriptor{Code: wsadapters.NormalClosure, Reason: "done"}, descriptor)
	close(release)
	require.Equal(suite.T(), CloseDescriptor{Code: wsadapters.NormalClosure, Reason: "done"}, receive(suite.T(), recorder.closes))
	requireClosed(suite.T(), resource)
	requireNothing(suite.T(), recorder.errors)
	connMock.AssertExpectations(suite.T())
}

// Test two successive Close calls close the connection once
func (suite *WebsocketResourceUnitTestSuite) TestCloseTwice() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "first").Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.Close(wsadapters.NormalClosure, "first")
	resource.Close(wsadapters.GoingAway, "second")
	requireClosed(suite.T(), resource)
	require.Equal(suite.T(), CloseDescriptor{Code: wsadapters.NormalClosure, Reason: "first"}, receive(suite.T(), recorder.closes))
	resource.Close(wsadapters.GoingAway, "third")
	requireNothing(suite.T(), recorder.closes)
	connMock.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// Test concurrent Close calls close the connection once
func (suite *WebsocketResourceUnitTestSuite) TestConcurrentClose() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resource.Close(wsadapters.NormalClosure, "done")
		}()
	}
	wg.Wait()
	requireClosed(suite.T(), resource)
	receive(suite.T(), recorder.closes)
	requireNothing(suite.T(), recorder.closes)
	connMock.AssertNumberOfCalls(suite.T(), "Close", 1)
}

// Test Send after Close is ignored: nothing is queued nor written
func (suite *WebsocketResourceUnitTestSuite) TestSendAfterClose() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.Close(wsadapters.NormalClosure, "done")
	requireClosed(suite.T(), resource)
	resource.Send("late")
	resource.SendBinary("bGF0ZQ==")
	resource.Ping()
	require.True(suite.T(), resource.queue.Empty())
	requireNothing(suite.T(), recorder.sent)
	requireNothing(suite.T(), recorder.errors)
	connMock.AssertNotCalled(suite.T(), "Write", mock.Anything, mock.Anything, mock.Anything)
	connMock.AssertNotCalled(suite.T(), "Ping", mock.Anything)
}

// Test a failed close is reported and the resource still ends closed
func (suite *WebsocketResourceUnitTestSuite) TestCloseFailure() {
	closeErr := fmt.Errorf("close timeout")
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Return(closeErr)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.Close(wsadapters.NormalClosure, "done")
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryClose, rerr.Category)
	require.ErrorIs(suite.T(), rerr, closeErr)
	requireClosed(suite.T(), resource)
	requireNothing(suite.T(), recorder.closes)
}

// Test Close waits for the outstanding connection attempt and then closes the connection
func (suite *WebsocketResourceUnitTestSuite) TestCloseWaitsForConnect() {
	release := make(chan struct{})
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
	}).Return((*http.Response)(nil), nil)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	closeReturned := make(chan struct{})
	go func() {
		resource.Close(wsadapters.NormalClosure, "done")
		close(closeReturned)
	}()
	requireNothing(suite.T(), closeReturned)
	close(release)
	receive(suite.T(), recorder.connected)
	receive(suite.T(), closeReturned)
	receive(suite.T(), recorder.closes)
	requireClosed(suite.T(), resource)
}

// # Description
//
// Test Close while a write is in flight: the connection is closed once the write has completed
// and the messages still queued are abandoned.
func (suite *WebsocketResourceUnitTestSuite) TestCloseDuringWrite() {
	release := make(chan struct{})
	writing := make(chan struct{}, 1)
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	order := make(chan string, 10)
	connMock.On("Write", mock.Anything, wsadapters.Text, mock.Anything).Run(func(args mock.Arguments) {
		writing <- struct{}{}
		<-release
		order <- string(args.Get(2).([]byte))
	}).Return(nil)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Run(func(args mock.Arguments) {
		order <- "close"
	}).Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	resource.Send("a")
	receive(suite.T(), writing)
	resource.Send("b")
	resource.Close(wsadapters.NormalClosure, "done")
	close(release)
	receive(suite.T(), recorder.closes)
	requireClosed(suite.T(), resource)
	require.Equal(suite.T(), "a", receive(suite.T(), order))
	require.Equal(suite.T(), "close", receive(suite.T(), order))
	requireNothing(suite.T(), order)
	connMock.AssertNumberOfCalls(suite.T(), "Write", 1)
}

// Test Dispose on a never connected resource terminates: the close failure is reported
func (suite *WebsocketResourceUnitTestSuite) TestDisposeWithoutConnect() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Close", mock.Anything, wsadapters.GoingAway, "Disposed").
		Return(fmt.Errorf("close failed: %w", wsadapters.ErrNotConnected))
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(suite.T(), resource.Dispose(ctx))
	require.Equal(suite.T(), Closed, resource.GetReadyState())
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryClose, rerr.Category)
	require.ErrorIs(suite.T(), rerr, wsadapters.ErrNotConnected)
	require.ErrorIs(suite.T(), resource.Connect(nil, nil), ErrResourceClosed)
}

// Test Dispose closes an open resource with GoingAway
func (suite *WebsocketResourceUnitTestSuite) TestDispose() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.GoingAway, "Disposed").Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(suite.T(), resource.Dispose(ctx))
	require.Equal(suite.T(), CloseDescriptor{Code: wsadapters.GoingAway, Reason: "Disposed"}, receive(suite.T(), recorder.closes))
	// Disposing again returns at once
	require.NoError(suite.T(), resource.Dispose(ctx))
}

// Test Dispose returns the context error when the close sequence does not complete in time
func (suite *WebsocketResourceUnitTestSuite) TestDisposeTimeout() {
	release := make(chan struct{})
	defer close(release)
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.GoingAway, "Disposed").Run(func(args mock.Arguments) {
		<-release
	}).Return(nil)
	resource := newTestResource(suite.T(), connMock, NewWebsocketResourceConfigurationOptions().WithCloseTimeoutMs(0))
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(suite.T(), resource.Dispose(ctx), context.DeadlineExceeded)
	require.Eventually(suite.T(), func() bool { return resource.GetReadyState() == Closing }, testTimeout, 5*time.Millisecond)
}

// # Description
//
// Test Dispose honors its context while the connection attempt is stalled. Once the attempt
// resolves, the resource is closed with GoingAway.
func (suite *WebsocketResourceUnitTestSuite) TestDisposeDuringStalledConnect() {
	release := make(chan struct{})
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	connMock.On("Dial", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-release
	}).Return((*http.Response)(nil), nil)
	expectBlockingRead(connMock)
	connMock.On("Close", mock.Anything, wsadapters.GoingAway, "Disposed").Return(nil)
	resource := newTestResource(suite.T(), connMock, NewWebsocketResourceConfigurationOptions().WithConnectTimeoutMs(0))
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- resource.Dispose(ctx) }()
	require.ErrorIs(suite.T(), receive(suite.T(), result), context.DeadlineExceeded)
	require.Equal(suite.T(), Connecting, resource.GetReadyState())
	close(release)
	receive(suite.T(), recorder.connected)
	require.Equal(suite.T(), CloseDescriptor{Code: wsadapters.GoingAway, Reason: "Disposed"}, receive(suite.T(), recorder.closes))
	requireClosed(suite.T(), resource)
}

// # Description
//
// Test received messages are handed to the message handler: text as is, binary base64 encoded.
// An invalid text message is reported as a Receive error and reading continues until the peer
// closes the connection, which ends the resource with the peer code and reason.
func (suite *WebsocketResourceUnitTestSuite) TestReceiveAndPeerClose() {
	binary := []byte{0xde, 0xad, 0xbe, 0xef}
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	connMock.
		On("Read", mock.Anything).Return(int(wsadapters.Text), []byte("hello"), nil).Once().
		On("Read", mock.Anything).Return(int(wsadapters.Binary), binary, nil).Once().
		On("Read", mock.Anything).Return(int(wsadapters.Text), []byte{0xff, 0xfe}, nil).Once().
		On("Read", mock.Anything).Return(-1, []byte(nil), wsadapters.WebsocketCloseError{
			Code:   wsadapters.GoingAway,
			Reason: "server shutdown",
		}).Once()
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	require.Equal(suite.T(), "hello", receive(suite.T(), recorder.messages))
	require.Equal(suite.T(), base64.StdEncoding.EncodeToString(binary), receive(suite.T(), recorder.messages))
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryReceive, rerr.Category)
	require.Equal(suite.T(), CloseDescriptor{Code: wsadapters.GoingAway, Reason: "server shutdown"}, receive(suite.T(), recorder.closes))
	requireClosed(suite.T(), resource)
	// The connection is already closed: Close does nothing
	resource.Close(wsadapters.NormalClosure, "done")
	connMock.AssertNotCalled(suite.T(), "Close", mock.Anything, mock.Anything, mock.Anything)
}

// Test a read failure which is not a close ends the resource with 1006 and releases the connection
func (suite *WebsocketResourceUnitTestSuite) TestReadFailure() {
	readErr := errors.New("unexpected frame")
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	connMock.On("Read", mock.Anything).Return(-1, []byte(nil), readErr).Once()
	released := make(chan struct{}, 1)
	connMock.On("Close", mock.Anything, wsadapters.InternalError, mock.Anything).Run(func(args mock.Arguments) {
		released <- struct{}{}
	}).Return(nil)
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryReceive, rerr.Category)
	require.ErrorIs(suite.T(), rerr, readErr)
	closed := receive(suite.T(), recorder.closes)
	require.Equal(suite.T(), wsadapters.AbnormalClosure, closed.Code)
	requireClosed(suite.T(), resource)
	receive(suite.T(), released)
}

// # Description
//
// Test a connection lost without a close frame: the adapter reports a 1006 close error which is
// surfaced as a Receive error before the resource ends with 1006. The connection is already
// dropped by the adapter so it is not closed again.
func (suite *WebsocketResourceUnitTestSuite) TestConnectionLost() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	connMock.On("Read", mock.Anything).Return(-1, []byte(nil), wsadapters.WebsocketCloseError{
		Code:   wsadapters.AbnormalClosure,
		Reason: "unexpected EOF",
		Err:    io.ErrUnexpectedEOF,
	}).Once()
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	rerr := receive(suite.T(), recorder.errors)
	require.Equal(suite.T(), CategoryReceive, rerr.Category)
	require.ErrorIs(suite.T(), rerr, io.ErrUnexpectedEOF)
	require.Equal(suite.T(),
		CloseDescriptor{Code: wsadapters.AbnormalClosure, Reason: abnormalClosureReason},
		receive(suite.T(), recorder.closes))
	requireClosed(suite.T(), resource)
	requireNothing(suite.T(), recorder.errors)
	connMock.AssertNotCalled(suite.T(), "Close", mock.Anything, mock.Anything, mock.Anything)
}

// Test a read failure observed once Close has been accepted is left to the close driver
func (suite *WebsocketResourceUnitTestSuite) TestReadFailureWhileClosing() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	resource := newTestResource(suite.T(), connMock, nil)
	recorder := newCallbackRecorder(resource)
	require.True(suite.T(), resource.state.Transition(Connecting, Open))
	require.True(suite.T(), resource.state.Transition(Open, Closing))
	resource.handleReadError(errors.New("use of closed network connection"))
	require.Equal(suite.T(), Closing, resource.GetReadyState())
	requireNothing(suite.T(), recorder.errors)
	requireNothing(suite.T(), recorder.closes)
	requireNothing(suite.T(), resource.Closed())
	connMock.AssertNotCalled(suite.T(), "Close", mock.Anything, mock.Anything, mock.Anything)
}

// Test messages received right after the connection opens are delivered after the connect handler
func (suite *WebsocketResourceUnitTestSuite) TestConnectHandlerRunsBeforeMessages() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	connMock.On("Read", mock.Anything).Return(int(wsadapters.Text), []byte("hello"), nil).Once()
	expectBlockingRead(connMock)
	resource := newTestResource(suite.T(), connMock, nil)
	var mu sync.Mutex
	events := []string{}
	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}
	received := make(chan struct{}, 1)
	resource.OnConnect(func(ctx context.Context) {
		time.Sleep(50 * time.Millisecond)
		record("connect")
	})
	resource.OnMessage(func(ctx context.Context, length int, payload string) {
		record("message:" + payload)
		received <- struct{}{}
	})
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), received)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(suite.T(), []string{"connect", "message:hello"}, events)
}

// Test automatic pings are sent while the connection is open
func (suite *WebsocketResourceUnitTestSuite) TestKeepAlive() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	connMock.On("Ping", mock.Anything).Return(nil)
	connMock.On("Close", mock.Anything, wsadapters.NormalClosure, "done").Return(nil)
	resource := newTestResource(suite.T(), connMock, NewWebsocketResourceConfigurationOptions().WithKeepAliveIntervalMs(10))
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	receive(suite.T(), recorder.pings)
	receive(suite.T(), recorder.pings)
	resource.Close(wsadapters.NormalClosure, "done")
	requireClosed(suite.T(), resource)
}

// Test the send rate limit spaces writes
func (suite *WebsocketResourceUnitTestSuite) TestSendRateLimit() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	writes := captureWrites(connMock, wsadapters.Text)
	opts := NewWebsocketResourceConfigurationOptions().WithSendRateLimit(20).WithSendRateBurst(1)
	resource := newTestResource(suite.T(), connMock, opts)
	recorder := newCallbackRecorder(resource)
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), recorder.connected)
	start := time.Now()
	for i := 0; i < 3; i++ {
		resource.Send(fmt.Sprintf("%d", i))
	}
	for i := 0; i < 3; i++ {
		require.Equal(suite.T(), fmt.Sprintf("%d", i), string(receive(suite.T(), writes)))
	}
	require.GreaterOrEqual(suite.T(), time.Since(start), 80*time.Millisecond)
}

// Test the last registered handler wins
func (suite *WebsocketResourceUnitTestSuite) TestLastHandlerWins() {
	connMock := wsadapters.NewWebsocketConnectionAdapterInterfaceMock()
	expectDial(connMock)
	expectBlockingRead(connMock)
	resource := newTestResource(suite.T(), connMock, nil)
	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	resource.OnConnect(func(ctx context.Context) { first <- struct{}{} })
	resource.OnConnect(func(ctx context.Context) { second <- struct{}{} })
	require.NoError(suite.T(), resource.Connect(nil, nil))
	receive(suite.T(), second)
	requireNothing(suite.T(), first)
}
