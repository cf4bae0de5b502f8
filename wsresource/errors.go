package wsresource

import (
	"errors"
	"fmt"
)

// Errors returned synchronously when the resource API is misused.
var (
	// Connect has already been called on this resource. Resources cannot be reconnected.
	ErrConnectAlreadyRequested = errors.New("connect has already been requested: create a new resource to reconnect")
	// The resource is closing or closed.
	ErrResourceClosed = errors.New("websocket resource is closing or closed")
)

/*************************************************************************************************/
/* ERROR CATEGORY                                                                                */
/*************************************************************************************************/

// Operation class a failure is attributed to.
type ErrorCategory int

const (
	// Failure while opening the connection
	CategoryConnection ErrorCategory = iota
	// Failure while sending a ping
	CategoryPing
	// Failure while sending a message
	CategorySend
	// Failure while receiving or decoding a message
	CategoryReceive
	// Failure while closing the connection
	CategoryClose
)

func (category ErrorCategory) String() string {
	switch category {
	case CategoryConnection:
		return "Connection"
	case CategoryPing:
		return "Ping"
	case CategorySend:
		return "Send"
	case CategoryReceive:
		return "Receive"
	case CategoryClose:
		return "Close"
	default:
		return fmt.Sprintf("ErrorCategory(%d)", int(category))
	}
}

/*************************************************************************************************/
/* RESOURCE ERROR                                                                                */
/*************************************************************************************************/

// Error handed to the error callback: the failure and the operation it occurred in.
type ResourceError struct {
	// Operation class
	Category ErrorCategory
	// Embedded error
	Err error
}

func (err ResourceError) Error() string {
	return fmt.Sprintf("websocket %s error: %v", err.Category, err.Err)
}

func (err ResourceError) Unwrap() error {
	return err.Err
}

// Return the message of the embedded error.
func (err ResourceError) Message() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}
