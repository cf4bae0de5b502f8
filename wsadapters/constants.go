package wsadapters

import "fmt"

/*************************************************************************************************/
/* WEBSOCKET RELATED CONSTANTS                                                                   */
/*************************************************************************************************/

// Constants for RFC6455 defined close status codes
//
// RFC: https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
//
// Code names are inspired by: https://www.iana.org/assignments/websocket/websocket.xhtml
type StatusCode int

const (
	// 1000 indicates a normal closure, meaning that the purpose for
	// which the connection was established has been fulfilled.
	NormalClosure StatusCode = iota + 1000
	// 1001 indicates that an endpoint is "going away", such as a server
	// going down or a client disposing its connection.
	GoingAway
	// 1002 indicates that an endpoint is terminating the connection due
	// to a protocol error.
	ProtocolError
	// 1003 indicates that an endpoint is terminating the connection
	// because it has received a type of data it cannot accept.
	UnsupportedData
	// 1005 is reserved: no status code was actually present.
	NoStatusReceived StatusCode = iota + 1000 + 1 // Skip 1004
	// 1006 is reserved: the connection was closed abnormally, without sending or receiving
	// a Close control frame.
	AbnormalClosure
	// 1007 indicates that an endpoint has received data within a message that was not
	// consistent with the type of the message (e.g., non-UTF-8 data within a text message).
	InvalidFramePayloadData
	// 1008 indicates that an endpoint has received a message that violates its policy.
	PolicyViolation
	// 1009 indicates that an endpoint has received a message that is too big to process.
	MessageTooBig
	// 1010 indicates that the client expected the server to negotiate one or more extension.
	MandatoryExtension
	// 1011 indicates that the server encountered an unexpected condition.
	InternalError
	// 1015 is reserved: the connection was closed due to a failure to perform a TLS handshake.
	TLSHandshake StatusCode = 1015
)

// Return the IANA name of the status code or its numeric value for unregistered codes.
func (code StatusCode) String() string {
	switch code {
	case NormalClosure:
		return "NormalClosure"
	case GoingAway:
		return "GoingAway"
	case ProtocolError:
		return "ProtocolError"
	case UnsupportedData:
		return "UnsupportedData"
	case NoStatusReceived:
		return "NoStatusReceived"
	case AbnormalClosure:
		return "AbnormalClosure"
	case InvalidFramePayloadData:
		return "InvalidFramePayloadData"
	case PolicyViolation:
		return "PolicyViolation"
	case MessageTooBig:
		return "MessageTooBig"
	case MandatoryExtension:
		return "MandatoryExtension"
	case InternalError:
		return "InternalError"
	case TLSHandshake:
		return "TLSHandshake"
	default:
		return fmt.Sprintf("StatusCode(%d)", int(code))
	}
}

// Websocket message types which can be received or sent.
//
// Codes mimics RFC6455 frame opcodes. Control frames like continuation, close, ping, pong and
// others are excluded as the library focuses on message level and not frame level.
//
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
type MessageType int

const (
	// Denotes a text message
	Text MessageType = iota + 1
	// Denotes a binary message
	Binary
)
