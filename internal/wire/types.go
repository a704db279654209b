// Package wire implements the two binary framings that connect gateway,
// client and engine: the length-prefixed TCP frame used on client sockets,
// and the bare type-prefixed message used over the partition transport.
// Every layout is fixed-size and little-endian; Encode/Decode never
// allocate on the hot path when callers supply their own scratch buffers.
package wire

import "errors"

// MessageType is the one-byte discriminator prefixing every payload.
type MessageType uint8

const (
	Logon          MessageType = 1
	NewOrder       MessageType = 2
	CancelRequest  MessageType = 3
	LogonAck       MessageType = 20
	Ack            MessageType = 21
	Reject         MessageType = 22
	Fill           MessageType = 23
	CancelAck      MessageType = 24
	Heartbeat      MessageType = 30
)

func (t MessageType) String() string {
	switch t {
	case Logon:
		return "LOGON"
	case NewOrder:
		return "NEW_ORDER"
	case CancelRequest:
		return "CANCEL_REQUEST"
	case LogonAck:
		return "LOGON_ACK"
	case Ack:
		return "ACK"
	case Reject:
		return "REJECT"
	case Fill:
		return "FILL"
	case CancelAck:
		return "CANCEL_ACK"
	case Heartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// RejectReason is the one-byte code carried by a REJECT payload.
type RejectReason uint8

const (
	ReasonUnknown             RejectReason = 0
	ReasonDuplicateSeqNo      RejectReason = 1
	ReasonSeqNoGap            RejectReason = 2
	ReasonSystemBusy          RejectReason = 3
	ReasonOrderNotFound       RejectReason = 4
	ReasonInvalidPrice        RejectReason = 5
	ReasonInvalidQty          RejectReason = 6
	ReasonSessionNotLoggedOn  RejectReason = 7
)

func (r RejectReason) String() string {
	switch r {
	case ReasonUnknown:
		return "UNKNOWN"
	case ReasonDuplicateSeqNo:
		return "DUPLICATE_SEQNO"
	case ReasonSeqNoGap:
		return "SEQNO_GAP"
	case ReasonSystemBusy:
		return "SYSTEM_BUSY"
	case ReasonOrderNotFound:
		return "ORDER_NOT_FOUND"
	case ReasonInvalidPrice:
		return "INVALID_PRICE"
	case ReasonInvalidQty:
		return "INVALID_QTY"
	case ReasonSessionNotLoggedOn:
		return "SESSION_NOT_LOGGED_ON"
	default:
		return "UNKNOWN"
	}
}

// Side identifies which book side an order rests or aggresses on.
type Side uint8

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// Opposite returns the other side, used when emitting a passive FILL.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// TimeInForce controls what happens to an order's unfilled remainder.
type TimeInForce uint8

const (
	GTC TimeInForce = 1
	IOC TimeInForce = 2
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	default:
		return "UNKNOWN"
	}
}

// PriceScale converts a decimal price to the fixed-point int64 used on
// the wire and in the book: price_i64 = decimal * PriceScale.
const PriceScale = 1_000_000

// ErrShortFrame is returned by decoders when the buffer is smaller than
// the fixed layout requires. ErrUnknownType is returned when the leading
// type byte does not match a known MessageType. Both are soft errors:
// callers must log and drop, never panic.
var (
	ErrShortFrame  = errors.New("wire: short frame")
	ErrUnknownType = errors.New("wire: unknown message type")
)

// Frame size limits for the TCP framing.
const (
	FrameLengthFieldSize = 2
	MaxFrameSize         = 65535
)
