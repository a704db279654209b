package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame writes a TCP frame: [len:u16 LE][type:u8][payload], where
// len counts the type byte plus payload. payload must not exceed
// MaxFrameSize-1 bytes.
func WriteFrame(w io.Writer, msgType MessageType, payload []byte) error {
	if len(payload)+1 > MaxFrameSize {
		return fmt.Errorf("wire: frame too large (%d bytes)", len(payload))
	}
	var hdr [3]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(payload)+1))
	hdr[2] = byte(msgType)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one TCP frame from r into buf, which must be at least
// MaxFrameSize bytes. It returns the message type and the payload slice
// (aliasing buf, valid until the next ReadFrame call).
func ReadFrame(r io.Reader, buf []byte) (MessageType, []byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := int(binary.LittleEndian.Uint16(hdr[:]))
	if n == 0 {
		return 0, nil, fmt.Errorf("wire: zero-length frame")
	}
	if n > len(buf) {
		return 0, nil, fmt.Errorf("wire: frame exceeds buffer (%d > %d)", n, len(buf))
	}
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return 0, nil, err
	}
	return MessageType(buf[0]), buf[1:n], nil
}

// SessionIDOf extracts the sessionId from a decoded outbound payload at
// its type-specific fixed offset, for the egress router.
// It returns ErrUnknownType for message types that carry no sessionId at
// a fixed offset (NEW_ORDER/CANCEL_REQUEST never flow outbound), and
// ErrShortFrame when the payload is too short to hold the sessionId.
func SessionIDOf(msgType MessageType, payload []byte) (uint32, error) {
	offset := -1
	switch msgType {
	case LogonAck:
		offset = 0
	case Ack:
		offset = 16
	case Reject:
		offset = 0
	case Fill:
		offset = 8
	case CancelAck:
		offset = 8
	default:
		return 0, ErrUnknownType
	}
	if offset+4 > len(payload) {
		return 0, ErrShortFrame
	}
	return binary.LittleEndian.Uint32(payload[offset : offset+4]), nil
}
