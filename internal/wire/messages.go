package wire

import "encoding/binary"

// LogonMsg is the client->gateway logon request. Payload size 12.
type LogonMsg struct {
	SessionID uint32
	ClientID  uint64
}

func (m LogonMsg) Encode(buf []byte) []byte {
	buf = ensure(buf, 12)
	binary.LittleEndian.PutUint32(buf[0:4], m.SessionID)
	binary.LittleEndian.PutUint64(buf[4:12], m.ClientID)
	return buf[:12]
}

func DecodeLogon(b []byte) (LogonMsg, error) {
	if len(b) < 12 {
		return LogonMsg{}, ErrShortFrame
	}
	return LogonMsg{
		SessionID: binary.LittleEndian.Uint32(b[0:4]),
		ClientID:  binary.LittleEndian.Uint64(b[4:12]),
	}, nil
}

// LogonAckMsg acknowledges a logon with the assigned sessionId. Size 4.
type LogonAckMsg struct {
	SessionID uint32
}

func (m LogonAckMsg) Encode(buf []byte) []byte {
	buf = ensure(buf, 4)
	binary.LittleEndian.PutUint32(buf[0:4], m.SessionID)
	return buf[:4]
}

func DecodeLogonAck(b []byte) (LogonAckMsg, error) {
	if len(b) < 4 {
		return LogonAckMsg{}, ErrShortFrame
	}
	return LogonAckMsg{SessionID: binary.LittleEndian.Uint32(b[0:4])}, nil
}

// NewOrderTCP is the 50-byte client->gateway NEW_ORDER payload.
type NewOrderTCP struct {
	SessionID    uint32
	ClientID     uint64
	ClientSeqNo  uint64
	InstrumentID uint32
	Side         Side
	TIF          TimeInForce
	Price        int64
	Qty          uint64
	RecvTsNanos  int64
}

const newOrderTCPSize = 4 + 8 + 8 + 4 + 1 + 1 + 8 + 8 + 8 // 50

func (m NewOrderTCP) Encode(buf []byte) []byte {
	buf = ensure(buf, newOrderTCPSize)
	encodeNewOrderBody(buf, m)
	return buf[:newOrderTCPSize]
}

func encodeNewOrderBody(b []byte, m NewOrderTCP) {
	binary.LittleEndian.PutUint32(b[0:4], m.SessionID)
	binary.LittleEndian.PutUint64(b[4:12], m.ClientID)
	binary.LittleEndian.PutUint64(b[12:20], m.ClientSeqNo)
	binary.LittleEndian.PutUint32(b[20:24], m.InstrumentID)
	b[24] = byte(m.Side)
	b[25] = byte(m.TIF)
	binary.LittleEndian.PutUint64(b[26:34], uint64(m.Price))
	binary.LittleEndian.PutUint64(b[34:42], m.Qty)
	binary.LittleEndian.PutUint64(b[42:50], uint64(m.RecvTsNanos))
}

func decodeNewOrderBody(b []byte) (NewOrderTCP, error) {
	if len(b) < newOrderTCPSize {
		return NewOrderTCP{}, ErrShortFrame
	}
	return NewOrderTCP{
		SessionID:    binary.LittleEndian.Uint32(b[0:4]),
		ClientID:     binary.LittleEndian.Uint64(b[4:12]),
		ClientSeqNo:  binary.LittleEndian.Uint64(b[12:20]),
		InstrumentID: binary.LittleEndian.Uint32(b[20:24]),
		Side:         Side(b[24]),
		TIF:          TimeInForce(b[25]),
		Price:        int64(binary.LittleEndian.Uint64(b[26:34])),
		Qty:          binary.LittleEndian.Uint64(b[34:42]),
		RecvTsNanos:  int64(binary.LittleEndian.Uint64(b[42:50])),
	}, nil
}

func DecodeNewOrderTCP(b []byte) (NewOrderTCP, error) {
	return decodeNewOrderBody(b)
}

// NewOrderInternal is the 62-byte gateway->engine NEW_ORDER payload: the
// gateway-assigned internalOrderId prepended to the TCP payload.
type NewOrderInternal struct {
	InternalOrderID uint64
	NewOrderTCP
}

const newOrderInternalSize = 8 + newOrderTCPSize // 62

func (m NewOrderInternal) Encode(buf []byte) []byte {
	buf = ensure(buf, newOrderInternalSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.InternalOrderID)
	encodeNewOrderBody(buf[8:newOrderInternalSize], m.NewOrderTCP)
	return buf[:newOrderInternalSize]
}

func DecodeNewOrderInternal(b []byte) (NewOrderInternal, error) {
	if len(b) < newOrderInternalSize {
		return NewOrderInternal{}, ErrShortFrame
	}
	body, err := decodeNewOrderBody(b[8:newOrderInternalSize])
	if err != nil {
		return NewOrderInternal{}, err
	}
	return NewOrderInternal{
		InternalOrderID: binary.LittleEndian.Uint64(b[0:8]),
		NewOrderTCP:     body,
	}, nil
}

// CancelRequestInternal is the 24-byte gateway->engine CANCEL_REQUEST payload.
type CancelRequestInternal struct {
	SessionID       uint32
	ClientSeqNo     uint64
	InternalOrderID uint64
	InstrumentID    uint32
}

const cancelRequestSize = 4 + 8 + 8 + 4 // 24

func (m CancelRequestInternal) Encode(buf []byte) []byte {
	buf = ensure(buf, cancelRequestSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.SessionID)
	binary.LittleEndian.PutUint64(buf[4:12], m.ClientSeqNo)
	binary.LittleEndian.PutUint64(buf[12:20], m.InternalOrderID)
	binary.LittleEndian.PutUint32(buf[20:24], m.InstrumentID)
	return buf[:cancelRequestSize]
}

func DecodeCancelRequestInternal(b []byte) (CancelRequestInternal, error) {
	if len(b) < cancelRequestSize {
		return CancelRequestInternal{}, ErrShortFrame
	}
	return CancelRequestInternal{
		SessionID:       binary.LittleEndian.Uint32(b[0:4]),
		ClientSeqNo:     binary.LittleEndian.Uint64(b[4:12]),
		InternalOrderID: binary.LittleEndian.Uint64(b[12:20]),
		InstrumentID:    binary.LittleEndian.Uint32(b[20:24]),
	}, nil
}

// AckMsg is the engine->gateway order acknowledgement. Size 32.
type AckMsg struct {
	InternalOrderID uint64
	ClientSeqNo     uint64
	SessionID       uint32
	InstrumentID    uint32
	TsNanos         int64
}

const ackSize = 8 + 8 + 4 + 4 + 8 // 32

func (m AckMsg) Encode(buf []byte) []byte {
	buf = ensure(buf, ackSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.InternalOrderID)
	binary.LittleEndian.PutUint64(buf[8:16], m.ClientSeqNo)
	binary.LittleEndian.PutUint32(buf[16:20], m.SessionID)
	binary.LittleEndian.PutUint32(buf[20:24], m.InstrumentID)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(m.TsNanos))
	return buf[:ackSize]
}

func DecodeAck(b []byte) (AckMsg, error) {
	if len(b) < ackSize {
		return AckMsg{}, ErrShortFrame
	}
	return AckMsg{
		InternalOrderID: binary.LittleEndian.Uint64(b[0:8]),
		ClientSeqNo:     binary.LittleEndian.Uint64(b[8:16]),
		SessionID:       binary.LittleEndian.Uint32(b[16:20]),
		InstrumentID:    binary.LittleEndian.Uint32(b[20:24]),
		TsNanos:         int64(binary.LittleEndian.Uint64(b[24:32])),
	}, nil
}

// RejectMsg rejects an inbound request. Size 13.
type RejectMsg struct {
	SessionID   uint32
	ClientSeqNo uint64
	Reason      RejectReason
}

const rejectSize = 4 + 8 + 1 // 13

func (m RejectMsg) Encode(buf []byte) []byte {
	buf = ensure(buf, rejectSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.SessionID)
	binary.LittleEndian.PutUint64(buf[4:12], m.ClientSeqNo)
	buf[12] = byte(m.Reason)
	return buf[:rejectSize]
}

func DecodeReject(b []byte) (RejectMsg, error) {
	if len(b) < rejectSize {
		return RejectMsg{}, ErrShortFrame
	}
	return RejectMsg{
		SessionID:   binary.LittleEndian.Uint32(b[0:4]),
		ClientSeqNo: binary.LittleEndian.Uint64(b[4:12]),
		Reason:      RejectReason(b[12]),
	}, nil
}

// FillMsg reports one execution to one side of a trade. Size 49.
type FillMsg struct {
	InternalOrderID uint64
	SessionID       uint32
	InstrumentID    uint32
	Side            Side
	FillPrice       int64
	FillQty         uint64
	LeavesQty       uint64
	TsNanos         int64
}

const fillSize = 8 + 4 + 4 + 1 + 8 + 8 + 8 + 8 // 49

func (m FillMsg) Encode(buf []byte) []byte {
	buf = ensure(buf, fillSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.InternalOrderID)
	binary.LittleEndian.PutUint32(buf[8:12], m.SessionID)
	binary.LittleEndian.PutUint32(buf[12:16], m.InstrumentID)
	buf[16] = byte(m.Side)
	binary.LittleEndian.PutUint64(buf[17:25], uint64(m.FillPrice))
	binary.LittleEndian.PutUint64(buf[25:33], m.FillQty)
	binary.LittleEndian.PutUint64(buf[33:41], m.LeavesQty)
	binary.LittleEndian.PutUint64(buf[41:49], uint64(m.TsNanos))
	return buf[:fillSize]
}

func DecodeFill(b []byte) (FillMsg, error) {
	if len(b) < fillSize {
		return FillMsg{}, ErrShortFrame
	}
	return FillMsg{
		InternalOrderID: binary.LittleEndian.Uint64(b[0:8]),
		SessionID:       binary.LittleEndian.Uint32(b[8:12]),
		InstrumentID:    binary.LittleEndian.Uint32(b[12:16]),
		Side:            Side(b[16]),
		FillPrice:       int64(binary.LittleEndian.Uint64(b[17:25])),
		FillQty:         binary.LittleEndian.Uint64(b[25:33]),
		LeavesQty:       binary.LittleEndian.Uint64(b[33:41]),
		TsNanos:         int64(binary.LittleEndian.Uint64(b[41:49])),
	}, nil
}

// CancelAckMsg confirms a successful cancel. Size 12.
type CancelAckMsg struct {
	InternalOrderID uint64
	SessionID       uint32
}

const cancelAckSize = 8 + 4 // 12

func (m CancelAckMsg) Encode(buf []byte) []byte {
	buf = ensure(buf, cancelAckSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.InternalOrderID)
	binary.LittleEndian.PutUint32(buf[8:12], m.SessionID)
	return buf[:cancelAckSize]
}

func DecodeCancelAck(b []byte) (CancelAckMsg, error) {
	if len(b) < cancelAckSize {
		return CancelAckMsg{}, ErrShortFrame
	}
	return CancelAckMsg{
		InternalOrderID: binary.LittleEndian.Uint64(b[0:8]),
		SessionID:       binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// ensure returns buf resliced/grown so that len(buf) >= n. Callers on the
// hot path pass a scratch buffer already sized correctly so this never
// allocates; it only grows cold-path buffers (e.g. test helpers).
func ensure(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}
