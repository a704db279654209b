package gateway

import (
	"bytes"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/session"
	"github.com/abdoElHodaky/tradsys-oms/internal/transport"
	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
	"github.com/abdoElHodaky/tradsys-oms/pkg/errs"
)

// connState is the per-connection state machine: UNAUTH until a LOGON
// is accepted, READY while orders flow, CLOSED on socket teardown.
type connState int

const (
	stateUnauth connState = iota
	stateReady
	stateClosed
)

// connChannel adapts a net.Conn to session.Channel. Both the connection's
// own goroutine (logon ack, local rejects) and the egress router's
// goroutine write to it, so writes are serialized with a mutex.
type connChannel struct {
	conn net.Conn
	mu   sync.Mutex
}

func newConnChannel(conn net.Conn) *connChannel {
	return &connChannel{conn: conn}
}

func (c *connChannel) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

// connection is one accepted TCP socket.
type connection struct {
	conn    net.Conn
	gw      *Gateway
	logger  *zap.Logger
	channel *connChannel
	session *session.Session
	state   connState
}

func newConnection(conn net.Conn, gw *Gateway) *connection {
	return &connection{
		conn:    conn,
		gw:      gw,
		logger:  gw.logger,
		channel: newConnChannel(conn),
		state:   stateUnauth,
	}
}

func (c *connection) run() {
	defer c.close()

	buf := make([]byte, wire.MaxFrameSize)
	for {
		msgType, payload, err := wire.ReadFrame(c.conn, buf)
		if err != nil {
			return
		}
		c.dispatch(msgType, payload)
	}
}

func (c *connection) close() {
	c.state = stateClosed
	if c.session != nil {
		c.gw.registry.Remove(c.session.SessionID)
	}
	c.conn.Close()
}

func (c *connection) dispatch(msgType wire.MessageType, payload []byte) {
	switch c.state {
	case stateUnauth:
		if msgType != wire.Logon {
			c.logger.Warn("message before logon", zap.Stringer("type", msgType))
			c.rejectUnauth(0, wire.ReasonSessionNotLoggedOn)
			return
		}
		c.handleLogon(payload)
	case stateReady:
		switch msgType {
		case wire.NewOrder:
			c.handleNewOrder(payload)
		case wire.CancelRequest:
			c.handleCancelRequest(payload)
		case wire.Heartbeat:
			// no-op; framing alone resets the peer's idle timer.
		default:
			c.logger.Warn("unexpected message type", zap.Stringer("type", msgType))
		}
	}
}

func (c *connection) handleLogon(payload []byte) {
	msg, err := wire.DecodeLogon(payload)
	if err != nil {
		c.logger.Warn("malformed logon, dropping frame", zap.Error(err))
		return
	}

	c.session = c.gw.registry.Register(msg.ClientID, c.channel)
	c.state = stateReady

	ack := wire.LogonAckMsg{SessionID: c.session.SessionID}
	c.writeFrame(wire.LogonAck, ack.Encode(nil))
}

func (c *connection) handleNewOrder(payload []byte) {
	msg, err := wire.DecodeNewOrderTCP(payload)
	if err != nil {
		c.logger.Warn("malformed new order, dropping frame", zap.Error(err))
		return
	}

	switch c.session.ValidateAndAdvance(msg.ClientSeqNo) {
	case session.SeqDuplicate:
		c.rejectReady(msg.ClientSeqNo, wire.ReasonDuplicateSeqNo)
		return
	case session.SeqGap:
		c.rejectReady(msg.ClientSeqNo, wire.ReasonSeqNoGap)
		return
	}

	// The book assumes validated inputs; the gateway is responsible for
	// rejecting non-positive qty/price before a NEW_ORDER ever reaches a
	// partition.
	if msg.Qty == 0 {
		c.rejectReady(msg.ClientSeqNo, wire.ReasonInvalidQty)
		return
	}
	if msg.Price <= 0 {
		c.rejectReady(msg.ClientSeqNo, wire.ReasonInvalidPrice)
		return
	}

	internalOrderID := c.gw.nextOrderID.Add(1)
	internal := wire.NewOrderInternal{InternalOrderID: internalOrderID, NewOrderTCP: msg}
	internal.SessionID = c.session.SessionID

	partition := c.gw.partitionFor(msg.InstrumentID)
	streamID := c.gw.cfg.InboundStreamBase + partition
	frame := frameWithType(wire.NewOrder, internal.Encode(nil))

	if res := c.gw.transport.Publish(c.gw.ctx, streamID, frame); res != transport.OK {
		if c.gw.metrics != nil {
			c.gw.metrics.RecordGatewayBackpressure(partition)
		}
		c.rejectReady(msg.ClientSeqNo, wire.ReasonSystemBusy)
	}
}

func (c *connection) handleCancelRequest(payload []byte) {
	msg, err := wire.DecodeCancelRequestInternal(payload)
	if err != nil {
		c.logger.Warn("malformed cancel request, dropping frame", zap.Error(err))
		return
	}
	msg.SessionID = c.session.SessionID

	// No sequence check is enforced on cancels: they are forwarded
	// regardless of clientSeqNo ordering.
	partition := c.gw.partitionFor(msg.InstrumentID)
	streamID := c.gw.cfg.InboundStreamBase + partition
	frame := frameWithType(wire.CancelRequest, msg.Encode(nil))

	if res := c.gw.transport.Publish(c.gw.ctx, streamID, frame); res != transport.OK {
		if c.gw.metrics != nil {
			c.gw.metrics.RecordGatewayBackpressure(partition)
		}
		c.rejectReady(msg.ClientSeqNo, wire.ReasonSystemBusy)
	}
}

func (c *connection) rejectReady(clientSeqNo uint64, reason wire.RejectReason) {
	sessionID := c.session.SessionID
	omsErr := errs.FromRejectReason(reason, "gateway rejected NEW_ORDER/CANCEL_REQUEST")
	c.logger.Warn("rejecting request",
		zap.Stringer("reason", reason),
		zap.Uint32("session_id", sessionID),
		zap.Uint64("client_seq_no", clientSeqNo),
		zap.String("trace_id", omsErr.TraceID))

	rej := wire.RejectMsg{SessionID: sessionID, ClientSeqNo: clientSeqNo, Reason: reason}
	c.writeFrame(wire.Reject, rej.Encode(nil))
}

func (c *connection) rejectUnauth(clientSeqNo uint64, reason wire.RejectReason) {
	omsErr := errs.FromRejectReason(reason, "gateway rejected frame before logon")
	c.logger.Warn("rejecting unauthenticated request",
		zap.Stringer("reason", reason),
		zap.Uint64("client_seq_no", clientSeqNo),
		zap.String("trace_id", omsErr.TraceID))

	rej := wire.RejectMsg{SessionID: 0, ClientSeqNo: clientSeqNo, Reason: reason}
	c.writeFrame(wire.Reject, rej.Encode(nil))
}

func (c *connection) writeFrame(msgType wire.MessageType, payload []byte) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, msgType, payload); err != nil {
		c.logger.Error("encode outbound frame", zap.Error(err))
		return
	}
	if err := c.channel.Write(buf.Bytes()); err != nil {
		c.logger.Debug("write to client failed", zap.Error(err))
	}
}

// frameWithType prepends the bare type byte used on the partition
// transport (distinct from the length-prefixed TCP framing).
func frameWithType(msgType wire.MessageType, body []byte) []byte {
	frame := make([]byte, 1+len(body))
	frame[0] = byte(msgType)
	copy(frame[1:], body)
	return frame
}
