package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/transport"
	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
	"github.com/abdoElHodaky/tradsys-oms/internal/workerpool"
)

// fakeTransport is an in-memory PartitionTransport stub: Publish appends
// synchronously to a per-stream slice so tests can assert exact outbound
// ordering without running a goroutine loop.
type fakeTransport struct {
	published map[int][][]byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{published: make(map[int][][]byte)} }

func (f *fakeTransport) Publish(ctx context.Context, streamID int, payload []byte) transport.Result {
	buf := append([]byte(nil), payload...)
	f.published[streamID] = append(f.published[streamID], buf)
	return transport.OK
}

func (f *fakeTransport) Poll(ctx context.Context, streamID int, maxFragments int, handler transport.FragmentHandler) int {
	return 0
}

func (f *fakeTransport) Close() error { return nil }

func newTestPartition(tr *fakeTransport) *Partition {
	cfg := Config{PartitionID: 0, InboundStreamID: 1000, OutboundStreamID: 2000, OrderPoolCapacity: 4, LevelPoolCapacity: 4}
	p := NewPartition(cfg, tr, zap.NewNop(), nil, nil)
	p.ctx = context.Background()
	return p
}

func newOrderFrame(t *testing.T, id uint64, sess uint32, seq uint64, instr uint32, side wire.Side, tif wire.TimeInForce, price int64, qty uint64) []byte {
	t.Helper()
	msg := wire.NewOrderInternal{
		InternalOrderID: id,
		NewOrderTCP: wire.NewOrderTCP{
			SessionID: sess, ClientID: 1, ClientSeqNo: seq, InstrumentID: instr,
			Side: side, TIF: tif, Price: price, Qty: qty,
		},
	}
	body := msg.Encode(nil)
	frame := make([]byte, 1+len(body))
	frame[0] = byte(wire.NewOrder)
	copy(frame[1:], body)
	return frame
}

func TestNewOrderRestingEmitsOnlyAck(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))

	out := tr.published[2000]
	require.Len(t, out, 1)
	require.Equal(t, wire.Ack, wire.MessageType(out[0][0]))
}

func TestNewOrderCrossEmitsAckThenTwoFills(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideSell, wire.GTC, 100*wire.PriceScale, 10))
	p.handleFragment(newOrderFrame(t, 2, 200, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))

	out := tr.published[2000]
	// ACK(order1), ACK(order2), FILL(aggressor=2), FILL(passive=1)
	require.Len(t, out, 4)
	require.Equal(t, wire.Ack, wire.MessageType(out[0][0]))
	require.Equal(t, wire.Ack, wire.MessageType(out[1][0]))
	require.Equal(t, wire.Fill, wire.MessageType(out[2][0]))
	require.Equal(t, wire.Fill, wire.MessageType(out[3][0]))

	aggFill, err := wire.DecodeFill(out[2][1:])
	require.NoError(t, err)
	require.Equal(t, uint64(2), aggFill.InternalOrderID)
	require.Equal(t, wire.SideBuy, aggFill.Side)
	require.Equal(t, uint64(0), aggFill.LeavesQty)

	passFill, err := wire.DecodeFill(out[3][1:])
	require.NoError(t, err)
	require.Equal(t, uint64(1), passFill.InternalOrderID)
	require.Equal(t, wire.SideSell, passFill.Side, "passive fill must carry the side opposite the aggressor")
	require.Equal(t, uint64(0), passFill.LeavesQty)
}

func TestAckPrecedesFillForSameOrder(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideSell, wire.GTC, 100*wire.PriceScale, 10))

	ackIdx, fillIdx := -1, -1
	p.handleFragment(newOrderFrame(t, 2, 200, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))
	for i, frame := range tr.published[2000] {
		switch wire.MessageType(frame[0]) {
		case wire.Ack:
			ack, _ := wire.DecodeAck(frame[1:])
			if ack.InternalOrderID == 2 && ackIdx == -1 {
				ackIdx = i
			}
		case wire.Fill:
			fill, _ := wire.DecodeFill(frame[1:])
			if fill.InternalOrderID == 2 && fillIdx == -1 {
				fillIdx = i
			}
		}
	}
	require.NotEqual(t, -1, ackIdx)
	require.NotEqual(t, -1, fillIdx)
	require.Less(t, ackIdx, fillIdx, "ACK must precede FILL for the same order")
}

func TestNewOrderPoolExhaustionYieldsSystemBusyReject(t *testing.T) {
	tr := newFakeTransport()
	cfg := Config{PartitionID: 0, InboundStreamID: 1000, OutboundStreamID: 2000, OrderPoolCapacity: 1, LevelPoolCapacity: 1}
	p := NewPartition(cfg, tr, zap.NewNop(), nil, nil)
	p.ctx = context.Background()

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))
	p.handleFragment(newOrderFrame(t, 2, 200, 2, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))

	out := tr.published[2000]
	require.Len(t, out, 2)
	require.Equal(t, wire.Ack, wire.MessageType(out[0][0]))
	require.Equal(t, wire.Reject, wire.MessageType(out[1][0]))

	rej, err := wire.DecodeReject(out[1][1:])
	require.NoError(t, err)
	require.Equal(t, wire.ReasonSystemBusy, rej.Reason)
}

func newCancelFrame(sess uint32, seq uint64, internalOrderID uint64, instrumentID uint32) []byte {
	msg := wire.CancelRequestInternal{SessionID: sess, ClientSeqNo: seq, InternalOrderID: internalOrderID, InstrumentID: instrumentID}
	body := msg.Encode(nil)
	frame := make([]byte, 1+len(body))
	frame[0] = byte(wire.CancelRequest)
	copy(frame[1:], body)
	return frame
}

func TestCancelRequestUsesInstrumentIDDirectly(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))
	p.handleFragment(newCancelFrame(100, 2, 1, 5))

	out := tr.published[2000]
	require.Len(t, out, 2)
	require.Equal(t, wire.CancelAck, wire.MessageType(out[1][0]))
}

func TestCancelUnknownOrderYieldsOrderNotFound(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))
	p.handleFragment(newCancelFrame(100, 2, 999, 5))

	out := tr.published[2000]
	require.Len(t, out, 2)
	require.Equal(t, wire.Reject, wire.MessageType(out[1][0]))
	rej, err := wire.DecodeReject(out[1][1:])
	require.NoError(t, err)
	require.Equal(t, wire.ReasonOrderNotFound, rej.Reason)
}

func TestCancelAgainstWrongInstrumentMisses(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))
	// cancel quotes a different instrumentId than the resting order's book
	p.handleFragment(newCancelFrame(100, 2, 1, 6))

	out := tr.published[2000]
	require.Equal(t, wire.Reject, wire.MessageType(out[1][0]))
}

// captureMetrics counts ObserveBookDepth calls; everything else is a
// no-op.
type captureMetrics struct {
	noopMetrics
	mu    sync.Mutex
	depth int
}

func (m *captureMetrics) ObserveBookDepth(int, uint32, int, int) {
	m.mu.Lock()
	m.depth++
	m.mu.Unlock()
}

func (m *captureMetrics) depthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth
}

func TestBookDepthSnapshotThrottledByInterval(t *testing.T) {
	tr := newFakeTransport()
	cfg := Config{
		PartitionID: 0, InboundStreamID: 1000, OutboundStreamID: 2000,
		OrderPoolCapacity: 4, LevelPoolCapacity: 4,
		SnapshotInterval: time.Second,
	}
	snapPool, err := workerpool.New("snapshot-test", 1, zap.NewNop())
	require.NoError(t, err)
	defer snapPool.Release()

	m := &captureMetrics{}
	p := NewPartition(cfg, tr, zap.NewNop(), m, snapPool)
	p.ctx = context.Background()

	var now int64
	p.clock = func() int64 { return now }

	p.handleFragment(newOrderFrame(t, 1, 100, 1, 5, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10))

	now = time.Second.Nanoseconds()
	p.maybeSnapshot()
	p.maybeSnapshot() // within the interval: skipped
	require.Eventually(t, func() bool { return m.depthCalls() == 1 }, time.Second, time.Millisecond)

	now += time.Second.Nanoseconds()
	p.maybeSnapshot()
	require.Eventually(t, func() bool { return m.depthCalls() == 2 }, time.Second, time.Millisecond)
}

func TestUnknownMessageTypeDoesNotPanic(t *testing.T) {
	tr := newFakeTransport()
	p := newTestPartition(tr)

	require.NotPanics(t, func() {
		p.handleFragment([]byte{99, 1, 2, 3})
	})
}
