// Package engine implements the partitioned matching engine: one
// single-threaded worker per partition, each owning the books, pools
// and output buffer for the instruments that hash to it. Nothing in a
// Partition is safe for concurrent use - its run loop is the only
// goroutine that ever touches its books or pools, which is what removes
// any need for locking inside the matcher.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/book"
	"github.com/abdoElHodaky/tradsys-oms/internal/pool"
	"github.com/abdoElHodaky/tradsys-oms/internal/transport"
	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
	"github.com/abdoElHodaky/tradsys-oms/internal/workerpool"
	"github.com/abdoElHodaky/tradsys-oms/pkg/errs"
)

// snapshotMaxLevels bounds how many price levels per side are sampled
// into the periodic book-depth snapshot.
const snapshotMaxLevels = 10

// maxPublishRetries bounds the outbound publisher's retry-on-backpressure
// loop; beyond it the event is dropped and logged.
const maxPublishRetries = 3

// Clock returns the current time as nanoseconds since epoch, injected so
// tests can observe deterministic timestamps.
type Clock func() int64

func systemClock() int64 { return time.Now().UnixNano() }

// Config configures a single partition worker.
type Config struct {
	PartitionID       int
	InboundStreamID   int
	OutboundStreamID  int
	OrderPoolCapacity int
	LevelPoolCapacity int
	PollInterval      time.Duration
	MaxFragmentsPoll  int

	// SnapshotInterval throttles the idle-poll book-depth publication;
	// it comes from the metricsIntervalSecs configuration key.
	SnapshotInterval time.Duration
}

// Partition owns one shard's books, order/level arenas, and its inbound
// and outbound streams. One NEW_ORDER or CANCEL_REQUEST is fully
// processed, outbound events published, before the next is polled -
// there is no internal concurrency to reason about.
type Partition struct {
	id         int
	inbound    int
	outbound   int
	transport  transport.PartitionTransport
	orderPool  *pool.Pool[book.Order]
	levelPool  *pool.Pool[book.PriceLevel]
	books      map[uint32]*book.LimitOrderBook
	logger     *zap.Logger
	clock      Clock
	metrics    Metrics
	pollEvery  time.Duration
	maxPerPoll int

	// snapshotPool runs the asynchronous half of the periodic book-depth
	// publication job: reading resting levels out of the books happens
	// synchronously on this goroutine (books are not safe for concurrent
	// access), but reporting the resulting counts to Prometheus is farmed
	// out here so the run loop never blocks on it.
	snapshotPool   *workerpool.Pool
	snapshotEvery  time.Duration
	lastSnapshotNs int64

	// scratch holds the outbound [type][payload] frame under construction
	// and encBuf the payload being encoded into it; both are reused across
	// publishes so the hot path never allocates. Safe because every
	// transport substrate copies (or synchronously flushes) the frame
	// before Publish returns.
	scratch []byte
	encBuf  []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Metrics is the narrow set of counters a partition reports; satisfied
// by internal/metrics.Collector. A nil Metrics is replaced with a no-op.
type Metrics interface {
	RecordAck(partition int)
	RecordReject(partition int, reason wire.RejectReason)
	RecordFill(partition int)
	RecordCancelAck(partition int)
	RecordPoolExhaustion(partition int)
	RecordOutboundDrop(partition int)
	ObserveBookDepth(partition int, instrumentID uint32, bidLevels, askLevels int)
	SetQueueDepth(partition int, depth int)
}

type noopMetrics struct{}

func (noopMetrics) RecordAck(int)                          {}
func (noopMetrics) RecordReject(int, wire.RejectReason)    {}
func (noopMetrics) RecordFill(int)                         {}
func (noopMetrics) RecordCancelAck(int)                    {}
func (noopMetrics) RecordPoolExhaustion(int)               {}
func (noopMetrics) RecordOutboundDrop(int)                 {}
func (noopMetrics) ObserveBookDepth(int, uint32, int, int) {}
func (noopMetrics) SetQueueDepth(int, int)                 {}

// NewPartition builds a partition worker. metrics may be nil. snapshotPool
// may also be nil, in which case the idle-poll book-depth job is skipped
// (e.g. in tests that don't care about it).
func NewPartition(cfg Config, tr transport.PartitionTransport, logger *zap.Logger, metrics Metrics, snapshotPool *workerpool.Pool) *Partition {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	pollEvery := cfg.PollInterval
	if pollEvery <= 0 {
		pollEvery = time.Millisecond
	}
	maxPerPoll := cfg.MaxFragmentsPoll
	if maxPerPoll <= 0 {
		maxPerPoll = 256
	}
	snapshotEvery := cfg.SnapshotInterval
	if snapshotEvery <= 0 {
		snapshotEvery = 5 * time.Second
	}

	return &Partition{
		id:            cfg.PartitionID,
		inbound:       cfg.InboundStreamID,
		outbound:      cfg.OutboundStreamID,
		transport:     tr,
		orderPool:     pool.New[book.Order](cfg.OrderPoolCapacity),
		levelPool:     pool.New[book.PriceLevel](cfg.LevelPoolCapacity),
		books:         make(map[uint32]*book.LimitOrderBook),
		logger:        logger.With(zap.Int("partition", cfg.PartitionID)),
		clock:         systemClock,
		metrics:       metrics,
		pollEvery:     pollEvery,
		maxPerPoll:    maxPerPoll,
		scratch:       make([]byte, 64),
		encBuf:        make([]byte, 64),
		snapshotPool:  snapshotPool,
		snapshotEvery: snapshotEvery,
	}
}

// Start launches the partition's run loop in its own goroutine.
func (p *Partition) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run()
}

// Stop signals the run loop to exit and waits for it to drain.
func (p *Partition) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Partition) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n := p.transport.Poll(p.ctx, p.inbound, p.maxPerPoll, p.handleFragment)
			if n == 0 {
				p.maybeSnapshot()
			}
		}
	}
}

// maybeSnapshot runs the periodic marketdata/stats publication job
// on an idle poll: nothing arrived to process this
// tick, so the partition has spare cycles to sample its books' resting
// depth and the inbound stream's backlog. Reading the books happens here,
// synchronously, since they're only safe to touch from this goroutine;
// reporting the samples to Prometheus is handed off to snapshotPool so it
// never delays the next poll.
func (p *Partition) maybeSnapshot() {
	if p.snapshotPool == nil || len(p.books) == 0 {
		return
	}
	now := p.clock()
	if now-p.lastSnapshotNs < p.snapshotEvery.Nanoseconds() {
		return
	}
	p.lastSnapshotNs = now

	type depthSample struct {
		instrumentID         uint32
		bidLevels, askLevels int
	}
	samples := make([]depthSample, 0, len(p.books))
	for instrumentID, b := range p.books {
		bids, asks := b.Snapshot(snapshotMaxLevels)
		samples = append(samples, depthSample{instrumentID: instrumentID, bidLevels: len(bids), askLevels: len(asks)})
	}

	var queueDepth int
	var haveQueueDepth bool
	if reporter, ok := p.transport.(transport.QueueDepthReporter); ok {
		queueDepth, haveQueueDepth = reporter.QueueDepth(p.inbound)
	}

	partitionID := p.id
	metrics := p.metrics
	if err := p.snapshotPool.Submit(func() {
		for _, s := range samples {
			metrics.ObserveBookDepth(partitionID, s.instrumentID, s.bidLevels, s.askLevels)
		}
		if haveQueueDepth {
			metrics.SetQueueDepth(partitionID, queueDepth)
		}
	}); err != nil {
		p.logger.Debug("dropping book-depth snapshot, pool overloaded", zap.Error(err))
	}
}

// handleFragment dispatches one bare [type][payload] partition-transport
// message. Unknown types are logged and dropped, never crash the
// partition.
func (p *Partition) handleFragment(payload []byte) {
	if len(payload) < 1 {
		p.logger.Warn("empty partition-transport fragment")
		return
	}
	msgType := wire.MessageType(payload[0])
	body := payload[1:]

	switch msgType {
	case wire.NewOrder:
		p.handleNewOrder(body)
	case wire.CancelRequest:
		p.handleCancelRequest(body)
	default:
		p.logger.Warn("unknown inbound message type, dropping", zap.Uint8("type", uint8(msgType)))
	}
}

func (p *Partition) handleNewOrder(body []byte) {
	msg, err := wire.DecodeNewOrderInternal(body)
	if err != nil {
		p.logger.Warn("failed to decode NEW_ORDER", zap.Error(err))
		return
	}

	orderH, ok := p.orderPool.Borrow()
	if !ok {
		p.metrics.RecordPoolExhaustion(p.id)
		p.publishReject(msg.SessionID, msg.ClientSeqNo, wire.ReasonSystemBusy)
		return
	}

	o := p.orderPool.Get(orderH)
	o.InternalOrderID = msg.InternalOrderID
	o.SessionID = msg.SessionID
	o.ClientSeqNo = msg.ClientSeqNo
	o.InstrumentID = msg.InstrumentID
	o.Side = msg.Side
	o.TIF = msg.TIF
	o.Price = msg.Price
	o.Qty = msg.Qty
	o.OrigQty = msg.Qty
	o.RecvTsNanos = msg.RecvTsNanos

	p.publishAck(msg.InternalOrderID, msg.ClientSeqNo, msg.SessionID, msg.InstrumentID)

	b := p.bookFor(msg.InstrumentID)
	b.AddOrder(orderH, p.dispatchFill)
}

// dispatchFill is invoked once per execution by book.LimitOrderBook.
// It emits the two FILL events an execution always produces: one to the
// aggressor on its own side, one to the passive on the opposite side,
// so each recipient's FILL carries the side of the party it is
// addressed to.
func (p *Partition) dispatchFill(aggressorID, passiveID uint64, aggressorSess, passiveSess uint32,
	instrumentID uint32, aggressorSide wire.Side, price int64, qty, aggressorLeaves, passiveLeaves uint64) {

	ts := p.clock()
	p.publishFill(aggressorID, aggressorSess, instrumentID, aggressorSide, price, qty, aggressorLeaves, ts)
	p.publishFill(passiveID, passiveSess, instrumentID, aggressorSide.Opposite(), price, qty, passiveLeaves, ts)
	p.metrics.RecordFill(p.id)
}

func (p *Partition) handleCancelRequest(body []byte) {
	msg, err := wire.DecodeCancelRequestInternal(body)
	if err != nil {
		p.logger.Warn("failed to decode CANCEL_REQUEST", zap.Error(err))
		return
	}

	// The cancel message carries the instrumentId, so look up the owning
	// book directly instead of scanning every book in the partition.
	b, ok := p.books[msg.InstrumentID]
	if !ok || !b.Cancel(msg.InternalOrderID) {
		p.publishReject(msg.SessionID, msg.ClientSeqNo, wire.ReasonOrderNotFound)
		return
	}

	p.publishCancelAck(msg.InternalOrderID, msg.SessionID)
}

func (p *Partition) bookFor(instrumentID uint32) *book.LimitOrderBook {
	b, ok := p.books[instrumentID]
	if !ok {
		b = book.NewLimitOrderBook(instrumentID, p.orderPool, p.levelPool)
		p.books[instrumentID] = b
	}
	return b
}

func (p *Partition) publishAck(internalOrderID, clientSeqNo uint64, sessionID, instrumentID uint32) {
	ack := wire.AckMsg{
		InternalOrderID: internalOrderID,
		ClientSeqNo:     clientSeqNo,
		SessionID:       sessionID,
		InstrumentID:    instrumentID,
		TsNanos:         p.clock(),
	}
	p.publish(wire.Ack, ack.Encode(p.encBuf))
	p.metrics.RecordAck(p.id)
}

func (p *Partition) publishReject(sessionID uint32, clientSeqNo uint64, reason wire.RejectReason) {
	omsErr := errs.FromRejectReason(reason, "partition rejected NEW_ORDER/CANCEL_REQUEST")
	p.logger.Warn("rejecting request",
		zap.Stringer("reason", reason),
		zap.Uint32("session_id", sessionID),
		zap.Uint64("client_seq_no", clientSeqNo),
		zap.String("trace_id", omsErr.TraceID))

	rej := wire.RejectMsg{SessionID: sessionID, ClientSeqNo: clientSeqNo, Reason: reason}
	p.publish(wire.Reject, rej.Encode(p.encBuf))
	p.metrics.RecordReject(p.id, reason)
}

func (p *Partition) publishFill(internalOrderID uint64, sessionID, instrumentID uint32, side wire.Side, price int64, qty, leaves uint64, tsNanos int64) {
	f := wire.FillMsg{
		InternalOrderID: internalOrderID,
		SessionID:       sessionID,
		InstrumentID:    instrumentID,
		Side:            side,
		FillPrice:       price,
		FillQty:         qty,
		LeavesQty:       leaves,
		TsNanos:         tsNanos,
	}
	p.publish(wire.Fill, f.Encode(p.encBuf))
}

func (p *Partition) publishCancelAck(internalOrderID uint64, sessionID uint32) {
	ack := wire.CancelAckMsg{InternalOrderID: internalOrderID, SessionID: sessionID}
	p.publish(wire.CancelAck, ack.Encode(p.encBuf))
	p.metrics.RecordCancelAck(p.id)
}

// publish frames payload as a bare [type][payload] partition-transport
// message and retries up to maxPublishRetries times while the transport
// reports a transient result, then drops and logs.
func (p *Partition) publish(msgType wire.MessageType, payload []byte) {
	need := 1 + len(payload)
	if cap(p.scratch) < need {
		p.scratch = make([]byte, need)
	}
	frame := p.scratch[:need]
	frame[0] = byte(msgType)
	copy(frame[1:], payload)

	for attempt := 0; attempt <= maxPublishRetries; attempt++ {
		res := p.transport.Publish(p.ctx, p.outbound, frame)
		if res == transport.OK {
			return
		}
		if res == transport.Failed {
			break
		}
	}
	p.logger.Error("dropping outbound message after exhausting publish retries",
		zap.String("type", msgType.String()))
	p.metrics.RecordOutboundDrop(p.id)
}
