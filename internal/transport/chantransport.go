package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// ChanTransport is the in-process substrate: one buffered Go channel per
// stream, capacity bounded by gatewayBackpressureQueueLimit. A token
// bucket (ulule/limiter) in front of each stream's channel models the
// publish-rate ceiling a real shared-memory/UDP substrate would enforce,
// so BACKPRESSURED can be observed even before the channel itself fills.
// Suitable for tests and single-process deployments; the production
// substrate is KafkaTransport.
type ChanTransport struct {
	queueLimit int
	rate       limiter.Rate

	mu      sync.Mutex
	streams map[int]chan []byte
	limiter *limiter.Limiter

	logger *zap.Logger
}

// NewChanTransport creates a channel transport where each stream buffers
// up to queueLimit messages and accepts publishes at up to ratePerSecond
// per stream.
func NewChanTransport(queueLimit int, ratePerSecond int64, logger *zap.Logger) *ChanTransport {
	store := memory.NewStore()
	rate := limiter.Rate{Period: time.Second, Limit: ratePerSecond}
	return &ChanTransport{
		queueLimit: queueLimit,
		rate:       rate,
		streams:    make(map[int]chan []byte),
		limiter:    limiter.New(store, rate),
		logger:     logger,
	}
}

func (t *ChanTransport) stream(streamID int) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.streams[streamID]
	if !ok {
		ch = make(chan []byte, t.queueLimit)
		t.streams[streamID] = ch
	}
	return ch
}

// Publish implements PartitionTransport.
func (t *ChanTransport) Publish(ctx context.Context, streamID int, payload []byte) Result {
	key := fmt.Sprintf("stream:%d", streamID)
	ctxLimit, err := t.limiter.Get(ctx, key)
	if err != nil {
		t.logger.Warn("rate limiter unavailable, allowing publish", zap.Error(err))
	} else if ctxLimit.Reached {
		return Backpressured
	}

	ch := t.stream(streamID)
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case ch <- buf:
		return OK
	default:
		return Backpressured
	}
}

// Poll implements PartitionTransport.
func (t *ChanTransport) Poll(ctx context.Context, streamID int, maxFragments int, handler FragmentHandler) int {
	ch := t.stream(streamID)
	n := 0
	for n < maxFragments {
		select {
		case payload := <-ch:
			handler(payload)
			n++
		case <-ctx.Done():
			return n
		default:
			return n
		}
	}
	return n
}

// Close implements PartitionTransport. Channel buffers are left to be
// garbage collected; there is no external resource to release.
func (t *ChanTransport) Close() error { return nil }

// QueueDepth implements QueueDepthReporter: the number of messages
// currently buffered for streamID. ok is false only if the stream has
// never been published to or polled (and so was never lazily created).
func (t *ChanTransport) QueueDepth(streamID int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.streams[streamID]
	if !ok {
		return 0, false
	}
	return len(ch), true
}
