package gateway

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
)

const egressPollInterval = time.Millisecond

// egressRouter polls every partition's outbound stream round-robin and
// routes each fragment back to the originating client socket. It runs
// as a single goroutine; ack-latency sampling is the only work it
// offloads, via the gateway's workerpool, so a slow histogram observe
// never stalls routing.
type egressRouter struct {
	gw     *Gateway
	cancel context.CancelFunc
	done   chan struct{}
}

func newEgressRouter(gw *Gateway) *egressRouter {
	return &egressRouter{gw: gw, done: make(chan struct{})}
}

func (r *egressRouter) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.run(ctx)
}

func (r *egressRouter) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *egressRouter) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(egressPollInterval)
	defer ticker.Stop()

	maxFragments := r.gw.cfg.MaxFragmentsPerPoll
	if maxFragments <= 0 {
		maxFragments = 256
	}
	partitions := r.gw.cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for p := 0; p < partitions; p++ {
				streamID := r.gw.cfg.OutboundStreamBase + p
				r.gw.transport.Poll(ctx, streamID, maxFragments, r.handleFragment)
			}
		}
	}
}

func (r *egressRouter) handleFragment(payload []byte) {
	if len(payload) < 1 {
		return
	}
	msgType := wire.MessageType(payload[0])
	body := payload[1:]

	sessionID, err := wire.SessionIDOf(msgType, body)
	if err != nil {
		r.gw.logger.Warn("cannot resolve session for outbound fragment",
			zap.Stringer("type", msgType), zap.Error(err))
		return
	}

	sess, ok := r.gw.registry.Get(sessionID)
	if !ok {
		r.gw.logger.Debug("dropping outbound fragment for unknown session",
			zap.Uint32("session_id", sessionID), zap.Stringer("type", msgType))
		return
	}

	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, msgType, body); err != nil {
		r.gw.logger.Error("encode outbound frame", zap.Error(err))
		return
	}
	if err := sess.Channel.Write(buf.Bytes()); err != nil {
		r.gw.logger.Debug("write to client failed", zap.Uint32("session_id", sessionID), zap.Error(err))
		return
	}

	if msgType == wire.Ack {
		r.sampleAckLatency(body)
	}
}

// sampleAckLatency measures the gateway-observed latency between the
// engine stamping an ACK and the gateway finishing the write back to the
// client socket, offloaded to the workerpool so the histogram Observe
// call never competes with routing the next fragment.
func (r *egressRouter) sampleAckLatency(body []byte) {
	ack, err := wire.DecodeAck(body)
	if err != nil {
		return
	}
	observedAt := time.Now()
	stamped := ack.TsNanos

	if r.gw.metrics == nil || r.gw.latency == nil {
		return
	}
	err = r.gw.latency.Submit(func() {
		seconds := observedAt.Sub(time.Unix(0, stamped)).Seconds()
		if seconds < 0 {
			seconds = 0
		}
		r.gw.metrics.ObserveAckLatency(seconds)
	})
	if err != nil {
		r.gw.logger.Debug("ack latency sample dropped", zap.Error(err))
	}
}
