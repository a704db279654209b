// Package transport implements the partition transport: a pair of
// unidirectional, per-partition byte-message channels between gateway
// and engine. Two substrates are provided behind the same interface: an
// in-process channel transport for single-binary deployments, and a
// Kafka-backed transport (github.com/IBM/sarama) for production, where
// Kafka's own partitioning maps directly onto the instrumentId-mod-P
// scheme.
package transport

import "context"

// Result is the outcome of a single publish attempt.
type Result int

const (
	OK Result = iota
	Backpressured
	AdminBlocked
	Failed
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case Backpressured:
		return "BACKPRESSURED"
	case AdminBlocked:
		return "ADMIN_BLOCKED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// FragmentHandler processes one polled message. It must not block or
// retain payload past the call.
type FragmentHandler func(payload []byte)

// PartitionTransport is the gateway<->engine transport abstraction.
// Implementations guarantee per-partition FIFO ordering and never
// fragment a message; they carry no cross-partition ordering guarantee.
type PartitionTransport interface {
	// Publish sends payload to partition on the given stream base
	// (inbound or outbound is a property of which base the caller
	// passes; the transport itself is direction-agnostic).
	Publish(ctx context.Context, streamID int, payload []byte) Result

	// Poll delivers up to maxFragments queued messages for streamID to
	// handler, in FIFO order, and returns how many were delivered.
	Poll(ctx context.Context, streamID int, maxFragments int, handler FragmentHandler) int

	// Close releases all resources held by the transport.
	Close() error
}

// QueueDepthReporter is an optional capability a PartitionTransport may
// implement to expose its current backlog for a stream, used by the
// periodic marketdata/stats publication job to feed the
// partition-queue-depth gauge. Not every substrate can report this
// cheaply (e.g. Kafka's own consumer-group lag accounting is out of
// scope here), so callers must type-assert and treat its absence as "no
// sample this tick", not an error.
type QueueDepthReporter interface {
	QueueDepth(streamID int) (int, bool)
}
