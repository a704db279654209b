// Package book implements the per-instrument limit order book: price
// levels, the price-time matching algorithm, and O(1) cancel via an
// id->order index. It is the algorithmic heart of the OMS and is
// exercised by exactly one goroutine per partition; nothing in this
// package is safe for concurrent use.
//
// Orders and price levels are not heap objects reached through pointers;
// they live in fixed-capacity arenas (internal/pool) and refer to each
// other by pool.Handle, which keeps the intrusive prev/next/level links
// O(1) without reference cycles or GC pressure.
package book

import (
	"github.com/abdoElHodaky/tradsys-oms/internal/pool"
	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
)

// Order is one resting or in-flight order. While resting it is linked
// into exactly one PriceLevel's doubly-linked list via prev/next, and
// indexed by InternalOrderID in its book's orderIndex.
type Order struct {
	InternalOrderID uint64
	SessionID       uint32
	ClientSeqNo     uint64
	InstrumentID    uint32
	Side            wire.Side
	TIF             wire.TimeInForce
	Price           int64
	Qty             uint64
	OrigQty         uint64
	RecvTsNanos     int64

	prev  pool.Handle
	next  pool.Handle
	level pool.Handle
}

// PriceLevel is a FIFO queue of orders resting at a single price.
type PriceLevel struct {
	Price    int64
	TotalQty uint64
	head     pool.Handle
	tail     pool.Handle
}

// Empty reports whether the level has no resting orders.
func (l *PriceLevel) Empty() bool { return l.head == pool.NilHandle }
