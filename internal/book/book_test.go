package book

import (
	"math"
	"testing"

	"github.com/abdoElHodaky/tradsys-oms/internal/pool"
	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
	"github.com/stretchr/testify/require"
)

type fill struct {
	aggressorID, passiveID              uint64
	aggressorSess, passiveSess          uint32
	side                                wire.Side
	price                               int64
	qty, aggressorLeaves, passiveLeaves uint64
}

func newTestBook(t *testing.T, orderCap, levelCap int) (*LimitOrderBook, *pool.Pool[Order]) {
	t.Helper()
	op := pool.New[Order](orderCap)
	lp := pool.New[PriceLevel](levelCap)
	return NewLimitOrderBook(1, op, lp), op
}

// submit borrows an order, populates it and calls AddOrder, returning
// the handle (valid only if the order now rests) and whether it rests.
func submit(t *testing.T, b *LimitOrderBook, op *pool.Pool[Order], id uint64, sess uint32, side wire.Side, tif wire.TimeInForce, price int64, qty uint64, fills *[]fill) (pool.Handle, bool) {
	t.Helper()
	h, ok := op.Borrow()
	require.True(t, ok, "order pool exhausted in test")
	o := op.Get(h)
	o.InternalOrderID = id
	o.SessionID = sess
	o.InstrumentID = 1
	o.Side = side
	o.TIF = tif
	o.Price = price
	o.Qty = qty
	o.OrigQty = qty

	resting := b.AddOrder(h, func(aggID, passID uint64, aggSess, passSess uint32, instr uint32, aggSide wire.Side, price int64, qty, aggLeaves, passLeaves uint64) {
		*fills = append(*fills, fill{aggID, passID, aggSess, passSess, aggSide, price, qty, aggLeaves, passLeaves})
	})
	return h, resting
}

func TestS1_FullCross(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 50, &fills)
	_, resting := submit(t, b, op, 2, 200, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 50, &fills)

	require.False(t, resting)
	require.Len(t, fills, 1)
	f := fills[0]
	require.Equal(t, uint64(2), f.aggressorID)
	require.Equal(t, uint64(1), f.passiveID)
	require.Equal(t, int64(100*wire.PriceScale), f.price)
	require.Equal(t, uint64(50), f.qty)
	require.Equal(t, uint64(0), f.aggressorLeaves)
	require.Equal(t, uint64(0), f.passiveLeaves)

	bids, asks := b.Snapshot(10)
	require.Len(t, bids, 0)
	require.Len(t, asks, 0)
}

func TestS2_PartialFill(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 30, &fills)
	_, resting := submit(t, b, op, 2, 200, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 100, &fills)

	require.True(t, resting)
	require.Len(t, fills, 1)
	require.Equal(t, uint64(30), fills[0].qty)
	require.Equal(t, uint64(70), fills[0].aggressorLeaves)
	require.Equal(t, uint64(0), fills[0].passiveLeaves)

	bids, asks := b.Snapshot(10)
	require.Len(t, asks, 0)
	require.Len(t, bids, 1)
	require.Equal(t, int64(100*wire.PriceScale), bids[0].Price)
	require.Equal(t, uint64(70), bids[0].Qty)
}

func TestS3_FIFOPriority(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 20, &fills)
	submit(t, b, op, 2, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 20, &fills)
	_, resting := submit(t, b, op, 3, 200, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 40, &fills)

	require.False(t, resting)
	require.Len(t, fills, 2)
	require.Equal(t, uint64(1), fills[0].passiveID)
	require.Equal(t, uint64(2), fills[1].passiveID)
	require.Equal(t, uint64(20), fills[0].qty)
	require.Equal(t, uint64(20), fills[1].qty)

	_, asks := b.Snapshot(10)
	require.Len(t, asks, 0)
}

func TestS4_IOCRemainderDropped(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 30, &fills)
	_, resting := submit(t, b, op, 2, 200, wire.SideBuy, wire.IOC, 100*wire.PriceScale, 100, &fills)

	require.False(t, resting)
	require.Len(t, fills, 1)
	require.Equal(t, uint64(30), fills[0].qty)

	bids, _ := b.Snapshot(10)
	require.Len(t, bids, 0, "IOC remainder must not rest")
}

func TestS5_PricePriority(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 99*wire.PriceScale, 10, &fills)
	submit(t, b, op, 2, 100, wire.SideSell, wire.GTC, 101*wire.PriceScale, 10, &fills)
	_, resting := submit(t, b, op, 3, 200, wire.SideBuy, wire.GTC, 105*wire.PriceScale, 10, &fills)

	require.False(t, resting)
	require.Len(t, fills, 1)
	require.Equal(t, int64(99*wire.PriceScale), fills[0].price)
	require.Equal(t, uint64(1), fills[0].passiveID)
	require.Equal(t, int64(101*wire.PriceScale), b.BestAsk())
}

func TestS6_Cancel(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 50, &fills)
	require.Equal(t, int64(100*wire.PriceScale), b.BestBid())

	require.True(t, b.Cancel(1))
	require.Equal(t, int64(math.MinInt64), b.BestBid())
	require.False(t, b.Cancel(1), "second cancel of the same id must fail")
}

func TestNoCrossAtRest(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 10, &fills)
	_, resting := submit(t, b, op, 2, 200, wire.SideBuy, wire.GTC, 99*wire.PriceScale, 10, &fills)

	require.True(t, resting, "worse price must rest, not match")
	require.Len(t, fills, 0)
	require.LessOrEqual(t, b.BestBid(), b.BestAsk())
}

func TestEmptyOppositeSideRestsOrDrops(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	_, resting := submit(t, b, op, 1, 100, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10, &fills)
	require.True(t, resting)

	_, resting2 := submit(t, b, op, 2, 200, wire.SideSell, wire.IOC, 200*wire.PriceScale, 10, &fills)
	require.False(t, resting2, "IOC against an empty/non-crossing opposite side must drop, not rest")
}

// checkInvariants asserts the book's structural invariants: each level's
// TotalQty equals the sum of its resting orders' quantities, every
// resting order is indexed and linked into a level on its own side, and
// the book is never crossed at rest.
func checkInvariants(t *testing.T, b *LimitOrderBook) {
	t.Helper()

	resting := 0
	for _, s := range []*side{b.bids, b.asks} {
		for _, price := range s.prices {
			lh, ok := s.get(price)
			require.True(t, ok, "price in sorted set must have a level")
			level := b.levelPool.Get(lh)
			require.False(t, level.Empty(), "empty level must have been removed from its side")
			require.Equal(t, price, level.Price)

			var sum uint64
			for oh := level.head; oh != pool.NilHandle; oh = b.orderPool.Get(oh).next {
				o := b.orderPool.Get(oh)
				require.Greater(t, o.Qty, uint64(0))
				require.LessOrEqual(t, o.Qty, o.OrigQty)
				require.Equal(t, price, o.Price)
				indexed, ok := b.orderIndex[o.InternalOrderID]
				require.True(t, ok, "resting order must appear in orderIndex")
				require.Equal(t, oh, indexed)
				sum += o.Qty
				resting++
			}
			require.Equal(t, sum, level.TotalQty)
		}
	}
	require.Equal(t, resting, len(b.orderIndex), "orderIndex must hold exactly the resting orders")

	if bid, ok := b.bids.bestPrice(); ok {
		if ask, ok := b.asks.bestPrice(); ok {
			require.LessOrEqual(t, bid, ask, "book must not be crossed at rest")
		}
	}
}

func TestInvariantsAcrossMixedFlow(t *testing.T) {
	b, op := newTestBook(t, 32, 32)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 101*wire.PriceScale, 20, &fills)
	checkInvariants(t, b)
	submit(t, b, op, 2, 100, wire.SideSell, wire.GTC, 102*wire.PriceScale, 15, &fills)
	checkInvariants(t, b)
	submit(t, b, op, 3, 200, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 10, &fills)
	checkInvariants(t, b)
	require.Len(t, fills, 0, "nothing crosses yet")

	// Sweeps the whole 101 level and all of 102, then rests the remainder
	// on the bid side.
	_, resting := submit(t, b, op, 4, 300, wire.SideBuy, wire.GTC, 102*wire.PriceScale, 40, &fills)
	checkInvariants(t, b)
	require.True(t, resting)
	require.Len(t, fills, 2)
	require.Equal(t, uint64(1), fills[0].passiveID, "price priority: 101 fills before 102")
	require.Equal(t, uint64(2), fills[1].passiveID)

	var filled uint64
	for _, f := range fills {
		require.Equal(t, uint64(4), f.aggressorID)
		filled += f.qty
	}
	finalLeaves := fills[len(fills)-1].aggressorLeaves
	require.Equal(t, uint64(40), filled+finalLeaves,
		"aggressor origQty must equal filled qty plus final leaves")
	require.Equal(t, uint64(5), finalLeaves)

	require.True(t, b.Cancel(3))
	checkInvariants(t, b)
	require.True(t, b.Cancel(4))
	checkInvariants(t, b)
	require.False(t, b.Cancel(2), "fully filled order must no longer be cancellable")

	// Fully drained: everything borrowed during the flow is back.
	require.Equal(t, 0, op.Borrowed())
	require.Equal(t, op.Capacity(), op.Available())
}

func TestPoolAccountingAfterFullCross(t *testing.T) {
	b, op := newTestBook(t, 10, 10)
	var fills []fill

	submit(t, b, op, 1, 100, wire.SideSell, wire.GTC, 100*wire.PriceScale, 50, &fills)
	submit(t, b, op, 2, 200, wire.SideBuy, wire.GTC, 100*wire.PriceScale, 50, &fills)

	require.Equal(t, 0, op.Borrowed(), "both orders fully filled, pool must be fully reclaimed")
	require.Equal(t, op.Capacity(), op.Available())
}
