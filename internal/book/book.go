package book

import (
	"math"

	"github.com/abdoElHodaky/tradsys-oms/internal/pool"
	"github.com/abdoElHodaky/tradsys-oms/internal/wire"
)

// FillFunc is invoked once per execution during matching. The book
// always reports the aggressor's side; callers emit two FILL wire
// messages per execution, passing aggressorSide.Opposite() on the
// passive party's copy so each recipient sees its own side. See
// engine.Partition.dispatchFill.
type FillFunc func(aggressorID, passiveID uint64, aggressorSess, passiveSess uint32,
	instrumentID uint32, aggressorSide wire.Side, price int64, qty, aggressorLeaves, passiveLeaves uint64)

// LevelView is a read-only aggregated price level, for depth snapshots.
type LevelView struct {
	Price int64
	Qty   uint64
	Count int
}

// LimitOrderBook is one instrument's book: two sorted sides and an
// id->order index. Both the order and level arenas are owned by the
// engine partition and shared across every instrument it serves; the
// book only borrows/releases handles from them.
type LimitOrderBook struct {
	InstrumentID uint32

	bids *side
	asks *side

	orderIndex map[uint64]pool.Handle
	orderPool  *pool.Pool[Order]
	levelPool  *pool.Pool[PriceLevel]
}

// NewLimitOrderBook creates an empty book for instrumentID backed by the
// partition's shared order/level pools.
func NewLimitOrderBook(instrumentID uint32, orderPool *pool.Pool[Order], levelPool *pool.Pool[PriceLevel]) *LimitOrderBook {
	return &LimitOrderBook{
		InstrumentID: instrumentID,
		bids:         newSide(true),
		asks:         newSide(false),
		orderIndex:   make(map[uint64]pool.Handle),
		orderPool:    orderPool,
		levelPool:    levelPool,
	}
}

// BestBid returns the highest resting bid price, or math.MinInt64 if
// the bid side is empty.
func (b *LimitOrderBook) BestBid() int64 {
	if p, ok := b.bids.bestPrice(); ok {
		return p
	}
	return math.MinInt64
}

// BestAsk returns the lowest resting ask price, or math.MaxInt64 if the
// ask side is empty.
func (b *LimitOrderBook) BestAsk() int64 {
	if p, ok := b.asks.bestPrice(); ok {
		return p
	}
	return math.MaxInt64
}

// AddOrder matches orderH against the opposing side, then either drops
// it (fully filled, or an unfilled IOC remainder) or rests it (GTC with
// quantity remaining). It returns true iff the order now rests in the
// book. The order must already be populated and borrowed from
// orderPool by the caller.
func (b *LimitOrderBook) AddOrder(orderH pool.Handle, cb FillFunc) bool {
	o := b.orderPool.Get(orderH)

	if o.Side == wire.SideBuy {
		b.match(b.asks, orderH, wire.SideBuy, cb)
	} else {
		b.match(b.bids, orderH, wire.SideSell, cb)
	}

	if o.Qty == 0 {
		b.orderPool.Release(orderH)
		return false
	}
	if o.TIF == wire.IOC {
		b.orderPool.Release(orderH)
		return false
	}
	return b.rest(orderH, o)
}

// match walks oppSide from the best price outward, executing against
// resting orders in time priority until the aggressor is filled or no
// more crossing is possible. Fill price is always the passive order's
// price; the aggressor's price only gates whether a cross occurs.
func (b *LimitOrderBook) match(oppSide *side, aggressorH pool.Handle, aggressorSide wire.Side, cb FillFunc) {
	aggressor := b.orderPool.Get(aggressorH)

	for aggressor.Qty > 0 {
		bestPrice, ok := oppSide.bestPrice()
		if !ok {
			break
		}
		if aggressorSide == wire.SideBuy && aggressor.Price < bestPrice {
			break
		}
		if aggressorSide == wire.SideSell && aggressor.Price > bestPrice {
			break
		}

		levelH, _ := oppSide.get(bestPrice)
		level := b.levelPool.Get(levelH)

		passiveH := level.head
		for passiveH != pool.NilHandle && aggressor.Qty > 0 {
			passive := b.orderPool.Get(passiveH)

			fillQty := min(aggressor.Qty, passive.Qty)
			aggressor.Qty -= fillQty
			passive.Qty -= fillQty
			level.TotalQty -= fillQty

			if cb != nil {
				cb(aggressor.InternalOrderID, passive.InternalOrderID,
					aggressor.SessionID, passive.SessionID, aggressor.InstrumentID,
					aggressorSide, bestPrice, fillQty, aggressor.Qty, passive.Qty)
			}

			next := passive.next
			if passive.Qty == 0 {
				removeOrderFromLevel(b.orderPool, level, passiveH)
				delete(b.orderIndex, passive.InternalOrderID)
				b.orderPool.Release(passiveH)
			}
			passiveH = next
		}

		if level.Empty() {
			oppSide.remove(bestPrice)
			b.levelPool.Release(levelH)
		}
	}
}

// rest inserts orderH into its own side, creating a new PriceLevel if
// none exists yet at its price. It returns false (order dropped, not
// rested) only in the rare case the level pool is exhausted and a new
// level is required; the caller has already published an ACK for this
// order by this point. engine.Partition ignores AddOrder's result, so
// this drop emits no reject and is not logged or counted.
func (b *LimitOrderBook) rest(orderH pool.Handle, o *Order) bool {
	s := b.sideFor(o.Side)

	levelH, ok := s.get(o.Price)
	var level *PriceLevel
	if !ok {
		newH, borrowed := b.levelPool.Borrow()
		if !borrowed {
			b.orderPool.Release(orderH)
			return false
		}
		level = b.levelPool.Get(newH)
		level.Price = o.Price
		level.head = pool.NilHandle
		level.tail = pool.NilHandle
		s.insert(o.Price, newH)
		levelH = newH
	} else {
		level = b.levelPool.Get(levelH)
	}

	addOrderToLevel(b.orderPool, level, levelH, orderH)
	b.orderIndex[o.InternalOrderID] = orderH
	return true
}

// Cancel removes a resting order by id. It returns false if the id is
// not currently resting.
func (b *LimitOrderBook) Cancel(internalOrderID uint64) bool {
	orderH, ok := b.orderIndex[internalOrderID]
	if !ok {
		return false
	}
	delete(b.orderIndex, internalOrderID)

	o := b.orderPool.Get(orderH)
	levelH := o.level
	level := b.levelPool.Get(levelH)

	removeOrderFromLevel(b.orderPool, level, orderH)
	if level.Empty() {
		b.sideFor(o.Side).remove(level.Price)
		b.levelPool.Release(levelH)
	}
	b.orderPool.Release(orderH)
	return true
}

func (b *LimitOrderBook) sideFor(s wire.Side) *side {
	if s == wire.SideBuy {
		return b.bids
	}
	return b.asks
}

// Snapshot returns up to maxLevels aggregated price levels per side,
// best price first. It is a read-only market-data view built for the
// periodic depth publication job, not used by matching itself.
func (b *LimitOrderBook) Snapshot(maxLevels int) (bids, asks []LevelView) {
	return b.levelsView(b.bids, maxLevels), b.levelsView(b.asks, maxLevels)
}

func (b *LimitOrderBook) levelsView(s *side, maxLevels int) []LevelView {
	prices := s.pricesBestFirst()
	if len(prices) > maxLevels {
		prices = prices[:maxLevels]
	}
	out := make([]LevelView, 0, len(prices))
	for _, p := range prices {
		lh, _ := s.get(p)
		level := b.levelPool.Get(lh)
		count := 0
		for oh := level.head; oh != pool.NilHandle; oh = b.orderPool.Get(oh).next {
			count++
		}
		out = append(out, LevelView{Price: p, Qty: level.TotalQty, Count: count})
	}
	return out
}
