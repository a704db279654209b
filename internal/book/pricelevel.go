package book

import "github.com/abdoElHodaky/tradsys-oms/internal/pool"

// addOrderToLevel appends orderH to the tail of the level's FIFO list in O(1)
// and folds its quantity into TotalQty. levelH is the level's own
// handle, stamped onto the order so cancel can find its owning level.
func addOrderToLevel(orderPool *pool.Pool[Order], level *PriceLevel, levelH, orderH pool.Handle) {
	o := orderPool.Get(orderH)
	o.level = levelH
	o.prev = level.tail
	o.next = pool.NilHandle

	if level.tail != pool.NilHandle {
		orderPool.Get(level.tail).next = orderH
	} else {
		level.head = orderH
	}
	level.tail = orderH
	level.TotalQty += o.Qty
}

// removeOrderFromLevel unlinks orderH from level in O(1) using its
// prev/next handles and subtracts its remaining quantity from TotalQty.
func removeOrderFromLevel(orderPool *pool.Pool[Order], level *PriceLevel, orderH pool.Handle) {
	o := orderPool.Get(orderH)

	if o.prev != pool.NilHandle {
		orderPool.Get(o.prev).next = o.next
	} else {
		level.head = o.next
	}
	if o.next != pool.NilHandle {
		orderPool.Get(o.next).prev = o.prev
	} else {
		level.tail = o.prev
	}

	level.TotalQty -= o.Qty
	o.prev = pool.NilHandle
	o.next = pool.NilHandle
	o.level = pool.NilHandle
}
