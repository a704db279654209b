package book

import (
	"sort"

	"github.com/abdoElHodaky/tradsys-oms/internal/pool"
)

// side is one half of a book: a sorted set of distinct prices, each
// mapped to the PriceLevel resting there. descending=true models the
// bid side (best = highest price); descending=false models the ask
// side (best = lowest price).
//
// prices is always kept sorted ascending regardless of descending, so a
// single sort.Search does both insert and lookup; "best" is just
// whichever end descending points at. Insert/remove are O(n) due to the
// slice shift, but distinct resting price levels per instrument are
// small in practice, and this avoids the correctness risk of a
// hand-rolled self-balancing tree.
type side struct {
	descending bool
	prices     []int64
	levels     map[int64]pool.Handle
}

func newSide(descending bool) *side {
	return &side{
		descending: descending,
		levels:     make(map[int64]pool.Handle),
	}
}

func (s *side) bestPrice() (int64, bool) {
	if len(s.prices) == 0 {
		return 0, false
	}
	if s.descending {
		return s.prices[len(s.prices)-1], true
	}
	return s.prices[0], true
}

func (s *side) get(price int64) (pool.Handle, bool) {
	h, ok := s.levels[price]
	return h, ok
}

func (s *side) insert(price int64, h pool.Handle) {
	s.levels[price] = h
	i := sort.Search(len(s.prices), func(i int) bool { return s.prices[i] >= price })
	s.prices = append(s.prices, 0)
	copy(s.prices[i+1:], s.prices[i:])
	s.prices[i] = price
}

func (s *side) remove(price int64) {
	delete(s.levels, price)
	i := sort.Search(len(s.prices), func(i int) bool { return s.prices[i] >= price })
	if i < len(s.prices) && s.prices[i] == price {
		s.prices = append(s.prices[:i], s.prices[i+1:]...)
	}
}

func (s *side) len() int { return len(s.prices) }

// pricesBestFirst returns distinct prices ordered best-to-worst, for
// depth snapshots.
func (s *side) pricesBestFirst() []int64 {
	out := make([]int64, len(s.prices))
	if s.descending {
		for i, p := range s.prices {
			out[len(s.prices)-1-i] = p
		}
		return out
	}
	copy(out, s.prices)
	return out
}
