package kvcache

import (
	"container/heap"

	"github.com/thermasched/thermasched/core"
)

// EvictionPolicy selects a victim block from a node's evictable set.
// Grounded on sim/kvcache.go's reverse-order LRU free list, generalized
// to a pluggable interface so the coordinator can swap policies per
// spec.md §4.3 (lru, lfu, fifo, cost_aware).
type EvictionPolicy interface {
	// Touch records an access to block id — policies that rank by
	// recency or frequency update their bookkeeping here.
	Touch(id core.BlockHandle, nowUs int64)
	// Track begins tracking a newly allocated block.
	Track(id core.BlockHandle, nowUs int64, recomputeCostMs float64)
	// Forget stops tracking a freed or evicted block.
	Forget(id core.BlockHandle)
	// Victim picks an evictable block from candidates, or false if none
	// can be evicted (all pinned/referenced/locked).
	Victim(candidates []*core.CacheBlock) (core.BlockHandle, bool)
}

// NewEvictionPolicy constructs the named policy, defaulting to LRU for
// an unrecognized name (Config.Validate should already reject those).
func NewEvictionPolicy(name core.EvictionPolicyName) EvictionPolicy {
	switch name {
	case core.EvictionLFU:
		return newLFUPolicy()
	case core.EvictionFIFO:
		return newFIFOPolicy()
	case core.EvictionCostAware:
		return newCostAwarePolicy()
	default:
		return newLRUPolicy()
	}
}

// lruPolicy evicts the least-recently-accessed evictable block, the
// same reverse-order recency rule sim/kvcache.go's free list encodes,
// generalized from list position to an explicit last-access timestamp
// so it composes with MESI/refcount eligibility checks.
type lruPolicy struct {
	lastAccess map[core.BlockHandle]int64
}

func newLRUPolicy() *lruPolicy { return &lruPolicy{lastAccess: make(map[core.BlockHandle]int64)} }

func (p *lruPolicy) Touch(id core.BlockHandle, nowUs int64)                      { p.lastAccess[id] = nowUs }
func (p *lruPolicy) Track(id core.BlockHandle, nowUs int64, _ float64)           { p.lastAccess[id] = nowUs }
func (p *lruPolicy) Forget(id core.BlockHandle)                                  { delete(p.lastAccess, id) }
func (p *lruPolicy) Victim(candidates []*core.CacheBlock) (core.BlockHandle, bool) {
	var victim core.BlockHandle
	best := int64(1<<63 - 1)
	found := false
	for _, b := range candidates {
		if !b.Evictable() {
			continue
		}
		t := p.lastAccess[b.ID]
		if !found || t < best {
			victim, best, found = b.ID, t, true
		}
	}
	return victim, found
}

// lfuPolicy evicts the evictable block with the lowest access count,
// ties broken by oldest last access.
type lfuPolicy struct {
	counts     map[core.BlockHandle]int64
	lastAccess map[core.BlockHandle]int64
}

func newLFUPolicy() *lfuPolicy {
	return &lfuPolicy{counts: make(map[core.BlockHandle]int64), lastAccess: make(map[core.BlockHandle]int64)}
}

func (p *lfuPolicy) Touch(id core.BlockHandle, nowUs int64) {
	p.counts[id]++
	p.lastAccess[id] = nowUs
}
func (p *lfuPolicy) Track(id core.BlockHandle, nowUs int64, _ float64) {
	p.counts[id] = 0
	p.lastAccess[id] = nowUs
}
func (p *lfuPolicy) Forget(id core.BlockHandle) {
	delete(p.counts, id)
	delete(p.lastAccess, id)
}
func (p *lfuPolicy) Victim(candidates []*core.CacheBlock) (core.BlockHandle, bool) {
	var victim core.BlockHandle
	bestCount := int64(1<<63 - 1)
	bestTime := int64(1<<63 - 1)
	found := false
	for _, b := range candidates {
		if !b.Evictable() {
			continue
		}
		c, t := p.counts[b.ID], p.lastAccess[b.ID]
		if !found || c < bestCount || (c == bestCount && t < bestTime) {
			victim, bestCount, bestTime, found = b.ID, c, t, true
		}
	}
	return victim, found
}

// fifoPolicy evicts the evictable block that was allocated first,
// ignoring access pattern entirely — the creation-order analogue of
// sim/kvcache.go's free list, without the recency re-ordering LRU adds
// on access.
type fifoPolicy struct {
	createdAt map[core.BlockHandle]int64
}

func newFIFOPolicy() *fifoPolicy { return &fifoPolicy{createdAt: make(map[core.BlockHandle]int64)} }

func (p *fifoPolicy) Touch(core.BlockHandle, int64) {}
func (p *fifoPolicy) Track(id core.BlockHandle, nowUs int64, _ float64) {
	p.createdAt[id] = nowUs
}
func (p *fifoPolicy) Forget(id core.BlockHandle) { delete(p.createdAt, id) }
func (p *fifoPolicy) Victim(candidates []*core.CacheBlock) (core.BlockHandle, bool) {
	var victim core.BlockHandle
	best := int64(1<<63 - 1)
	found := false
	for _, b := range candidates {
		if !b.Evictable() {
			continue
		}
		t := p.createdAt[b.ID]
		if !found || t < best {
			victim, best, found = b.ID, t, true
		}
	}
	return victim, found
}

// costAwarePolicy evicts the block with the lowest recompute-cost-per-
// byte (spec.md §4.3's recompute-vs-keep economic choice:
// recompute_cost_ms / size_bytes, not raw recompute_cost_ms — a
// cheap-to-recompute block is still a good keep if it's tiny), using a
// min-heap the way sim/cluster/event_heap.go implements
// container/heap.Interface for deterministic priority ordering — ties
// broken by block ID instead of timestamp/type/event-id.
type costAwarePolicy struct {
	costs map[core.BlockHandle]float64
}

type costItem struct {
	id    core.BlockHandle
	ratio float64
}

type costHeap []*costItem

func (h costHeap) Len() int { return len(h) }
func (h costHeap) Less(i, j int) bool {
	if h[i].ratio != h[j].ratio {
		return h[i].ratio < h[j].ratio
	}
	return h[i].id < h[j].id
}
func (h costHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *costHeap) Push(x interface{}) { *h = append(*h, x.(*costItem)) }
func (h *costHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newCostAwarePolicy() *costAwarePolicy {
	return &costAwarePolicy{costs: make(map[core.BlockHandle]float64)}
}

func (p *costAwarePolicy) Touch(core.BlockHandle, int64) {}
func (p *costAwarePolicy) Track(id core.BlockHandle, _ int64, recomputeCostMs float64) {
	p.costs[id] = recomputeCostMs
}
func (p *costAwarePolicy) Forget(id core.BlockHandle) { delete(p.costs, id) }
func (p *costAwarePolicy) Victim(candidates []*core.CacheBlock) (core.BlockHandle, bool) {
	h := make(costHeap, 0, len(candidates))
	for _, b := range candidates {
		if !b.Evictable() {
			continue
		}
		cost, ok := p.costs[b.ID]
		if !ok {
			cost = b.RecomputeCostMs
		}
		size := b.SizeBytes()
		if size <= 0 {
			size = 1
		}
		h = append(h, &costItem{id: b.ID, ratio: cost / float64(size)})
	}
	if len(h) == 0 {
		return 0, false
	}
	heap.Init(&h)
	victim := heap.Pop(&h).(*costItem)
	return victim.id, true
}
