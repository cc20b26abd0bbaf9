package core

// CacheBlock is a unit of KV cache storage, exclusively owned by the
// KV Cache Coordinator (spec.md §3). Invariants enforced by the
// coordinator, not by this type: ref_count > 0 implies not evictable;
// state=Invalid implies its bytes are uncharged against capacity.
type CacheBlock struct {
	ID              BlockHandle
	Sequence        SequenceID
	Position        int // index within the owning sequence's block list
	State           MESIState
	LastAccessUs    int64
	AccessCount     int64
	RefCount        int64
	HoldingDevice   DeviceHandle
	KeyBytes        int64
	ValueBytes      int64
	RecomputeCostMs float64
	Dirty           bool
	Locked          bool
	CreatedAtUs     int64
}

// SizeBytes returns the block's total payload size.
func (b CacheBlock) SizeBytes() int64 { return b.KeyBytes + b.ValueBytes }

// Evictable reports whether this block may be selected as an eviction
// victim under any policy (spec.md §4.3 invariant (i)).
func (b CacheBlock) Evictable() bool {
	return b.RefCount == 0 && !b.Locked && b.State != MESIInvalid
}

// Sequence is an ordered, prefix-contiguous list of cache block ids
// belonging to one inference sequence (spec.md §3).
type Sequence struct {
	ID               SequenceID
	Blocks           []BlockHandle
	Length           int
	CreatedAtUs      int64
	LastAccessUs     int64
	PrefixHash       string
	PrefixLen        int
	PreferredDevice  DeviceHandle
}
