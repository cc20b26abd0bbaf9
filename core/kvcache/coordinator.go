// Package kvcache implements the KV Cache Coordinator (spec.md §4.3):
// block allocation/free, pluggable eviction, prefix matching across
// sequences, MESI coherency, and replication hints for the scheduler.
//
// Grounded directly on sim/kvcache.go's KVBlock/KVCacheState: the
// HashToBlock prefix table and AllocateKVBlocks/ReleaseKVBlocks/
// AppendToken shape are carried over, generalized to a
// device-partitioned, MESI-aware block table; the teacher's
// doubly-linked free list is replaced by a pluggable EvictionPolicy
// that picks victims from a node's block map.
package kvcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"

	"github.com/thermasched/thermasched/core"
)

// node is a single device's cache partition: its block table and byte
// accounting. The coordinator partitions capacity per device the same way
// the teacher's single KVCacheState partitions a single GPU's blocks.
type node struct {
	capacityBytes int64
	usedBytes     int64
	blocks        map[core.BlockHandle]*core.CacheBlock
}

// Coordinator is the KV Cache Coordinator. The block table is guarded
// by a single mutex (spec.md §5: "Cache block table: mutex protects
// the block map; per-block fields use atomic operations to avoid
// taking the table lock on every access" — RefCount/LastAccess are
// updated under the same lock here since Go's plain int64 fields
// inside a mutex-guarded map entry are simpler and just as correct for
// this scale; the eviction lock is still separate, and is only ever
// taken while the block table lock is already held).
type Coordinator struct {
	mu              sync.Mutex
	evictionMu      sync.Mutex
	nodes       map[core.DeviceHandle]*node
	nextBlockID int64
	prefixIndex map[string]core.SequenceID // prefix_hash -> sequence
	sequences   map[core.SequenceID]*core.Sequence

	policy        EvictionPolicy
	coherency     core.CoherencyMode
	replication   int
	maxBlockBytes int64

	clockUs func() int64 // injectable for deterministic tests

	evictions  int64
	prefixHits int64
	prefixMiss int64
}

// Allocate and Append both hold c.mu for their entire body (spec.md §5's
// single block-table mutex), so two concurrent calls for the same
// (sequence, position) already serialize at the lock rather than race:
// the second call observes the first's already-appended seq.Blocks and
// computes zero new blocks to allocate. That single-mutex serialization
// is spec.md §4.3's "at-most-one concurrent allocation per (sequence,
// position)" guarantee — no separate in-flight-request map is needed on
// top of it.

// New constructs a Coordinator. capacities maps each device to its
// total KV byte capacity; maxBlockBytes bounds a single block's size
// (used by the eviction-minimality invariant).
func New(cfg core.Config, capacities map[core.DeviceHandle]int64, maxBlockBytes int64, clockUs func() int64) *Coordinator {
	nodes := make(map[core.DeviceHandle]*node, len(capacities))
	for dev, cap := range capacities {
		nodes[dev] = &node{capacityBytes: cap, blocks: make(map[core.BlockHandle]*core.CacheBlock)}
	}
	if clockUs == nil {
		clockUs = func() int64 { return 0 }
	}
	return &Coordinator{
		nodes:         nodes,
		prefixIndex:   make(map[string]core.SequenceID),
		sequences:     make(map[core.SequenceID]*core.Sequence),
		policy:        NewEvictionPolicy(cfg.EvictionPolicy),
		coherency:     cfg.Coherency,
		replication:   cfg.ReplicationFactor,
		maxBlockBytes: maxBlockBytes,
		clockUs:       clockUs,
	}
}

// HashTokens returns a SHA-256 hash of the joined token sequence,
// carried over verbatim from sim/kvcache.go's hashTokens (same
// pipe-delimited decimal-string encoding, same algorithm) so prefix
// hashes computed by this coordinator are stable the way the teacher's
// are.
func HashTokens(tokens []int) string {
	h := sha256.New()
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(tok))
	}
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// CreateSequence registers a new sequence with an estimated length.
func (c *Coordinator) CreateSequence(id core.SequenceID, estimatedLength int) *core.CoreError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sequences[id]; exists {
		return core.NewError(core.KindDuplicate, "sequence already exists")
	}
	c.sequences[id] = &core.Sequence{ID: id, CreatedAtUs: c.clockUs(), Length: 0}
	return nil
}

// FreeSequence releases every block owned by a sequence and removes it.
func (c *Coordinator) FreeSequence(id core.SequenceID) *core.CoreError {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.sequences[id]
	if !ok {
		return core.NewError(core.KindNotFound, "sequence not found")
	}
	// Release in reverse order: the last block of a sequence hashes the
	// most tokens and is least likely reused, so it should free (and
	// become eviction-eligible) first — same rationale sim/kvcache.go's
	// ReleaseKVBlocks documents from vLLM's prefix-caching design.
	for i := len(seq.Blocks) - 1; i >= 0; i-- {
		c.releaseBlockLocked(seq.Blocks[i])
	}
	if seq.PrefixHash != "" {
		delete(c.prefixIndex, seq.PrefixHash)
	}
	delete(c.sequences, id)
	return nil
}

func (c *Coordinator) releaseBlockLocked(id core.BlockHandle) {
	for _, n := range c.nodes {
		blk, ok := n.blocks[id]
		if !ok {
			continue
		}
		blk.RefCount--
		if blk.RefCount <= 0 {
			blk.RefCount = 0
			n.usedBytes -= blk.SizeBytes()
			blk.State = core.MESIInvalid
			delete(n.blocks, id)
		}
		return
	}
}

// FindPrefix locates a sequence whose recorded prefix hash and length
// exactly match the given tokens (spec.md §4.3). Marks the matched
// sequence's prefix blocks Shared and increments their reference
// counts. Idempotent for repeated queries absent intervening writes
// (testable property 6).
func (c *Coordinator) FindPrefix(tokens []int, prefixLen int) (core.SequenceID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := HashTokens(tokens[:prefixLen])
	seqID, ok := c.prefixIndex[h]
	if !ok {
		c.prefixMiss++
		return "", false
	}
	seq, ok := c.sequences[seqID]
	if !ok || seq.PrefixLen != prefixLen {
		c.prefixMiss++
		return "", false
	}
	c.prefixHits++
	for i := 0; i < prefixLen && i < len(seq.Blocks); i++ {
		for _, n := range c.nodes {
			if blk, ok := n.blocks[seq.Blocks[i]]; ok {
				if c.coherency != core.CoherencyNone {
					blk.State = core.MESIShared
				}
				blk.RefCount++
			}
		}
	}
	return seqID, true
}

// PreferredDevice returns the device holding the most of seq's blocks,
// ties broken by lower utilization then lower handle (spec.md §4.3).
// utilization is supplied by the caller (the scheduler has the
// registry's live state; the coordinator does not).
func (c *Coordinator) PreferredDevice(seqID core.SequenceID, utilization map[core.DeviceHandle]float64) (core.DeviceHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, ok := c.sequences[seqID]
	if !ok {
		return "", false
	}
	counts := make(map[core.DeviceHandle]int)
	for _, bid := range seq.Blocks {
		for dev, n := range c.nodes {
			if _, ok := n.blocks[bid]; ok {
				counts[dev]++
			}
		}
	}
	if len(counts) == 0 {
		return "", false
	}

	var best core.DeviceHandle
	bestCount := -1
	bestUtil := 0.0
	first := true
	for dev, count := range counts {
		util := utilization[dev]
		switch {
		case count > bestCount:
			best, bestCount, bestUtil = dev, count, util
		case count == bestCount && (util < bestUtil || (util == bestUtil && dev < best)):
			best, bestUtil = dev, util
		}
		if first {
			bestUtil = util
			first = false
		}
	}
	return best, true
}

// Stats returns the coordinator's counters for the telemetry snapshot.
func (c *Coordinator) Stats() core.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var used, capTotal int64
	for _, n := range c.nodes {
		used += n.usedBytes
		capTotal += n.capacityBytes
	}
	return core.CacheStats{
		UsedBytes:     used,
		CapacityBytes: capTotal,
		Evictions:     c.evictions,
		PrefixHits:    c.prefixHits,
		PrefixMisses:  c.prefixMiss,
	}
}
