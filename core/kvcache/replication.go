package kvcache

import "github.com/thermasched/thermasched/core"

// Replicate copies seq's current block set's metadata onto target so a
// subsequent PreferredDevice/FindPrefix lookup can land a job on either
// device without recomputing the prefix. The caller names the target;
// the coordinator does not choose replica devices or thermal islands
// itself, and a replication factor of 1 makes this a no-op. This is a
// metadata-level mirror: the coordinator tracks that target also holds
// a copy, charged against target's capacity, but does not move bytes
// itself — the caller (scheduler/control loop) is responsible for the
// actual cross-device transfer before relying on the replica.
func (c *Coordinator) Replicate(seqID core.SequenceID, target core.DeviceHandle, opts AllocateOptions) *core.CoreError {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, ok := c.sequences[seqID]
	if !ok {
		return core.NewError(core.KindNotFound, "sequence not registered")
	}
	n, ok := c.nodes[target]
	if !ok {
		return core.NewDeviceError(core.KindUnknownDevice, target, "replication target not registered")
	}
	if c.replication <= 1 {
		return nil
	}

	now := c.clockUs()
	for _, id := range seq.Blocks {
		if _, exists := n.blocks[id]; exists {
			continue
		}
		var source *core.CacheBlock
		for _, other := range c.nodes {
			if b, ok := other.blocks[id]; ok {
				source = b
				break
			}
		}
		if source == nil {
			continue
		}
		size := source.SizeBytes()
		if n.usedBytes+size > n.capacityBytes {
			if !c.evictLocked(n, size) {
				return core.NewDeviceError(core.KindOutOfCapacity, target, "insufficient capacity to replicate sequence")
			}
		}
		// A second copy is about to exist: per MESI, the source can no
		// longer stay Modified/Exclusive (spec.md §8 invariant 5 — at
		// most one Modified-or-Exclusive copy of any block id). Writeback
		// is implicit here (the coordinator doesn't model backing
		// storage); the source just joins the replica in Shared.
		if source.State == core.MESIModified || source.State == core.MESIExclusive {
			source.State = core.MESIShared
		}
		replica := *source
		replica.HoldingDevice = target
		replica.State = core.MESIShared
		replica.LastAccessUs = now
		n.blocks[id] = &replica
		n.usedBytes += size
		c.policy.Track(id, now, source.RecomputeCostMs)
	}
	return nil
}

// ReplicationFactor returns the coordinator's configured replication
// factor, for callers deciding how many islands a hot sequence should
// be mirrored across.
func (c *Coordinator) ReplicationFactor() int { return c.replication }
