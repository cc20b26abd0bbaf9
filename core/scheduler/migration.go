package scheduler

import (
	"github.com/thermasched/thermasched/core"
)

// MigrationNotifier is called when the scheduler decides to migrate a
// running job to a new device, so the KV Cache Coordinator can start
// transferring its blocks (spec.md §4.5's migration rule: "the cache
// hint is updated to the target; the block coordinator starts the
// block transfer; only after the blocks arrive and are Shared/
// Exclusive on the target does the job resume").
type MigrationNotifier func(job *core.Job, from, to core.DeviceHandle)

// RunMigrationPolicy implements spec.md §4.5's per-tick migration
// check: if any device is in Critical and another device in Optimal
// could host one of its running jobs (feasibility + affinity >= 0.5 *
// cache_hit_value), issue a migration. Migration is preemptive: the
// source job transitions running -> preempted -> pending with a
// migration flag, and the cache hint moves to the target.
func (s *Scheduler) RunMigrationPolicy(bands map[core.DeviceHandle]core.ThermalBand, notify MigrationNotifier) {
	if notify == nil {
		notify = func(*core.Job, core.DeviceHandle, core.DeviceHandle) {}
	}
	devices := s.devices.Iter()
	byHandle := make(map[core.DeviceHandle]core.Device, len(devices))
	for _, d := range devices {
		byHandle[d.Handle] = d
	}

	var optimalDevices []core.Device
	for h, b := range bands {
		if b == core.BandOptimal {
			if d, ok := byHandle[h]; ok {
				optimalDevices = append(optimalDevices, d)
			}
		}
	}
	if len(optimalDevices) == 0 {
		return
	}

	s.mu.Lock()
	criticalJobs := make([]*core.Job, 0)
	for _, job := range s.active {
		if job.State != core.JobRunning {
			continue
		}
		if bands[job.AssignedDevice] == core.BandCritical {
			criticalJobs = append(criticalJobs, job)
		}
	}
	s.mu.Unlock()

	for _, job := range criticalJobs {
		for _, target := range optimalDevices {
			if target.Handle == job.AssignedDevice {
				continue
			}
			if target.Capacity.MemoryBytes < job.Workload.MemoryBytes {
				continue
			}
			affinity := 0.0
			if job.Cache.HasPrefix && job.Cache.CacheHolderDevice == target.Handle {
				affinity = s.cfg.CacheHitValue
			}
			if affinity < 0.5*s.cfg.CacheHitValue {
				continue
			}
			s.migrate(job, target.Handle, notify)
			break
		}
	}
}

// migrate performs the preemptive state transition of spec.md §4.5:
// running -> preempted -> pending, with the migration flag set and the
// cache hint updated to the target. The job re-enters the queue at
// once and is re-placed through the normal placement path; nothing here
// waits for its blocks to arrive on the target first.
func (s *Scheduler) migrate(job *core.Job, target core.DeviceHandle, notify MigrationNotifier) {
	from := job.AssignedDevice
	job.State = core.JobPreempted
	job.Migrating = true
	job.PreMigrationCacheHolder = job.Cache.CacheHolderDevice
	job.Cache.CacheHolderDevice = target

	notify(job, from, target)

	job.State = core.JobPending
	s.mu.Lock()
	delete(s.active, job.ID)
	s.stats.Migrations++
	s.mu.Unlock()
	_ = s.q.requeue(job)
}

// RollbackMigration undoes an in-flight migration's cache-hint change
// (spec.md §8 invariant 9: "if migration fails mid-way, the job
// returns to pending with its pre-migration cache holder; no block
// bytes leak"). Callers drive this: the scheduler only owns the job's
// state/cache-hint transition, not the KV block transfer itself, so
// the caller that attempted the block copy (and knows it failed) is
// the one that must also free whatever it speculatively allocated on
// the target device before calling this — RollbackMigration's job-side
// half of the invariant is reverting the hint, not freeing bytes.
// Returns false if job was not mid-migration (nothing to roll back).
func (s *Scheduler) RollbackMigration(job *core.Job) bool {
	if job == nil || !job.Migrating {
		return false
	}
	job.Cache.CacheHolderDevice = job.PreMigrationCacheHolder
	job.PreMigrationCacheHolder = ""
	job.Migrating = false
	job.State = core.JobPending
	return true
}
