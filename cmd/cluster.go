package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/thermasched/thermasched/core"
	"github.com/thermasched/thermasched/core/control"
	"github.com/thermasched/thermasched/core/kvcache"
	"github.com/thermasched/thermasched/core/registry"
	"github.com/thermasched/thermasched/core/routing"
	"github.com/thermasched/thermasched/core/scheduler"
	"github.com/thermasched/thermasched/core/thermal"
)

// cluster bundles the fully wired module graph one CLI invocation
// operates on: a Device Registry feeding the Routing Engine and
// Scheduler, a KV Cache Coordinator hooked to scheduler commits, a
// Thermal Model feeding both the scheduler's safety gate and the
// Control Loop, and the Control Loop tying them together.
//
// Grounded on cmd/root.go's runCmd, which builds a fresh
// sim.NewSimulator(...) graph per invocation from flags/config and runs
// it once to completion; this CLI is stateless across invocations in
// the same way, rebuilding its module graph from --cluster/--jobs each
// time rather than keeping a long-lived daemon.
type cluster struct {
	cfg    core.Config
	reg    *registry.Registry
	routes *routing.Engine
	cache  *kvcache.Coordinator
	therm  *thermal.Model
	sched  *scheduler.Scheduler
	loop   *control.Loop
}

// buildCluster constructs the full module graph from a ClusterSpec and
// a core.Config, wiring the scheduler's commit notifications into the
// KV cache coordinator's replication path and the control loop's
// throttle decisions back into the registry's live state.
func buildCluster(cfg core.Config, topo ClusterSpec) (*cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := registry.New(cfg.MaxDevices)
	capacities := make(map[core.DeviceHandle]int64, len(topo.Devices))
	for _, ds := range topo.Devices {
		d := ds.toDevice()
		handle, cerr := reg.Register(d)
		if cerr != nil {
			return nil, fmt.Errorf("registering device %s: %w", ds.Handle, cerr)
		}
		capacities[handle] = d.Capacity.MemoryBytes
	}

	routes := routing.New(reg, cfg)
	cache := kvcache.New(cfg, capacities, 16<<20, nil)
	thermModel := thermal.NewModel(nil, cfg.Bands)

	c := &cluster{cfg: cfg, reg: reg, routes: routes, cache: cache, therm: thermModel}

	gate := scheduler.DefaultSafetyGate(cfg)
	c.sched = scheduler.New(cfg, reg, routes, thermModel, gate, c.onCommit)

	c.loop = control.New(
		cfg.ControlInterval,
		reg,
		thermModel,
		c.runMigrations,
		c.applyThrottle,
		c.publish,
		c.sched.SnapshotStats,
		c.cache.Stats,
	)
	return c, nil
}

// onCommit is the scheduler's CommitNotifier: bumps the device's active
// job count and, for jobs carrying a KV prefix, begins replication onto
// the device they were committed to (spec.md §4.5 step 5).
func (c *cluster) onCommit(job *core.Job, device core.DeviceHandle) {
	if cerr := c.reg.IncrActiveJobs(device); cerr != nil {
		logrus.Warnf("[cluster] commit notify: %v", cerr)
	}
	logrus.Infof("[cluster] job %s committed to %s", job.ID, device)
	// This CLI has no standalone execution layer to report back once a
	// job actually starts — it drives the scheduler to completion in one
	// pass (submitAll) rather than running a long-lived daemon — so
	// commit is treated as the start-of-execution signal too, the same
	// tick MarkRunning would be called from a real executor.
	if cerr := c.sched.MarkRunning(job.ID); cerr != nil {
		logrus.Warnf("[cluster] mark running %s: %v", job.ID, cerr)
	}
	if !job.Cache.HasPrefix || job.Cache.CacheHolderDevice == "" || job.Cache.CacheHolderDevice == device {
		return
	}
	// Replicate is a no-op (KindNotFound) unless the job's prefix was
	// already registered as a sequence via CreateSequence/Allocate — the
	// CLI's JobSpec only carries a coarse CacheDescriptor, not raw
	// tokens, so that registration is left to callers embedding this
	// package directly rather than done here.
	opts := kvcache.AllocateOptions{BlockSizeTokens: 16, BytesPerToken: 2, RecomputeCostMs: 50}
	seqID := core.SequenceID(fmt.Sprintf("job-%d", job.ID))
	if cerr := c.cache.Replicate(seqID, device, opts); cerr != nil {
		logrus.Debugf("[cluster] replicate cache for job %s onto %s: %v", job.ID, device, cerr)
	}
}

// runMigrations adapts scheduler.Scheduler.RunMigrationPolicy to the
// control.MigrationRunner shape.
func (c *cluster) runMigrations(bands map[core.DeviceHandle]core.ThermalBand) {
	c.sched.RunMigrationPolicy(bands, func(job *core.Job, from, to core.DeviceHandle) {
		logrus.Infof("[cluster] migrating job %s from %s to %s", job.ID, from, to)
	})
}

// applyThrottle pushes a computed throttle percentage down into the
// registry's live state, the same way the control loop's teacher
// equivalent (sim/cluster/cluster.go) writes derived per-tick state
// back onto its simulated instances.
func (c *cluster) applyThrottle(device core.DeviceHandle, percent float64) {
	d, cerr := c.reg.Get(device)
	if cerr != nil {
		return
	}
	limit := thermal.ApplyThrottle(d, percent)
	live := d.Live
	if live.PowerWatts > limit {
		live.PowerWatts = limit
	}
	if cerr := c.reg.UpdateState(device, live); cerr != nil {
		logrus.Warnf("[cluster] apply throttle to %s: %v", device, cerr)
	}
}

func (c *cluster) publish(snap core.Snapshot) {
	logrus.Debugf("[cluster] tick published: avg_inlet=%.1f°C pue=%.2f queue_depth=%d",
		snap.Aggregates.AvgInletTempC, snap.Aggregates.PUE, snap.SchedulerStats.QueueDepth)
}

// submitAll submits every job in a WorkloadSpec and drains the queue by
// repeatedly stepping the scheduler, mirroring cmd/root.go's
// GeneratePoissonArrivals-then-Run two-phase structure (load, then
// drive to completion).
func (c *cluster) submitAll(jobs WorkloadSpec) ([]core.JobID, error) {
	ids := make([]core.JobID, 0, len(jobs.Jobs))
	for i, js := range jobs.Jobs {
		id, cerr := c.sched.Submit(js.toDescriptor())
		if cerr != nil {
			return ids, fmt.Errorf("submitting job %d: %w", i, cerr)
		}
		ids = append(ids, id)
	}
	for c.sched.QueueDepth() > 0 {
		if !c.sched.Step() {
			break
		}
	}
	return ids, nil
}
