// Package control implements the Control Loop (spec.md §4.6): a single
// cooperative task that ticks every control_interval, snapshotting
// device state, computing aggregate metrics, running the thermal
// classifier and migration policy, and publishing a telemetry
// Snapshot.
//
// Grounded on sim/cluster/cluster.go's ClusterSimulator.Run() shared-
// clock loop and its explicit ordering guarantees (the teacher
// processes cluster events before instance events at each timestamp,
// and its post-run aggregation happens only after every event at that
// clock value has committed). The teacher's loop is a logical-clock
// discrete-event loop driven by a simulated workload; this is the
// live-service analogue, using time.Ticker in place of a simulated
// clock, per spec.md §4.6's real periodic-tick requirement.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermasched/thermasched/core"
)

// DeviceSource is the read-only device view the loop snapshots each
// tick. core/registry.Registry satisfies this.
type DeviceSource interface {
	Iter() []core.Device
}

// ThermalClassifier runs the thermal band/throttle policy against a
// device's current temperature. core/thermal.Model satisfies this. The
// loop uses Band for the migration policy and the hot-device warning,
// and ThrottlePct for the per-device throttle.
type ThermalClassifier interface {
	Band(temperatureC float64) core.ThermalBand
	ThrottlePct(temperatureC float64) float64
}

// MigrationRunner runs the scheduler's migration policy for the tick.
// core/scheduler.Scheduler.RunMigrationPolicy satisfies this via a
// closure (the notify callback's signature differs per caller, so the
// loop wraps it rather than importing core/scheduler's concrete type).
type MigrationRunner func(bands map[core.DeviceHandle]core.ThermalBand)

// ThrottleApplier is called once per device per tick with its computed
// throttle percentage, so the caller (a device driver, or in this
// repo's case the registry) can push the change down. core/control
// does not own device actuation, only the decision of what to apply.
type ThrottleApplier func(device core.DeviceHandle, percent float64)

// Publisher receives the tick's finished Snapshot. Typically a
// telemetry sink (file, metrics exporter, or an in-memory ring the CLI
// reads from).
type Publisher func(core.Snapshot)

// SchedulerStatsSource supplies the scheduler-side counters for the
// published snapshot. core/scheduler.Scheduler.SnapshotStats satisfies
// this.
type SchedulerStatsSource func() core.SchedulerStats

// CacheStatsSource supplies the KV cache coordinator's counters.
// core/kvcache.Coordinator.Stats satisfies this.
type CacheStatsSource func() core.CacheStats

// Loop is the Control Loop of spec.md §4.6.
type Loop struct {
	interval      time.Duration
	devices       DeviceSource
	thermal       ThermalClassifier
	migrate       MigrationRunner
	throttle      ThrottleApplier
	publish       Publisher
	schedulerStats SchedulerStatsSource
	cacheStats     CacheStatsSource

	mu       sync.Mutex
	lastTick core.Snapshot
}

// New constructs a Loop. migrate, throttle, publish, schedulerStats,
// and cacheStats may be nil (no-op / zero-value).
func New(interval time.Duration, devices DeviceSource, thermal ThermalClassifier, migrate MigrationRunner, throttle ThrottleApplier, publish Publisher, schedulerStats SchedulerStatsSource, cacheStats CacheStatsSource) *Loop {
	if migrate == nil {
		migrate = func(map[core.DeviceHandle]core.ThermalBand) {}
	}
	if throttle == nil {
		throttle = func(core.DeviceHandle, float64) {}
	}
	if publish == nil {
		publish = func(core.Snapshot) {}
	}
	if schedulerStats == nil {
		schedulerStats = func() core.SchedulerStats { return core.SchedulerStats{} }
	}
	if cacheStats == nil {
		cacheStats = func() core.CacheStats { return core.CacheStats{} }
	}
	return &Loop{
		interval: interval, devices: devices, thermal: thermal, migrate: migrate,
		throttle: throttle, publish: publish, schedulerStats: schedulerStats, cacheStats: cacheStats,
	}
}

// Run ticks until ctx is cancelled, running one full cycle (spec.md
// §4.6 steps 1-5) per tick. Blocking; callers run this in its own
// goroutine, the same way the teacher's ClusterSimulator.Run() owns
// its own event loop until the simulation horizon is reached.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	logrus.Infof("[control] loop starting, interval=%s", l.interval)
	for {
		select {
		case <-ctx.Done():
			logrus.Infof("[control] loop stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one cycle of spec.md §4.6 synchronously: useful for tests
// and for callers driving the loop manually (e.g. a CLI "snapshot now"
// command) instead of via Run's ticker.
func (l *Loop) Tick() {
	// Step 1: snapshot device live state. DeviceSource.Iter() already
	// returns a defensive copy (core/registry.Registry.Iter's contract),
	// so this read is consistent for the rest of the tick without
	// holding any lock across it.
	devices := l.devices.Iter()

	// Step 2: aggregate metrics.
	agg := computeAggregates(devices)

	// Step 3: thermal band classification + throttle.
	bands := make(map[core.DeviceHandle]core.ThermalBand, len(devices))
	for _, d := range devices {
		band := l.thermal.Band(d.Live.TemperatureC)
		bands[d.Handle] = band
		pct := l.thermal.ThrottlePct(d.Live.TemperatureC)
		l.throttle(d.Handle, pct)
		if band == core.BandCritical || band == core.BandEmergency {
			logrus.Warnf("[control] device %s in %s band (%.1f°C)", d.Handle, band, d.Live.TemperatureC)
		}
	}

	// Step 4: migration policy.
	l.migrate(bands)

	// Step 5: publish snapshot. Happens-after step 4's commits since
	// this call is sequential with no concurrent writer in between.
	liveStates := make(map[core.DeviceHandle]core.LiveState, len(devices))
	for _, d := range devices {
		liveStates[d.Handle] = d.Live
	}
	snap := core.Snapshot{
		Devices:        liveStates,
		Aggregates:     agg,
		SchedulerStats: l.schedulerStats(),
		CacheStats:     l.cacheStats(),
		TakenAtUs:      time.Now().UnixMicro(),
	}
	l.mu.Lock()
	l.lastTick = snap
	l.mu.Unlock()
	l.publish(snap)
}

// LastSnapshot returns the most recently published snapshot.
func (l *Loop) LastSnapshot() core.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTick
}

// computeAggregates implements spec.md §4.6 step 2: average inlet
// temp, max inlet, total IT power, total cooling power, and PUE =
// (IT+cooling)/IT. Cooling power is modeled as a fixed fraction of IT
// power absent a dedicated CRAC telemetry feed — the same
// approximation sim/cluster/cluster.go's aggregateMetrics uses for
// derived totals it cannot observe directly (duplicate-key warnings
// aside, it sums what it has rather than refusing to aggregate).
func computeAggregates(devices []core.Device) core.Aggregates {
	if len(devices) == 0 {
		return core.Aggregates{}
	}
	var sumTemp, maxTemp, totalITPower float64
	for i, d := range devices {
		if i == 0 || d.Live.TemperatureC > maxTemp {
			maxTemp = d.Live.TemperatureC
		}
		sumTemp += d.Live.TemperatureC
		totalITPower += d.Live.PowerWatts
	}
	const coolingOverheadFraction = 0.4
	coolingPower := totalITPower * coolingOverheadFraction
	pue := 1.0
	if totalITPower > 0 {
		pue = (totalITPower + coolingPower) / totalITPower
	}
	return core.Aggregates{
		AvgInletTempC: sumTemp / float64(len(devices)),
		MaxInletTempC: maxTemp,
		TotalITPowerW: totalITPower,
		TotalCoolingW: coolingPower,
		PUE:           pue,
	}
}
