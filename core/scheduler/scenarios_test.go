package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermasched/thermasched/core"
)

// Literal end-to-end scenarios from spec.md §8. Each test builds the
// exact device/job shape the scenario names and asserts the scenario's
// stated expectation, rather than a looser property.

func identicalDevices(tempC0, tempC1 float64) *fakeDevices {
	return &fakeDevices{devices: []core.Device{
		{Handle: "d0", Capacity: core.Capacity{PeakOpsPerSec: 1e14, MemoryBytes: 8 << 30}, Live: core.LiveState{TemperatureC: tempC0}},
		{Handle: "d1", Capacity: core.Capacity{PeakOpsPerSec: 1e14, MemoryBytes: 8 << 30}, Live: core.LiveState{TemperatureC: tempC1}},
	}}
}

// S1 — Cache-hit routing: J's prefix is already on D1; affinity
// dominates and J is scheduled to D1 with zero transfer cost.
func TestScenario_S1_CacheHitRouting(t *testing.T) {
	devices := identicalDevices(40, 40)
	routes := &fakeRoutes{routes: map[[2]core.DeviceHandle]core.Route{
		{"d1", "d0"}: {Path: []core.DeviceHandle{"d1", "d0"}, LatencyUs: 10, BandwidthGbps: 800},
	}}
	cfg := core.DefaultConfig()
	cfg.CacheHitValue = 1000

	var notified core.DeviceHandle
	s := New(cfg, devices, routes, &fakeThermal{}, allowAll, func(job *core.Job, d core.DeviceHandle) { notified = d })
	_, cerr := s.Submit(core.JobDescriptor{
		Workload: core.WorkloadProfile{ComputeOps: 1e12, MemoryBytes: 1 << 30},
		Cache:    core.CacheDescriptor{HasPrefix: true, CacheHolderDevice: "d1", CacheBytes: 1 << 30},
	})
	require.Nil(t, cerr)

	require.True(t, s.Step())
	assert.Equal(t, core.DeviceHandle("d1"), notified)
	transferMsOnHit, skip := transferMs(routes, devices.devices[1], s.active[1])
	assert.False(t, skip)
	assert.Zero(t, transferMsOnHit)
}

// S2 — Cache-miss with a fast link: J's prefix is on D0, but D0 runs
// hot and D1 is cooler. transfer_ms ≈ 10µs + 1GB/100GB/s is cheap
// enough (well under the thermal penalty gap) that J still lands on
// the cooler D1 rather than paying D0's thermal cost to stay affine.
func TestScenario_S2_CacheMissFastLink(t *testing.T) {
	devices := identicalDevices(90, 40)
	routes := &fakeRoutes{routes: map[[2]core.DeviceHandle]core.Route{
		{"d0", "d1"}: {Path: []core.DeviceHandle{"d0", "d1"}, LatencyUs: 10, BandwidthGbps: 800}, // 100 GB/s = 800 Gbps
	}}
	cfg := core.DefaultConfig()
	cfg.CacheHitValue = 1000

	// 1 GB (decimal) over a 100 GB/s link, per spec.md's literal figures.
	const oneGB = 1_000_000_000

	var notified core.DeviceHandle
	s := New(cfg, devices, routes, &fakeThermal{}, allowAll, func(job *core.Job, d core.DeviceHandle) { notified = d })
	_, cerr := s.Submit(core.JobDescriptor{
		Workload: core.WorkloadProfile{ComputeOps: 1e12, MemoryBytes: 1 << 20},
		Cache:    core.CacheDescriptor{HasPrefix: true, CacheHolderDevice: "d0", CacheBytes: oneGB},
	})
	require.Nil(t, cerr)
	require.True(t, s.Step())

	transferMsOnMiss, skip := transferMs(routes, devices.devices[1], s.active[1])
	require.False(t, skip)
	assert.InDelta(t, 10.01, transferMsOnMiss, 0.01)
	assert.Equal(t, core.DeviceHandle("d1"), notified)
}

// S3 — Thermal veto: D0 is Critical (86°C) and holds the job's prefix,
// D1 is Optimal (40°C). The thermal penalty on D0 outweighs its
// affinity bonus, so J is scheduled to D1 instead.
func TestScenario_S3_ThermalVeto(t *testing.T) {
	devices := identicalDevices(86, 40)
	routes := &fakeRoutes{routes: map[[2]core.DeviceHandle]core.Route{
		{"d0", "d1"}: {Path: []core.DeviceHandle{"d0", "d1"}, LatencyUs: 10, BandwidthGbps: 800},
	}}
	cfg := core.DefaultConfig()

	var notified core.DeviceHandle
	s := New(cfg, devices, routes, &fakeThermal{}, allowAll, func(job *core.Job, d core.DeviceHandle) { notified = d })
	_, cerr := s.Submit(core.JobDescriptor{
		Workload: core.WorkloadProfile{ComputeOps: 1e10, MemoryBytes: 100 << 20},
		Cache:    core.CacheDescriptor{HasPrefix: true, CacheHolderDevice: "d0", CacheBytes: 100 << 20},
	})
	require.Nil(t, cerr)
	require.True(t, s.Step())
	assert.Equal(t, core.DeviceHandle("d1"), notified)

	// A migration of the prefix's blocks off the Critical device is a
	// separate operation (RunMigrationPolicy), exercised for a running
	// job in S5 below.
}

// S5 — Migration on a hot island: a job already running on a Critical
// device is preempted and moved to an Optimal device it has sufficient
// cache affinity with, within one control tick's migration pass.
func TestScenario_S5_MigrationOnHotIsland(t *testing.T) {
	devices := &fakeDevices{devices: []core.Device{
		{Handle: "a0", Capacity: core.Capacity{MemoryBytes: 8 << 30}, Live: core.LiveState{TemperatureC: 88}},
		{Handle: "b0", Capacity: core.Capacity{MemoryBytes: 8 << 30}, Live: core.LiveState{TemperatureC: 45}},
	}}
	cfg := core.DefaultConfig()
	s := New(cfg, devices, &fakeRoutes{}, &fakeThermal{}, allowAll, nil)

	job := &core.Job{ID: 1, State: core.JobRunning, AssignedDevice: "a0",
		Cache: core.CacheDescriptor{HasPrefix: true, CacheHolderDevice: "b0"}}
	s.active[1] = job

	bands := map[core.DeviceHandle]core.ThermalBand{"a0": core.BandCritical, "b0": core.BandOptimal}
	var from, to core.DeviceHandle
	s.RunMigrationPolicy(bands, func(j *core.Job, f, t core.DeviceHandle) { from, to = f, t })

	assert.Equal(t, core.DeviceHandle("a0"), from)
	assert.Equal(t, core.DeviceHandle("b0"), to)
	assert.Equal(t, core.DeviceHandle("b0"), job.Cache.CacheHolderDevice)
	assert.True(t, job.Migrating)
	assert.Equal(t, core.JobPending, job.State)
}

// S6 — Queue backpressure: with MAX_TASKS=4, a 5th submission is
// rejected with QueueFull and the first four ids are strictly ordered.
func TestScenario_S6_QueueBackpressure(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.MaxTasks = 4
	s := New(cfg, identicalDevices(40, 40), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)

	var ids []core.JobID
	for i := 0; i < 4; i++ {
		id, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
		require.Nil(t, cerr)
		ids = append(ids, id)
	}
	assert.Equal(t, []core.JobID{1, 2, 3, 4}, ids)

	_, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.NotNil(t, cerr)
	assert.Equal(t, core.KindQueueFull, cerr.Kind)
}

// Invariant 3 — safety gate is tight: DefaultSafetyGate must reject
// any placement whose predicted rise would push the device's inlet
// temperature past cfg.Safety.MaxTempC, and admit one that doesn't.
func TestInvariant_SafetyGateRejectsOverTempPlacement(t *testing.T) {
	cfg := core.DefaultConfig() // Safety.MaxTempC = 90
	gate := DefaultSafetyGate(cfg)
	device := core.Device{
		Handle: "d0",
		Limits: core.Limits{MinSupplyTempC: 10, MaxSupplyTempC: 100},
		Live:   core.LiveState{TemperatureC: 85},
	}

	okSmallRise, _ := gate(device, 2) // 85 + 2 = 87, within 90
	assert.True(t, okSmallRise)

	okBigRise, reason := gate(device, 10) // 85 + 10 = 95, over 90
	assert.False(t, okBigRise)
	assert.NotEmpty(t, reason)
}

// Invariant 9 — migration rollback: a failed mid-flight migration
// returns the job to pending with its pre-migration cache holder
// restored, and the migration flag cleared.
func TestInvariant_MigrationRollback_RestoresPreMigrationCacheHolder(t *testing.T) {
	s := New(core.DefaultConfig(), identicalDevices(40, 40), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	job := &core.Job{
		ID:                      1,
		State:                   core.JobPreempted,
		Migrating:               true,
		PreMigrationCacheHolder: "d0",
		Cache:                   core.CacheDescriptor{HasPrefix: true, CacheHolderDevice: "d1"},
	}

	rolledBack := s.RollbackMigration(job)
	assert.True(t, rolledBack)
	assert.Equal(t, core.DeviceHandle("d0"), job.Cache.CacheHolderDevice)
	assert.False(t, job.Migrating)
	assert.Equal(t, core.JobPending, job.State)

	// A job that was never migrating has nothing to roll back.
	assert.False(t, s.RollbackMigration(&core.Job{ID: 2}))
}
