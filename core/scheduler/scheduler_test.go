package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermasched/thermasched/core"
)

type fakeDevices struct {
	devices []core.Device
}

func (f *fakeDevices) Iter() []core.Device { return f.devices }
func (f *fakeDevices) Get(h core.DeviceHandle) (core.Device, *core.CoreError) {
	for _, d := range f.devices {
		if d.Handle == h {
			return d, nil
		}
	}
	return core.Device{}, core.NewDeviceError(core.KindNotFound, h, "not found")
}

type fakeRoutes struct {
	routes map[[2]core.DeviceHandle]core.Route
}

func (f *fakeRoutes) Route(src, dst core.DeviceHandle) (core.Route, *core.CoreError) {
	if src == dst {
		return core.ZeroHopRoute(src), nil
	}
	r, ok := f.routes[[2]core.DeviceHandle{src, dst}]
	if !ok {
		return core.Route{}, core.NewDeviceError(core.KindUnreachable, dst, "no route")
	}
	return r, nil
}

type fakeThermal struct {
	rise float64
}

func (f *fakeThermal) PredictRise(core.Device, core.WorkloadProfile) float64 { return f.rise }

func twoDevices() *fakeDevices {
	return &fakeDevices{devices: []core.Device{
		{Handle: "d0", Capacity: core.Capacity{PeakOpsPerSec: 1000, MemoryBytes: 1 << 30}, Live: core.LiveState{UtilizationPct: 10, TemperatureC: 40}},
		{Handle: "d1", Capacity: core.Capacity{PeakOpsPerSec: 1000, MemoryBytes: 1 << 30}, Live: core.LiveState{UtilizationPct: 10, TemperatureC: 40}},
	}}
}

func allowAll(core.Device, float64) (bool, string) { return true, "" }

func TestSubmit_AssignsMonotonicIDs(t *testing.T) {
	s := New(core.DefaultConfig(), twoDevices(), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	id1, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.Nil(t, cerr)
	id2, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.Nil(t, cerr)
	assert.Equal(t, core.JobID(1), id1)
	assert.Equal(t, core.JobID(2), id2)
}

func TestSubmit_RejectsInvalidWorkload(t *testing.T) {
	s := New(core.DefaultConfig(), twoDevices(), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	_, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: -1}})
	require.NotNil(t, cerr)
	assert.Equal(t, core.KindValidationError, cerr.Kind)
}

func TestSubmit_QueueFullWhenAtCapacity(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.MaxTasks = 1
	s := New(cfg, twoDevices(), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	_, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.Nil(t, cerr)
	_, cerr = s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.NotNil(t, cerr)
	assert.Equal(t, core.KindQueueFull, cerr.Kind)
}

func TestStep_PicksLowerScoreDevice(t *testing.T) {
	devices := twoDevices()
	devices.devices[1].Live.UtilizationPct = 90 // much higher utilization, higher score

	var notified core.DeviceHandle
	s := New(core.DefaultConfig(), devices, &fakeRoutes{}, &fakeThermal{}, allowAll, func(job *core.Job, d core.DeviceHandle) {
		notified = d
	})
	_, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 100}})
	require.Nil(t, cerr)

	assert.True(t, s.Step())
	assert.Equal(t, core.DeviceHandle("d0"), notified)
	assert.Equal(t, int64(1), s.SnapshotStats().Scheduled)
}

func TestStep_NoFeasibleDevice_FailsAfterMaxRetries(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.MaxRetries = 0
	devices := &fakeDevices{devices: []core.Device{
		{Handle: "d0", Capacity: core.Capacity{PeakOpsPerSec: 1000, MemoryBytes: 10}, Live: core.LiveState{UtilizationPct: 10}},
	}}
	s := New(cfg, devices, &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	_, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1, MemoryBytes: 1 << 30}})
	require.Nil(t, cerr)

	assert.True(t, s.Step())
	assert.Equal(t, int64(1), s.SnapshotStats().Failed)
}

func TestStep_SafetyGateExcludesDeviceAndRetriesNextBest(t *testing.T) {
	devices := twoDevices()
	gateCalls := 0
	gate := func(d core.Device, rise float64) (bool, string) {
		gateCalls++
		if d.Handle == "d0" {
			return false, "rejected"
		}
		return true, ""
	}
	var notified core.DeviceHandle
	s := New(core.DefaultConfig(), devices, &fakeRoutes{}, &fakeThermal{}, gate, func(job *core.Job, d core.DeviceHandle) {
		notified = d
	})
	_, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 100}})
	require.Nil(t, cerr)

	assert.True(t, s.Step())
	assert.Equal(t, core.DeviceHandle("d1"), notified)
	assert.Equal(t, int64(1), s.SnapshotStats().SafetyRejections)
}

func TestCancel_RemovesPendingJob(t *testing.T) {
	s := New(core.DefaultConfig(), twoDevices(), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	id, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.Nil(t, cerr)

	require.Nil(t, s.Cancel(id))
	assert.Equal(t, 0, s.QueueDepth())
	assert.False(t, s.Step())
}

func TestCancel_MarksScheduledJobCancelled(t *testing.T) {
	s := New(core.DefaultConfig(), twoDevices(), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	id, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.Nil(t, cerr)
	require.True(t, s.Step())

	require.Nil(t, s.Cancel(id))
	job := s.active[id]
	assert.Equal(t, core.JobCancelled, job.State)
}

func TestCancel_AlreadyTerminalRejected(t *testing.T) {
	s := New(core.DefaultConfig(), twoDevices(), &fakeRoutes{}, &fakeThermal{}, allowAll, nil)
	id, cerr := s.Submit(core.JobDescriptor{Workload: core.WorkloadProfile{ComputeOps: 1}})
	require.Nil(t, cerr)
	require.True(t, s.Step())
	require.Nil(t, s.Cancel(id))

	cerr = s.Cancel(id)
	require.NotNil(t, cerr)
	assert.Equal(t, core.KindAlreadyTerminal, cerr.Kind)
}

func TestRunMigrationPolicy_MigratesFromCriticalToOptimalWithAffinity(t *testing.T) {
	devices := &fakeDevices{devices: []core.Device{
		{Handle: "hot", Capacity: core.Capacity{MemoryBytes: 1 << 30}},
		{Handle: "cold", Capacity: core.Capacity{MemoryBytes: 1 << 30}},
	}}
	cfg := core.DefaultConfig()
	s := New(cfg, devices, &fakeRoutes{}, &fakeThermal{}, allowAll, nil)

	job := &core.Job{ID: 1, State: core.JobRunning, AssignedDevice: "hot", Cache: core.CacheDescriptor{HasPrefix: true, CacheHolderDevice: "cold"}}
	s.active[1] = job

	bands := map[core.DeviceHandle]core.ThermalBand{"hot": core.BandCritical, "cold": core.BandOptimal}

	var migratedFrom, migratedTo core.DeviceHandle
	s.RunMigrationPolicy(bands, func(j *core.Job, from, to core.DeviceHandle) {
		migratedFrom, migratedTo = from, to
	})

	assert.Equal(t, core.DeviceHandle("hot"), migratedFrom)
	assert.Equal(t, core.DeviceHandle("cold"), migratedTo)
	assert.Equal(t, core.JobPending, job.State)
	assert.True(t, job.Migrating)
	assert.Equal(t, int64(1), s.SnapshotStats().Migrations)
}

func TestRunMigrationPolicy_NoMigrationWithoutSufficientAffinity(t *testing.T) {
	devices := &fakeDevices{devices: []core.Device{
		{Handle: "hot", Capacity: core.Capacity{MemoryBytes: 1 << 30}},
		{Handle: "cold", Capacity: core.Capacity{MemoryBytes: 1 << 30}},
	}}
	cfg := core.DefaultConfig()
	s := New(cfg, devices, &fakeRoutes{}, &fakeThermal{}, allowAll, nil)

	job := &core.Job{ID: 1, State: core.JobRunning, AssignedDevice: "hot"}
	s.active[1] = job
	bands := map[core.DeviceHandle]core.ThermalBand{"hot": core.BandCritical, "cold": core.BandOptimal}

	s.RunMigrationPolicy(bands, nil)
	assert.Equal(t, core.JobRunning, job.State)
	assert.Equal(t, int64(0), s.SnapshotStats().Migrations)
}
