package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/thermasched/thermasched/core"
)

const twoDeviceTopology = `
devices:
  - handle: d0
    type: gpu
    peak_ops_per_sec: 1000
    memory_bytes: 1073741824
    memory_bandwidth: 500
    power_watts: 100
    temperature_c: 40
    max_power_watts: 400
    cost_per_hour: 2.0
    links:
      - to: d1
        latency_us: 10
        bandwidth_gbps: 100
        cost_per_second: 0.001
        congestion_factor: 1.0
  - handle: d1
    type: gpu
    peak_ops_per_sec: 1000
    memory_bytes: 1073741824
    memory_bandwidth: 500
    power_watts: 100
    temperature_c: 40
    max_power_watts: 400
    cost_per_hour: 2.0
    links:
      - to: d0
        latency_us: 10
        bandwidth_gbps: 100
        cost_per_second: 0.001
        congestion_factor: 1.0
`

func parseTopology(t *testing.T) ClusterSpec {
	t.Helper()
	var topo ClusterSpec
	require.NoError(t, yaml.Unmarshal([]byte(twoDeviceTopology), &topo))
	return topo
}

func TestBuildCluster_RegistersAllDevices(t *testing.T) {
	clu, err := buildCluster(core.DefaultConfig(), parseTopology(t))
	require.NoError(t, err)
	assert.Equal(t, 2, clu.reg.Count())
}

func TestBuildCluster_InvalidConfig_Rejected(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.MaxDevices = 0
	_, err := buildCluster(cfg, parseTopology(t))
	assert.Error(t, err)
}

func TestSubmitAll_DrainsQueueAndAssignsDevices(t *testing.T) {
	clu, err := buildCluster(core.DefaultConfig(), parseTopology(t))
	require.NoError(t, err)

	jobs := WorkloadSpec{Jobs: []JobSpec{
		{ComputeOps: 100, MemoryBytes: 1 << 20, BandwidthNeed: 10},
		{ComputeOps: 100, MemoryBytes: 1 << 20, BandwidthNeed: 10},
	}}
	ids, err := clu.submitAll(jobs)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 0, clu.sched.QueueDepth())
	assert.Equal(t, int64(2), clu.sched.SnapshotStats().Scheduled)
}

func TestOnCommit_IncrementsActiveJobs(t *testing.T) {
	clu, err := buildCluster(core.DefaultConfig(), parseTopology(t))
	require.NoError(t, err)

	job := &core.Job{ID: 1}
	clu.onCommit(job, "d0")
	assert.Equal(t, int64(1), clu.reg.ActiveJobs("d0"))
}

func TestApplyThrottle_ClipsPowerToThrottledLimit(t *testing.T) {
	clu, err := buildCluster(core.DefaultConfig(), parseTopology(t))
	require.NoError(t, err)

	// Push live power above what a 50% throttle (of max_power_watts=400,
	// i.e. a 200W limit) would allow, then confirm applyThrottle clips it.
	require.Nil(t, clu.reg.UpdateState("d0", core.LiveState{PowerWatts: 350, TemperatureC: 40}))
	clu.applyThrottle("d0", 50)

	d, cerr := clu.reg.Get("d0")
	require.Nil(t, cerr)
	assert.Equal(t, 200.0, d.Live.PowerWatts)
}

func TestApplyThrottle_NoopWhenAlreadyBelowLimit(t *testing.T) {
	clu, err := buildCluster(core.DefaultConfig(), parseTopology(t))
	require.NoError(t, err)

	clu.applyThrottle("d0", 50) // d0 starts at 100W, well below the 200W limit
	d, cerr := clu.reg.Get("d0")
	require.Nil(t, cerr)
	assert.Equal(t, 100.0, d.Live.PowerWatts)
}

func TestLoopTick_ProducesSnapshotOverRegisteredDevices(t *testing.T) {
	clu, err := buildCluster(core.DefaultConfig(), parseTopology(t))
	require.NoError(t, err)

	clu.loop.Tick()
	snap := clu.loop.LastSnapshot()
	assert.Len(t, snap.Devices, 2)
}
