package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermasched/thermasched/core"
)

func TestRegister_AssignsHandleAndRejectsDuplicate(t *testing.T) {
	r := New(8)
	h, err := r.Register(core.Device{Type: core.DeviceGPU})
	require.Nil(t, err)
	assert.NotEmpty(t, h)

	_, err = r.Register(core.Device{Handle: h, Type: core.DeviceGPU})
	require.NotNil(t, err)
	assert.Equal(t, core.KindDuplicate, err.Kind)
}

func TestRegister_CapacityExceeded(t *testing.T) {
	r := New(1)
	_, err := r.Register(core.Device{Type: core.DeviceGPU})
	require.Nil(t, err)

	_, err = r.Register(core.Device{Type: core.DeviceGPU})
	require.NotNil(t, err)
	assert.Equal(t, core.KindCapacityExceeded, err.Kind)
}

func TestUpdateState_UnknownDevice(t *testing.T) {
	r := New(8)
	err := r.UpdateState("ghost", core.LiveState{})
	require.NotNil(t, err)
	assert.Equal(t, core.KindUnknownDevice, err.Kind)
}

func TestUpdateState_IsVisibleToGet(t *testing.T) {
	r := New(8)
	h, _ := r.Register(core.Device{Type: core.DeviceGPU})
	err := r.UpdateState(h, core.LiveState{TemperatureC: 72.5, UtilizationPct: 40})
	require.Nil(t, err)

	d, err := r.Get(h)
	require.Nil(t, err)
	assert.Equal(t, 72.5, d.Live.TemperatureC)
	assert.Equal(t, 40.0, d.Live.UtilizationPct)
}

func TestDeregister_BlockedByActiveJobs(t *testing.T) {
	r := New(8)
	h, _ := r.Register(core.Device{Type: core.DeviceGPU})
	require.Nil(t, r.IncrActiveJobs(h))

	err := r.Deregister(h)
	require.NotNil(t, err)
	assert.Equal(t, core.KindHasActiveJobs, err.Kind)

	require.Nil(t, r.DecrActiveJobs(h))
	require.Nil(t, r.Deregister(h))
}

func TestDeregisterDraining_SucceedsOnceJobsDrain(t *testing.T) {
	r := New(8)
	h, _ := r.Register(core.Device{Type: core.DeviceGPU})
	require.Nil(t, r.IncrActiveJobs(h))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r.DecrActiveJobs(h)
	}()

	err := r.DeregisterDraining(context.Background(), h, time.Second, nil)
	assert.Nil(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestDeregisterDraining_DeadlineFiresOnDeadlineCallback(t *testing.T) {
	r := New(8)
	h, _ := r.Register(core.Device{Type: core.DeviceGPU})
	require.Nil(t, r.IncrActiveJobs(h))

	var called core.DeviceHandle
	err := r.DeregisterDraining(context.Background(), h, 20*time.Millisecond, func(dh core.DeviceHandle) {
		called = dh
	})
	assert.Nil(t, err)
	assert.Equal(t, h, called)
	assert.Equal(t, 0, r.Count())
}

func TestIter_ReturnsSnapshotCopy(t *testing.T) {
	r := New(8)
	h1, _ := r.Register(core.Device{Type: core.DeviceGPU})
	h2, _ := r.Register(core.Device{Type: core.DeviceTPU})

	devices := r.Iter()
	assert.Len(t, devices, 2)
	seen := map[core.DeviceHandle]bool{}
	for _, d := range devices {
		seen[d.Handle] = true
	}
	assert.True(t, seen[h1])
	assert.True(t, seen[h2])
}

func TestUpdateLinkCongestion(t *testing.T) {
	r := New(8)
	h2, _ := r.Register(core.Device{Type: core.DeviceGPU})
	h1, _ := r.Register(core.Device{Type: core.DeviceGPU, Links: []core.Link{
		{To: h2, LatencyUs: 10, BandwidthGbps: 100, CongestionFactor: 1.0},
	}})

	require.Nil(t, r.UpdateLinkCongestion(h1, h2, 2.0))
	d, err := r.Get(h1)
	require.Nil(t, err)
	assert.Equal(t, 2.0, d.Links[0].CongestionFactor)

	err = r.UpdateLinkCongestion(h2, h1, 2.0)
	require.NotNil(t, err)
	assert.Equal(t, core.KindNotFound, err.Kind)
}
