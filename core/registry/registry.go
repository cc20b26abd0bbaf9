// Package registry implements the Device Registry (spec.md §4.1): the
// unique owner of Device state, holding descriptors, link topology, and
// live thermal/power state behind a reader/writer lock.
//
// Grounded on the InstanceSimulator handle-wrapper pattern in
// sim/cluster/instance.go (identity by opaque handle, getters for
// derived state) and the RW-lock discipline spec.md §5 mandates: many
// readers (scheduler, telemetry), rare writers (registration,
// live-state updates), writers holding the lock for the minimum
// duration needed to swap in a new snapshot.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/thermasched/thermasched/core"
)

// entry is the registry's internal per-device record. activeJobs is
// tracked with an atomic counter so deregister's drain check does not
// need the write lock just to read it.
type entry struct {
	device     core.Device
	activeJobs atomic.Int64
}

// Registry is the Device Registry. Zero value is not usable; construct
// with New.
type Registry struct {
	mu      sync.RWMutex
	devices map[core.DeviceHandle]*entry
	maxDevices int
	nextID  int64
}

// New constructs an empty Registry accepting up to maxDevices devices.
func New(maxDevices int) *Registry {
	return &Registry{
		devices:    make(map[core.DeviceHandle]*entry),
		maxDevices: maxDevices,
	}
}

// Register adds a new device to the registry, returning its handle.
// Fails with CapacityExceeded beyond maxDevices, or Duplicate if the
// descriptor already carries a handle that's registered.
func (r *Registry) Register(desc core.Device) (core.DeviceHandle, *core.CoreError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.devices) >= r.maxDevices {
		return "", core.NewError(core.KindCapacityExceeded, "registry at max_devices capacity")
	}
	handle := desc.Handle
	if handle == "" {
		r.nextID++
		handle = core.DeviceHandle(deviceHandleName(r.nextID))
	}
	if _, exists := r.devices[handle]; exists {
		return "", core.NewDeviceError(core.KindDuplicate, handle, "device already registered")
	}
	desc.Handle = handle
	r.devices[handle] = &entry{device: desc}
	return handle, nil
}

func deviceHandleName(n int64) string {
	// Small, dependency-free integer-to-name helper; mirrors the
	// teacher's InstanceID construction (fmt.Sprintf("instance_%d", idx))
	// in sim/cluster/cluster.go without pulling in fmt for this hot path.
	const digits = "0123456789"
	if n == 0 {
		return "device_0"
	}
	buf := make([]byte, 0, 8)
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "device_" + string(buf)
}

// Deregister removes a device. Fails with HasActiveJobs if the device
// still has jobs referencing it; callers must drain or migrate those
// jobs first (spec.md §4.1).
func (r *Registry) Deregister(handle core.DeviceHandle) *core.CoreError {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[handle]
	if !ok {
		return core.NewDeviceError(core.KindUnknownDevice, handle, "device not registered")
	}
	if e.activeJobs.Load() > 0 {
		return core.NewDeviceError(core.KindHasActiveJobs, handle, "device has active jobs")
	}
	delete(r.devices, handle)
	return nil
}

// UpdateState applies a new live-state snapshot to a device. This is
// the writer path the scheduler's many readers never block behind for
// longer than this call.
func (r *Registry) UpdateState(handle core.DeviceHandle, live core.LiveState) *core.CoreError {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[handle]
	if !ok {
		return core.NewDeviceError(core.KindUnknownDevice, handle, "device not registered")
	}
	e.device.Live = live
	return nil
}

// UpdateLinkCongestion updates the congestion factor of a single
// outgoing link from handle to target, leaving all else unchanged.
// Returns UnknownDevice if handle isn't registered, NotFound if no
// matching link exists.
func (r *Registry) UpdateLinkCongestion(handle, target core.DeviceHandle, factor float64) *core.CoreError {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.devices[handle]
	if !ok {
		return core.NewDeviceError(core.KindUnknownDevice, handle, "device not registered")
	}
	for i := range e.device.Links {
		if e.device.Links[i].To == target {
			e.device.Links[i].CongestionFactor = factor
			return nil
		}
	}
	return core.NewDeviceError(core.KindNotFound, handle, "no link to target")
}

// Get returns a copy of the device's current state.
func (r *Registry) Get(handle core.DeviceHandle) (core.Device, *core.CoreError) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.devices[handle]
	if !ok {
		return core.Device{}, core.NewDeviceError(core.KindUnknownDevice, handle, "device not registered")
	}
	return e.device, nil
}

// Iter returns a snapshot copy of every registered device, safe for the
// caller to range over without holding any lock.
func (r *Registry) Iter() []core.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Device, 0, len(r.devices))
	for _, e := range r.devices {
		out = append(out, e.device)
	}
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// IncrActiveJobs increments the active-job count backing a device's
// drain check. Called from the scheduler's commit notifier
// (cmd/cluster.go's onCommit). DecrActiveJobs is the matching
// decrement; no code path in this module calls it when a job reaches a
// terminal state.
func (r *Registry) IncrActiveJobs(handle core.DeviceHandle) *core.CoreError {
	r.mu.RLock()
	e, ok := r.devices[handle]
	r.mu.RUnlock()
	if !ok {
		return core.NewDeviceError(core.KindUnknownDevice, handle, "device not registered")
	}
	e.activeJobs.Add(1)
	return nil
}

// DecrActiveJobs decrements the active-job count; never goes below zero.
func (r *Registry) DecrActiveJobs(handle core.DeviceHandle) *core.CoreError {
	r.mu.RLock()
	e, ok := r.devices[handle]
	r.mu.RUnlock()
	if !ok {
		return core.NewDeviceError(core.KindUnknownDevice, handle, "device not registered")
	}
	for {
		cur := e.activeJobs.Load()
		if cur <= 0 {
			return nil
		}
		if e.activeJobs.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// ActiveJobs returns the current active-job count for a device (0 if unknown).
func (r *Registry) ActiveJobs(handle core.DeviceHandle) int64 {
	r.mu.RLock()
	e, ok := r.devices[handle]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return e.activeJobs.Load()
}
