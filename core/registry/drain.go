package registry

import (
	"context"
	"time"

	"github.com/thermasched/thermasched/core"
)

// DeregisterDraining blocks until the device has zero active jobs (they
// reach a terminal state or are migrated elsewhere) or drainDeadline
// elapses, then deregisters it. onDeadline is invoked with the device
// handle if the deadline fires with jobs still active — the caller
// (scheduler) uses it to mark those jobs failed, per spec.md §5:
// "Deregistration blocks until in-flight jobs reach terminal state or a
// configured drain deadline fires (then they are marked failed)."
// After onDeadline returns, the device's active-job count is cleared
// and the device is deregistered.
//
// Accepts a context so callers can apply their own cancellation on top
// of drainDeadline, matching the "every blocking call accepts a
// deadline" rule in spec.md §5.
func (r *Registry) DeregisterDraining(ctx context.Context, handle core.DeviceHandle, drainDeadline time.Duration, onDeadline func(core.DeviceHandle)) *core.CoreError {
	if _, err := r.Get(handle); err != nil {
		return err
	}

	deadline := time.Now().Add(drainDeadline)
	const pollInterval = 5 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if r.ActiveJobs(handle) == 0 {
			return r.Deregister(handle)
		}
		if time.Now().After(deadline) {
			if onDeadline != nil {
				onDeadline(handle)
			}
			// The remaining jobs are now failed, so they no longer hold
			// the device.
			r.mu.RLock()
			if e, ok := r.devices[handle]; ok {
				e.activeJobs.Store(0)
			}
			r.mu.RUnlock()
			return r.Deregister(handle)
		}
		select {
		case <-ctx.Done():
			return core.NewDeviceError(core.KindTimeout, handle, "deregister cancelled")
		case <-ticker.C:
		}
	}
}
