package thermal

import (
	"time"

	"github.com/thermasched/thermasched/core"
)

// PrecoolRequest describes an in-flight predictive pre-cooling action
// (spec.md §4.4: "if the scheduler is about to admit a job whose
// predict_rise(d, job) would cross Warning, and device d is in
// Optimal, the scheduler issues a pre-cool request at
// precool_threshold_c. Pre-cooling does not block admission; it runs
// for precool_duration in parallel").
type PrecoolRequest struct {
	Device    core.DeviceHandle
	TargetC   float64
	StartedAt time.Time
	Duration  time.Duration
}

// Done reports whether the request's duration has elapsed as of now.
func (p PrecoolRequest) Done(now time.Time) bool {
	return now.Sub(p.StartedAt) >= p.Duration
}

// ShouldPrecool decides whether admitting workload onto device should
// trigger a pre-cool request: device is currently Optimal, but the
// predicted rise would cross into Warning.
func (m *Model) ShouldPrecool(device core.Device, workload core.WorkloadProfile) bool {
	currentBand := m.Band(device.Live.TemperatureC)
	if currentBand != core.BandOptimal {
		return false
	}
	projected := device.Live.TemperatureC + m.PredictRise(device, workload)
	return m.Band(projected) != core.BandOptimal
}

// NewPrecoolRequest builds a pre-cool request targeting
// precoolThresholdC, to run for precoolDuration starting now. Pure
// constructor. Neither the scheduler nor the control loop calls
// ShouldPrecool or NewPrecoolRequest, so placement issues and tracks
// no pre-cool requests.
func NewPrecoolRequest(device core.DeviceHandle, precoolThresholdC float64, precoolDuration time.Duration, now time.Time) PrecoolRequest {
	return PrecoolRequest{
		Device:    device,
		TargetC:   precoolThresholdC,
		StartedAt: now,
		Duration:  precoolDuration,
	}
}
