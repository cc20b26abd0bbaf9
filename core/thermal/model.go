// Package thermal implements the Thermal Model (spec.md §4.4): short
// horizon temperature prediction, cooling projection, threshold-band
// classification, throttle, and a safety gate.
//
// Grounded stylistically on sim/latency/latency.go's
// BlackboxLatencyModel — exactly the shape spec.md's linear calibrated
// model needs: a struct of regression coefficients with pure methods
// computing a predicted scalar from request/device features. The
// teacher has no thermal concept, so the domain logic here is new;
// only the "calibrated-coefficient struct + pure prediction method"
// idiom is carried over.
package thermal

import (
	"math"

	"github.com/thermasched/thermasched/core"
)

// Coefficients holds the per-device-type calibration for the linear
// rise model (spec.md §4.4): ΔT = kCompute·(compute_ops/peak_ops) +
// kMemory·(bandwidth/mem_bw).
type Coefficients struct {
	KCompute    float64
	KMemory     float64
	CoolingRate float64 // °C/s decay rate under nominal cooling
}

// DefaultCoefficients returns a conservative per-device-type
// calibration table. Real deployments load this from measured data;
// these values are a reasonable starting point for a simulation.
func DefaultCoefficients() map[core.DeviceType]Coefficients {
	return map[core.DeviceType]Coefficients{
		core.DeviceGPU:      {KCompute: 18.0, KMemory: 6.0, CoolingRate: 0.6},
		core.DeviceNPU:      {KCompute: 14.0, KMemory: 5.0, CoolingRate: 0.8},
		core.DeviceTPU:      {KCompute: 20.0, KMemory: 7.0, CoolingRate: 0.5},
		core.DevicePhotonic: {KCompute: 6.0, KMemory: 2.0, CoolingRate: 1.2},
	}
}

// Model predicts thermal rise and cooling time from calibrated
// per-device-type coefficients, pure functions of (device, job) the
// same way BlackboxLatencyModel.StepTime is a pure function of a
// request batch.
type Model struct {
	coeffs map[core.DeviceType]Coefficients
	bands  core.ThermalBandConfig
}

// NewModel constructs a Model. A nil coeffs map falls back to
// DefaultCoefficients.
func NewModel(coeffs map[core.DeviceType]Coefficients, bands core.ThermalBandConfig) *Model {
	if coeffs == nil {
		coeffs = DefaultCoefficients()
	}
	return &Model{coeffs: coeffs, bands: bands}
}

func (m *Model) coefficientsFor(t core.DeviceType) Coefficients {
	if c, ok := m.coeffs[t]; ok {
		return c
	}
	return Coefficients{KCompute: 10.0, KMemory: 4.0, CoolingRate: 0.5}
}

// PredictRise returns the expected temperature rise, in °C, from
// admitting workload on device (spec.md §4.4's predict_rise).
func (m *Model) PredictRise(device core.Device, workload core.WorkloadProfile) float64 {
	c := m.coefficientsFor(device.Type)
	var computeTerm, memTerm float64
	if device.Capacity.PeakOpsPerSec > 0 {
		computeTerm = c.KCompute * (workload.ComputeOps / device.Capacity.PeakOpsPerSec)
	} else {
		computeTerm = math.MaxFloat64
	}
	if device.Capacity.MemoryBandwidth > 0 {
		memTerm = c.KMemory * (workload.BandwidthNeed / device.Capacity.MemoryBandwidth)
	} else {
		memTerm = math.MaxFloat64
	}
	rise := computeTerm + memTerm
	if math.IsInf(rise, 1) || rise > math.MaxFloat64 {
		return math.MaxFloat64
	}
	return rise
}

// CoolingTime returns the duration, in seconds, for device to decay
// from its current temperature to targetC under its calibrated
// cooling rate (spec.md §4.4's cooling_time: t = (T_cur - T_target) /
// cooling_rate). Returns 0 if already at or below targetC.
func (m *Model) CoolingTime(device core.Device, currentC, targetC float64) float64 {
	if currentC <= targetC {
		return 0
	}
	c := m.coefficientsFor(device.Type)
	if c.CoolingRate <= 0 {
		return math.Inf(1)
	}
	return (currentC - targetC) / c.CoolingRate
}

// Band classifies a temperature into its thermal band (spec.md §4.4's
// table: Optimal ≤45°C, Warning (75,85], Critical (85,90], Emergency
// >90°C — there is an unlabeled gap (45,75] that is implicitly
// Optimal/no-action, matching the table's "no action" entry for
// Optimal and the absence of any band covering it).
func (m *Model) Band(temperatureC float64) core.ThermalBand {
	switch {
	case temperatureC > m.bands.EmergencyC:
		return core.BandEmergency
	case temperatureC > m.bands.CriticalC:
		return core.BandCritical
	case temperatureC > m.bands.WarningC:
		return core.BandWarning
	default:
		return core.BandOptimal
	}
}

// ThrottlePct returns the throttle percentage for a temperature under
// spec.md §4.4's per-band rule: Warning ramps linearly from 0% (at the
// band floor) to 75% (at the band ceiling); Critical is a hard 75%;
// Emergency is treated as a full cut (100%) since the device is being
// marked in error.
func (m *Model) ThrottlePct(temperatureC float64) float64 {
	switch m.Band(temperatureC) {
	case core.BandOptimal:
		return 0
	case core.BandWarning:
		span := m.bands.CriticalC - m.bands.WarningC
		if span <= 0 {
			return 75
		}
		frac := (temperatureC - m.bands.WarningC) / span
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		return 75 * frac
	case core.BandCritical:
		return 75
	default: // Emergency
		return 100
	}
}
