package scheduler

import (
	"math"

	"github.com/thermasched/thermasched/core"
)

// DeviceSource is the read-only device view the scheduler needs:
// current devices (whose live UtilizationPct feeds the utilization<95%
// feasibility check) and single-device lookup. core/registry.Registry
// satisfies this.
type DeviceSource interface {
	Iter() []core.Device
	Get(core.DeviceHandle) (core.Device, *core.CoreError)
}

// RouteSource resolves inter-device transfer cost for a cache-miss
// migration candidate. core/routing.Engine satisfies this.
type RouteSource interface {
	Route(src, dst core.DeviceHandle) (core.Route, *core.CoreError)
}

// ThermalSource predicts temperature rise for a candidate placement.
// core/thermal.Model satisfies this.
type ThermalSource interface {
	PredictRise(device core.Device, workload core.WorkloadProfile) float64
}

// candidate is one feasible device scored for a single placement
// decision.
type candidate struct {
	device core.Device
	score  float64
}

// feasible filters devices per spec.md §4.5 step 1: memory capacity
// (against both job.Workload.MemoryBytes and the stricter
// Constraints.MinMemoryBytes floor, if set), power ceiling, and
// utilization floor. Preferred device type is a soft match (spec.md
// §4.5 step 1's "matches preferred_type (soft)") and is scored, not
// filtered here — see typePreferencePenalty in score().
func feasible(devices []core.Device, job *core.Job) []core.Device {
	out := make([]core.Device, 0, len(devices))
	for _, d := range devices {
		if d.Capacity.MemoryBytes < job.Workload.MemoryBytes {
			continue
		}
		if job.Constraints.MinMemoryBytes > 0 && d.Capacity.MemoryBytes < job.Constraints.MinMemoryBytes {
			continue
		}
		if job.Constraints.MaxPowerWatts > 0 && d.Live.PowerWatts > job.Constraints.MaxPowerWatts {
			continue
		}
		if d.Live.UtilizationPct >= 95.0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// execMs computes job.compute_ops / (device.peak_perf * (1-utilization))
// per spec.md §4.5, returning +Inf if peak_perf is zero.
func execMs(device core.Device, job *core.Job) float64 {
	if device.Capacity.PeakOpsPerSec <= 0 {
		return math.Inf(1)
	}
	avail := 1 - device.Live.UtilizationPct/100.0
	if avail <= 0 {
		return math.Inf(1)
	}
	return job.Workload.ComputeOps / (device.Capacity.PeakOpsPerSec * avail)
}

// transferMs computes the cache-miss migration cost per spec.md §4.5:
// 0 on a cache hit (job already affine to d); otherwise, if the job
// has a cached prefix elsewhere, the shortest-path transfer cost from
// the cache holder to d. Returns (cost, skip) where skip is true if
// the candidate must be dropped because the route is unreachable.
func transferMs(routes RouteSource, device core.Device, job *core.Job) (float64, bool) {
	if !job.Cache.HasPrefix {
		return 0, false
	}
	if job.Cache.CacheHolderDevice == device.Handle {
		return 0, false
	}
	route, cerr := routes.Route(job.Cache.CacheHolderDevice, device.Handle)
	if cerr != nil {
		return 0, true
	}
	bw := route.EffectiveBandwidthBytesPerSec()
	if bw <= 0 {
		return 0, true
	}
	transferUs := route.LatencyUs + float64(job.Cache.CacheBytes)/bw*1e6
	return transferUs / 1000.0, false
}

// thermalPenalty computes 100 * max(0, predict_rise + d.temp - warning_c)
// per spec.md §4.5 (softly discourages, never forbids).
func thermalPenalty(thermal ThermalSource, device core.Device, job *core.Job, warningC float64) float64 {
	rise := thermal.PredictRise(device, job.Workload)
	overshoot := rise + device.Live.TemperatureC - warningC
	if overshoot < 0 {
		overshoot = 0
	}
	return 100 * overshoot
}

// typePreferencePenalty adds a fixed soft penalty when a candidate
// device doesn't match the job's preferred device type (spec.md §4.5
// step 1: "matches preferred_type (soft)" — a mismatch disfavors the
// device in scoring rather than excluding it in feasible()).
func typePreferencePenalty(job *core.Job, device core.Device) float64 {
	if job.Constraints.PreferredDeviceType == "" {
		return 0
	}
	if device.Type == job.Constraints.PreferredDeviceType {
		return 0
	}
	return 50
}

// objectiveTerm computes the objective-specific primary term added to
// the composite score, mirroring the routing engine's edge-weight
// mapping (spec.md §4.2/§4.5 share the same five objectives) but
// evaluated against the candidate device directly rather than a route.
func objectiveTerm(cfg core.Config, device core.Device) float64 {
	switch cfg.Objective {
	case core.ObjectiveLatency:
		return 0 // latency is already captured by exec_ms/transfer_ms
	case core.ObjectivePower:
		return device.Live.PowerWatts
	case core.ObjectiveCost:
		return device.CostPerSecond()
	case core.ObjectiveThroughput:
		if device.Capacity.PeakOpsPerSec <= 0 {
			return 1e18
		}
		return 1.0 / device.Capacity.PeakOpsPerSec
	case core.ObjectiveBalanced:
		return cfg.Weights.Alpha*0 + cfg.Weights.Beta*device.Live.PowerWatts + cfg.Weights.Gamma*device.CostPerSecond()
	default:
		return 0
	}
}

// score computes spec.md §4.5's composite:
// score(d) = -affinity + exec_ms + transfer_ms + utilization/10 + thermal_penalty + type_preference_penalty + objective_term(d)
func score(cfg core.Config, thermal ThermalSource, routes RouteSource, device core.Device, job *core.Job, warningC float64) (float64, bool) {
	var affinity float64
	if job.Cache.HasPrefix && job.Cache.CacheHolderDevice == device.Handle {
		affinity = cfg.CacheHitValue
	}
	transfer, skip := transferMs(routes, device, job)
	if skip {
		return 0, true
	}
	s := -affinity +
		execMs(device, job) +
		transfer +
		device.Live.UtilizationPct/10.0 +
		thermalPenalty(thermal, device, job, cfg.Bands.WarningC) +
		typePreferencePenalty(job, device) +
		objectiveTerm(cfg, device)
	return s, false
}

// selectDevice runs spec.md §4.5's placement algorithm over the
// current device set for one job: feasibility filter, composite
// score, argmin. greedy picks lowest-utilization among feasible
// instead (spec.md §4.5's "greedy fallback").
func selectDevice(cfg core.Config, thermal ThermalSource, routes RouteSource, devices []core.Device, job *core.Job, excluded map[core.DeviceHandle]bool) (core.DeviceHandle, bool) {
	candidates := feasible(devices, job)
	if len(candidates) == 0 {
		return "", false
	}

	if cfg.Algorithm == core.AlgorithmGreedy {
		var best core.Device
		bestUtil := math.Inf(1)
		found := false
		for _, d := range candidates {
			if excluded[d.Handle] {
				continue
			}
			if d.Live.UtilizationPct < bestUtil {
				best, bestUtil, found = d, d.Live.UtilizationPct, true
			}
		}
		if !found {
			return "", false
		}
		return best.Handle, true
	}

	var bestDevice core.DeviceHandle
	bestScore := math.Inf(1)
	found := false
	for _, d := range candidates {
		if excluded[d.Handle] {
			continue
		}
		s, skip := score(cfg, thermal, routes, d, job, cfg.Bands.WarningC)
		if skip {
			continue
		}
		if s < bestScore {
			bestDevice, bestScore, found = d.Handle, s, true
		}
	}
	return bestDevice, found
}
