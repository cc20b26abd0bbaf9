package core

// Capacity describes a device's static compute envelope (spec.md §3).
type Capacity struct {
	PeakOpsPerSec    float64 // peak compute throughput
	MemoryBytes      int64   // total addressable memory
	MemoryBandwidth  float64 // bytes/sec
}

// Limits describes a device's operational safety envelope (spec.md §3).
type Limits struct {
	MinSupplyTempC float64 // cooling units only; zero value if not applicable
	MaxSupplyTempC float64
	MaxPowerWatts  float64
	MaxTempC       float64
}

// LiveState captures the mutable, frequently-updated half of a device's
// state — written by the control loop, read by the scheduler and
// telemetry. Kept as a small, copyable struct so registry reads can
// return a snapshot without holding the lock across the caller's use
// of it (spec.md §5: "writers take the lock for the minimum duration
// to swap in a new live-state snapshot").
type LiveState struct {
	UtilizationPct float64 // 0-100
	PowerWatts     float64
	TemperatureC   float64
	ClockHz        float64
}

// Link is a directed edge from one device to another carrying latency,
// bandwidth, and cost (spec.md §3). Immutable after registration except
// for CongestionFactor, which core/registry's UpdateLinkCongestion
// updates.
type Link struct {
	From              DeviceHandle
	To                DeviceHandle
	LatencyUs         float64
	BandwidthGbps     float64
	CostPerSecond     float64
	CongestionFactor  float64 // >= 1.0, multiplies effective latency
}

// EffectiveLatencyUs returns the link's latency after applying its
// current congestion factor.
func (l Link) EffectiveLatencyUs() float64 {
	if l.CongestionFactor < 1.0 {
		return l.LatencyUs
	}
	return l.LatencyUs * l.CongestionFactor
}

// Device is the registry's owned entity (spec.md §3). CostPerHour is
// the device's monetary cost rate; Links enumerates its outgoing edges
// in the interconnect graph.
type Device struct {
	Handle      DeviceHandle
	Type        DeviceType
	Capacity    Capacity
	Live        LiveState
	Limits      Limits
	CostPerHour float64
	Links       []Link
}

// CostPerSecond converts the device's hourly cost rate to a per-second
// rate, used by the scheduler's cost objective term (objectiveTerm in
// core/scheduler). The routing engine's cost weight reads each link's
// own CostPerSecond instead.
func (d Device) CostPerSecond() float64 {
	return d.CostPerHour / 3600.0
}

// ThermalIsland groups devices that share a cooling envelope
// (spec.md §3). Used only for migration policy.
type ThermalIsland struct {
	ID              string
	Members         []DeviceHandle
	AvgTemperatureC float64
	CoolingHeadroomW float64
	PendingQueueDepth int
}
