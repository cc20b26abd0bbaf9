package core

// Snapshot is the telemetry surface's sole output (spec.md §6):
// per-device live state, cluster-wide aggregates, scheduler stats, and
// cache stats as of the last control tick.
type Snapshot struct {
	Devices         map[DeviceHandle]LiveState
	Aggregates      Aggregates
	SchedulerStats  SchedulerStats
	CacheStats      CacheStats
	TakenAtUs       int64
}

// Aggregates holds cluster-wide metrics computed each control tick
// (spec.md §4.6 step 2).
type Aggregates struct {
	AvgInletTempC   float64
	MaxInletTempC   float64
	TotalITPowerW   float64
	TotalCoolingW   float64
	PUE             float64 // (IT + cooling) / IT
}

// SchedulerStats summarizes scheduler-side counters for telemetry.
type SchedulerStats struct {
	QueueDepth         int
	Scheduled          int64
	Failed             int64
	Migrations         int64
	SafetyRejections   int64
}

// CacheStats summarizes KV cache coordinator counters for telemetry.
type CacheStats struct {
	UsedBytes       int64
	CapacityBytes   int64
	Evictions       int64
	PrefixHits      int64
	PrefixMisses    int64
}
