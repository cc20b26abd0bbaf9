package core

import "fmt"

// DeviceHandle uniquely identifies a registered device. Distinct type
// (not a string alias) to prevent accidental mixing with other handle
// kinds, the same discipline sim/rng.go applies to SimulationKey.
type DeviceHandle string

// JobID uniquely identifies a submitted job. Assigned monotonically by
// the scheduler queue at enqueue time.
type JobID int64

// BlockHandle uniquely identifies a KV cache block.
type BlockHandle int64

// SequenceID uniquely identifies a cached token sequence.
type SequenceID string

// DeviceType enumerates the accelerator kinds the registry can hold.
type DeviceType string

const (
	DeviceCPU      DeviceType = "cpu"
	DeviceGPU      DeviceType = "gpu"
	DeviceTPU      DeviceType = "tpu"
	DeviceNPU      DeviceType = "npu"
	DevicePhotonic DeviceType = "photonic"
)

// Objective selects the primary cost axis the routing engine and
// scheduler optimize for.
type Objective string

const (
	ObjectiveLatency    Objective = "latency"
	ObjectivePower      Objective = "power"
	ObjectiveCost       Objective = "cost"
	ObjectiveThroughput Objective = "throughput"
	ObjectiveBalanced   Objective = "balanced"
)

// Algorithm selects the routing engine's shortest-path algorithm.
type Algorithm string

const (
	AlgorithmDijkstra Algorithm = "dijkstra"
	AlgorithmAStar    Algorithm = "astar"
	AlgorithmGreedy   Algorithm = "greedy"
)

// EvictionPolicyName selects the KV cache's eviction discipline.
type EvictionPolicyName string

const (
	EvictionLRU       EvictionPolicyName = "lru"
	EvictionLFU       EvictionPolicyName = "lfu"
	EvictionFIFO      EvictionPolicyName = "fifo"
	EvictionCostAware EvictionPolicyName = "cost_aware"
)

// CoherencyMode selects the KV cache's coherency discipline.
type CoherencyMode string

const (
	CoherencyNone   CoherencyMode = "none"
	CoherencyMESI   CoherencyMode = "mesi"
	CoherencyStrong CoherencyMode = "strong"
)

// JobState enumerates the monotonic (mostly) lifecycle states of a Job.
type JobState string

const (
	JobPending    JobState = "pending"
	JobScheduled  JobState = "scheduled"
	JobRunning    JobState = "running"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobPreempted  JobState = "preempted"
	JobCancelled  JobState = "cancelled"
)

// MESIState enumerates cache coherency states for a CacheBlock.
type MESIState string

const (
	MESIInvalid   MESIState = "invalid"
	MESIShared    MESIState = "shared"
	MESIExclusive MESIState = "exclusive"
	MESIModified  MESIState = "modified"
)

// ThermalBand enumerates the fixed temperature bands of spec.md §4.4.
type ThermalBand string

const (
	BandOptimal   ThermalBand = "optimal"
	BandWarning   ThermalBand = "warning"
	BandCritical  ThermalBand = "critical"
	BandEmergency ThermalBand = "emergency"
)

// validSets back the IsValidX / ValidXNames factory-validation pattern
// used throughout the teacher's bundle.go (IsValidRoutingPolicy, etc.).
var validObjectives = map[Objective]bool{
	ObjectiveLatency: true, ObjectivePower: true, ObjectiveCost: true,
	ObjectiveThroughput: true, ObjectiveBalanced: true,
}

func IsValidObjective(o Objective) bool { return validObjectives[o] }

var validAlgorithms = map[Algorithm]bool{
	AlgorithmDijkstra: true, AlgorithmAStar: true, AlgorithmGreedy: true,
}

func IsValidAlgorithm(a Algorithm) bool { return validAlgorithms[a] }

var validEvictionPolicies = map[EvictionPolicyName]bool{
	EvictionLRU: true, EvictionLFU: true, EvictionFIFO: true, EvictionCostAware: true,
}

func IsValidEvictionPolicy(e EvictionPolicyName) bool { return validEvictionPolicies[e] }

var validCoherencyModes = map[CoherencyMode]bool{
	CoherencyNone: true, CoherencyMESI: true, CoherencyStrong: true,
}

func IsValidCoherencyMode(c CoherencyMode) bool { return validCoherencyModes[c] }

// String implements fmt.Stringer for DeviceHandle so device handles
// print cleanly in log lines and error messages.
func (h DeviceHandle) String() string { return string(h) }

// String implements fmt.Stringer for JobID.
func (id JobID) String() string { return fmt.Sprintf("job-%d", int64(id)) }
