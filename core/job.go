package core

// WorkloadProfile describes the compute shape of a job (spec.md §3).
type WorkloadProfile struct {
	ComputeOps    float64 // total ops required
	MemoryBytes   int64
	BandwidthNeed float64 // bytes/sec
	Batch         int
	PrecisionFlag string // e.g. "fp16", "int8"
}

// Constraints describes a job's hard/soft placement requirements.
type Constraints struct {
	DeadlineUs          int64 // 0 = no deadline
	PreferredDeviceType DeviceType
	MinMemoryBytes      int64
	MaxPowerWatts       float64
}

// CacheDescriptor captures a job's relationship to the KV cache
// (spec.md §3), used by the scheduler's affinity scoring.
type CacheDescriptor struct {
	HasPrefix        bool
	PrefixHash       string
	PrefixLen        int
	CacheHolderDevice DeviceHandle
	CacheBytes       int64
}

// Job is the scheduler's unit of work. ID and AssignedDevice are set by
// the scheduler; everything else is supplied at submission.
type Job struct {
	ID           JobID
	Workload     WorkloadProfile
	Constraints  Constraints
	Cache        CacheDescriptor
	Dependencies []JobID
	Priority     float64
	State        JobState
	AssignedDevice DeviceHandle // "" until scheduled

	// Migration bookkeeping (spec.md §4.5): set when a running job is
	// preempted for migration; cleared once it resumes on the target.
	Migrating      bool
	PreMigrationCacheHolder DeviceHandle
}

// JobDescriptor is the caller-supplied shape for submit_job — everything
// in Job except the fields the scheduler itself assigns.
type JobDescriptor struct {
	Workload     WorkloadProfile
	Constraints  Constraints
	Cache        CacheDescriptor
	Dependencies []JobID
	Priority     float64
}

// Validate checks a JobDescriptor for the obviously-malformed cases
// submit_job must reject with ValidationError before it ever reaches
// the queue.
func (d JobDescriptor) Validate() *CoreError {
	if d.Workload.ComputeOps < 0 {
		return NewError(KindValidationError, "workload.compute_ops must be >= 0")
	}
	if d.Workload.MemoryBytes < 0 {
		return NewError(KindValidationError, "workload.memory_bytes must be >= 0")
	}
	if d.Constraints.DeadlineUs < 0 {
		return NewError(KindValidationError, "constraints.deadline_us must be >= 0")
	}
	if d.Cache.PrefixLen < 0 {
		return NewError(KindValidationError, "cache.prefix_len must be >= 0")
	}
	return nil
}
