package scheduler

import (
	"sync"

	"github.com/thermasched/thermasched/core"
	"github.com/thermasched/thermasched/core/thermal"
)

// SafetyGate decides whether a candidate placement's predicted thermal
// impact is safe to commit (spec.md §4.5 step 4). Scheduler-level gate
// checks only the predicted-inlet-temperature clause of
// thermal.SafetyCheck: a placement proposes no CRAC setpoint or
// airflow change, so those clauses do not apply to it.
type SafetyGate func(device core.Device, predictedRiseC float64) (ok bool, reason string)

// DefaultSafetyGate builds a SafetyGate from cfg.Safety, reusing
// thermal.SafetyCheck with an action whose setpoint is the device's own
// minimum supply temperature and whose airflow is the configured floor,
// so only the predicted-inlet clause can reject it (the scheduler only
// ever asks "is this placement's predicted temperature safe", never
// "should the CRAC setpoint move").
func DefaultSafetyGate(cfg core.Config) SafetyGate {
	return func(device core.Device, predictedRiseC float64) (bool, string) {
		action := thermal.Action{
			SetpointC:       device.Limits.MinSupplyTempC,
			PredictedInletC: device.Live.TemperatureC + predictedRiseC,
			AirflowCFM:      cfg.Safety.MinAirflowCFM,
		}
		return thermal.SafetyCheck(device, action, cfg.Safety)
	}
}

// CommitNotifier is called after a job is committed to a device, so the
// KV Cache Coordinator can begin prefetch/replication (spec.md §4.5
// step 5). The scheduler core does not depend on kvcache directly to
// avoid an import cycle concern and to keep this package testable in
// isolation; cmd/cluster.go wires the two together.
type CommitNotifier func(job *core.Job, device core.DeviceHandle)

// Scheduler is the Scheduler Core of spec.md §4.5: bounded submission
// queue, feasibility-filtered placement scoring, safety-gated commit,
// migration, and cancellation.
type Scheduler struct {
	cfg     core.Config
	devices DeviceSource
	routes  RouteSource
	thermal ThermalSource
	gate    SafetyGate
	notify  CommitNotifier

	q *queue

	mu      sync.Mutex
	active  map[core.JobID]*core.Job // scheduled/running/preempted jobs, keyed by ID
	retries map[core.JobID]int

	stats Stats
}

// Stats accumulates the counters surfaced in core.SchedulerStats.
type Stats struct {
	Scheduled        int64
	Failed           int64
	Migrations       int64
	SafetyRejections int64
}

// New constructs a Scheduler.
func New(cfg core.Config, devices DeviceSource, routes RouteSource, thermalModel ThermalSource, gate SafetyGate, notify CommitNotifier) *Scheduler {
	if gate == nil {
		gate = DefaultSafetyGate(cfg)
	}
	if notify == nil {
		notify = func(*core.Job, core.DeviceHandle) {}
	}
	return &Scheduler{
		cfg:     cfg,
		devices: devices,
		routes:  routes,
		thermal: thermalModel,
		gate:    gate,
		notify:  notify,
		q:       newQueue(cfg.MaxTasks),
		active:  make(map[core.JobID]*core.Job),
		retries: make(map[core.JobID]int),
	}
}

// Submit enqueues a new job from its descriptor (spec.md §4.5's
// submit_job), assigning a monotonically increasing JobID.
func (s *Scheduler) Submit(desc core.JobDescriptor) (core.JobID, *core.CoreError) {
	job := &core.Job{
		Workload:    desc.Workload,
		Constraints: desc.Constraints,
		Cache:       desc.Cache,
		Dependencies: desc.Dependencies,
		Priority:    desc.Priority,
	}
	if cerr := desc.Validate(); cerr != nil {
		return 0, cerr
	}
	return s.q.enqueue(job)
}

// QueueDepth returns the number of pending (not yet placed) jobs.
func (s *Scheduler) QueueDepth() int { return s.q.depth() }

// Step dequeues and places a single job, running the full placement
// algorithm of spec.md §4.5. Returns false if the queue was empty.
func (s *Scheduler) Step() bool {
	job := s.q.dequeue()
	if job == nil {
		return false
	}
	s.place(job)
	return true
}

// place runs steps 2-5 of spec.md §4.5 for one job: score candidates,
// pick argmin, safety-gate, retry with next-best on rejection, commit
// on success, requeue-with-backoff or fail on exhaustion.
func (s *Scheduler) place(job *core.Job) {
	devices := s.devices.Iter()
	excluded := make(map[core.DeviceHandle]bool)

	for {
		handle, found := selectDevice(s.cfg, s.thermal, s.routes, devices, job, excluded)
		if !found {
			s.onNoDevice(job)
			return
		}
		device, cerr := s.devices.Get(handle)
		if cerr != nil {
			excluded[handle] = true
			continue
		}
		rise := s.thermal.PredictRise(device, job.Workload)
		if ok, _ := s.gate(device, rise); !ok {
			s.mu.Lock()
			s.stats.SafetyRejections++
			s.mu.Unlock()
			excluded[handle] = true
			continue
		}
		s.commit(job, handle)
		return
	}
}

// onNoDevice implements spec.md §4.5 step 3's failure path: requeue
// once with backoff (modeled here as "send to the back of the queue
// again, rather than immediately retrying"); after MaxRetries, fail
// the job permanently.
func (s *Scheduler) onNoDevice(job *core.Job) {
	s.mu.Lock()
	s.retries[job.ID]++
	attempts := s.retries[job.ID]
	s.mu.Unlock()

	if attempts > s.cfg.MaxRetries {
		job.State = core.JobFailed
		s.mu.Lock()
		s.stats.Failed++
		delete(s.retries, job.ID)
		s.mu.Unlock()
		return
	}
	_ = s.q.requeue(job)
}

// commit marks the job scheduled on device, records it as active, and
// calls the commit notifier (spec.md §4.5 step 5). It does not change
// the device's utilization; the registry's live state is left as is.
func (s *Scheduler) commit(job *core.Job, device core.DeviceHandle) {
	job.State = core.JobScheduled
	job.AssignedDevice = device

	s.mu.Lock()
	s.active[job.ID] = job
	delete(s.retries, job.ID)
	s.stats.Scheduled++
	s.mu.Unlock()

	s.notify(job, device)
}

// Cancel cancels a job (spec.md §4.5's cancellation rule): removes it
// from the pending queue if still waiting, or marks it cancelled in
// place if already scheduled — the running execution itself is left to
// the execution layer, outside the core.
func (s *Scheduler) Cancel(id core.JobID) *core.CoreError {
	if s.q.remove(id) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.active[id]
	if !ok {
		return core.NewJobError(core.KindNotFound, id, "job not found")
	}
	if job.State == core.JobCompleted || job.State == core.JobFailed || job.State == core.JobCancelled {
		return core.NewJobError(core.KindAlreadyTerminal, id, "job already terminal")
	}
	job.State = core.JobCancelled
	return nil
}

// MarkRunning transitions a committed job from scheduled to running
// (spec.md §4.5: commit hands the job to the execution layer, which
// reports back once it actually starts work on the device). This is
// the scheduled -> running edge of the job state machine — the
// execution layer is the real caller; without it RunMigrationPolicy
// can never observe a running job, since migration only acts on
// JobRunning jobs.
func (s *Scheduler) MarkRunning(id core.JobID) *core.CoreError {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.active[id]
	if !ok {
		return core.NewJobError(core.KindNotFound, id, "job not found")
	}
	if job.State != core.JobScheduled {
		return core.NewJobError(core.KindAlreadyTerminal, id, "job is not in scheduled state")
	}
	job.State = core.JobRunning
	return nil
}

// SnapshotStats returns the scheduler's counters for telemetry.
func (s *Scheduler) SnapshotStats() core.SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.SchedulerStats{
		QueueDepth:       s.q.depth(),
		Scheduled:        s.stats.Scheduled,
		Failed:           s.stats.Failed,
		Migrations:       s.stats.Migrations,
		SafetyRejections: s.stats.SafetyRejections,
	}
}
