// Package scheduler implements the Scheduler Core (spec.md §4.5):
// bounded job submission, feasibility-filtered placement scoring,
// safety-gated commit, migration under thermal pressure, and
// cancellation.
//
// Grounded on sim/queue.go's WaitQueue (FIFO enqueue/dequeue) and
// sim/scheduler.go's InstanceScheduler naming convention, generalized
// from an unbounded slice queue to the bounded ring buffer spec.md
// §4.5 requires (submit_job enqueues into a ring buffer of size
// MAX_TASKS; a full queue returns QueueFull).
package scheduler

import (
	"sync"

	"github.com/thermasched/thermasched/core"
)

// queue is a bounded FIFO ring buffer of pending jobs. Job ids are
// monotonically increasing and assigned at enqueue (spec.md §4.5).
type queue struct {
	mu       sync.Mutex
	buf      []*core.Job
	head     int
	size     int
	capacity int
	nextID   int64
}

func newQueue(capacity int) *queue {
	return &queue{buf: make([]*core.Job, capacity), capacity: capacity}
}

// enqueue assigns the next monotonic JobID and appends job to the
// ring buffer. Returns QueueFull if the buffer is at capacity.
func (q *queue) enqueue(job *core.Job) (core.JobID, *core.CoreError) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == q.capacity {
		return 0, core.NewError(core.KindQueueFull, "scheduler queue is full")
	}
	q.nextID++
	id := core.JobID(q.nextID)
	job.ID = id
	job.State = core.JobPending

	tail := (q.head + q.size) % q.capacity
	q.buf[tail] = job
	q.size++
	return id, nil
}

// dequeue removes and returns the job at the head of the queue, or nil
// if empty.
func (q *queue) dequeue() *core.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}
	job := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.size--
	return job
}

// requeue re-inserts job at the tail, used for NoDevice backoff retries
// and migrations moving a job back to pending. Returns QueueFull if
// the buffer is at capacity (the job's retry budget is the caller's
// concern, not the queue's).
func (q *queue) requeue(job *core.Job) *core.CoreError {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == q.capacity {
		return core.NewError(core.KindQueueFull, "scheduler queue is full")
	}
	tail := (q.head + q.size) % q.capacity
	q.buf[tail] = job
	q.size++
	return nil
}

// remove scans the queue for a job with the given ID and removes it in
// place (spec.md §4.5's cancellation of a pending job), preserving FIFO
// order of the remaining entries. Returns true if found and removed.
func (q *queue) remove(id core.JobID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	found := -1
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % q.capacity
		if q.buf[idx].ID == id {
			found = i
			break
		}
	}
	if found == -1 {
		return false
	}
	for i := found; i < q.size-1; i++ {
		from := (q.head + i + 1) % q.capacity
		to := (q.head + i) % q.capacity
		q.buf[to] = q.buf[from]
	}
	last := (q.head + q.size - 1) % q.capacity
	q.buf[last] = nil
	q.size--
	return true
}

// depth returns the current number of pending jobs.
func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
