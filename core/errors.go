package core

import "fmt"

// Kind enumerates the error taxonomy from spec.md §7. Every operation
// exposed by the core returns either nil or a *CoreError whose Kind is
// one of these, except Config.Validate, which returns a plain error —
// the idiomatic Go rendering of "a single sum-typed
// error result across the core" (Design Note §9).
type Kind string

const (
	// Input errors: always surfaced, never retried internally.
	KindValidationError Kind = "validation_error"
	KindDuplicate       Kind = "duplicate"
	KindNotFound        Kind = "not_found"
	KindUnknownDevice   Kind = "unknown_device"
	KindAlreadyTerminal Kind = "already_terminal"

	// Capacity errors: surfaced; OutOfCapacity on a cache allocation
	// triggers one eviction-retry in the scheduler path before surfacing.
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindQueueFull        Kind = "queue_full"
	KindOutOfCapacity    Kind = "out_of_capacity"

	// Placement errors: requeued with backoff up to MaxRetries, then fail.
	KindNoDevice    Kind = "no_device"
	KindUnreachable Kind = "unreachable"
	KindDegenerate  Kind = "degenerate"

	// Safety violations: fatal for the proposed action only.
	KindThermalLimit Kind = "thermal_limit"
	KindPowerCap     Kind = "power_cap"

	// Consistency errors: retried once, fatal for the job on recurrence.
	KindCoherencyConflict Kind = "coherency_conflict"

	// Cancellation / timeout: clean, no partial state survives.
	KindCancelled Kind = "cancelled"
	KindTimeout   Kind = "timeout"

	// HasActiveJobs: deregistration blocked by outstanding jobs.
	KindHasActiveJobs Kind = "has_active_jobs"
)

// CoreError is the concrete error type returned by every core operation.
// Device and Job are optional context (empty when not applicable) —
// fatal errors are always scoped to a job or a device, never to the
// whole core (spec.md §7).
type CoreError struct {
	Kind   Kind
	Device DeviceHandle
	Job    JobID
	Msg    string
}

func (e *CoreError) Error() string {
	switch {
	case e.Device != "" && e.Job != 0:
		return fmt.Sprintf("%s: device=%s job=%s: %s", e.Kind, e.Device, e.Job, e.Msg)
	case e.Device != "":
		return fmt.Sprintf("%s: device=%s: %s", e.Kind, e.Device, e.Msg)
	case e.Job != 0:
		return fmt.Sprintf("%s: job=%s: %s", e.Kind, e.Job, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

// Is supports errors.Is(err, &CoreError{Kind: KindX}) by comparing Kind
// only, so callers can match without needing Device/Job populated.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError constructs a bare CoreError for the given kind and message.
func NewError(kind Kind, msg string) *CoreError {
	return &CoreError{Kind: kind, Msg: msg}
}

// NewDeviceError constructs a CoreError scoped to a device.
func NewDeviceError(kind Kind, dev DeviceHandle, msg string) *CoreError {
	return &CoreError{Kind: kind, Device: dev, Msg: msg}
}

// NewJobError constructs a CoreError scoped to a job.
func NewJobError(kind Kind, job JobID, msg string) *CoreError {
	return &CoreError{Kind: kind, Job: job, Msg: msg}
}

// Sentinel errors for errors.Is comparisons where no extra context is needed.
var (
	ErrValidation       = &CoreError{Kind: KindValidationError}
	ErrDuplicate        = &CoreError{Kind: KindDuplicate}
	ErrNotFound         = &CoreError{Kind: KindNotFound}
	ErrUnknownDevice    = &CoreError{Kind: KindUnknownDevice}
	ErrAlreadyTerminal  = &CoreError{Kind: KindAlreadyTerminal}
	ErrCapacityExceeded = &CoreError{Kind: KindCapacityExceeded}
	ErrQueueFull        = &CoreError{Kind: KindQueueFull}
	ErrOutOfCapacity    = &CoreError{Kind: KindOutOfCapacity}
	ErrNoDevice         = &CoreError{Kind: KindNoDevice}
	ErrUnreachable      = &CoreError{Kind: KindUnreachable}
	ErrDegenerate       = &CoreError{Kind: KindDegenerate}
	ErrThermalLimit     = &CoreError{Kind: KindThermalLimit}
	ErrPowerCap         = &CoreError{Kind: KindPowerCap}
	ErrCoherencyConflict = &CoreError{Kind: KindCoherencyConflict}
	ErrCancelled        = &CoreError{Kind: KindCancelled}
	ErrTimeout          = &CoreError{Kind: KindTimeout}
	ErrHasActiveJobs    = &CoreError{Kind: KindHasActiveJobs}
)
