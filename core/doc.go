// Package core defines the bridge types and interfaces shared across the
// thermal-aware scheduler: devices, links, routes, jobs, cache blocks,
// sequences, thermal state, configuration, and the error taxonomy.
//
// # Reading Guide
//
// Start with these three files to understand the data model:
//   - device.go:  Device, LiveState, Link — the registry's owned entities
//   - job.go:     Job, WorkloadProfile, Constraints, CacheDescriptor
//   - errors.go:  CoreError and the Kind taxonomy every operation returns
//
// # Architecture
//
// core defines types only; implementations live in sibling packages:
//   - core/registry:  device table, RW-locked live state
//   - core/routing:   shortest-path engine, route cache
//   - core/kvcache:   block allocation, eviction, prefix matching, MESI
//   - core/thermal:   temperature prediction, safety gate
//   - core/scheduler: submission queue, placement, migration
//   - core/control:   periodic tick orchestrating the above
//
// Sub-packages depend on core; core never imports a sub-package, which
// keeps the dependency graph acyclic the same way sim/ and its
// sub-packages are split in the teacher project this module was grown
// from.
package core
