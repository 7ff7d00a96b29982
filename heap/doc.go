// Package heap implements the Ferrite object-lifecycle core.
//
// This package contains:
//   - Type tag and object flag encodings
//   - Lock-free strong/weak reference counting with cycle marking
//   - The 16-byte per-object header
//   - Epoch-based deferred reclamation for concurrent mutators
//   - A background collector with pause-time accounting
package heap
