// Package component defines the uniform operation contract every rendering
// backend variant satisfies, and provides the built-in variants: the pure Go
// software rasterizer, the accelerated and streaming renderer adapters over
// the native call surface, and the guest-memory passthrough.
//
// Adapter methods are not internally synchronized. The dispatcher guarantees
// at most one in-flight call per resource or context; fence completion
// callbacks may still arrive from a backend-owned goroutine at any time.
//
// Variants self-register with the package registry and are selected by name
// or by priority, the same way the bridge builder picks a backend at
// startup.
package component
