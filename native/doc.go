// Package native defines the fixed call surface between the bridge core and
// a native rendering backend.
//
// The surface mirrors a C ABI: every structure has a fixed layout, every
// fallible call returns an int32 status code where zero means success and
// any other value is a backend-defined failure code surfaced verbatim to the
// caller. The core assumes nothing beyond that return-code contract.
//
// A backend is represented by the Renderer interface. Process-wide backend
// state (the renderer instance plus the callback cookie of the C API) is
// held by a State value created at startup and passed by reference to every
// adapter; teardown is idempotent and guarded against double invocation.
package native
