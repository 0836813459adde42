// Package build defines the data model shared by the dispatcher, the worker
// and the log relay: build requests, immutable job specs, the monotonic job
// status machine and the structured log events a worker publishes.
//
// The package holds no I/O. Everything that talks to a provisioner, an object
// store or a message bus lives in its own package and depends on these types.
package build
