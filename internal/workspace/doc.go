// Package workspace creates the working directories local workers run in.
//
// Every job gets its own ephemeral directory (e.g. build-brave-lion-42-1700000000000-381734)
// below a common root, so concurrent workers on one host never share a
// clone or output folder. The directory is removed once the worker exits.
package workspace
