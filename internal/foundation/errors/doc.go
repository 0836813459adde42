// Package errors provides the classified error primitives used across the
// preview pipeline.
//
// Every request-time failure (invalid input, missing configuration, provisioning
// failure, proxy misconfiguration) and every pipeline stage failure is expressed
// as a ClassifiedError so that the HTTP and CLI adapters can pick a status code
// or exit code from its category alone.
//
// Example usage:
//
//	err := errors.ProvisioningError("failed to launch build").
//		WithContext("project_id", slug).
//		WithCause(providerErr).
//		Build()
package errors
