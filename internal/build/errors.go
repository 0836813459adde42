package build

import "errors"

// Sentinel errors for the job state machine. Callers wrap them with context.
var (
	ErrIllegalTransition = errors.New("illegal build status transition")
	ErrTerminal          = errors.New("build job already finished")
)
