package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// DispatchOutcome labels the result of one SubmitBuild call.
type DispatchOutcome string

const (
	DispatchQueued          DispatchOutcome = "queued"
	DispatchInvalid         DispatchOutcome = "invalid"
	DispatchConfigError     DispatchOutcome = "config_error"
	DispatchProvisionFailed DispatchOutcome = "provision_failed"
)

// Recorder defines observability hooks for dispatch, pipeline, relay and
// proxy metrics. Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	IncDispatch(outcome DispatchOutcome)
	ObserveProvisionDuration(provider string, d time.Duration, success bool)
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	AddUploaded(files int, bytes int64)
	SetRelayConnections(n int)
	IncRelayDelivered()
	IncRelayDropped()
	IncProxyRequest(status int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncDispatch(DispatchOutcome)                          {}
func (NoopRecorder) ObserveProvisionDuration(string, time.Duration, bool) {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                   {}
func (NoopRecorder) AddUploaded(int, int64)                               {}
func (NoopRecorder) SetRelayConnections(int)                              {}
func (NoopRecorder) IncRelayDelivered()                                   {}
func (NoopRecorder) IncRelayDropped()                                     {}
func (NoopRecorder) IncProxyRequest(int)                                  {}
