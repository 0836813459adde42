// Package metrics provides observability hooks for the preview pipeline.
//
// Components depend on the Recorder interface and default to NoopRecorder,
// so metrics collection needs no nil checks at call sites. The API server and
// the proxy swap in a PrometheusRecorder and expose its registry through
// HTTPHandler at /metrics.
//
//	rec := metrics.NewPrometheusRecorder(reg)
//	d := dispatch.New(cfg, prov, dispatch.WithRecorder(rec))
//
// The worker runs as a short-lived process and records stage metrics only
// into its structured log; it uses NoopRecorder.
package metrics
