package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "previewer"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	dispatches        *prom.CounterVec
	provisionDuration *prom.HistogramVec
	stageDuration     *prom.HistogramVec
	stageResults      *prom.CounterVec
	uploadedFiles     prom.Counter
	uploadedBytes     prom.Counter
	relayConnections  prom.Gauge
	relayDelivered    prom.Counter
	relayDropped      prom.Counter
	proxyRequests     *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		dispatches: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Build submissions by outcome",
		}, []string{"outcome"}),
		provisionDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "Time until the provisioner acknowledged a launch",
			Buckets:   prom.DefBuckets,
		}, []string{"provider", "result"}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		uploadedFiles: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Artifact files written to the object store",
		}),
		uploadedBytes: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Artifact bytes written to the object store",
		}),
		relayConnections: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Live log subscriber connections",
		}),
		relayDelivered: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "relay_delivered_total",
			Help:      "Log messages queued to subscribers",
		}),
		relayDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Subscribers disconnected for falling behind",
		}),
		proxyRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Preview proxy requests by response status",
		}, []string{"status"}),
	}
	reg.MustRegister(pr.dispatches, pr.provisionDuration, pr.stageDuration, pr.stageResults,
		pr.uploadedFiles, pr.uploadedBytes, pr.relayConnections, pr.relayDelivered, pr.relayDropped, pr.proxyRequests)
	return pr
}

func (p *PrometheusRecorder) IncDispatch(outcome DispatchOutcome) {
	if p == nil {
		return
	}
	p.dispatches.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveProvisionDuration(provider string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	p.provisionDuration.WithLabelValues(provider, resultOf(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) AddUploaded(files int, bytes int64) {
	if p == nil {
		return
	}
	p.uploadedFiles.Add(float64(files))
	p.uploadedBytes.Add(float64(bytes))
}

func (p *PrometheusRecorder) SetRelayConnections(n int) {
	if p == nil {
		return
	}
	p.relayConnections.Set(float64(n))
}

func (p *PrometheusRecorder) IncRelayDelivered() {
	if p == nil {
		return
	}
	p.relayDelivered.Inc()
}

func (p *PrometheusRecorder) IncRelayDropped() {
	if p == nil {
		return
	}
	p.relayDropped.Inc()
}

func (p *PrometheusRecorder) IncProxyRequest(status int) {
	if p == nil {
		return
	}
	p.proxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func resultOf(success bool) string {
	if success {
		return string(ResultSuccess)
	}
	return string(ResultFailed)
}
