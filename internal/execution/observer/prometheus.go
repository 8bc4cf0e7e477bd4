package observer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	memoryUsage   *prometheus.HistogramVec
	submissions   *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
	admission     *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderank_executions_total",
				Help: "Total number of process runner invocations",
			},
			[]string{"language", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderank_execution_duration_ms",
				Help:    "Wall clock duration of an execution pipeline in milliseconds",
				Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"language"},
		),
		memoryUsage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderank_memory_usage_kb",
				Help:    "Peak resident memory per execution in KB",
				Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144},
			},
			[]string{"language"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderank_submissions_total",
				Help: "Submissions that reached a terminal status",
			},
			[]string{"language", "status"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coderank_queue_depth",
				Help: "Submissions accepted and waiting for a worker",
			},
		),
		activeWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coderank_active_workers",
				Help: "Workers currently executing a submission",
			},
		),
		admission: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderank_admission_denied_total",
				Help: "Submissions rejected by the admission gate",
			},
			[]string{"role"},
		),
	}
}

func (p *Prometheus) ObserveRun(_ context.Context, languageID, outcome string, elapsedMs, memoryKB int64) {
	p.runs.WithLabelValues(languageID, outcome).Inc()
	if outcome == OutcomeUnavailable {
		return
	}
	p.runDuration.WithLabelValues(languageID).Observe(float64(elapsedMs))
	if memoryKB > 0 {
		p.memoryUsage.WithLabelValues(languageID).Observe(float64(memoryKB))
	}
}

func (p *Prometheus) ObserveSubmission(_ context.Context, languageID, status string) {
	p.submissions.WithLabelValues(languageID, status).Inc()
}

func (p *Prometheus) SetQueueDepth(n int) {
	p.queueDepth.Set(float64(n))
}

func (p *Prometheus) AddActiveWorkers(delta int) {
	p.activeWorkers.Add(float64(delta))
}

func (p *Prometheus) ObserveAdmissionDenied(_ context.Context, role string) {
	p.admission.WithLabelValues(role).Inc()
}
