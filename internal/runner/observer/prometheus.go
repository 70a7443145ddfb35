package observer

import (
	"time"

	"liverun/internal/runner/result"
	"liverun/internal/runner/spec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus exports lifecycle events as liverun_* metrics.
type Prometheus struct {
	activeSessions      prometheus.Gauge
	sessionsTotal       *prometheus.CounterVec
	sessionLifetime     prometheus.Histogram
	processesTotal      *prometheus.CounterVec
	processDuration     *prometheus.HistogramVec
	processMemory       *prometheus.HistogramVec
	connectionsRejected *prometheus.CounterVec
}

// NewPrometheus registers the collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liverun_active_sessions",
			Help: "Number of open sessions",
		}),
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liverun_sessions_total",
			Help: "Finished sessions by final state",
		}, []string{"state"}),
		sessionLifetime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "liverun_session_lifetime_seconds",
			Help:    "Time from connection to teardown",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		processesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liverun_processes_total",
			Help: "Finished processes by language, kind and outcome",
		}, []string{"language", "kind", "outcome"}),
		processDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liverun_process_duration_ms",
			Help:    "Process wall time in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"language", "kind"}),
		processMemory: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liverun_process_memory_kb",
			Help:    "Peak resident memory per process in KB",
			Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144},
		}, []string{"language"}),
		connectionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liverun_connections_rejected_total",
			Help: "Connections refused before a session was created",
		}, []string{"reason"}),
	}
}

func (p *Prometheus) SessionOpened() {
	p.activeSessions.Inc()
}

func (p *Prometheus) SessionClosed(finalState string, lifetime time.Duration) {
	p.activeSessions.Dec()
	p.sessionsTotal.WithLabelValues(finalState).Inc()
	p.sessionLifetime.Observe(lifetime.Seconds())
}

func (p *Prometheus) ProcessFinished(language string, kind spec.ProcessKind, status result.ExitStatus) {
	p.processesTotal.WithLabelValues(language, string(kind), status.Outcome()).Inc()
	if status.Reason == result.ReasonSpawnFailed {
		return
	}
	p.processDuration.WithLabelValues(language, string(kind)).Observe(float64(status.WallTimeMs))
	if status.MemoryKB > 0 {
		p.processMemory.WithLabelValues(language).Observe(float64(status.MemoryKB))
	}
}

func (p *Prometheus) ConnectionRejected(reason string) {
	p.connectionsRejected.WithLabelValues(reason).Inc()
}
