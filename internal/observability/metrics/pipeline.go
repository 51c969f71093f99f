package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline counts annotation pipeline activity: dispatched tasks by kind
// and outcome, in-flight tasks, and cache effectiveness.
type Pipeline struct {
	registry *prometheus.Registry

	taskTotal     *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	tasksInFlight prometheus.Gauge
	cacheRequests *prometheus.CounterVec
	streamChunks  prometheus.Counter
}

func NewPipeline() *Pipeline {
	registry := prometheus.NewRegistry()

	taskTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanread",
			Subsystem: "pipeline",
			Name:      "task_total",
			Help:      "Total dispatched tasks by kind and outcome.",
		},
		[]string{"kind", "status"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scanread",
			Subsystem: "pipeline",
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds by kind and outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind", "status"},
	)
	tasksInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scanread",
			Subsystem: "pipeline",
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently running or queued.",
		},
	)
	cacheRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanread",
			Subsystem: "pipeline",
			Name:      "cache_requests_total",
			Help:      "Annotation cache lookups by result.",
		},
		[]string{"result"},
	)
	streamChunks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanread",
			Subsystem: "pipeline",
			Name:      "stream_chunks_total",
			Help:      "Streamed AI chunks delivered to callbacks.",
		},
	)

	registry.MustRegister(taskTotal, taskDuration, tasksInFlight, cacheRequests, streamChunks)

	return &Pipeline{
		registry:      registry,
		taskTotal:     taskTotal,
		taskDuration:  taskDuration,
		tasksInFlight: tasksInFlight,
		cacheRequests: cacheRequests,
		streamChunks:  streamChunks,
	}
}

func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Pipeline) StartTask() {
	p.tasksInFlight.Inc()
}

func (p *Pipeline) FinishTask(kind string, duration time.Duration, err error) {
	p.tasksInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	p.taskTotal.WithLabelValues(kind, status).Inc()
	p.taskDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

func (p *Pipeline) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheRequests.WithLabelValues(result).Inc()
}

func (p *Pipeline) ObserveStreamChunk() {
	p.streamChunks.Inc()
}
