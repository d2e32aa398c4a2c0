package pkg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	variableResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variable_resolutions_total",
		Help: "The total number of variable context resolutions",
	}, []string{"host"})

	templateRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "template_renders_total",
		Help: "The total number of template renders",
	}, []string{"host"})

	templateErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "template_errors_total",
		Help: "The total number of failed template renders",
	}, []string{"host"})

	taskExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_executions_total",
		Help: "The total number of task executions",
	}, []string{"task", "module", "host"})

	taskSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_skips_total",
		Help: "The total number of skipped tasks",
	}, []string{"task", "module", "host"})

	taskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_errors_total",
		Help: "The total number of task errors",
	}, []string{"task", "module", "host"})

	gatherDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fact_gather_duration_seconds",
		Help:    "The duration of fact gathering in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"host"})
)

// IncResolution counts one context resolution for a host.
func IncResolution(host string) {
	variableResolutions.WithLabelValues(host).Inc()
}

// IncRender counts one template render for a host.
func IncRender(host string, failed bool) {
	templateRenders.WithLabelValues(host).Inc()
	if failed {
		templateErrors.WithLabelValues(host).Inc()
	}
}

// IncTask counts a task outcome.
func IncTask(task, module, host, outcome string) {
	switch outcome {
	case "skipped":
		taskSkips.WithLabelValues(task, module, host).Inc()
	case "failed":
		taskErrors.WithLabelValues(task, module, host).Inc()
	default:
		taskExecutions.WithLabelValues(task, module, host).Inc()
	}
}

// ObserveGatherDuration records how long gathering facts for a host took.
func ObserveGatherDuration(host string, d time.Duration) {
	gatherDuration.WithLabelValues(host).Observe(d.Seconds())
}
