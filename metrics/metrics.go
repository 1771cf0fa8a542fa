package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AnalysisInFlight tracks analysis runs currently executing.
	AnalysisInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "camera_analyze",
		Subsystem: "pipeline",
		Name:      "analysis_in_flight",
		Help:      "Number of analysis runs currently executing",
	})

	// AnalysisRunsTotal counts completed runs by mode and outcome.
	AnalysisRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camera_analyze",
		Subsystem: "pipeline",
		Name:      "analysis_runs_total",
		Help:      "Total analysis runs by mode (fresh, contextual) and result",
	}, []string{"mode", "result"})

	// ImagesProcessedTotal counts per-image analyses by result.
	ImagesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camera_analyze",
		Subsystem: "pipeline",
		Name:      "images_processed_total",
		Help:      "Total images processed by result (success, error)",
	}, []string{"result"})

	// MatchesFoundTotal counts images where the detection matched.
	MatchesFoundTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "camera_analyze",
		Subsystem: "pipeline",
		Name:      "matches_found_total",
		Help:      "Total images where the detection criteria matched",
	})

	// InferenceDurationSeconds observes LLM call latency by kind.
	InferenceDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "camera_analyze",
		Subsystem: "llm",
		Name:      "inference_duration_seconds",
		Help:      "LLM call duration by kind (vision, query, report)",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind"})
)

var registerOnce sync.Once

// Register registers all pipeline metrics with the default registry.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AnalysisInFlight,
			AnalysisRunsTotal,
			ImagesProcessedTotal,
			MatchesFoundTotal,
			InferenceDurationSeconds,
		)
	})
}
