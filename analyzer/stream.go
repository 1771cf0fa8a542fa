package analyzer

import (
	"context"
	"fmt"

	"camera-analyze-service/metrics"
	"camera-analyze-service/models"
)

// Stream executes a full analysis for query, emitting progress events
// as workers finish. The channel is closed when the run ends, after
// either a complete or an error event. Cancelling ctx stops the run.
func (a *Analyzer) Stream(ctx context.Context, query string) <-chan models.Event {
	events := make(chan models.Event, 16)

	go func() {
		defer close(events)
		metrics.AnalysisInFlight.Inc()
		defer metrics.AnalysisInFlight.Dec()

		if !emit(ctx, events, models.Event{Type: models.EventStart, Data: map[string]string{
			"message": "Starting analysis",
		}}) {
			return
		}

		names, err := a.store.List(ctx)
		if err != nil {
			metrics.AnalysisRunsTotal.WithLabelValues("fresh", "error").Inc()
			emit(ctx, events, errorEvent(fmt.Errorf("failed to list images: %w", err)))
			return
		}
		if len(names) == 0 {
			metrics.AnalysisRunsTotal.WithLabelValues("fresh", "error").Inc()
			emit(ctx, events, errorEvent(ErrNoItems))
			return
		}
		if !emit(ctx, events, models.Event{Type: models.EventLog, Data: map[string]string{
			"message": fmt.Sprintf("Found %d images to analyze", len(names)),
		}}) {
			return
		}

		spec := a.InterpretQuery(ctx, query)
		if !emit(ctx, events, models.Event{Type: models.EventQueryAnalysis, Data: spec}) {
			return
		}

		prompt := analysisPrompt(spec)
		total := len(names)
		done := 0
		results := make([]models.ImageResult, 0, total)

		a.analyzeAll(ctx, names, prompt, func(r models.ImageResult) {
			results = append(results, r)
			done++
			emit(ctx, events, models.Event{Type: models.EventProgress, Data: models.ProgressData{
				Current: done,
				Total:   total,
				Percent: done * 100 / total,
			}})
			emit(ctx, events, models.Event{Type: models.EventLog, Data: map[string]string{
				"message": fmt.Sprintf("Analyzed %s (%s)", r.ImageName, r.Status),
			}})
			if r.Status == models.StatusSuccess && r.Match {
				emit(ctx, events, models.Event{Type: models.EventMatch, Data: r})
			}
		})

		// A cancelled stream ends without a complete or error event:
		// the consumer is gone, so there is nobody left to receive one.
		if ctx.Err() != nil {
			metrics.AnalysisRunsTotal.WithLabelValues("fresh", "error").Inc()
			return
		}

		if !emit(ctx, events, models.Event{Type: models.EventLog, Data: map[string]string{
			"message": "Generating report",
		}}) {
			return
		}

		run := a.buildRunResult(ctx, query, spec, results)
		metrics.AnalysisRunsTotal.WithLabelValues("fresh", "success").Inc()
		emit(ctx, events, models.Event{Type: models.EventComplete, Data: run})
	}()

	return events
}

func emit(ctx context.Context, ch chan<- models.Event, ev models.Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorEvent(err error) models.Event {
	return models.Event{Type: models.EventError, Data: map[string]string{
		"error": err.Error(),
	}}
}
