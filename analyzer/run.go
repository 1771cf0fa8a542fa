package analyzer

import (
	"context"
	"fmt"
	"sync"

	"camera-analyze-service/aggregate"
	"camera-analyze-service/metrics"
	"camera-analyze-service/models"
)

// analyzeAll fans names out over the worker pool. Results reach
// onResult one at a time from a single collector, in completion order.
func (a *Analyzer) analyzeAll(ctx context.Context, names []string, prompt string, onResult func(models.ImageResult)) {
	jobs := make(chan string, len(names))
	for _, name := range names {
		jobs <- name
	}
	close(jobs)

	resultCh := make(chan models.ImageResult)

	workers := a.workers
	if workers > len(names) {
		workers = len(names)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				resultCh <- a.analyzeImage(ctx, name, prompt)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		onResult(r)
	}
}

// Run executes a full analysis for query and blocks until the report
// is ready.
func (a *Analyzer) Run(ctx context.Context, query string) (*models.RunResult, error) {
	metrics.AnalysisInFlight.Inc()
	defer metrics.AnalysisInFlight.Dec()

	names, err := a.store.List(ctx)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("fresh", "error").Inc()
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	if len(names) == 0 {
		metrics.AnalysisRunsTotal.WithLabelValues("fresh", "error").Inc()
		return nil, ErrNoItems
	}

	spec := a.InterpretQuery(ctx, query)
	prompt := analysisPrompt(spec)

	results := make([]models.ImageResult, 0, len(names))
	a.analyzeAll(ctx, names, prompt, func(r models.ImageResult) {
		results = append(results, r)
	})

	run := a.buildRunResult(ctx, query, spec, results)
	metrics.AnalysisRunsTotal.WithLabelValues("fresh", "success").Inc()
	return run, nil
}

func (a *Analyzer) buildRunResult(ctx context.Context, query string, spec *models.DetectionSpec, results []models.ImageResult) *models.RunResult {
	stats := aggregate.Summarize(results)
	matches := aggregate.MatchingResults(results)

	return &models.RunResult{
		TotalImages:     len(results),
		MatchesFound:    len(matches),
		UniqueLocations: uniqueLocations(matches),
		Stats:           stats,
		DetailedResults: results,
		FinalAnswer:     a.composer.Compose(ctx, query, spec, results),
	}
}

func uniqueLocations(matches []models.ImageResult) int {
	seen := make(map[string]bool)
	for _, m := range matches {
		seen[m.LocationName] = true
	}
	return len(seen)
}
