// Package analyzer runs the image analysis pipeline: it interprets a
// free-text query into detection criteria, fans the criteria out over
// every camera snapshot with a bounded worker pool, and folds the
// per-image outcomes into a final report.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"

	"camera-analyze-service/llm"
	"camera-analyze-service/metadata"
	"camera-analyze-service/metrics"
	"camera-analyze-service/models"
	"camera-analyze-service/parser"
	"camera-analyze-service/report"
	"camera-analyze-service/storage"
)

// ErrNoItems is returned when the image store has nothing to analyze.
var ErrNoItems = errors.New("no images available for analysis")

type Analyzer struct {
	llm      llm.Client
	store    storage.Store
	cameras  *metadata.Table
	composer *report.Composer
	workers  int
}

func New(client llm.Client, store storage.Store, cameras *metadata.Table, composer *report.Composer, workers int) *Analyzer {
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{
		llm:      client,
		store:    store,
		cameras:  cameras,
		composer: composer,
		workers:  workers,
	}
}

// InterpretQuery turns a free-text query into detection criteria. When
// the model response cannot be parsed the query itself becomes the
// criteria, so a run never fails at the interpretation step.
func (a *Analyzer) InterpretQuery(ctx context.Context, query string) *models.DetectionSpec {
	start := time.Now()
	response, err := a.llm.CompleteJSON(ctx, interpretPrompt(query))
	metrics.InferenceDurationSeconds.WithLabelValues("query").Observe(time.Since(start).Seconds())
	if err == nil {
		spec, perr := parser.ParseDetectionSpec(response)
		if perr == nil {
			return spec
		}
		err = perr
	}
	log.WithError(err).WithField("query", query).Warn("query interpretation failed, using literal query")
	return &models.DetectionSpec{
		SearchObjective:   query,
		CountRequired:     true,
		EntityType:        "items",
		DetectionCriteria: query,
		DataToCollect:     []string{"count", "description"},
		ResponseFormat:    "structured",
	}
}

func interpretPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are configuring an automated camera image analysis system.\n")
	b.WriteString("Convert the operator's request into detection criteria.\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", query)
	b.WriteString("Respond with a JSON object with exactly these fields:\n")
	b.WriteString(`{
  "search_objective": "what the operator wants to find",
  "count_required": true or false,
  "entity_type": "the kind of object or condition to detect",
  "detection_criteria": "precise visual criteria for deciding a match",
  "data_to_collect": ["fields worth extracting per image"],
  "response_format": "structured"
}`)
	return b.String()
}

// analysisPrompt is the per-image instruction sent with each snapshot.
func analysisPrompt(spec *models.DetectionSpec) string {
	var b strings.Builder
	b.WriteString("Analyze this camera snapshot.\n\n")
	fmt.Fprintf(&b, "Objective: %s\n", spec.SearchObjective)
	fmt.Fprintf(&b, "Detection criteria: %s\n", spec.DetectionCriteria)
	if len(spec.DataToCollect) > 0 {
		fmt.Fprintf(&b, "Collect: %s\n", strings.Join(spec.DataToCollect, ", "))
	}
	b.WriteString("\nRespond with a JSON object with exactly these fields:\n")
	b.WriteString(`{
  "match": true or false,
  "count": number of matching objects, or "N/A" when counting does not apply,
  "description": "one sentence describing what is visible",
  "confidence": "high", "medium" or "low",
  "details": "supporting detail for the decision",
  "additional_observations": "anything else notable, or empty string"
}`)
	b.WriteString("\nReport only what is actually visible in the image.")
	return b.String()
}

// analyzeImage produces exactly one result per image. Failures are
// folded into an error-status result so a bad image never aborts the
// surrounding run.
func (a *Analyzer) analyzeImage(ctx context.Context, name, prompt string) models.ImageResult {
	result := a.baseResult(name)

	if err := ctx.Err(); err != nil {
		return a.errorResult(result, fmt.Errorf("analysis cancelled: %w", err))
	}

	image, err := a.store.Resolve(ctx, name)
	if err != nil {
		return a.errorResult(result, fmt.Errorf("failed to load image: %w", err))
	}

	start := time.Now()
	response, err := a.llm.AnalyzeImage(ctx, image, prompt)
	metrics.InferenceDurationSeconds.WithLabelValues("vision").Observe(time.Since(start).Seconds())
	if err != nil {
		return a.errorResult(result, fmt.Errorf("vision analysis failed: %w", err))
	}

	analysis, err := parser.ParseImageAnalysis(response)
	if err != nil {
		return a.errorResult(result, err)
	}

	result.Match = analysis.Match
	result.Count = analysis.Count
	result.Description = analysis.Description
	result.Confidence = analysis.Confidence
	result.Details = analysis.Details
	result.Observations = analysis.Observations
	result.Status = models.StatusSuccess

	metrics.ImagesProcessedTotal.WithLabelValues("success").Inc()
	if result.Match {
		metrics.MatchesFoundTotal.Inc()
	}
	return result
}

// baseResult fills the camera metadata for an image before analysis
// runs, so even failed analyses identify their camera.
func (a *Analyzer) baseResult(name string) models.ImageResult {
	result := models.ImageResult{
		ImageName: name,
		Timestamp: time.Now().UTC(),
	}

	rec := metadata.UnknownRecord("Unknown")
	if ip, ok := metadata.ExtractCameraIP(name); ok {
		rec = a.cameras.Lookup(ip)
	}
	result.CameraIP = rec.CameraIP
	result.OldDistrict = rec.OldDistrict
	result.NewDistrict = rec.NewDistrict
	result.Mandal = rec.Mandal
	result.LocationName = rec.LocationName
	result.Latitude = rec.Latitude
	result.Longitude = rec.Longitude
	result.CameraType = rec.CameraType
	result.AnalyticsType = rec.AnalyticsType
	return result
}

func (a *Analyzer) errorResult(result models.ImageResult, err error) models.ImageResult {
	log.WithError(err).WithField("image", result.ImageName).Warn("image analysis failed")
	metrics.ImagesProcessedTotal.WithLabelValues("error").Inc()
	result.Status = models.StatusError
	result.Error = err.Error()
	return result
}
