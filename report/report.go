// Package report renders the final answer for an analysis run. The
// narrative paragraph comes from the language model; everything below
// it is generated programmatically from the result set so the numbers
// in the report always agree with the aggregation.
package report

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/apex/log"

	"camera-analyze-service/aggregate"
	"camera-analyze-service/llm"
	"camera-analyze-service/models"
)

type Composer struct {
	llm llm.Client
}

func NewComposer(client llm.Client) *Composer {
	return &Composer{llm: client}
}

// Compose builds the full report for a run: an LLM narrative, the
// per-location findings grouped by district, and the run statistics.
// The narrative degrades to a fixed template when the model call fails.
func (c *Composer) Compose(ctx context.Context, query string, spec *models.DetectionSpec, results []models.ImageResult) string {
	stats := aggregate.Summarize(results)
	matches := aggregate.MatchingResults(results)

	narrative := c.narrative(ctx, query, spec, stats)

	var b strings.Builder
	b.WriteString(narrative)
	b.WriteString("\n\n---\n\n")
	b.WriteString(detailSection(matches))
	b.WriteString("\n---\n\n")
	b.WriteString(statsSection(results, stats))
	return b.String()
}

func (c *Composer) narrative(ctx context.Context, query string, spec *models.DetectionSpec, stats models.SummaryStats) string {
	prompt := narrativePrompt(query, spec, stats)
	answer, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		log.WithError(err).Warn("narrative generation failed, using template")
		return fallbackNarrative(spec, stats)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallbackNarrative(spec, stats)
	}
	return answer
}

// narrativePrompt feeds the model aggregated numbers only. Raw
// per-image output stays out of the prompt so its size is bounded by
// the number of distinct locations, not the number of images.
func narrativePrompt(query string, spec *models.DetectionSpec, stats models.SummaryStats) string {
	var b strings.Builder
	b.WriteString("You are summarizing the outcome of a camera network analysis for an operator.\n\n")
	fmt.Fprintf(&b, "Operator query: %s\n", query)
	if spec != nil {
		fmt.Fprintf(&b, "Search objective: %s\n", spec.SearchObjective)
		fmt.Fprintf(&b, "Entity type: %s\n", spec.EntityType)
	}
	fmt.Fprintf(&b, "\nImages analyzed: %d\n", stats.TotalAnalyzed)
	fmt.Fprintf(&b, "Locations with matches: %d\n", stats.MatchCount)
	fmt.Fprintf(&b, "Total detections counted: %d\n", stats.TotalCount)
	if len(stats.Districts) > 0 {
		fmt.Fprintf(&b, "Districts involved: %s\n", strings.Join(stats.Districts, ", "))
	}
	if len(stats.TopLocations) > 0 {
		b.WriteString("Top locations by count:\n")
		for _, loc := range stats.TopLocations {
			fmt.Fprintf(&b, "- %s: %d\n", loc.Name, loc.Count)
		}
	}
	b.WriteString("\nWrite a short factual summary (2-4 sentences) answering the operator's query ")
	b.WriteString("using only the numbers above. Do not invent locations or counts.")
	return b.String()
}

func fallbackNarrative(spec *models.DetectionSpec, stats models.SummaryStats) string {
	entity := "matching objects"
	if spec != nil && spec.EntityType != "" {
		entity = spec.EntityType
	}
	if stats.MatchCount == 0 {
		return fmt.Sprintf("No %s were found across the %d images analyzed.", entity, stats.TotalAnalyzed)
	}
	return fmt.Sprintf("Found %s at %d of %d locations analyzed, with %d detections in total.",
		entity, stats.MatchCount, stats.TotalAnalyzed, stats.TotalCount)
}

func detailSection(matches []models.ImageResult) string {
	var b strings.Builder
	b.WriteString("## Detailed Findings\n")

	if len(matches) == 0 {
		b.WriteString("\nNo matching locations.\n")
		return b.String()
	}

	for _, group := range aggregate.GroupByDistrict(matches) {
		fmt.Fprintf(&b, "\n### District: %s\n", group.District)
		for _, r := range group.Results {
			fmt.Fprintf(&b, "\n**%s** (%s)\n", r.LocationName, r.Mandal)
			fmt.Fprintf(&b, "- Camera IP: %s\n", r.CameraIP)
			if r.Latitude != "" && r.Longitude != "" {
				fmt.Fprintf(&b, "- Coordinates: %s, %s\n", r.Latitude, r.Longitude)
			}
			fmt.Fprintf(&b, "- Count: %s\n", r.Count.String())
			fmt.Fprintf(&b, "- Confidence: %s\n", r.Confidence)
			if r.Description != "" {
				fmt.Fprintf(&b, "- Description: %s\n", r.Description)
			}
			if r.Observations != "" {
				fmt.Fprintf(&b, "- Observations: %s\n", r.Observations)
			}
		}
	}
	return b.String()
}

func statsSection(results []models.ImageResult, stats models.SummaryStats) string {
	var b strings.Builder
	b.WriteString("## Analysis Statistics\n")
	fmt.Fprintf(&b, "- Images analyzed: %d\n", stats.TotalAnalyzed)
	fmt.Fprintf(&b, "- Matching locations: %d\n", stats.MatchCount)
	fmt.Fprintf(&b, "- Failed analyses: %d\n", aggregate.ErrorCount(results))
	fmt.Fprintf(&b, "- Success rate: %.1f%%\n", SuccessRate(results))
	return b.String()
}

// SuccessRate is the percentage of analyzed images that matched,
// rounded to one decimal place. An empty result set rates as zero.
func SuccessRate(results []models.ImageResult) float64 {
	if len(results) == 0 {
		return 0
	}
	matches := len(aggregate.MatchingResults(results))
	rate := float64(matches) / float64(len(results)) * 100
	return math.Round(rate*10) / 10
}

// ContextualAnswer answers a follow-up question from the stored results
// of earlier turns instead of re-running image analysis.
func (c *Composer) ContextualAnswer(ctx context.Context, query, conversationContext string, prev *models.RunResult) string {
	var b strings.Builder
	b.WriteString("You are answering a follow-up question about a completed camera network analysis.\n\n")
	if conversationContext != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(conversationContext)
		b.WriteString("\n")
	}
	if prev != nil {
		fmt.Fprintf(&b, "Most recent run: %d images analyzed, %d matching locations, total count %d.\n",
			prev.TotalImages, prev.MatchesFound, prev.Stats.TotalCount)
		matches := aggregate.MatchingResults(prev.DetailedResults)
		if len(matches) > 0 {
			b.WriteString("Matching results:\n")
			for _, m := range matches {
				fmt.Fprintf(&b, "- %s, %s (%s): count %s, confidence %s. %s\n",
					m.LocationName, m.NewDistrict, m.CameraIP, m.Count.String(), m.Confidence, m.Description)
			}
		} else if len(prev.Stats.TopLocations) > 0 {
			b.WriteString("Locations by count:\n")
			for _, loc := range prev.Stats.TopLocations {
				fmt.Fprintf(&b, "- %s: %d\n", loc.Name, loc.Count)
			}
		}
	}
	fmt.Fprintf(&b, "\nFollow-up question: %s\n", query)
	b.WriteString("\nAnswer from the data above only. If the data cannot answer the question, say so.")

	answer, err := c.llm.Complete(ctx, b.String())
	if err != nil {
		log.WithError(err).Warn("contextual answer failed, using template")
		if prev != nil {
			return fmt.Sprintf("The previous analysis covered %d images and found matches at %d locations.",
				prev.TotalImages, prev.MatchesFound)
		}
		return "No previous analysis is available to answer this question."
	}
	answer = strings.TrimSpace(answer)
	if answer == "" && prev != nil {
		return fmt.Sprintf("The previous analysis covered %d images and found matches at %d locations.",
			prev.TotalImages, prev.MatchesFound)
	}
	return answer
}
