// Package session holds the conversation-level logic: deciding whether
// a query continues the previous analysis, naming sessions, and
// condensing earlier turns into prompt context.
package session

import (
	"fmt"
	"strings"

	"camera-analyze-service/aggregate"
	"camera-analyze-service/models"
)

// followUpMarkers are phrases that signal a query refers back to
// earlier results rather than asking for a fresh analysis.
var followUpMarkers = []string{
	"these", "those", "them", "it",
	"previous", "above", "earlier", "same",
	"which of", "from the", "based on", "using",
	"map", "visualize", "show me", "list", "filter", "sort",
}

// maxKeyFindings caps how many findings a turn carries into context.
const maxKeyFindings = 5

// IsFollowUp reports whether query should be answered from stored
// results. The first turn of a session is never a follow-up.
func IsFollowUp(query string, turnCount int) bool {
	if turnCount == 0 {
		return false
	}
	lowered := " " + strings.ToLower(query) + " "
	for _, marker := range followUpMarkers {
		if strings.Contains(lowered, " "+marker+" ") {
			return true
		}
	}
	return false
}

// Title derives a session title from its first query: punctuation
// stripped, whitespace collapsed, first letter capitalized, truncated
// to 40 characters.
func Title(query string) string {
	var b strings.Builder
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	title := strings.Join(strings.Fields(b.String()), " ")
	if title == "" {
		return "New Analysis"
	}
	title = strings.ToUpper(title[:1]) + title[1:]
	if len(title) > 40 {
		title = title[:40] + "..."
	}
	return title
}

// Summary is the one-line description of a completed turn.
func Summary(result *models.RunResult) string {
	if result == nil {
		return ""
	}
	return fmt.Sprintf("Analyzed %d images, found %d matches", result.TotalImages, result.MatchesFound)
}

// KeyFindings picks the leading matches of a run for context carrying.
func KeyFindings(results []models.ImageResult) []models.KeyFinding {
	matches := aggregate.MatchingResults(results)
	if len(matches) > maxKeyFindings {
		matches = matches[:maxKeyFindings]
	}
	findings := make([]models.KeyFinding, 0, len(matches))
	for _, m := range matches {
		findings = append(findings, models.KeyFinding{
			Location: m.LocationName,
			CameraIP: m.CameraIP,
			Count:    m.Count,
		})
	}
	return findings
}

// BuildContext condenses the last limit turns into prompt text for
// follow-up answering.
func BuildContext(turns []models.QueryTurn, limit int) string {
	if limit <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "Turn %d: %s\n", turn.TurnNumber, turn.UserQuery)
		if turn.Summary != "" {
			fmt.Fprintf(&b, "  Result: %s\n", turn.Summary)
		}
		for _, f := range turn.KeyFindings {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", f.Location, f.CameraIP, f.Count.String())
		}
	}
	return b.String()
}
