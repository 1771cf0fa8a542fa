package session

import (
	"strings"
	"testing"

	"camera-analyze-service/models"
)

func TestIsFollowUp(t *testing.T) {
	tests := []struct {
		query     string
		turnCount int
		want      bool
	}{
		{"how many lorries are parked", 0, false},
		{"which of these had the most", 2, true},
		{"show me the previous results", 1, true},
		{"map the matching locations", 3, true},
		{"count ambulances near hospitals", 2, false},
		{"list them by district", 1, true},
		{"these trucks", 0, false},
	}

	for _, tt := range tests {
		if got := IsFollowUp(tt.query, tt.turnCount); got != tt.want {
			t.Errorf("IsFollowUp(%q, %d) = %v, want %v", tt.query, tt.turnCount, got, tt.want)
		}
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"how many lorries are parked?", "How many lorries are parked"},
		{"  find   ambulances!!  ", "Find ambulances"},
		{"", "New Analysis"},
		{"???", "New Analysis"},
		{
			"count every single heavy goods vehicle visible at all junctions",
			"Count every single heavy goods vehicle v...",
		},
	}

	for _, tt := range tests {
		if got := Title(tt.query); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestKeyFindingsCapped(t *testing.T) {
	var results []models.ImageResult
	for i := 0; i < 8; i++ {
		results = append(results, models.ImageResult{
			LocationName: "Loc",
			Match:        true,
			Count:        models.NewCount(i),
			Status:       models.StatusSuccess,
		})
	}
	findings := KeyFindings(results)
	if len(findings) != 5 {
		t.Errorf("got %d findings, want 5", len(findings))
	}
}

func TestBuildContext(t *testing.T) {
	turns := []models.QueryTurn{
		{TurnNumber: 1, UserQuery: "oldest", Summary: "Analyzed 10 images, found 2 matches"},
		{TurnNumber: 2, UserQuery: "middle"},
		{TurnNumber: 3, UserQuery: "find lorries", KeyFindings: []models.KeyFinding{
			{Location: "Bus Stand", CameraIP: "10.0.0.1", Count: models.NewCount(3)},
		}},
		{TurnNumber: 4, UserQuery: "newest"},
	}

	ctx := BuildContext(turns, 3)
	if strings.Contains(ctx, "oldest") {
		t.Error("context should only cover the last 3 turns")
	}
	if !strings.Contains(ctx, "Turn 3: find lorries") {
		t.Errorf("missing turn 3:\n%s", ctx)
	}
	if !strings.Contains(ctx, "Bus Stand (10.0.0.1): 3") {
		t.Errorf("missing key finding:\n%s", ctx)
	}
	if BuildContext(nil, 3) != "" {
		t.Error("expected empty context for no turns")
	}
}

func TestSummary(t *testing.T) {
	got := Summary(&models.RunResult{TotalImages: 12, MatchesFound: 4})
	if got != "Analyzed 12 images, found 4 matches" {
		t.Errorf("Summary = %q", got)
	}
	if Summary(nil) != "" {
		t.Error("expected empty summary for nil result")
	}
}
