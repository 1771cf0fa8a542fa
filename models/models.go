package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// DetectionSpec is the structured interpretation of a free-text query.
// It is produced once per fresh analysis and shared read-only across all
// concurrent image workers.
type DetectionSpec struct {
	SearchObjective   string   `json:"search_objective"`
	CountRequired     bool     `json:"count_required"`
	EntityType        string   `json:"entity_type"`
	DetectionCriteria string   `json:"detection_criteria"`
	DataToCollect     []string `json:"data_to_collect"`
	ResponseFormat    string   `json:"response_format"`
}

// Count is an entity count reported by the vision model. Models sometimes
// answer "N/A" instead of a number, so the value round-trips as either a JSON
// number or the literal string "N/A".
type Count struct {
	Value   int
	Numeric bool
}

// NewCount returns a numeric count.
func NewCount(n int) Count { return Count{Value: n, Numeric: true} }

// NACount returns the non-numeric "N/A" count.
func NACount() Count { return Count{} }

// Int returns the numeric value and whether the count is numeric.
func (c Count) Int() (int, bool) { return c.Value, c.Numeric }

func (c Count) String() string {
	if !c.Numeric {
		return "N/A"
	}
	return strconv.Itoa(c.Value)
}

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Numeric {
		return []byte(`"N/A"`), nil
	}
	return []byte(strconv.Itoa(c.Value)), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		c.Value = int(n)
		c.Numeric = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			c.Value = n
			c.Numeric = true
			return nil
		}
	}
	// Anything non-numeric ("N/A", null, free text) collapses to N/A.
	*c = Count{}
	return nil
}

// Result statuses for a single analyzed image.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Confidence levels reported by the vision model.
const (
	ConfidenceHigh    = "high"
	ConfidenceMedium  = "medium"
	ConfidenceLow     = "low"
	ConfidenceUnknown = "unknown"
)

// ImageResult is the outcome of analyzing one camera image. Exactly one is
// produced per image per run; failures are folded into the record with
// Status set to StatusError instead of aborting the batch.
type ImageResult struct {
	ImageName     string    `json:"image_name"`
	CameraIP      string    `json:"camera_ip"`
	OldDistrict   string    `json:"old_district"`
	NewDistrict   string    `json:"new_district"`
	Mandal        string    `json:"mandal"`
	LocationName  string    `json:"location_name"`
	Latitude      string    `json:"latitude"`
	Longitude     string    `json:"longitude"`
	CameraType    string    `json:"camera_type"`
	AnalyticsType string    `json:"analytics_type"`
	Match         bool      `json:"match"`
	Count         Count     `json:"count"`
	Description   string    `json:"description"`
	Confidence    string    `json:"confidence"`
	Details       string    `json:"details"`
	Observations  string    `json:"additional_observations,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// LocationCount is one (location, count) pair in the top-locations ranking.
type LocationCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SummaryStats are the aggregated statistics of one analysis run. They are
// always rebuilt from the full ImageResult set, never mutated in place.
type SummaryStats struct {
	TotalAnalyzed int             `json:"total_images_analyzed"`
	MatchCount    int             `json:"matching_locations"`
	TotalCount    int             `json:"total_count"`
	Districts     []string        `json:"districts"`
	TopLocations  []LocationCount `json:"top_locations"`
}

// RunResult is the complete outcome of one analysis run: every per-image
// result, the derived statistics and the composed report.
type RunResult struct {
	TotalImages     int           `json:"total_images"`
	MatchesFound    int           `json:"matches_found"`
	UniqueLocations int           `json:"unique_locations"`
	Stats           SummaryStats  `json:"stats"`
	DetailedResults []ImageResult `json:"detailed_results"`
	FinalAnswer     string        `json:"final_answer"`
	IsContextual    bool          `json:"is_contextual"`
	Error           string        `json:"error,omitempty"`
}

// KeyFinding is a minimal projection of one matching result kept in the
// conversation history for follow-up context.
type KeyFinding struct {
	Location string `json:"location"`
	CameraIP string `json:"camera_ip"`
	Count    Count  `json:"count"`
}

// QueryTurn is one query/response pair within a session. Turn numbers are
// 1-based and contiguous; a session's turn list is append-only.
type QueryTurn struct {
	TurnNumber  int          `json:"turn_number"`
	Timestamp   time.Time    `json:"timestamp"`
	UserQuery   string       `json:"user_query"`
	Summary     string       `json:"summary"`
	KeyFindings []KeyFinding `json:"key_findings"`
	Results     *RunResult   `json:"results,omitempty"`
}

// Session is one analysis conversation.
type Session struct {
	ID         string      `json:"session_id"`
	Title      string      `json:"title"`
	QueryCount int         `json:"query_count"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"last_updated"`
	Turns      []QueryTurn `json:"turns,omitempty"`
}

// Streaming event types, emitted in this order within a run: one start, one
// query_analysis, then per completed image a progress and a log event
// (followed by a match event when the image matched), and finally a single
// complete event. A run with zero images ends with an error event instead.
const (
	EventStart         = "start"
	EventLog           = "log"
	EventQueryAnalysis = "query_analysis"
	EventProgress      = "progress"
	EventMatch         = "match"
	EventComplete      = "complete"
	EventError         = "error"
)

// Event is one typed streaming event, serialized as {"type": ..., "data": ...}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}
