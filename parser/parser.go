package parser

import (
	"encoding/json"
	"errors"
	"strings"

	"camera-analyze-service/models"
)

// ImageAnalysis represents the parsed vision-model output for one image
type ImageAnalysis struct {
	Match        bool         `json:"match"`
	Count        models.Count `json:"count"`
	Description  string       `json:"description"`
	Confidence   string       `json:"confidence"`
	Details      string       `json:"details"`
	Observations string       `json:"additional_observations"`
}

// ExtractJSONFromMarkdown extracts JSON from markdown code blocks
func ExtractJSONFromMarkdown(response string) string {
	// Look for JSON code blocks with ``` markers
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	// Extract content between the markers
	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseImageAnalysis parses the vision-model response for one image. Any
// payload that is not a valid JSON object is a parse failure; the caller
// records it as an error result rather than guessing at the content.
func ParseImageAnalysis(response string) (*ImageAnalysis, error) {
	cleaned := strings.TrimSpace(response)
	jsonContent := ExtractJSONFromMarkdown(cleaned)

	var result ImageAnalysis
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	result.Confidence = NormalizeConfidence(result.Confidence)
	return &result, nil
}

// ParseDetectionSpec parses the query-interpretation response
func ParseDetectionSpec(response string) (*models.DetectionSpec, error) {
	cleaned := strings.TrimSpace(response)
	jsonContent := ExtractJSONFromMarkdown(cleaned)

	var spec models.DetectionSpec
	if err := json.Unmarshal([]byte(jsonContent), &spec); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	if spec.SearchObjective == "" {
		return nil, errors.New("search_objective is required")
	}
	if spec.DetectionCriteria == "" {
		return nil, errors.New("detection_criteria is required")
	}
	if spec.EntityType == "" {
		spec.EntityType = "items"
	}
	return &spec, nil
}

// NormalizeConfidence maps free-form confidence text to the known levels
func NormalizeConfidence(confidence string) string {
	switch strings.ToLower(strings.TrimSpace(confidence)) {
	case models.ConfidenceHigh:
		return models.ConfidenceHigh
	case models.ConfidenceMedium:
		return models.ConfidenceMedium
	case models.ConfidenceLow:
		return models.ConfidenceLow
	default:
		return models.ConfidenceUnknown
	}
}
