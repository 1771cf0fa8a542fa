// Package aggregate derives deterministic rollups from per-image
// analysis results. Everything here is pure computation so the same
// result set always produces the same summary regardless of the order
// workers finished in.
package aggregate

import (
	"sort"

	"camera-analyze-service/models"
)

// DistrictGroup holds the matching results for one district.
type DistrictGroup struct {
	District string
	Results  []models.ImageResult
}

// MatchingResults filters results down to successful detections.
func MatchingResults(results []models.ImageResult) []models.ImageResult {
	var matches []models.ImageResult
	for _, r := range results {
		if r.Status == models.StatusSuccess && r.Match {
			matches = append(matches, r)
		}
	}
	return matches
}

// ErrorCount returns how many results failed analysis.
func ErrorCount(results []models.ImageResult) int {
	n := 0
	for _, r := range results {
		if r.Status == models.StatusError {
			n++
		}
	}
	return n
}

// Summarize computes the summary statistics for a full result set.
func Summarize(results []models.ImageResult) models.SummaryStats {
	matches := MatchingResults(results)

	total := 0
	for _, m := range matches {
		if m.Count.Numeric {
			total += m.Count.Value
		}
	}

	districts := make(map[string]bool)
	for _, m := range matches {
		if m.NewDistrict != "" && m.NewDistrict != "Unknown" {
			districts[m.NewDistrict] = true
		}
	}
	districtList := make([]string, 0, len(districts))
	for d := range districts {
		districtList = append(districtList, d)
	}
	sort.Strings(districtList)

	return models.SummaryStats{
		TotalAnalyzed: len(results),
		MatchCount:    len(matches),
		TotalCount:    total,
		Districts:     districtList,
		TopLocations:  topLocations(matches, 10),
	}
}

// GroupByDistrict buckets matching results by district, with districts
// and the entries inside each district in lexicographic order.
func GroupByDistrict(matches []models.ImageResult) []DistrictGroup {
	buckets := make(map[string][]models.ImageResult)
	for _, m := range matches {
		district := m.NewDistrict
		if district == "" {
			district = "Unknown"
		}
		buckets[district] = append(buckets[district], m)
	}

	names := make([]string, 0, len(buckets))
	for d := range buckets {
		names = append(names, d)
	}
	sort.Strings(names)

	groups := make([]DistrictGroup, 0, len(names))
	for _, d := range names {
		entries := buckets[d]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].LocationName < entries[j].LocationName
		})
		groups = append(groups, DistrictGroup{District: d, Results: entries})
	}
	return groups
}

// topLocations ranks matching locations by detected count, highest
// first, with name order breaking ties.
func topLocations(matches []models.ImageResult, limit int) []models.LocationCount {
	counts := make(map[string]int)
	for _, m := range matches {
		if !m.Count.Numeric {
			continue
		}
		counts[m.LocationName] += m.Count.Value
	}

	ranked := make([]models.LocationCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, models.LocationCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
