package techdetect

import (
	"sort"
	"strings"

	"github.com/siteaudit/backend/model"
)

// MaxTechnologies caps the merged technology list.
const MaxTechnologies = 20

// Merge concatenates the sources in precedence order, keeps the first entry per
// case-insensitive name, sorts by confidence descending and truncates.
func Merge(sources ...[]model.Technology) []model.Technology {
	seen := make(map[string]struct{})
	merged := make([]model.Technology, 0)
	for _, src := range sources {
		for _, t := range src {
			key := strings.ToLower(strings.TrimSpace(t.Name))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, t)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if len(merged) > MaxTechnologies {
		merged = merged[:MaxTechnologies]
	}
	return merged
}
