// Package selector implements C6: picking the top-K "best" images out of
// a candidate set, diverse enough that none are near-duplicates of each
// other. Greedy diversity selection over a quality-sorted list is the
// same shape as the teacher's internal/database dedup-by-hash pass
// (compare-against-already-kept), generalized from exact hash equality
// to a perceptual-similarity threshold.
package selector

import (
	"sort"

	"github.com/dateapp/imgpipeline/internal/models"
	"github.com/dateapp/imgpipeline/internal/phash"
)

// Candidate bundles what Select needs to know about one surviving image.
type Candidate struct {
	URL     string
	Quality models.QualityMetrics
	PHash   uint64
}

// Select returns up to k candidates ordered by descending overall
// quality, never admitting one whose perceptual similarity to an
// already-selected candidate meets or exceeds dedupThreshold. Candidates
// below qualityFloor are excluded before ranking. The result can be
// shorter than k — Select never pads or duplicates to reach a count.
func Select(candidates []Candidate, k int, dedupThreshold, qualityFloor float64) []Candidate {
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Quality.Overall >= qualityFloor {
			filtered = append(filtered, c)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Quality.Overall > filtered[j].Quality.Overall
	})

	selected := make([]Candidate, 0, k)
	for _, c := range filtered {
		if len(selected) >= k {
			break
		}
		if tooSimilarToAny(c, selected, dedupThreshold) {
			continue
		}
		selected = append(selected, c)
	}
	return selected
}

func tooSimilarToAny(c Candidate, selected []Candidate, threshold float64) bool {
	for _, s := range selected {
		if phash.Similarity(c.PHash, s.PHash) >= threshold {
			return true
		}
	}
	return false
}
