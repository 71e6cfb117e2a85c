package selector

import (
	"testing"

	"github.com/dateapp/imgpipeline/internal/models"
)

func q(overall float64) models.QualityMetrics {
	return models.QualityMetrics{Overall: overall}
}

func TestSelectOrdersByQualityDescending(t *testing.T) {
	candidates := []Candidate{
		{URL: "low", Quality: q(0.4), PHash: 0x0000000000000000},
		{URL: "high", Quality: q(0.9), PHash: 0x1111111111111111},
		{URL: "mid", Quality: q(0.6), PHash: 0x2222222222222222},
	}
	got := Select(candidates, 3, 0.85, 0.0)
	if len(got) != 3 {
		t.Fatalf("expected 3 selected, got %d", len(got))
	}
	order := []string{got[0].URL, got[1].URL, got[2].URL}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestSelectExcludesNearDuplicates(t *testing.T) {
	// Two candidates with identical phash are perfect duplicates
	// (similarity 1.0); only the higher-quality one should survive.
	candidates := []Candidate{
		{URL: "best", Quality: q(0.9), PHash: 0xABCDEF1234567890},
		{URL: "dup", Quality: q(0.8), PHash: 0xABCDEF1234567890},
		{URL: "distinct", Quality: q(0.7), PHash: 0x0000000000000000},
	}
	got := Select(candidates, 3, 0.85, 0.0)
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors after dedup, got %d", len(got))
	}
	if got[0].URL != "best" || got[1].URL != "distinct" {
		t.Errorf("unexpected survivors: %+v", got)
	}
}

func TestSelectNeverPadsShortOfK(t *testing.T) {
	candidates := []Candidate{
		{URL: "only", Quality: q(0.5), PHash: 0x1},
	}
	got := Select(candidates, 5, 0.85, 0.0)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(got))
	}
}

func TestSelectFiltersBelowQualityFloor(t *testing.T) {
	candidates := []Candidate{
		{URL: "good", Quality: q(0.5), PHash: 0x1},
		{URL: "bad", Quality: q(0.1), PHash: 0x2},
	}
	got := Select(candidates, 5, 0.85, 0.3)
	if len(got) != 1 || got[0].URL != "good" {
		t.Errorf("expected only 'good' to survive the quality floor, got %+v", got)
	}
}

func TestSelectEmptyInput(t *testing.T) {
	got := Select(nil, 3, 0.85, 0.0)
	if len(got) != 0 {
		t.Errorf("expected no results for empty input, got %d", len(got))
	}
}
