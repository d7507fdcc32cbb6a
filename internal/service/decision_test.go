package service

import (
	"math"
	"testing"

	"serpgap/internal/domain"
)

func rankedURLs(authorities ...float64) []domain.RankedURL {
	entries := make([]domain.RankedURL, len(authorities))
	for i, da := range authorities {
		entries[i] = domain.RankedURL{
			Position:        i + 1,
			URL:             "https://example.com/" + string(rune('a'+i)),
			DomainAuthority: da,
			HasMetrics:      true,
		}
	}
	return entries
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name             string
		authorities      []float64
		expectedDecision domain.Decision
		expectedLowCount int
		expectedAverage  float64
	}{
		{
			name:             "strong serp skips",
			authorities:      []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			expectedDecision: domain.DecisionSkip,
			expectedLowCount: 3,
			expectedAverage:  55,
		},
		{
			name:             "weak serp writes",
			authorities:      []float64{5, 10, 15, 20, 25, 30, 40, 50, 60, 70},
			expectedDecision: domain.DecisionWrite,
			expectedLowCount: 6,
			expectedAverage:  32.5,
		},
		{
			name:             "exactly at minimum writes",
			authorities:      []float64{10, 10, 10, 10, 10, 90, 90, 90, 90, 90},
			expectedDecision: domain.DecisionWrite,
			expectedLowCount: 5,
			expectedAverage:  50,
		},
		{
			name:             "one below minimum skips",
			authorities:      []float64{10, 10, 10, 10, 90, 90, 90, 90, 90, 90},
			expectedDecision: domain.DecisionSkip,
			expectedLowCount: 4,
			expectedAverage:  58,
		},
		{
			name:             "threshold value itself is not low",
			authorities:      []float64{35, 35, 35, 35, 35},
			expectedDecision: domain.DecisionSkip,
			expectedLowCount: 0,
			expectedAverage:  35,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Decide(rankedURLs(tt.authorities...), DefaultDecisionConfig())

			if outcome.Decision != tt.expectedDecision {
				t.Errorf("expected decision %s, got %s", tt.expectedDecision, outcome.Decision)
			}
			if outcome.LowAuthorityCount != tt.expectedLowCount {
				t.Errorf("expected low count %d, got %d", tt.expectedLowCount, outcome.LowAuthorityCount)
			}
			if math.Abs(outcome.AverageAuthority-tt.expectedAverage) > 1e-9 {
				t.Errorf("expected average %v, got %v", tt.expectedAverage, outcome.AverageAuthority)
			}
		})
	}
}

func TestDecide_EmptyResultSet(t *testing.T) {
	outcome := Decide(nil, DefaultDecisionConfig())

	if outcome.Decision != domain.DecisionSkip {
		t.Errorf("expected Skip for empty set, got %s", outcome.Decision)
	}
	if outcome.AverageAuthority != 0 {
		t.Errorf("expected zero average for empty set, got %v", outcome.AverageAuthority)
	}
	if outcome.LowAuthorityCount != 0 {
		t.Errorf("expected zero low count for empty set, got %d", outcome.LowAuthorityCount)
	}
	if len(outcome.TopURLs) != 0 {
		t.Errorf("expected no top URLs for empty set, got %d", len(outcome.TopURLs))
	}
}

func TestDecide_TopURLsKeepRankOrder(t *testing.T) {
	entries := rankedURLs(90, 5, 80, 10, 70, 15, 60, 20, 50, 25, 40, 30)

	outcome := Decide(entries, DefaultDecisionConfig())

	if len(outcome.TopURLs) != 10 {
		t.Fatalf("expected 10 top URLs, got %d", len(outcome.TopURLs))
	}
	// Never re-sorted by authority; the original rank order is part of the output
	for i, u := range outcome.TopURLs {
		if u.Position != i+1 {
			t.Errorf("expected position %d at index %d, got %d", i+1, i, u.Position)
		}
	}
}

func TestDecide_Idempotent(t *testing.T) {
	entries := rankedURLs(5, 10, 15, 20, 25, 30, 40, 50, 60, 70)

	first := Decide(entries, DefaultDecisionConfig())
	second := Decide(entries, DefaultDecisionConfig())

	if first.Decision != second.Decision ||
		first.LowAuthorityCount != second.LowAuthorityCount ||
		first.AverageAuthority != second.AverageAuthority {
		t.Errorf("expected identical outcomes, got %+v then %+v", first, second)
	}
}

func TestDecide_CustomConfig(t *testing.T) {
	entries := rankedURLs(10, 20, 30, 40, 50)

	outcome := Decide(entries, DecisionConfig{
		MinLowAuthorityCount: 2,
		TopNDomains:          3,
		AuthorityThreshold:   45,
	})

	if outcome.Decision != domain.DecisionWrite {
		t.Errorf("expected Write with lowered minimum, got %s", outcome.Decision)
	}
	if outcome.LowAuthorityCount != 4 {
		t.Errorf("expected 4 low entries below 45, got %d", outcome.LowAuthorityCount)
	}
	if len(outcome.TopURLs) != 3 {
		t.Errorf("expected 3 top URLs, got %d", len(outcome.TopURLs))
	}
}
