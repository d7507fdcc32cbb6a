package service

import (
	"serpgap/internal/domain"
)

// DecisionConfig holds the threshold rule parameters.
type DecisionConfig struct {
	MinLowAuthorityCount int     `json:"minLowAuthorityCount" binding:"omitempty,min=1"`
	TopNDomains          int     `json:"topNDomains" binding:"omitempty,min=1"`
	AuthorityThreshold   float64 `json:"authorityThreshold" binding:"omitempty,min=0"`
}

// DefaultDecisionConfig returns the production defaults for the threshold rule.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		MinLowAuthorityCount: 5,
		TopNDomains:          10,
		AuthorityThreshold:   35,
	}
}

// normalized fills zero-valued fields from the defaults.
func (c DecisionConfig) normalized() DecisionConfig {
	def := DefaultDecisionConfig()
	if c.MinLowAuthorityCount <= 0 {
		c.MinLowAuthorityCount = def.MinLowAuthorityCount
	}
	if c.TopNDomains <= 0 {
		c.TopNDomains = def.TopNDomains
	}
	if c.AuthorityThreshold <= 0 {
		c.AuthorityThreshold = def.AuthorityThreshold
	}
	return c
}

// DecisionOutcome is the result of applying the threshold rule to one merged
// per-keyword result set.
type DecisionOutcome struct {
	Decision          domain.Decision
	AverageAuthority  float64
	LowAuthorityCount int
	TopURLs           []domain.RankedURL
}

// Decide applies the threshold rule to a merged result set.
// Pure function: Write when at least MinLowAuthorityCount entries score below
// AuthorityThreshold, Skip otherwise. TopURLs is the first TopNDomains entries
// in original rank order, never re-sorted by authority. An empty result set is
// Skip with AverageAuthority 0 so division by zero never propagates.
// Parameters:
//   - entries: merged SERP+metrics rows in original rank order.
//   - cfg: threshold rule parameters; zero-valued fields use defaults.
// Returns:
//   - DecisionOutcome: decision plus aggregate stats.
func Decide(entries []domain.RankedURL, cfg DecisionConfig) DecisionOutcome {
	cfg = cfg.normalized()

	if len(entries) == 0 {
		return DecisionOutcome{
			Decision:         domain.DecisionSkip,
			AverageAuthority: 0,
		}
	}

	var sum float64
	lowCount := 0
	for _, e := range entries {
		sum += e.DomainAuthority
		if e.DomainAuthority < cfg.AuthorityThreshold {
			lowCount++
		}
	}

	decision := domain.DecisionSkip
	if lowCount >= cfg.MinLowAuthorityCount {
		decision = domain.DecisionWrite
	}

	topN := cfg.TopNDomains
	if topN > len(entries) {
		topN = len(entries)
	}

	return DecisionOutcome{
		Decision:          decision,
		AverageAuthority:  sum / float64(len(entries)),
		LowAuthorityCount: lowCount,
		TopURLs:           entries[:topN],
	}
}
