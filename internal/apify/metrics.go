package apify

import (
	"context"
	"encoding/json"

	"serpgap/internal/domain"
)

// metricsInput is the actor input payload for the authority metrics checker.
type metricsInput struct {
	URLs []string `json:"urls"`
}

// metricsItem covers both recognized dataset shapes for one checked URL:
// {"url": ..., "domainAuthority": ..., "pageAuthority": ..., "spamScore": ...}
// or the short form {"domain": ..., "da": ..., "pa": ..., "spamScore": ...}.
type metricsItem struct {
	URL             string   `json:"url"`
	Domain          string   `json:"domain"`
	DomainAuthority *float64 `json:"domainAuthority"`
	DA              *float64 `json:"da"`
	PageAuthority   *float64 `json:"pageAuthority"`
	PA              *float64 `json:"pa"`
	SpamScore       float64  `json:"spamScore"`
}

// FetchMetrics runs the authority metrics actor for a set of URLs.
// Matching back to SERP entries is the caller's concern; items are returned
// keyed by the URL string exactly as the upstream reported it.
// Parameters:
//   - ctx: context for cancellation.
//   - token: third-party API token for this attempt.
//   - urls: URLs to check (as scraped, not normalized).
// Returns:
//   - []domain.URLMetrics: one entry per dataset item.
//   - error: *JobError on protocol or shape failure.
func (c *Client) FetchMetrics(ctx context.Context, token string, urls []string) ([]domain.URLMetrics, error) {
	items, err := c.runActor(ctx, token, c.cfg.MetricsActorID, metricsInput{URLs: urls}, "metrics")
	if err != nil {
		return nil, err
	}

	metrics := make([]domain.URLMetrics, 0, len(items))
	for _, raw := range items {
		var item metricsItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, &JobError{
				Kind:    KindUnexpectedShape,
				Op:      "metrics",
				Message: "dataset item is not a metrics record",
			}
		}

		url := item.URL
		if url == "" {
			url = item.Domain
		}
		da := item.DomainAuthority
		if da == nil {
			da = item.DA
		}
		pa := item.PageAuthority
		if pa == nil {
			pa = item.PA
		}
		if url == "" || da == nil {
			return nil, &JobError{
				Kind:    KindUnexpectedShape,
				Op:      "metrics",
				Message: "dataset item matches neither recognized metrics shape",
			}
		}

		m := domain.URLMetrics{
			URL:             url,
			DomainAuthority: *da,
			SpamScore:       item.SpamScore,
		}
		if pa != nil {
			m.PageAuthority = *pa
		}
		metrics = append(metrics, m)
	}

	return metrics, nil
}
