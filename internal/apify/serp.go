package apify

import (
	"context"
	"encoding/json"

	"serpgap/internal/domain"
)

// SerpRequest holds the parameters for one SERP scrape.
type SerpRequest struct {
	Keyword string
	Region  string // country code, e.g. "us"; empty uses the actor default
	Page    int    // 0-based results page
}

// SerpEntry is one organic result from the scraped results page.
type SerpEntry struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet,omitempty"`
}

// SerpResult is the output of a SERP scrape for a single keyword.
// RelatedKeywords and KnowledgePanel are echoed from the first dataset record.
type SerpResult struct {
	Keyword         string
	Entries         []SerpEntry
	RelatedKeywords []string
	KnowledgePanel  map[string]interface{}
}

// serpInput is the actor input payload for the SERP scraper.
type serpInput struct {
	Queries        string `json:"queries"`
	CountryCode    string `json:"countryCode,omitempty"`
	ResultsPerPage int    `json:"resultsPerPage"`
	Page           int    `json:"page,omitempty"`
}

// serpRecord is the full-record dataset shape: one item per scraped results page.
type serpRecord struct {
	SearchQuery *struct {
		Term string `json:"term"`
	} `json:"searchQuery"`
	OrganicResults []serpOrganicResult `json:"organicResults"`
	RelatedQueries []struct {
		Title string `json:"title"`
	} `json:"relatedQueries"`
	KnowledgeGraph map[string]interface{} `json:"knowledgeGraph"`
}

// serpOrganicResult is the flat-item dataset shape: one item per organic result.
type serpOrganicResult struct {
	Position    int    `json:"position"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FetchSerp runs the SERP scraper actor for one keyword and parses the dataset.
// Parameters:
//   - ctx: context for cancellation.
//   - token: third-party API token for this attempt.
//   - req: scrape parameters.
// Returns:
//   - *SerpResult: ordered organic results plus ancillary payloads.
//   - error: *JobError on protocol or shape failure.
func (c *Client) FetchSerp(ctx context.Context, token string, req SerpRequest) (*SerpResult, error) {
	input := serpInput{
		Queries:        req.Keyword,
		CountryCode:    req.Region,
		ResultsPerPage: 10,
		Page:           req.Page,
	}

	items, err := c.runActor(ctx, token, c.cfg.SerpActorID, input, "serp")
	if err != nil {
		return nil, err
	}

	return parseSerpItems(req.Keyword, items)
}

// parseSerpItems decodes the dataset into a SerpResult.
// Two shapes are recognized: a full record carrying organicResults (ancillary
// payloads come from the first record), or flat items that are each one organic
// result. Anything else is KindUnexpectedShape.
func parseSerpItems(keyword string, items []json.RawMessage) (*SerpResult, error) {
	result := &SerpResult{Keyword: keyword}

	// Shape 1: full record with organicResults.
	var record serpRecord
	if err := json.Unmarshal(items[0], &record); err == nil && len(record.OrganicResults) > 0 {
		for _, or := range record.OrganicResults {
			result.Entries = append(result.Entries, SerpEntry{
				Position: or.Position,
				URL:      or.URL,
				Title:    or.Title,
				Snippet:  or.Description,
			})
		}
		for _, rq := range record.RelatedQueries {
			if rq.Title != "" {
				result.RelatedKeywords = append(result.RelatedKeywords, rq.Title)
			}
		}
		result.KnowledgePanel = record.KnowledgeGraph
		normalizePositions(result.Entries)
		return result, nil
	}

	// Shape 2: flat items, one organic result each.
	for _, raw := range items {
		var or serpOrganicResult
		if err := json.Unmarshal(raw, &or); err != nil || or.URL == "" {
			return nil, &JobError{
				Kind:    KindUnexpectedShape,
				Op:      "serp",
				Message: "dataset items match neither the record nor the flat result shape",
			}
		}
		result.Entries = append(result.Entries, SerpEntry{
			Position: or.Position,
			URL:      or.URL,
			Title:    or.Title,
			Snippet:  or.Description,
		})
	}
	normalizePositions(result.Entries)
	return result, nil
}

// normalizePositions assigns 1-based positions when the upstream omitted them.
func normalizePositions(entries []SerpEntry) {
	for i := range entries {
		if entries[i].Position == 0 {
			entries[i].Position = i + 1
		}
	}
}

// ToRankedURLs converts SERP entries to domain rows without metrics attached.
func (r *SerpResult) ToRankedURLs() []domain.RankedURL {
	ranked := make([]domain.RankedURL, len(r.Entries))
	for i, e := range r.Entries {
		ranked[i] = domain.RankedURL{
			Position: e.Position,
			URL:      e.URL,
			Title:    e.Title,
			Snippet:  e.Snippet,
		}
	}
	return ranked
}
