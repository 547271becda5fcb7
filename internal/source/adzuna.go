package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

const (
	adzunaBaseURL = "https://api.adzuna.com"
	adzunaPerPage = 50
)

type adzunaEnvelope struct {
	Results []json.RawMessage `json:"results"`
}

type adzunaItem struct {
	ID json.RawMessage `json:"id"`
}

// AdzunaAdapter runs a standing search against the Adzuna API, one country
// per adapter.
type AdzunaAdapter struct {
	baseURL string
	appID   string
	appKey  string
	country string
	what    string
	pages   int
	client  *http.Client
}

var _ model.SourceAdapter = (*AdzunaAdapter)(nil)

func NewAdzunaAdapter(appID, appKey, country, what string, pages int, client *http.Client) *AdzunaAdapter {
	if country == "" {
		country = "us"
	}
	if pages <= 0 {
		pages = 1
	}
	return &AdzunaAdapter{
		baseURL: adzunaBaseURL,
		appID:   appID,
		appKey:  appKey,
		country: country,
		what:    what,
		pages:   pages,
		client:  client,
	}
}

func (a *AdzunaAdapter) Source() model.JobSource {
	return model.SourceAdzuna
}

func (a *AdzunaAdapter) Fetch(ctx context.Context) ([]model.RawPosting, error) {
	var postings []model.RawPosting
	for page := 1; page <= a.pages; page++ {
		results, err := a.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			break
		}

		fetchedAt := time.Now().UTC()
		for _, raw := range results {
			var item adzunaItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			id := rawID(item.ID)
			if id == "" {
				continue
			}
			postings = append(postings, model.RawPosting{
				Source:     model.SourceAdzuna,
				ExternalID: id,
				Payload:    raw,
				FetchedAt:  fetchedAt,
			})
		}
	}
	return postings, nil
}

func (a *AdzunaAdapter) fetchPage(ctx context.Context, page int) ([]json.RawMessage, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("adzuna fetch: parse base url: %w", err)
	}
	u.Path = path.Join(u.Path, "v1", "api", "jobs", a.country, "search", strconv.Itoa(page))

	values := url.Values{}
	values.Set("app_id", a.appID)
	values.Set("app_key", a.appKey)
	values.Set("results_per_page", strconv.Itoa(adzunaPerPage))
	values.Set("content-type", "application/json")
	if a.what != "" {
		values.Set("what", a.what)
	}
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("adzuna fetch page %d: %w", page, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adzuna fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("adzuna fetch page %d: unexpected status %d", page, resp.StatusCode),
		}
	}

	var envelope adzunaEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("adzuna fetch page %d: %w", page, err)
	}
	return envelope.Results, nil
}
