package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

const theMuseBaseURL = "https://www.themuse.com/api/public/jobs"

type museEnvelope struct {
	Page      int               `json:"page"`
	PageCount int               `json:"page_count"`
	Results   []json.RawMessage `json:"results"`
}

type museItem struct {
	ID json.RawMessage `json:"id"`
}

// TheMuseAdapter pages through The Muse public jobs API. An api key lifts
// the anonymous rate limit but is not required.
type TheMuseAdapter struct {
	baseURL string
	apiKey  string
	pages   int
	client  *http.Client
}

var _ model.SourceAdapter = (*TheMuseAdapter)(nil)

func NewTheMuseAdapter(apiKey string, pages int, client *http.Client) *TheMuseAdapter {
	if pages <= 0 {
		pages = 1
	}
	return &TheMuseAdapter{
		baseURL: theMuseBaseURL,
		apiKey:  apiKey,
		pages:   pages,
		client:  client,
	}
}

func (a *TheMuseAdapter) Source() model.JobSource {
	return model.SourceTheMuse
}

func (a *TheMuseAdapter) Fetch(ctx context.Context) ([]model.RawPosting, error) {
	var postings []model.RawPosting
	for page := 1; page <= a.pages; page++ {
		envelope, err := a.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		fetchedAt := time.Now().UTC()
		for _, raw := range envelope.Results {
			var item museItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			id := rawID(item.ID)
			if id == "" {
				continue
			}
			postings = append(postings, model.RawPosting{
				Source:     model.SourceTheMuse,
				ExternalID: id,
				Payload:    raw,
				FetchedAt:  fetchedAt,
			})
		}

		if envelope.PageCount > 0 && page >= envelope.PageCount {
			break
		}
	}
	return postings, nil
}

func (a *TheMuseAdapter) fetchPage(ctx context.Context, page int) (museEnvelope, error) {
	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	if a.apiKey != "" {
		values.Set("api_key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return museEnvelope{}, fmt.Errorf("themuse fetch page %d: %w", page, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return museEnvelope{}, fmt.Errorf("themuse fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return museEnvelope{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("themuse fetch page %d: unexpected status %d", page, resp.StatusCode),
		}
	}

	var envelope museEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return museEnvelope{}, fmt.Errorf("themuse fetch page %d: %w", page, err)
	}
	return envelope, nil
}
