package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

const remoteOKBaseURL = "https://remoteok.com/api"

// remoteOKItem carries only the fields the adapter itself inspects; the
// full item JSON travels downstream as the posting payload.
type remoteOKItem struct {
	ID json.RawMessage `json:"id"`
}

// RemoteOKAdapter fetches the RemoteOK public feed. The feed's first
// element is a legal notice without an id and is skipped.
type RemoteOKAdapter struct {
	baseURL string
	client  *http.Client
}

var _ model.SourceAdapter = (*RemoteOKAdapter)(nil)

func NewRemoteOKAdapter(client *http.Client) *RemoteOKAdapter {
	return &RemoteOKAdapter{baseURL: remoteOKBaseURL, client: client}
}

func (a *RemoteOKAdapter) Source() model.JobSource {
	return model.SourceRemoteOK
}

func (a *RemoteOKAdapter) Fetch(ctx context.Context) ([]model.RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("remoteok fetch: %w", err)
	}
	// RemoteOK rejects requests without a browser-ish user agent.
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remoteok fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("remoteok fetch: unexpected status %d", resp.StatusCode),
		}
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("remoteok fetch: %w", err)
	}

	fetchedAt := time.Now().UTC()
	postings := make([]model.RawPosting, 0, len(items))
	for _, raw := range items {
		var item remoteOKItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		id := rawID(item.ID)
		if id == "" {
			continue
		}
		postings = append(postings, model.RawPosting{
			Source:     model.SourceRemoteOK,
			ExternalID: id,
			Payload:    raw,
			FetchedAt:  fetchedAt,
		})
	}
	return postings, nil
}
