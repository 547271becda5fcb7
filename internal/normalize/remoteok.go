package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// remoteOKItem is one posting from the RemoteOK feed.
type remoteOKItem struct {
	Position    string   `json:"position"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	SalaryMin   int      `json:"salary_min"`
	SalaryMax   int      `json:"salary_max"`
	URL         string   `json:"url"`
	ApplyURL    string   `json:"apply_url"`
}

func mapRemoteOK(raw model.RawPosting) (draft, error) {
	var item remoteOKItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return draft{}, fmt.Errorf("remoteok payload: %w", err)
	}

	d := draft{
		Title:       item.Position,
		Company:     item.Company,
		Location:    splitLocation(item.Location),
		Remote:      model.RemoteYes, // remote-only board
		Required:    item.Tags,
		Description: item.Description,
		ApplyURL:    item.ApplyURL,
	}
	if d.ApplyURL == "" {
		d.ApplyURL = item.URL
	}
	if d.Location == (model.Location{}) {
		// the board omits location on globally-open roles
		d.Location = model.Location{Country: "Worldwide"}
	}
	if item.SalaryMin > 0 && item.SalaryMax >= item.SalaryMin {
		d.Salary = &model.SalaryRange{Min: item.SalaryMin, Max: item.SalaryMax, Currency: "USD"}
	}
	if t, err := time.Parse(time.RFC3339, item.Date); err == nil {
		d.PostedAt = t
	}
	return d, nil
}
