package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// partnerItem is one posting from the partner feed. Partners publish a
// near-canonical schema, so mapping is mostly lenient enum parsing.
type partnerItem struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location struct {
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"location"`
	Remote     string `json:"remote"`
	JobType    string `json:"job_type"`
	Experience string `json:"experience"`
	Salary     *struct {
		Min      int    `json:"min"`
		Max      int    `json:"max"`
		Currency string `json:"currency"`
	} `json:"salary"`
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
	Description     string   `json:"description"`
	ApplyURL        string   `json:"apply_url"`
	PostedAt        string   `json:"posted_at"`
	ExpiresAt       string   `json:"expires_at"`
}

func mapPartnerFeed(raw model.RawPosting) (draft, error) {
	var item partnerItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return draft{}, fmt.Errorf("partner payload: %w", err)
	}

	loc := model.Location{City: item.Location.City, State: item.Location.State, Country: item.Location.Country}
	if code, ok := countryNames[strings.ToLower(loc.Country)]; ok {
		loc.Country = code
	}
	if code, ok := stateCode(loc.State); ok {
		loc.State = code
	}

	d := draft{
		Title:       item.Title,
		Company:     item.Company,
		Location:    loc,
		Remote:      parseRemoteOption(item.Remote),
		JobType:     parseJobType(item.JobType),
		Experience:  model.ParseExperienceLevel(item.Experience),
		Required:    item.RequiredSkills,
		Preferred:   item.PreferredSkills,
		Description: item.Description,
		ApplyURL:    item.ApplyURL,
	}
	if item.Salary != nil && item.Salary.Min > 0 && item.Salary.Max >= item.Salary.Min {
		d.Salary = &model.SalaryRange{Min: item.Salary.Min, Max: item.Salary.Max, Currency: item.Salary.Currency}
	}
	if t, err := time.Parse(time.RFC3339, item.PostedAt); err == nil {
		d.PostedAt = t
	}
	if t, err := time.Parse(time.RFC3339, item.ExpiresAt); err == nil {
		d.ExpiresAt = &t
	}
	return d, nil
}

func parseRemoteOption(s string) model.RemoteOption {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "REMOTE":
		return model.RemoteYes
	case "HYBRID":
		return model.RemoteHybrid
	case "ONSITE", "ON_SITE", "OFFICE":
		return model.RemoteOnsite
	}
	return model.RemoteUnknown
}

func parseJobType(s string) model.JobType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FULL_TIME", "FULLTIME":
		return model.JobTypeFullTime
	case "PART_TIME", "PARTTIME":
		return model.JobTypePartTime
	case "CONTRACT":
		return model.JobTypeContract
	case "INTERNSHIP":
		return model.JobTypeInternship
	case "FREELANCE":
		return model.JobTypeFreelance
	}
	return model.JobTypeUnknown
}
