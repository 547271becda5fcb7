package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// museItem is one posting from The Muse public API.
type museItem struct {
	Name    string `json:"name"`
	Company struct {
		Name string `json:"name"`
	} `json:"company"`
	Locations []struct {
		Name string `json:"name"`
	} `json:"locations"`
	Levels []struct {
		Name      string `json:"name"`
		ShortName string `json:"short_name"`
	} `json:"levels"`
	PublicationDate string `json:"publication_date"`
	Contents        string `json:"contents"`
	Refs            struct {
		LandingPage string `json:"landing_page"`
	} `json:"refs"`
}

// museLevels translates the API's level short names.
var museLevels = map[string]model.ExperienceLevel{
	"internship": model.ExperienceEntry,
	"entry":      model.ExperienceEntry,
	"junior":     model.ExperienceJunior,
	"mid":        model.ExperienceMid,
	"senior":     model.ExperienceSenior,
	"management": model.ExperienceLead,
	"executive":  model.ExperienceExecutive,
}

func mapTheMuse(raw model.RawPosting) (draft, error) {
	var item museItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return draft{}, fmt.Errorf("muse payload: %w", err)
	}

	var loc model.Location
	remote := model.RemoteOption("")
	for _, l := range item.Locations {
		if remoteMarkers[strings.ToLower(strings.TrimSpace(l.Name))] {
			remote = model.RemoteYes
			continue
		}
		if loc == (model.Location{}) {
			loc = splitLocation(l.Name)
		}
	}
	if loc == (model.Location{}) && remote == model.RemoteYes {
		loc = model.Location{Country: "Worldwide"}
	}

	experience := model.ExperienceUnknown
	for _, lvl := range item.Levels {
		if e, ok := museLevels[strings.ToLower(lvl.ShortName)]; ok {
			experience = e
			break
		}
	}

	d := draft{
		Title:       item.Name,
		Company:     item.Company.Name,
		Location:    loc,
		Remote:      remote,
		Experience:  experience,
		Description: item.Contents,
		ApplyURL:    item.Refs.LandingPage,
	}
	if t, err := time.Parse(time.RFC3339, item.PublicationDate); err == nil {
		d.PostedAt = t
	}
	return d, nil
}
