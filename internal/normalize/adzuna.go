package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// adzunaItem is one posting from the Adzuna search API.
type adzunaItem struct {
	Title   string `json:"title"`
	Company struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		Area        []string `json:"area"` // country-first, e.g. ["US","Texas","Austin"]
		DisplayName string   `json:"display_name"`
	} `json:"location"`
	Description  string  `json:"description"`
	Created      string  `json:"created"`
	RedirectURL  string  `json:"redirect_url"`
	ContractTime string  `json:"contract_time"`
	ContractType string  `json:"contract_type"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
}

func mapAdzuna(raw model.RawPosting) (draft, error) {
	var item adzunaItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return draft{}, fmt.Errorf("adzuna payload: %w", err)
	}

	d := draft{
		Title:       item.Title,
		Company:     item.Company.DisplayName,
		Location:    adzunaLocation(item),
		JobType:     adzunaJobType(item.ContractType, item.ContractTime),
		Description: item.Description,
		ApplyURL:    item.RedirectURL,
	}
	if item.SalaryMin > 0 && item.SalaryMax >= item.SalaryMin {
		d.Salary = &model.SalaryRange{
			Min:      int(item.SalaryMin),
			Max:      int(item.SalaryMax),
			Currency: adzunaCurrency(d.Location.Country),
		}
	}
	if t, err := time.Parse(time.RFC3339, item.Created); err == nil {
		d.PostedAt = t
	}
	return d, nil
}

func adzunaLocation(item adzunaItem) model.Location {
	area := item.Location.Area
	if len(area) == 0 {
		return splitLocation(item.Location.DisplayName)
	}

	loc := model.Location{Country: area[0]}
	if code, ok := countryNames[strings.ToLower(loc.Country)]; ok {
		loc.Country = code
	}
	if len(area) > 1 {
		loc.State = area[1]
		if code, ok := stateCode(loc.State); ok {
			loc.State = code
		}
	}
	if len(area) > 2 {
		loc.City = area[len(area)-1]
	}
	return loc
}

// adzunaCurrency resolves the currency of a market index. Adzuna omits a
// currency field; amounts are in the local currency of the country queried.
func adzunaCurrency(country string) string {
	switch country {
	case "UK":
		return "GBP"
	case "CA":
		return "CAD"
	case "AU":
		return "AUD"
	case "DE", "FR", "ES", "NL", "IE", "PT":
		return "EUR"
	case "PL":
		return "PLN"
	case "BR":
		return "BRL"
	case "IN":
		return "INR"
	case "SG":
		return "SGD"
	default:
		return "USD"
	}
}

func adzunaJobType(contractType, contractTime string) model.JobType {
	if strings.EqualFold(contractType, "contract") {
		return model.JobTypeContract
	}
	switch strings.ToLower(contractTime) {
	case "full_time":
		return model.JobTypeFullTime
	case "part_time":
		return model.JobTypePartTime
	}
	return model.JobTypeUnknown
}
