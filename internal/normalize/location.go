package normalize

import (
	"strings"

	"github.com/nextrole/conveyor/internal/model"
)

// usStates maps two-letter US state codes so "Austin, TX" resolves to a
// country without the source saying so.
var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

// usStateNames folds the full spellings some boards emit onto the same codes,
// so "Austin, Texas" and "Austin, TX" share one location key.
var usStateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

// countryNames resolves the country spellings the boards actually emit.
var countryNames = map[string]string{
	"us": "US", "usa": "US", "united states": "US", "united states of america": "US",
	"uk": "UK", "united kingdom": "UK", "england": "UK",
	"canada": "CA", "germany": "DE", "france": "FR", "spain": "ES",
	"netherlands": "NL", "poland": "PL", "portugal": "PT", "ireland": "IE",
	"india": "IN", "australia": "AU", "brazil": "BR", "mexico": "MX",
	"japan": "JP", "singapore": "SG", "israel": "IL",
}

// remoteMarkers are location strings boards use instead of a place.
var remoteMarkers = map[string]bool{
	"remote":            true,
	"worldwide":         true,
	"anywhere":          true,
	"global":            true,
	"flexible / remote": true,
}

// splitLocation parses a free-form location string ("Austin, TX",
// "Berlin, Germany", "Worldwide") into the structured form. Strings it
// cannot resolve to a country come back without one and fail validation
// downstream.
func splitLocation(s string) model.Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Location{}
	}
	if remoteMarkers[strings.ToLower(s)] {
		return model.Location{Country: "Worldwide"}
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch len(parts) {
	case 1:
		if code, ok := countryNames[strings.ToLower(parts[0])]; ok {
			return model.Location{Country: code}
		}
		return model.Location{City: parts[0]}
	case 2:
		second := parts[1]
		if code, ok := stateCode(second); ok {
			return model.Location{City: parts[0], State: code, Country: "US"}
		}
		if code, ok := countryNames[strings.ToLower(second)]; ok {
			return model.Location{City: parts[0], Country: code}
		}
		return model.Location{City: parts[0], State: second}
	default:
		loc := model.Location{City: parts[0], State: parts[1], Country: parts[2]}
		if code, ok := countryNames[strings.ToLower(loc.Country)]; ok {
			loc.Country = code
		}
		if code, ok := stateCode(loc.State); ok {
			loc.State = code
		}
		return loc
	}
}

// stateCode resolves either spelling of a US state to its two-letter code.
func stateCode(s string) (string, bool) {
	if usStates[strings.ToUpper(s)] {
		return strings.ToUpper(s), true
	}
	if code, ok := usStateNames[strings.ToLower(s)]; ok {
		return code, true
	}
	return "", false
}
