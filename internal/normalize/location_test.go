package normalize

import (
	"testing"

	"github.com/nextrole/conveyor/internal/model"
)

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		input string
		want  model.Location
	}{
		{"Austin, TX", model.Location{City: "Austin", State: "TX", Country: "US"}},
		{"Austin, Texas", model.Location{City: "Austin", State: "TX", Country: "US"}},
		{"San Francisco, CA, USA", model.Location{City: "San Francisco", State: "CA", Country: "US"}},
		{"Berlin, Germany", model.Location{City: "Berlin", Country: "DE"}},
		{"United Kingdom", model.Location{Country: "UK"}},
		{"Worldwide", model.Location{Country: "Worldwide"}},
		{"remote", model.Location{Country: "Worldwide"}},
		{"Sydney, NSW", model.Location{City: "Sydney", State: "NSW"}},
		{"Springfield", model.Location{City: "Springfield"}},
		{"", model.Location{}},
	}

	for _, tc := range tests {
		if got := splitLocation(tc.input); got != tc.want {
			t.Errorf("splitLocation(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}
}

func TestSplitLocation_KeysAgreeAcrossSpellings(t *testing.T) {
	a := splitLocation("Austin, TX")
	b := splitLocation("austin, texas")
	if a.Key() != b.Key() {
		t.Errorf("spelling variants should share a key: %q vs %q", a.Key(), b.Key())
	}
}
