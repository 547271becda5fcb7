package dedup

import (
	"strings"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// Component weights for the fuzzy similarity score. Company carries enough
// weight that, with the default threshold, a company mismatch alone rules a
// pair out; that is what lets candidate search stay within one company
// without missing matches. Config validation keeps the relation intact when
// either knob is tuned.
const (
	titleWeight    = 0.40
	companyWeight  = 0.25
	locationWeight = 0.20
	dateWeight     = 0.15
)

// MinThreshold is the lowest similarity threshold at which the same-company
// candidate narrowing stays lossless: a cross-company pair tops out at
// 1 − companyWeight, so any threshold above that can only be reached by
// rows sharing a company.
func MinThreshold() float64 {
	return 1 - companyWeight
}

// Similarity scores how likely a and b describe the same underlying role,
// in [0,1]. window bounds the posting-date proximity component: dates
// further apart than the window contribute nothing.
func Similarity(a, b model.CanonicalJob, window time.Duration) float64 {
	score := titleWeight * tokenJaccard(a.NormalizedTitle, b.NormalizedTitle)
	if a.CompanyKey() == b.CompanyKey() {
		score += companyWeight
	}
	if a.Location.Key() == b.Location.Key() {
		score += locationWeight
	}
	score += dateWeight * dateProximity(a.PostedAt, b.PostedAt, window)
	return score
}

func tokenJaccard(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	shared := 0
	for tok := range as {
		if bs[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(as)+len(bs)-shared)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// dateProximity decays linearly from 1 for identical dates to 0 at the
// window boundary.
func dateProximity(a, b time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	if gap >= window {
		return 0
	}
	return 1 - float64(gap)/float64(window)
}
