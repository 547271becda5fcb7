package model

import "time"

// UserSearchCriteria is one user's search profile. It is owned and supplied
// by the user-profile service; the pipeline only reads it.
type UserSearchCriteria struct {
	DesiredTitles []string
	Skills        []string
	SalaryMin     int // 0 means no stated minimum
	SalaryMax     int // 0 means no stated maximum
	Locations     []Location
	Remote        bool // true when the user wants remote-friendly roles
	Experience    ExperienceLevel
}

// ScoreBreakdown itemizes one relevance score. Components carry weighted
// points (each out of its component's weight) so they sum to Total.
// Always derived: recomputed per query, cached only with a short TTL.
type ScoreBreakdown struct {
	SkillMatch    float64
	SalaryFit     float64
	LocationFit   float64
	ExperienceFit float64
	Recency       float64
	Total         float64 // clamped to [0,100]
	Partial       bool    // served degraded (cached or incomplete) after a timeout
	ComputedAt    time.Time
}

// ScoredJob pairs one catalog record with its breakdown for one user.
type ScoredJob struct {
	Job         CanonicalJob
	Breakdown   ScoreBreakdown
	Recommended bool
}

// Page selects one window of a ranked result list. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Clip returns the sub-slice of jobs covered by the page.
func (p Page) Clip(jobs []ScoredJob) []ScoredJob {
	if p.Size <= 0 {
		return jobs
	}
	n := p.Number
	if n < 1 {
		n = 1
	}
	start := (n - 1) * p.Size
	if start >= len(jobs) {
		return nil
	}
	end := start + p.Size
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[start:end]
}
