package score

import (
	"math"
	"strings"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// Weights allocates the 100 available points across the scoring components.
type Weights struct {
	Skill      float64
	Salary     float64
	Location   float64
	Experience float64
	Recency    float64
}

// DefaultWeights mirrors the product defaults: skills dominate, salary and
// location carry equal weight, experience and recency trail.
func DefaultWeights() Weights {
	return Weights{Skill: 35, Salary: 20, Location: 20, Experience: 15, Recency: 10}
}

// neutral is the fraction a component reads when one side of the
// comparison is missing, so absent data neither rewards nor punishes.
const neutral = 0.5

// Location match tiers, applied when the remote path does not.
const (
	cityTier    = 1.0
	stateTier   = 0.6
	countryTier = 0.3
)

// Engine turns a (job, criteria) pair into a ScoreBreakdown. Scoring is a
// pure function of its inputs and the evaluation instant: identical calls
// at the same instant return identical breakdowns.
type Engine struct {
	weights  Weights
	halfLife time.Duration
	now      func() time.Time
}

// Option adjusts engine behavior at construction.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a scoring engine. halfLife controls recency decay; a
// non-positive value disables decay entirely.
func NewEngine(weights Weights, halfLife time.Duration, opts ...Option) *Engine {
	e := &Engine{weights: weights, halfLife: halfLife, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score evaluates the pair at the engine's current time.
func (e *Engine) Score(job model.CanonicalJob, criteria model.UserSearchCriteria) model.ScoreBreakdown {
	return e.ScoreAt(job, criteria, e.now())
}

// ScoreAt evaluates the pair at an explicit instant. Components carry
// weighted points, so the breakdown sums to its total.
func (e *Engine) ScoreAt(job model.CanonicalJob, criteria model.UserSearchCriteria, at time.Time) model.ScoreBreakdown {
	b := model.ScoreBreakdown{
		SkillMatch:    e.weights.Skill * skillFraction(job.RequiredSkills, criteria.Skills),
		SalaryFit:     e.weights.Salary * salaryFraction(job.Salary, criteria.SalaryMin),
		LocationFit:   e.weights.Location * locationFraction(job, criteria),
		ExperienceFit: e.weights.Experience * experienceFraction(job.Experience, criteria.Experience),
		Recency:       e.weights.Recency * recencyFraction(job.PostedAt, at, e.halfLife),
		ComputedAt:    at,
	}
	b.Total = clamp(b.SkillMatch+b.SalaryFit+b.LocationFit+b.ExperienceFit+b.Recency, 0, 100)
	return b
}

// skillFraction is the share of the job's required skills the user holds.
// A job that lists no requirements reads neutral rather than perfect.
func skillFraction(required, held []string) float64 {
	if len(required) == 0 {
		return neutral
	}
	have := make(map[string]bool, len(held))
	for _, s := range held {
		have[strings.ToLower(s)] = true
	}
	matched := 0
	for _, s := range required {
		if have[strings.ToLower(s)] {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// salaryFraction is the share of the advertised range at or above the
// user's stated minimum. Pay above the user's maximum never hurts.
func salaryFraction(salary *model.SalaryRange, userMin int) float64 {
	if salary == nil || userMin <= 0 {
		return neutral
	}
	switch {
	case salary.Max < userMin:
		return 0
	case salary.Min >= userMin:
		return 1
	default:
		return float64(salary.Max-userMin) / float64(salary.Max-salary.Min)
	}
}

func locationFraction(job model.CanonicalJob, criteria model.UserSearchCriteria) float64 {
	if len(criteria.Locations) == 0 && !criteria.Remote {
		return neutral
	}
	best := 0.0
	if criteria.Remote && job.Remote == model.RemoteYes {
		best = 1
	}
	for _, want := range criteria.Locations {
		if tier := locationTier(want, job.Location); tier > best {
			best = tier
		}
	}
	return best
}

// locationTier compares one desired location against the job's. Empty
// fields on either side read as wildcards, so "Austin" still matches
// "Austin, TX, US", while "Springfield, IL" does not match the one in MO.
func locationTier(want, have model.Location) float64 {
	sameState := want.State == "" || have.State == "" || strings.EqualFold(want.State, have.State)
	sameCountry := want.Country == "" || have.Country == "" || strings.EqualFold(want.Country, have.Country)
	switch {
	case want.City != "" && strings.EqualFold(want.City, have.City) && sameState && sameCountry:
		return cityTier
	case want.State != "" && strings.EqualFold(want.State, have.State) && sameCountry:
		return stateTier
	case want.Country != "" && strings.EqualFold(want.Country, have.Country):
		return countryTier
	default:
		return 0
	}
}

// experienceFraction decays by 20% per step of distance on the seniority
// ladder. An unknown level on either side reads neutral.
func experienceFraction(job, want model.ExperienceLevel) float64 {
	jobRank, ok := job.Rank()
	if !ok {
		return neutral
	}
	wantRank, ok := want.Rank()
	if !ok {
		return neutral
	}
	diff := jobRank - wantRank
	if diff < 0 {
		diff = -diff
	}
	f := 1 - 0.2*float64(diff)
	if f < 0 {
		return 0
	}
	return f
}

// recencyFraction halves the component every half-life since posting.
func recencyFraction(postedAt, at time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	age := at.Sub(postedAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
