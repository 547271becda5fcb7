package score

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nextrole/conveyor/internal/model"
)

var scoreNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

const halfLife = 14 * 24 * time.Hour

func TestScoreAt_RemoteCandidateAgainstFreshPosting(t *testing.T) {
	e := NewEngine(DefaultWeights(), halfLife)
	job := model.CanonicalJob{
		ID:             "REMOTEOK_1",
		Title:          "Backend Engineer",
		RequiredSkills: []string{"Python", "SQL", "AWS"},
		Salary:         &model.SalaryRange{Min: 120000, Max: 160000, Currency: "USD"},
		Remote:         model.RemoteYes,
		PostedAt:       scoreNow,
		State:          model.StateActive,
	}
	criteria := model.UserSearchCriteria{
		Skills:    []string{"Python", "SQL"},
		SalaryMin: 100000,
		SalaryMax: 150000,
		Remote:    true,
	}

	b := e.ScoreAt(job, criteria, scoreNow)
	assert.InDelta(t, 35.0*2/3, b.SkillMatch, 0.01)
	assert.InDelta(t, 20, b.SalaryFit, 1e-9)
	assert.InDelta(t, 20, b.LocationFit, 1e-9)
	assert.InDelta(t, 7.5, b.ExperienceFit, 1e-9, "unknown seniority reads neutral")
	assert.InDelta(t, 10, b.Recency, 1e-9)
	assert.InDelta(t, 80.83, b.Total, 0.01)
	assert.Equal(t, 81.0, math.Round(b.Total))
}

func TestScoreAt_Deterministic(t *testing.T) {
	e := NewEngine(DefaultWeights(), halfLife)
	job := model.CanonicalJob{
		RequiredSkills: []string{"go", "kubernetes"},
		Salary:         &model.SalaryRange{Min: 90000, Max: 130000},
		Location:       model.Location{City: "Austin", State: "TX", Country: "US"},
		Experience:     model.ExperienceSenior,
		PostedAt:       scoreNow.Add(-5 * 24 * time.Hour),
	}
	criteria := model.UserSearchCriteria{
		Skills:     []string{"go"},
		SalaryMin:  100000,
		Locations:  []model.Location{{City: "Austin", State: "TX", Country: "US"}},
		Experience: model.ExperienceMid,
	}

	first := e.ScoreAt(job, criteria, scoreNow)
	second := e.ScoreAt(job, criteria, scoreNow)
	assert.Equal(t, first, second)
}

func TestScoreAt_TotalStaysInBounds(t *testing.T) {
	e := NewEngine(DefaultWeights(), halfLife)
	jobs := []model.CanonicalJob{
		{},
		{
			RequiredSkills: []string{"go"},
			Salary:         &model.SalaryRange{Min: 200000, Max: 300000},
			Location:       model.Location{City: "Austin", State: "TX", Country: "US"},
			Remote:         model.RemoteYes,
			Experience:     model.ExperienceEntry,
			PostedAt:       scoreNow,
		},
		{
			RequiredSkills: []string{"cobol", "fortran"},
			Salary:         &model.SalaryRange{Min: 10000, Max: 20000},
			Experience:     model.ExperienceExecutive,
			PostedAt:       scoreNow.Add(-5 * 365 * 24 * time.Hour),
		},
	}
	criterias := []model.UserSearchCriteria{
		{},
		{
			Skills:     []string{"go"},
			SalaryMin:  100000,
			Locations:  []model.Location{{City: "Austin", State: "TX", Country: "US"}},
			Remote:     true,
			Experience: model.ExperienceEntry,
		},
		{
			Skills:     []string{"rust"},
			SalaryMin:  500000,
			Locations:  []model.Location{{Country: "JP"}},
			Experience: model.ExperienceEntry,
		},
	}

	for _, job := range jobs {
		for _, criteria := range criterias {
			b := e.ScoreAt(job, criteria, scoreNow)
			assert.GreaterOrEqual(t, b.Total, 0.0)
			assert.LessOrEqual(t, b.Total, 100.0)
		}
	}
}

func TestSkillFraction(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		held     []string
		want     float64
	}{
		{name: "no requirements reads neutral", required: nil, held: []string{"go"}, want: 0.5},
		{name: "full overlap", required: []string{"go", "aws"}, held: []string{"aws", "go"}, want: 1},
		{name: "no overlap", required: []string{"go"}, held: []string{"java"}, want: 0},
		{name: "partial overlap", required: []string{"python", "sql", "aws"}, held: []string{"python", "sql"}, want: 2.0 / 3.0},
		{name: "case insensitive", required: []string{"Go", "AWS"}, held: []string{"go", "aws"}, want: 1},
		{name: "extra user skills do not dilute", required: []string{"go"}, held: []string{"go", "java", "rust"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, skillFraction(tt.required, tt.held), 1e-9)
		})
	}
}

func TestSalaryFraction(t *testing.T) {
	tests := []struct {
		name    string
		salary  *model.SalaryRange
		userMin int
		want    float64
	}{
		{name: "job silent on pay reads neutral", salary: nil, userMin: 100000, want: 0.5},
		{name: "user silent on pay reads neutral", salary: &model.SalaryRange{Min: 120000, Max: 160000}, userMin: 0, want: 0.5},
		{name: "whole range above the floor", salary: &model.SalaryRange{Min: 120000, Max: 160000}, userMin: 100000, want: 1},
		{name: "whole range below the floor", salary: &model.SalaryRange{Min: 50000, Max: 90000}, userMin: 100000, want: 0},
		{name: "floor splits the range", salary: &model.SalaryRange{Min: 90000, Max: 110000}, userMin: 100000, want: 0.5},
		{name: "point salary above", salary: &model.SalaryRange{Min: 120000, Max: 120000}, userMin: 100000, want: 1},
		{name: "point salary below", salary: &model.SalaryRange{Min: 90000, Max: 90000}, userMin: 100000, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, salaryFraction(tt.salary, tt.userMin), 1e-9)
		})
	}
}

func TestLocationFraction(t *testing.T) {
	austin := model.Location{City: "Austin", State: "TX", Country: "US"}
	tests := []struct {
		name     string
		job      model.CanonicalJob
		criteria model.UserSearchCriteria
		want     float64
	}{
		{
			name:     "no preferences reads neutral",
			job:      model.CanonicalJob{Location: austin},
			criteria: model.UserSearchCriteria{},
			want:     0.5,
		},
		{
			name:     "remote seeker on a remote job",
			job:      model.CanonicalJob{Remote: model.RemoteYes},
			criteria: model.UserSearchCriteria{Remote: true},
			want:     1,
		},
		{
			name:     "remote seeker on an onsite job",
			job:      model.CanonicalJob{Remote: model.RemoteOnsite, Location: austin},
			criteria: model.UserSearchCriteria{Remote: true},
			want:     0,
		},
		{
			name:     "city match",
			job:      model.CanonicalJob{Location: austin},
			criteria: model.UserSearchCriteria{Locations: []model.Location{austin}},
			want:     1,
		},
		{
			name:     "same state different city",
			job:      model.CanonicalJob{Location: model.Location{City: "Dallas", State: "TX", Country: "US"}},
			criteria: model.UserSearchCriteria{Locations: []model.Location{austin}},
			want:     0.6,
		},
		{
			name:     "same country only",
			job:      model.CanonicalJob{Location: model.Location{City: "Portland", State: "OR", Country: "US"}},
			criteria: model.UserSearchCriteria{Locations: []model.Location{austin}},
			want:     0.3,
		},
		{
			name:     "same city name in another state is not a city match",
			job:      model.CanonicalJob{Location: model.Location{City: "Springfield", State: "MO", Country: "US"}},
			criteria: model.UserSearchCriteria{Locations: []model.Location{{City: "Springfield", State: "IL", Country: "US"}}},
			want:     0.3,
		},
		{
			name:     "no overlap at all",
			job:      model.CanonicalJob{Location: model.Location{City: "Berlin", Country: "DE"}},
			criteria: model.UserSearchCriteria{Locations: []model.Location{austin}},
			want:     0,
		},
		{
			name: "best of several preferences wins",
			job:  model.CanonicalJob{Location: austin},
			criteria: model.UserSearchCriteria{Locations: []model.Location{
				{City: "Berlin", Country: "DE"},
				austin,
			}},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, locationFraction(tt.job, tt.criteria), 1e-9)
		})
	}
}

func TestExperienceFraction(t *testing.T) {
	tests := []struct {
		name      string
		job, want model.ExperienceLevel
		expect    float64
	}{
		{name: "exact level", job: model.ExperienceSenior, want: model.ExperienceSenior, expect: 1},
		{name: "one step apart", job: model.ExperienceSenior, want: model.ExperienceMid, expect: 0.8},
		{name: "symmetric", job: model.ExperienceMid, want: model.ExperienceSenior, expect: 0.8},
		{name: "three steps apart", job: model.ExperienceSenior, want: model.ExperienceEntry, expect: 0.4},
		{name: "full ladder apart floors at zero", job: model.ExperienceExecutive, want: model.ExperienceEntry, expect: 0},
		{name: "job level unknown reads neutral", job: model.ExperienceUnknown, want: model.ExperienceSenior, expect: 0.5},
		{name: "user level unknown reads neutral", job: model.ExperienceSenior, want: model.ExperienceUnknown, expect: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expect, experienceFraction(tt.job, tt.want), 1e-9)
		})
	}
}

func TestRecencyFraction(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{name: "posted now", age: 0, want: 1},
		{name: "one half-life", age: halfLife, want: 0.5},
		{name: "two half-lives", age: 2 * halfLife, want: 0.25},
		{name: "future posting reads fresh", age: -time.Hour, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recencyFraction(scoreNow.Add(-tt.age), scoreNow, halfLife)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	t.Run("zero half-life disables decay", func(t *testing.T) {
		got := recencyFraction(scoreNow.Add(-100*24*time.Hour), scoreNow, 0)
		assert.InDelta(t, 1, got, 1e-9)
	})
}
