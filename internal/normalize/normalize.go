package normalize

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nextrole/conveyor/internal/model"
)

// draft carries the fields a source mapper extracted from one payload,
// before shared validation and derivation run.
type draft struct {
	Title       string
	Company     string
	Location    model.Location
	Remote      model.RemoteOption
	JobType     model.JobType
	Experience  model.ExperienceLevel
	Salary      *model.SalaryRange
	Required    []string
	Preferred   []string
	Description string
	ApplyURL    string
	PostedAt    time.Time
	ExpiresAt   *time.Time
}

// mapperFunc parses one source's payload format.
type mapperFunc func(raw model.RawPosting) (draft, error)

// Normalizer turns raw postings into candidate canonical records. Mapping is
// dispatched through an explicit per-source registry; there is no reflective
// or duck-typed path.
type Normalizer struct {
	mappers map[model.JobSource]mapperFunc
	logger  *slog.Logger
}

// New builds a Normalizer covering every known source.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		mappers: map[model.JobSource]mapperFunc{
			model.SourceRemoteOK:    mapRemoteOK,
			model.SourceTheMuse:     mapTheMuse,
			model.SourceAdzuna:      mapAdzuna,
			model.SourcePartnerFeed: mapPartnerFeed,
		},
		logger: logger,
	}
}

// Normalize maps raw into a canonical record, or returns a ValidationError
// for malformed or incomplete payloads. Rejected postings are logged with
// their source and external ID; there are no other side effects.
func (n *Normalizer) Normalize(raw model.RawPosting) (model.CanonicalJob, error) {
	mapper, ok := n.mappers[raw.Source]
	if !ok {
		return model.CanonicalJob{}, fmt.Errorf("no mapper registered for source %q", raw.Source)
	}

	d, err := mapper(raw)
	if err != nil {
		verr := &model.ValidationError{Source: raw.Source, ExternalID: raw.ExternalID, Err: err}
		n.logger.Warn("posting rejected", "source", raw.Source, "external_id", raw.ExternalID, "error", verr)
		return model.CanonicalJob{}, verr
	}

	if missing := requiredFields(d); len(missing) > 0 {
		verr := &model.ValidationError{Source: raw.Source, ExternalID: raw.ExternalID, Missing: missing}
		n.logger.Warn("posting rejected", "source", raw.Source, "external_id", raw.ExternalID, "error", verr)
		return model.CanonicalJob{}, verr
	}

	postedAt := d.PostedAt
	datedBySource := !postedAt.IsZero()
	if !datedBySource {
		postedAt = raw.FetchedAt
	}

	experience := d.Experience
	if experience == "" || experience == model.ExperienceUnknown {
		experience = seniorityFromTitle(d.Title)
	}

	job := model.CanonicalJob{
		ID:              model.JobID(raw.Source, raw.ExternalID),
		Source:          raw.Source,
		ExternalID:      raw.ExternalID,
		Title:           d.Title,
		NormalizedTitle: NormalizeTitle(d.Title),
		Company:         d.Company,
		Location:        d.Location,
		Remote:          orUnknownRemote(d.Remote),
		JobType:         orUnknownType(d.JobType),
		Experience:      experience,
		Salary:          d.Salary,
		RequiredSkills:  d.Required,
		PreferredSkills: d.Preferred,
		Summary:         Summarize(d.Description),
		ApplyURL:        d.ApplyURL,
		PostedAt:        postedAt,
		UpdatedAt:       raw.FetchedAt,
		ExpiresAt:       d.ExpiresAt,
		State:           model.StateActive, // NEW → ACTIVE on successful validation
	}
	job.QualityScore = qualityScore(d, datedBySource)
	return job, nil
}

// requiredFields returns the names of mandatory fields the draft lacks.
// Title, company, a resolvable location country, and an apply URL are the
// minimum a record needs to be worth cataloging.
func requiredFields(d draft) []string {
	var missing []string
	if d.Title == "" {
		missing = append(missing, "title")
	}
	if d.Company == "" {
		missing = append(missing, "company")
	}
	if d.Location.Country == "" {
		missing = append(missing, "location.country")
	}
	if d.ApplyURL == "" {
		missing = append(missing, "applyUrl")
	}
	return missing
}

func orUnknownRemote(r model.RemoteOption) model.RemoteOption {
	if r == "" {
		return model.RemoteUnknown
	}
	return r
}

func orUnknownType(t model.JobType) model.JobType {
	if t == "" {
		return model.JobTypeUnknown
	}
	return t
}

// qualityScore is a 0–100 completeness heuristic: postings advertising pay,
// a substantial description, structured skills, and resolved enums rank
// above sparse ones of equal relevance.
func qualityScore(d draft, datedBySource bool) int {
	score := 0
	if d.Salary != nil {
		score += 20
	}
	switch {
	case len(d.Description) >= 400:
		score += 20
	case len(d.Description) >= 100:
		score += 10
	}
	if len(d.Required) > 0 {
		score += 20
	}
	if d.JobType != "" && d.JobType != model.JobTypeUnknown {
		score += 10
	}
	if d.Remote != "" && d.Remote != model.RemoteUnknown {
		score += 10
	}
	if d.Experience != "" && d.Experience != model.ExperienceUnknown {
		score += 10
	}
	if datedBySource {
		score += 10
	}
	return score
}
