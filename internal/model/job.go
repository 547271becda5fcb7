package model

import (
	"context"
	"strings"
	"time"
)

// JobSource identifies the upstream board a posting came from.
type JobSource string

const (
	SourceRemoteOK    JobSource = "REMOTEOK"
	SourceTheMuse     JobSource = "THE_MUSE"
	SourceAdzuna      JobSource = "ADZUNA"
	SourcePartnerFeed JobSource = "PARTNER_FEED"
)

// JobID builds the canonical record key from the posting's first sighting.
func JobID(source JobSource, externalID string) string {
	return string(source) + "_" + externalID
}

// RawPosting is one unprocessed record as delivered by a source adapter.
// Ephemeral: the payload survives only long enough to be normalized, or to be
// logged when rejected.
type RawPosting struct {
	Source     JobSource
	ExternalID string
	Payload    []byte // source-specific JSON, parsed by the per-source mapper
	FetchedAt  time.Time
}

// JobType is the canonical employment-type enum.
type JobType string

const (
	JobTypeUnknown    JobType = "UNKNOWN"
	JobTypeFullTime   JobType = "FULL_TIME"
	JobTypePartTime   JobType = "PART_TIME"
	JobTypeContract   JobType = "CONTRACT"
	JobTypeInternship JobType = "INTERNSHIP"
	JobTypeFreelance  JobType = "FREELANCE"
)

// RemoteOption is the canonical remote-work enum.
type RemoteOption string

const (
	RemoteUnknown RemoteOption = "UNKNOWN"
	RemoteYes     RemoteOption = "REMOTE"
	RemoteHybrid  RemoteOption = "HYBRID"
	RemoteOnsite  RemoteOption = "ONSITE"
)

// ExperienceLevel is the canonical seniority enum, ordered ENTRY < JUNIOR <
// MID < SENIOR < LEAD < EXECUTIVE.
type ExperienceLevel string

const (
	ExperienceUnknown   ExperienceLevel = "UNKNOWN"
	ExperienceEntry     ExperienceLevel = "ENTRY"
	ExperienceJunior    ExperienceLevel = "JUNIOR"
	ExperienceMid       ExperienceLevel = "MID"
	ExperienceSenior    ExperienceLevel = "SENIOR"
	ExperienceLead      ExperienceLevel = "LEAD"
	ExperienceExecutive ExperienceLevel = "EXECUTIVE"
)

var experienceRanks = map[ExperienceLevel]int{
	ExperienceEntry:     0,
	ExperienceJunior:    1,
	ExperienceMid:       2,
	ExperienceSenior:    3,
	ExperienceLead:      4,
	ExperienceExecutive: 5,
}

// Rank returns the ordinal position of a level. ok is false for UNKNOWN, in
// which case scoring falls back to its neutral value.
func (e ExperienceLevel) Rank() (int, bool) {
	r, ok := experienceRanks[e]
	return r, ok
}

// ParseExperienceLevel maps free-form seniority labels onto the enum.
// Unrecognized input reads as UNKNOWN.
func ParseExperienceLevel(s string) ExperienceLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ENTRY", "ENTRY_LEVEL":
		return ExperienceEntry
	case "JUNIOR":
		return ExperienceJunior
	case "MID", "MID_LEVEL", "INTERMEDIATE":
		return ExperienceMid
	case "SENIOR":
		return ExperienceSenior
	case "LEAD", "STAFF", "PRINCIPAL":
		return ExperienceLead
	case "EXECUTIVE":
		return ExperienceExecutive
	}
	return ExperienceUnknown
}

// Location is the structured place a job is based in. Any field may be empty.
type Location struct {
	City    string
	State   string
	Country string
}

// Key returns the lower-cased "city|state|country" form used for fingerprints
// and exact-location comparison.
func (l Location) Key() string {
	return strings.ToLower(strings.TrimSpace(l.City)) + "|" +
		strings.ToLower(strings.TrimSpace(l.State)) + "|" +
		strings.ToLower(strings.TrimSpace(l.Country))
}

func (l Location) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// SalaryRange is an advertised pay band. Min and Max are yearly amounts in
// whole units of Currency.
type SalaryRange struct {
	Min      int
	Max      int
	Currency string
}

// CanonicalJob is the single authoritative record for one real-world posting,
// regardless of how many sources report it.
type CanonicalJob struct {
	ID              string // "{SOURCE}_{externalId}" of the first sighting
	Source          JobSource
	ExternalID      string
	Title           string
	NormalizedTitle string // case-folded, punctuation- and seniority-prefix-stripped
	Company         string
	Location        Location
	Remote          RemoteOption
	JobType         JobType
	Experience      ExperienceLevel
	Salary          *SalaryRange // nil when the source advertises no pay
	RequiredSkills  []string
	PreferredSkills []string
	Summary         string // bounded plain-text summary derived from the description
	ApplyURL        string
	PostedAt        time.Time
	UpdatedAt       time.Time
	ExpiresAt       *time.Time // nil when the source sets no expiry
	State           JobState
	DedupHash       string
	QualityScore    int     // 0–100 field-completeness heuristic
	RelevanceScore  float64 // filled per query, never persisted as ground truth

	FirstSeenAt   time.Time
	LastCheckedAt time.Time
	CheckCount    int
	IsDuplicate   bool
	ParentJobID   string // canonical parent when IsDuplicate
}

// CompanyKey returns the lower-cased company name used for candidate lookup
// and fingerprinting.
func (j CanonicalJob) CompanyKey() string {
	return strings.ToLower(strings.TrimSpace(j.Company))
}

// Scorable reports whether the record may enter scoring and recommendation.
// EXPIRED and DUPLICATE records are retained for audit but never scored.
func (j CanonicalJob) Scorable() bool {
	return !j.IsDuplicate && j.State != StateExpired && j.State != StateDuplicate
}

// SourceAdapter yields one batch of raw postings per ingestion cycle. Each
// adapter owns its own upstream rate limiting and retry.
type SourceAdapter interface {
	Source() JobSource
	Fetch(ctx context.Context) ([]RawPosting, error)
}

// ScoreCache holds recently computed breakdowns with a short TTL so on-demand
// scoring can fall back to a cached result when it runs out of time. Lookups
// are best-effort: a failing backend reads as a miss.
type ScoreCache interface {
	Get(ctx context.Context, userID, jobID string) (ScoreBreakdown, bool)
	Set(ctx context.Context, userID, jobID string, b ScoreBreakdown)
}
