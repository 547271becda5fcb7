package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextrole/conveyor/internal/model"
)

// SQLiteStore keeps the catalog in an embedded SQLite database. It is the
// default backend for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

var _ model.CatalogStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS canonical_jobs (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	external_id      TEXT NOT NULL,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	company          TEXT NOT NULL,
	company_key      TEXT NOT NULL,
	city             TEXT NOT NULL DEFAULT '',
	state            TEXT NOT NULL DEFAULT '',
	country          TEXT NOT NULL DEFAULT '',
	remote_option    TEXT NOT NULL,
	job_type         TEXT NOT NULL,
	experience       TEXT NOT NULL,
	salary_min       INTEGER,
	salary_max       INTEGER,
	salary_currency  TEXT,
	required_skills  TEXT NOT NULL DEFAULT '[]',
	preferred_skills TEXT NOT NULL DEFAULT '[]',
	summary          TEXT NOT NULL DEFAULT '',
	apply_url        TEXT NOT NULL,
	posted_at        DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	expires_at       DATETIME,
	status           TEXT NOT NULL,
	dedup_hash       TEXT NOT NULL,
	quality_score    INTEGER NOT NULL DEFAULT 0,
	first_seen_at    DATETIME NOT NULL,
	last_checked_at  DATETIME NOT NULL,
	check_count      INTEGER NOT NULL DEFAULT 1,
	is_duplicate     INTEGER NOT NULL DEFAULT 0,
	parent_job_id    TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_dedup_hash ON canonical_jobs(dedup_hash);
CREATE INDEX IF NOT EXISTS idx_jobs_company_key ON canonical_jobs(company_key);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON canonical_jobs(status);
CREATE TABLE IF NOT EXISTS job_redirects (
	old_id     TEXT PRIMARY KEY,
	new_id     TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

// NewSQLiteStore opens (or creates) the catalog database at dbPath and
// ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// jobColumns is the read column list; company_key is derived and never read
// back.
const jobColumns = `id, source, external_id, title, normalized_title, company,
	city, state, country, remote_option, job_type, experience,
	salary_min, salary_max, salary_currency, required_skills, preferred_skills,
	summary, apply_url, posted_at, updated_at, expires_at, status, dedup_hash,
	quality_score, first_seen_at, last_checked_at, check_count, is_duplicate, parent_job_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.CanonicalJob, error) {
	var (
		j                    model.CanonicalJob
		source               string
		remote, jtype, exp   string
		status               string
		salaryMin, salaryMax sql.NullInt64
		salaryCur            sql.NullString
		requiredJSON         string
		preferredJSON        string
		expiresAt            sql.NullTime
	)
	err := row.Scan(
		&j.ID, &source, &j.ExternalID, &j.Title, &j.NormalizedTitle, &j.Company,
		&j.Location.City, &j.Location.State, &j.Location.Country, &remote, &jtype, &exp,
		&salaryMin, &salaryMax, &salaryCur, &requiredJSON, &preferredJSON,
		&j.Summary, &j.ApplyURL, &j.PostedAt, &j.UpdatedAt, &expiresAt, &status,
		&j.DedupHash, &j.QualityScore, &j.FirstSeenAt, &j.LastCheckedAt,
		&j.CheckCount, &j.IsDuplicate, &j.ParentJobID,
	)
	if err != nil {
		return model.CanonicalJob{}, err
	}

	j.Source = model.JobSource(source)
	j.Remote = model.RemoteOption(remote)
	j.JobType = model.JobType(jtype)
	j.Experience = model.ExperienceLevel(exp)
	j.State = model.JobState(status)
	if salaryMin.Valid && salaryMax.Valid {
		j.Salary = &model.SalaryRange{
			Min:      int(salaryMin.Int64),
			Max:      int(salaryMax.Int64),
			Currency: salaryCur.String,
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		j.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(requiredJSON), &j.RequiredSkills); err != nil {
		return model.CanonicalJob{}, fmt.Errorf("decoding required skills for %s: %w", j.ID, err)
	}
	if err := json.Unmarshal([]byte(preferredJSON), &j.PreferredSkills); err != nil {
		return model.CanonicalJob{}, fmt.Errorf("decoding preferred skills for %s: %w", j.ID, err)
	}
	return j, nil
}

func jobArgs(job model.CanonicalJob) ([]any, error) {
	required, err := json.Marshal(orEmpty(job.RequiredSkills))
	if err != nil {
		return nil, fmt.Errorf("encoding required skills for %s: %w", job.ID, err)
	}
	preferred, err := json.Marshal(orEmpty(job.PreferredSkills))
	if err != nil {
		return nil, fmt.Errorf("encoding preferred skills for %s: %w", job.ID, err)
	}

	var salaryMin, salaryMax sql.NullInt64
	var salaryCur sql.NullString
	if job.Salary != nil {
		salaryMin = sql.NullInt64{Int64: int64(job.Salary.Min), Valid: true}
		salaryMax = sql.NullInt64{Int64: int64(job.Salary.Max), Valid: true}
		salaryCur = sql.NullString{String: job.Salary.Currency, Valid: true}
	}
	var expiresAt sql.NullTime
	if job.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: job.ExpiresAt.UTC(), Valid: true}
	}

	// times are stored as text, so they must share one offset to stay
	// comparable
	return []any{
		job.ID, string(job.Source), job.ExternalID, job.Title, job.NormalizedTitle,
		job.Company, job.CompanyKey(),
		job.Location.City, job.Location.State, job.Location.Country,
		string(job.Remote), string(job.JobType), string(job.Experience),
		salaryMin, salaryMax, salaryCur, string(required), string(preferred),
		job.Summary, job.ApplyURL, job.PostedAt.UTC(), job.UpdatedAt.UTC(), expiresAt,
		string(job.State), job.DedupHash, job.QualityScore,
		job.FirstSeenAt.UTC(), job.LastCheckedAt.UTC(), job.CheckCount, job.IsDuplicate, job.ParentJobID,
	}, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *SQLiteStore) Upsert(ctx context.Context, job model.CanonicalJob) error {
	args, err := jobArgs(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO canonical_jobs (
		id, source, external_id, title, normalized_title, company, company_key,
		city, state, country, remote_option, job_type, experience,
		salary_min, salary_max, salary_currency, required_skills, preferred_skills,
		summary, apply_url, posted_at, updated_at, expires_at, status, dedup_hash,
		quality_score, first_seen_at, last_checked_at, check_count, is_duplicate, parent_job_id
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		title=excluded.title, normalized_title=excluded.normalized_title,
		company=excluded.company, company_key=excluded.company_key,
		city=excluded.city, state=excluded.state, country=excluded.country,
		remote_option=excluded.remote_option, job_type=excluded.job_type,
		experience=excluded.experience,
		salary_min=excluded.salary_min, salary_max=excluded.salary_max,
		salary_currency=excluded.salary_currency,
		required_skills=excluded.required_skills, preferred_skills=excluded.preferred_skills,
		summary=excluded.summary, apply_url=excluded.apply_url,
		posted_at=excluded.posted_at, updated_at=excluded.updated_at,
		expires_at=excluded.expires_at, status=excluded.status,
		dedup_hash=excluded.dedup_hash, quality_score=excluded.quality_score,
		first_seen_at=excluded.first_seen_at, last_checked_at=excluded.last_checked_at,
		check_count=excluded.check_count, is_duplicate=excluded.is_duplicate,
		parent_job_id=excluded.parent_job_id`, args...)
	if err != nil {
		// the unique index on dedup_hash turns a cross-process race into a
		// constraint violation
		if strings.Contains(err.Error(), "canonical_jobs.dedup_hash") {
			return fmt.Errorf("upserting %s: %w", job.ID, model.ErrHashConflict)
		}
		return fmt.Errorf("upserting %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (model.CanonicalJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM canonical_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CanonicalJob{}, fmt.Errorf("getting %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("getting %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteStore) FindByHash(ctx context.Context, hash string) (model.CanonicalJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM canonical_jobs WHERE dedup_hash = ?`, hash)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CanonicalJob{}, fmt.Errorf("finding hash %s: %w", hash, model.ErrNotFound)
	}
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("finding hash %s: %w", hash, err)
	}
	return job, nil
}

func (s *SQLiteStore) ListByCompany(ctx context.Context, companyKey string) ([]model.CanonicalJob, error) {
	return s.list(ctx, `WHERE company_key = ? AND is_duplicate = 0`, companyKey)
}

func (s *SQLiteStore) ListScorable(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.list(ctx, `WHERE status NOT IN ('EXPIRED','DUPLICATE') AND is_duplicate = 0`)
}

func (s *SQLiteStore) ListUnseenSince(ctx context.Context, cutoff time.Time) ([]model.CanonicalJob, error) {
	return s.list(ctx, `WHERE status NOT IN ('EXPIRED','DUPLICATE') AND last_checked_at < ?`, cutoff.UTC())
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.list(ctx, `ORDER BY id`)
}

func (s *SQLiteStore) list(ctx context.Context, clause string, args ...any) ([]model.CanonicalJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM canonical_jobs `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.CanonicalJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("listing jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) MarkDuplicate(ctx context.Context, childID, parentID string) error {
	parent, err := s.GetByID(ctx, parentID)
	if err != nil {
		return fmt.Errorf("marking %s duplicate: %w", childID, err)
	}
	if parent.IsDuplicate {
		return fmt.Errorf("marking %s duplicate: parent %s is itself a duplicate", childID, parentID)
	}
	child, err := s.GetByID(ctx, childID)
	if err != nil {
		return fmt.Errorf("marking %s duplicate: %w", childID, err)
	}
	if child.IsDuplicate && child.ParentJobID == parentID {
		return nil
	}
	if !model.CanTransition(child.State, model.StateDuplicate) {
		return fmt.Errorf("marking %s duplicate: %s cannot transition to %s",
			childID, child.State, model.StateDuplicate)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE canonical_jobs SET status = ?, is_duplicate = 1, parent_job_id = ? WHERE id = ?`,
		string(model.StateDuplicate), parentID, childID)
	if err != nil {
		return fmt.Errorf("marking %s duplicate: %w", childID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkExpired(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.StateExpired)
}

func (s *SQLiteStore) MarkStale(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.StateStale)
}

func (s *SQLiteStore) transition(ctx context.Context, id string, to model.JobState) error {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", id, to, err)
	}
	if job.State == to {
		return nil
	}
	if !model.CanTransition(job.State, to) {
		return fmt.Errorf("moving %s to %s: not allowed from %s", id, to, job.State)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE canonical_jobs SET status = ? WHERE id = ?`, string(to), id)
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", id, to, err)
	}
	return nil
}

func (s *SQLiteStore) Redirect(ctx context.Context, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_redirects (old_id, new_id) VALUES (?, ?)
		 ON CONFLICT(old_id) DO UPDATE SET new_id = excluded.new_id`, oldID, newID)
	if err != nil {
		return fmt.Errorf("redirecting %s to %s: %w", oldID, newID, err)
	}
	return nil
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string) (string, error) {
	cur := id
	for hop := 0; hop < maxResolveHops; hop++ {
		var next string
		err := s.db.QueryRowContext(ctx,
			`SELECT new_id FROM job_redirects WHERE old_id = ?`, cur).Scan(&next)
		if err == nil && next != cur {
			cur = next
			continue
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("resolving %s: %w", id, err)
		}

		var isDup bool
		var parentID string
		err = s.db.QueryRowContext(ctx,
			`SELECT is_duplicate, parent_job_id FROM canonical_jobs WHERE id = ?`, cur).
			Scan(&isDup, &parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("resolving %s: %w", id, model.ErrNotFound)
		}
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", id, err)
		}
		if isDup && parentID != "" && parentID != cur {
			cur = parentID
			continue
		}
		return cur, nil
	}
	return "", fmt.Errorf("resolving %s: link chain exceeds %d hops", id, maxResolveHops)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
