package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextrole/conveyor/internal/model"
)

// PostgresStore keeps the catalog in PostgreSQL, for deployments where
// several pipeline instances share one catalog. The unique index on
// dedup_hash is the cross-process arbiter for ingest races.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ model.CatalogStore = (*PostgresStore)(nil)

const postgresSchema = `
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
	salary_min       BIGINT,
	salary_max       BIGINT,
	salary_currency  TEXT,
	required_skills  TEXT[] NOT NULL DEFAULT '{}',
	preferred_skills TEXT[] NOT NULL DEFAULT '{}',
	summary          TEXT NOT NULL DEFAULT '',
	apply_url        TEXT NOT NULL,
	posted_at        TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ,
	status           TEXT NOT NULL,
	dedup_hash       TEXT NOT NULL,
	quality_score    INT NOT NULL DEFAULT 0,
	first_seen_at    TIMESTAMPTZ NOT NULL,
	last_checked_at  TIMESTAMPTZ NOT NULL,
	check_count      INT NOT NULL DEFAULT 1,
	is_duplicate     BOOLEAN NOT NULL DEFAULT FALSE,
	parent_job_id    TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_dedup_hash ON canonical_jobs(dedup_hash);
CREATE INDEX IF NOT EXISTS idx_jobs_company_key ON canonical_jobs(company_key);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON canonical_jobs(status);
CREATE TABLE IF NOT EXISTS job_redirects (
	old_id     TEXT PRIMARY KEY,
	new_id     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// NewPostgresStore creates a verified connection pool and ensures the
// catalog schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const pgJobColumns = `id, source, external_id, title, normalized_title, company,
	city, state, country, remote_option, job_type, experience,
	salary_min, salary_max, salary_currency, required_skills, preferred_skills,
	summary, apply_url, posted_at, updated_at, expires_at, status, dedup_hash,
	quality_score, first_seen_at, last_checked_at, check_count, is_duplicate, parent_job_id`

func scanPgJob(row rowScanner) (model.CanonicalJob, error) {
	var (
		j                    model.CanonicalJob
		source               string
		remote, jtype, exp   string
		status               string
		salaryMin, salaryMax *int64
		salaryCur            *string
		expiresAt            *time.Time
	)
	err := row.Scan(
		&j.ID, &source, &j.ExternalID, &j.Title, &j.NormalizedTitle, &j.Company,
		&j.Location.City, &j.Location.State, &j.Location.Country, &remote, &jtype, &exp,
		&salaryMin, &salaryMax, &salaryCur, &j.RequiredSkills, &j.PreferredSkills,
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
	if salaryMin != nil && salaryMax != nil {
		cur := ""
		if salaryCur != nil {
			cur = *salaryCur
		}
		j.Salary = &model.SalaryRange{Min: int(*salaryMin), Max: int(*salaryMax), Currency: cur}
	}
	j.ExpiresAt = expiresAt
	return j, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, job model.CanonicalJob) error {
	var salaryMin, salaryMax *int64
	var salaryCur *string
	if job.Salary != nil {
		mn, mx := int64(job.Salary.Min), int64(job.Salary.Max)
		salaryMin, salaryMax = &mn, &mx
		salaryCur = &job.Salary.Currency
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO canonical_jobs (
		id, source, external_id, title, normalized_title, company, company_key,
		city, state, country, remote_option, job_type, experience,
		salary_min, salary_max, salary_currency, required_skills, preferred_skills,
		summary, apply_url, posted_at, updated_at, expires_at, status, dedup_hash,
		quality_score, first_seen_at, last_checked_at, check_count, is_duplicate, parent_job_id
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
		$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)
	ON CONFLICT (id) DO UPDATE SET
		title=EXCLUDED.title, normalized_title=EXCLUDED.normalized_title,
		company=EXCLUDED.company, company_key=EXCLUDED.company_key,
		city=EXCLUDED.city, state=EXCLUDED.state, country=EXCLUDED.country,
		remote_option=EXCLUDED.remote_option, job_type=EXCLUDED.job_type,
		experience=EXCLUDED.experience,
		salary_min=EXCLUDED.salary_min, salary_max=EXCLUDED.salary_max,
		salary_currency=EXCLUDED.salary_currency,
		required_skills=EXCLUDED.required_skills, preferred_skills=EXCLUDED.preferred_skills,
		summary=EXCLUDED.summary, apply_url=EXCLUDED.apply_url,
		posted_at=EXCLUDED.posted_at, updated_at=EXCLUDED.updated_at,
		expires_at=EXCLUDED.expires_at, status=EXCLUDED.status,
		dedup_hash=EXCLUDED.dedup_hash, quality_score=EXCLUDED.quality_score,
		first_seen_at=EXCLUDED.first_seen_at, last_checked_at=EXCLUDED.last_checked_at,
		check_count=EXCLUDED.check_count, is_duplicate=EXCLUDED.is_duplicate,
		parent_job_id=EXCLUDED.parent_job_id`,
		job.ID, string(job.Source), job.ExternalID, job.Title, job.NormalizedTitle,
		job.Company, job.CompanyKey(),
		job.Location.City, job.Location.State, job.Location.Country,
		string(job.Remote), string(job.JobType), string(job.Experience),
		salaryMin, salaryMax, salaryCur, orEmpty(job.RequiredSkills), orEmpty(job.PreferredSkills),
		job.Summary, job.ApplyURL, job.PostedAt, job.UpdatedAt, job.ExpiresAt,
		string(job.State), job.DedupHash, job.QualityScore,
		job.FirstSeenAt, job.LastCheckedAt, job.CheckCount, job.IsDuplicate, job.ParentJobID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "dedup_hash") {
			return fmt.Errorf("upserting %s: %w", job.ID, model.ErrHashConflict)
		}
		return fmt.Errorf("upserting %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (model.CanonicalJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgJobColumns+` FROM canonical_jobs WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CanonicalJob{}, fmt.Errorf("getting %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("getting %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (model.CanonicalJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgJobColumns+` FROM canonical_jobs WHERE dedup_hash = $1`, hash)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CanonicalJob{}, fmt.Errorf("finding hash %s: %w", hash, model.ErrNotFound)
	}
	if err != nil {
		return model.CanonicalJob{}, fmt.Errorf("finding hash %s: %w", hash, err)
	}
	return job, nil
}

func (s *PostgresStore) ListByCompany(ctx context.Context, companyKey string) ([]model.CanonicalJob, error) {
	return s.list(ctx, `WHERE company_key = $1 AND NOT is_duplicate`, companyKey)
}

func (s *PostgresStore) ListScorable(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.list(ctx, `WHERE status NOT IN ('EXPIRED','DUPLICATE') AND NOT is_duplicate`)
}

func (s *PostgresStore) ListUnseenSince(ctx context.Context, cutoff time.Time) ([]model.CanonicalJob, error) {
	return s.list(ctx, `WHERE status NOT IN ('EXPIRED','DUPLICATE') AND last_checked_at < $1`, cutoff)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]model.CanonicalJob, error) {
	return s.list(ctx, `ORDER BY id`)
}

func (s *PostgresStore) list(ctx context.Context, clause string, args ...any) ([]model.CanonicalJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgJobColumns+` FROM canonical_jobs `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.CanonicalJob
	for rows.Next() {
		job, err := scanPgJob(rows)
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

func (s *PostgresStore) MarkDuplicate(ctx context.Context, childID, parentID string) error {
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

	_, err = s.pool.Exec(ctx,
		`UPDATE canonical_jobs SET status = $1, is_duplicate = TRUE, parent_job_id = $2 WHERE id = $3`,
		string(model.StateDuplicate), parentID, childID)
	if err != nil {
		return fmt.Errorf("marking %s duplicate: %w", childID, err)
	}
	return nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.StateExpired)
}

func (s *PostgresStore) MarkStale(ctx context.Context, id string) error {
	return s.transition(ctx, id, model.StateStale)
}

func (s *PostgresStore) transition(ctx context.Context, id string, to model.JobState) error {
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

	_, err = s.pool.Exec(ctx,
		`UPDATE canonical_jobs SET status = $1 WHERE id = $2`, string(to), id)
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", id, to, err)
	}
	return nil
}

func (s *PostgresStore) Redirect(ctx context.Context, oldID, newID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_redirects (old_id, new_id) VALUES ($1, $2)
		 ON CONFLICT (old_id) DO UPDATE SET new_id = EXCLUDED.new_id`, oldID, newID)
	if err != nil {
		return fmt.Errorf("redirecting %s to %s: %w", oldID, newID, err)
	}
	return nil
}

func (s *PostgresStore) Resolve(ctx context.Context, id string) (string, error) {
	cur := id
	for hop := 0; hop < maxResolveHops; hop++ {
		var next string
		err := s.pool.QueryRow(ctx,
			`SELECT new_id FROM job_redirects WHERE old_id = $1`, cur).Scan(&next)
		if err == nil && next != cur {
			cur = next
			continue
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("resolving %s: %w", id, err)
		}

		var isDup bool
		var parentID string
		err = s.pool.QueryRow(ctx,
			`SELECT is_duplicate, parent_job_id FROM canonical_jobs WHERE id = $1`, cur).
			Scan(&isDup, &parentID)
		if errors.Is(err, pgx.ErrNoRows) {
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

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
