// Package careerboard persists scraped postings into the owner's career
// board table.
package careerboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/elektrikmusik/linkedin-scraper/internal/model"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repo writes postings to the career_board table.
type Repo struct {
	db DB
}

// NewRepo creates a Repo backed by db.
func NewRepo(db DB) *Repo {
	return &Repo{db: db}
}

// ── Schema ──────────────────────────────────────────────

var schema = []string{
	`CREATE TABLE IF NOT EXISTS career_board (
		id              BIGSERIAL PRIMARY KEY,
		job_id          TEXT NOT NULL,
		owner_id        TEXT NOT NULL,
		collection      TEXT NOT NULL,
		title           TEXT NOT NULL,
		company         TEXT NOT NULL,
		company_url     TEXT,
		job_url         TEXT NOT NULL,
		location        TEXT,
		posted_time     TEXT,
		employment_type TEXT,
		workplace_type  TEXT,
		promoted        BOOLEAN NOT NULL DEFAULT FALSE,
		easy_apply      BOOLEAN NOT NULL DEFAULT FALSE,
		actively_hiring BOOLEAN NOT NULL DEFAULT FALSE,
		description     TEXT,
		hiring_team     JSONB NOT NULL DEFAULT '[]'::jsonb,
		match_analysis  JSONB,
		status          TEXT NOT NULL DEFAULT 'saved',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS career_board_job_owner_idx ON career_board (job_id, owner_id)`,
	`CREATE INDEX IF NOT EXISTS career_board_owner_idx ON career_board (owner_id, updated_at DESC)`,
}

// EnsureSchema creates the table and its indexes if they are missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("careerboard: ensure schema: %w", err)
		}
	}
	return nil
}

// ── Writes ──────────────────────────────────────────────

// upsertSQL keeps the owner's board status, and keeps earlier detail data
// when a later scrape ran without details.
const upsertSQL = `INSERT INTO career_board (
		job_id, owner_id, collection, title, company, company_url, job_url,
		location, posted_time, employment_type, workplace_type,
		promoted, easy_apply, actively_hiring, description, hiring_team, match_analysis)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	ON CONFLICT (job_id, owner_id) DO UPDATE SET
		collection      = EXCLUDED.collection,
		title           = EXCLUDED.title,
		company         = EXCLUDED.company,
		company_url     = COALESCE(EXCLUDED.company_url, career_board.company_url),
		job_url         = EXCLUDED.job_url,
		location        = COALESCE(EXCLUDED.location, career_board.location),
		posted_time     = COALESCE(EXCLUDED.posted_time, career_board.posted_time),
		employment_type = COALESCE(EXCLUDED.employment_type, career_board.employment_type),
		workplace_type  = COALESCE(EXCLUDED.workplace_type, career_board.workplace_type),
		promoted        = EXCLUDED.promoted,
		easy_apply      = EXCLUDED.easy_apply,
		actively_hiring = EXCLUDED.actively_hiring,
		description     = COALESCE(EXCLUDED.description, career_board.description),
		hiring_team     = CASE WHEN EXCLUDED.hiring_team = '[]'::jsonb THEN career_board.hiring_team ELSE EXCLUDED.hiring_team END,
		match_analysis  = COALESCE(EXCLUDED.match_analysis, career_board.match_analysis),
		updated_at      = NOW()`

// Upsert saves p for ownerID. Saving the same posting for the same owner
// again updates the existing row.
func (r *Repo) Upsert(ctx context.Context, ownerID, collection string, p model.Posting) error {
	if p.JobID == "" {
		return errors.New("careerboard: posting id is required")
	}
	if ownerID == "" {
		return errors.New("careerboard: owner id is required")
	}

	team := p.HiringTeam
	if team == nil {
		team = []model.HiringTeamMember{}
	}
	teamB, err := json.Marshal(team)
	if err != nil {
		return fmt.Errorf("careerboard: encode hiring team: %w", err)
	}
	var analysisB []byte
	if p.MatchAnalysis != nil {
		if analysisB, err = json.Marshal(p.MatchAnalysis); err != nil {
			return fmt.Errorf("careerboard: encode match analysis: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, upsertSQL,
		p.JobID, ownerID, collection, p.Title, p.Company, nullable(p.CompanyURL), p.JobURL,
		nullable(p.Location), nullable(p.PostedTime), nullable(p.EmploymentType), nullable(p.WorkplaceType),
		p.Promoted, p.EasyApply, p.ActivelyHiring, nullable(p.Description), teamB, analysisB,
	)
	if err != nil {
		return fmt.Errorf("careerboard: upsert %s for %s: %w", p.JobID, ownerID, err)
	}
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
