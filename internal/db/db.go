// Package db holds the relational schema and low-level queries for the study
// table that `ctgov load` fills from a cached dump.
package db

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS studies (
	nct_id        text PRIMARY KEY,
	brief_title   text NOT NULL DEFAULT '',
	overall_status text NOT NULL DEFAULT '',
	study_type    text NOT NULL DEFAULT '',
	phases        text[] NOT NULL DEFAULT '{}',
	conditions    text[] NOT NULL DEFAULT '{}',
	interventions text[] NOT NULL DEFAULT '{}',
	raw           jsonb NOT NULL,
	loaded_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS studies_overall_status_idx ON studies (overall_status);
`

const upsertStudy = `
INSERT INTO studies (nct_id, brief_title, overall_status, study_type, phases, conditions, interventions, raw, loaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (nct_id) DO UPDATE SET
	brief_title    = EXCLUDED.brief_title,
	overall_status = EXCLUDED.overall_status,
	study_type     = EXCLUDED.study_type,
	phases         = EXCLUDED.phases,
	conditions     = EXCLUDED.conditions,
	interventions  = EXCLUDED.interventions,
	raw            = EXCLUDED.raw,
	loaded_at      = now()
`

// StudyRow is one row of the studies table.
type StudyRow struct {
	NCTID         string
	BriefTitle    string
	OverallStatus string
	StudyType     string
	Phases        []string
	Conditions    []string
	Interventions []string
	Raw           []byte
}

// Queries wraps a *sql.DB with the statements this tool needs.
type Queries struct {
	db *sql.DB
}

func New(conn *sql.DB) *Queries {
	return &Queries{db: conn}
}

// Open connects with the postgres driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return conn, nil
}

// EnsureSchema creates the studies table when missing.
func (q *Queries) EnsureSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "ensure schema")
}

// UpsertStudies writes a batch of rows in one transaction.
func (q *Queries) UpsertStudies(ctx context.Context, rows []StudyRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}

	stmt, err := tx.PrepareContext(ctx, upsertStudy)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "prepare upsert")
	}

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.NCTID,
			row.BriefTitle,
			row.OverallStatus,
			row.StudyType,
			pq.Array(row.Phases),
			pq.Array(row.Conditions),
			pq.Array(row.Interventions),
			row.Raw,
		)
		if err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return errors.Wrapf(err, "upsert %s", row.NCTID)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "close upsert")
	}
	return errors.Wrap(tx.Commit(), "commit batch")
}

// CountStudies returns the number of loaded rows.
func (q *Queries) CountStudies(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, "SELECT count(*) FROM studies").Scan(&n)
	return n, errors.Wrap(err, "count studies")
}
