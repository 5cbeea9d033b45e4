// Package store loads cached dumps into Postgres for relational consumers.
package store

import (
	"context"
	"database/sql"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"clinicaltrials-downloader/internal/db"
	"clinicaltrials-downloader/internal/models"
)

// batchSize is the number of upserts per transaction. Large enough to
// amortize round trips, small enough to keep transactions short.
const batchSize = 500

// StudyIterator streams studies to the loader. (*cache.Cache).Load fits.
type StudyIterator func(fn func(models.Study) error) error

// queries is what the loader needs from the db layer.
type queries interface {
	EnsureSchema(ctx context.Context) error
	UpsertStudies(ctx context.Context, rows []db.StudyRow) error
	CountStudies(ctx context.Context) (int64, error)
}

// PostgresStore writes study rows through the db query layer.
type PostgresStore struct {
	q   queries
	log logr.Logger
}

func NewPostgresStore(conn *sql.DB, log logr.Logger) *PostgresStore {
	return &PostgresStore{q: db.New(conn), log: log}
}

// EnsureSchema creates the target table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return s.q.EnsureSchema(ctx)
}

// LoadStudies drains the iterator into the studies table in batches. Records
// without an NCT ID are counted and skipped; they cannot be keyed.
func (s *PostgresStore) LoadStudies(ctx context.Context, iter StudyIterator) (loaded, skipped int64, err error) {
	batch := make([]db.StudyRow, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.q.UpsertStudies(ctx, batch); err != nil {
			return err
		}
		loaded += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	err = iter(func(study models.Study) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		sum, err := models.Summarize(study)
		if err != nil || sum.NCTID == "" {
			skipped++
			return nil
		}

		batch = append(batch, db.StudyRow{
			NCTID:         sum.NCTID,
			BriefTitle:    sum.BriefTitle,
			OverallStatus: sum.OverallStatus,
			StudyType:     sum.StudyType,
			Phases:        sum.Phases,
			Conditions:    sum.Conditions,
			Interventions: sum.Interventions,
			Raw:           study,
		})
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return loaded, skipped, errors.Wrap(err, "load studies")
	}
	if err := flush(); err != nil {
		return loaded, skipped, err
	}

	s.log.Info("loaded studies into postgres", "loaded", loaded, "skipped", skipped)
	return loaded, skipped, nil
}

// Count returns the number of rows currently in the studies table.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	return s.q.CountStudies(ctx)
}
