// Package download orchestrates a full registry dump: walk the paginated API
// on one side, stream the gzip cache on the other.
package download

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"clinicaltrials-downloader/internal/cache"
	"clinicaltrials-downloader/internal/models"
	"clinicaltrials-downloader/internal/registry"
)

// studyBuffer bounds how far the fetcher may run ahead of the disk writer.
const studyBuffer = 2 * registry.MaxPageSize

// StudySource walks the registry. *registry.Client satisfies this.
type StudySource interface {
	Studies(ctx context.Context, opts registry.StreamOptions, fn func(models.Study) error) (int64, error)
}

// Observer receives download progress. Implementations must be fast; they
// are called on the writer path.
type Observer interface {
	Start(total int64)
	Advance(n int64)
	Finish(err error)
}

// RunOptions configure a single download run.
type RunOptions struct {
	// Force re-downloads even when a cached dump exists. The registry adds
	// records daily and result order is not guaranteed, so a refresh is
	// always a full re-download.
	Force    bool
	PageSize int
	Fields   []string
}

// Report describes the outcome of a run.
type Report struct {
	RunID      string
	StudyCount int64
	TotalCount int64
	FromCache  bool
	Path       string
	Duration   time.Duration
}

// Runner wires a study source to the local cache.
type Runner struct {
	source    StudySource
	cache     *cache.Cache
	log       logr.Logger
	observers []Observer
	version   string
}

func NewRunner(source StudySource, c *cache.Cache, log logr.Logger, version string) *Runner {
	return &Runner{source: source, cache: c, log: log, version: version}
}

// Observe registers an observer for subsequent runs.
func (r *Runner) Observe(obs Observer) {
	r.observers = append(r.observers, obs)
}

// Run produces a dump. When the cache already holds one and Force is off, it
// reports the cached dump without touching the network.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if r.cache.Exists() && !opts.Force {
		report := &Report{FromCache: true, Path: r.cache.ResultsPath()}
		if m, err := r.cache.ReadManifest(); err == nil {
			report.RunID = m.RunID
			report.StudyCount = m.StudyCount
			report.TotalCount = m.TotalCount
		}
		r.log.Info("using cached dump", "path", report.Path, "studies", report.StudyCount)
		return report, nil
	}

	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Path: r.cache.ResultsPath()}
	r.log.Info("downloading registry", "run", report.RunID, "pageSize", opts.PageSize, "fields", opts.Fields)

	writer, err := r.cache.NewWriter()
	if err != nil {
		return nil, err
	}

	studies := make(chan models.Study, studyBuffer)
	var sample []models.Study

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(studies)
		_, err := r.source.Studies(gctx, registry.StreamOptions{
			PageSize: opts.PageSize,
			Fields:   opts.Fields,
			OnTotal: func(total int64) {
				report.TotalCount = total
				for _, obs := range r.observers {
					obs.Start(total)
				}
			},
		}, func(study models.Study) error {
			select {
			case studies <- study:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		return errors.Wrap(err, "walk registry")
	})

	g.Go(func() error {
		for study := range studies {
			if err := writer.Add(study); err != nil {
				return err
			}
			if len(sample) < cache.SampleSize {
				sample = append(sample, study)
			}
			for _, obs := range r.observers {
				obs.Advance(1)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		writer.Abort()
		for _, obs := range r.observers {
			obs.Finish(err)
		}
		return nil, err
	}

	report.StudyCount = writer.Count()
	if err := writer.Commit(); err != nil {
		for _, obs := range r.observers {
			obs.Finish(err)
		}
		return nil, err
	}

	if err := r.cache.WriteSample(sample); err != nil {
		return nil, err
	}
	endpoint := registry.StudiesEndpoint
	if src, ok := r.source.(interface{ Endpoint() string }); ok {
		endpoint = src.Endpoint()
	}
	if err := r.cache.WriteManifest(cache.Manifest{
		RunID:       report.RunID,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		StudyCount:  report.StudyCount,
		TotalCount:  report.TotalCount,
		Fields:      opts.Fields,
		PageSize:    opts.PageSize,
		Endpoint:    endpoint,
		ToolVersion: r.version,
	}); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	for _, obs := range r.observers {
		obs.Finish(nil)
	}
	r.log.Info("download finished", "studies", report.StudyCount, "elapsed", report.Duration.String())
	return report, nil
}
