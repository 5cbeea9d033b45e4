package zenodo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"clinicaltrials-downloader/internal/cache"
	"clinicaltrials-downloader/internal/download"
)

// Dumper produces (or refreshes) the local dump. *download.Runner fits.
type Dumper interface {
	Run(ctx context.Context, opts download.RunOptions) (*download.Report, error)
}

// Publisher re-downloads the registry and publishes the fresh dump as a
// Zenodo record.
type Publisher struct {
	client *Client
	dumper Dumper
	cache  *cache.Cache
	log    logr.Logger
}

func NewPublisher(client *Client, dumper Dumper, c *cache.Cache, log logr.Logger) *Publisher {
	return &Publisher{client: client, dumper: dumper, cache: c, log: log}
}

// Publish forces a fresh download so the record never republishes a stale
// cache, uploads the dump, and returns the published deposition.
func (p *Publisher) Publish(ctx context.Context) (*Deposition, error) {
	report, err := p.dumper.Run(ctx, download.RunOptions{Force: true})
	if err != nil {
		return nil, errors.Wrap(err, "refresh dump")
	}

	now := time.Now().UTC()
	dep, err := p.client.CreateDeposition(ctx, Metadata{
		Title:      fmt.Sprintf("ClinicalTrials.gov dump (%s)", now.Format("2006-01-02")),
		UploadType: "dataset",
		Description: fmt.Sprintf(
			"Full dump of ClinicalTrials.gov downloaded via its v2 API: %d studies as of %s.",
			report.StudyCount, now.Format(time.RFC3339)),
		Keywords:        []string{"clinical trials", "clinicaltrials.gov"},
		PublicationDate: now.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p.cache.ResultsPath())
	if err != nil {
		return nil, errors.Wrap(err, "open dump")
	}
	defer f.Close()

	if err := p.client.UploadFile(ctx, dep, cache.ResultsName, f); err != nil {
		return nil, err
	}

	return p.client.Publish(ctx, dep)
}
