package zenodo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"clinicaltrials-downloader/internal/cache"
	"clinicaltrials-downloader/internal/download"
	"clinicaltrials-downloader/internal/models"
)

type MockDumper struct {
	RunFunc func(ctx context.Context, opts download.RunOptions) (*download.Report, error)
}

func (m *MockDumper) Run(ctx context.Context, opts download.RunOptions) (*download.Report, error) {
	return m.RunFunc(ctx, opts)
}

func seededCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.TempDir(), logr.Discard())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	w, err := c.NewWriter()
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Add(models.Study(`{"protocolSection":{"identificationModule":{"nctId":"NCT1"}}}`)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return c
}

func TestPublishForcesFreshDump(t *testing.T) {
	f := newFakeZenodo(t)
	c := seededCache(t)

	var sawForce bool
	dumper := &MockDumper{
		RunFunc: func(ctx context.Context, opts download.RunOptions) (*download.Report, error) {
			sawForce = opts.Force
			return &download.Report{StudyCount: 1, Path: c.ResultsPath()}, nil
		},
	}

	p := NewPublisher(f.client(t), dumper, c, logr.Discard())
	dep, err := p.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if !sawForce {
		t.Error("publish must force a re-download")
	}
	if dep.DOI == "" {
		t.Error("missing DOI")
	}
	if _, ok := f.uploaded[cache.ResultsName]; !ok {
		t.Errorf("dump not uploaded; got %v", f.uploaded)
	}
	if f.metadata.UploadType != "dataset" || !strings.Contains(f.metadata.Title, "ClinicalTrials.gov") {
		t.Errorf("metadata = %+v", f.metadata)
	}
}

func TestPublishAbortsWhenDownloadFails(t *testing.T) {
	f := newFakeZenodo(t)
	c := seededCache(t)

	boom := errors.New("download failed")
	dumper := &MockDumper{
		RunFunc: func(ctx context.Context, opts download.RunOptions) (*download.Report, error) {
			return nil, boom
		},
	}

	p := NewPublisher(f.client(t), dumper, c, logr.Discard())
	if _, err := p.Publish(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(f.uploaded) != 0 {
		t.Error("nothing should be uploaded after a failed download")
	}
}
