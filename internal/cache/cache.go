// Package cache manages the local data home where registry dumps are kept.
//
// The directory layout matches what pystow-based tooling uses for this
// dataset (~/.data/bio/clinicaltrials), so dumps produced by either tool are
// interchangeable.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"clinicaltrials-downloader/internal/models"
)

const (
	// ResultsName is the full dump: a gzip-compressed JSON array of raw
	// studies.
	ResultsName = "results.json.gz"
	// SampleName holds the first few studies, uncompressed and indented, for
	// eyeballing the record structure.
	SampleName = "results_sample.json"
	// ManifestName records provenance for the dump next to it.
	ManifestName = "manifest.json"

	lockName = ".results.lock"
	tempName = ".results.json.gz.partial"

	// SampleSize is the number of studies kept in the sample file.
	SampleSize = 5
)

// EnvHome overrides the data home directory when set.
const EnvHome = "CTGOV_DOWNLOADER_HOME"

// envPystowHome is honored so dumps land where pystow-based tools expect
// them.
const envPystowHome = "PYSTOW_HOME"

// DefaultDir resolves the data home: $CTGOV_DOWNLOADER_HOME, else
// $PYSTOW_HOME/bio/clinicaltrials, else ~/.data/bio/clinicaltrials.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	if base := os.Getenv(envPystowHome); base != "" {
		return filepath.Join(base, "bio", "clinicaltrials"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".data", "bio", "clinicaltrials"), nil
}

// Cache is a dump directory. Safe for use by concurrent processes: writes go
// through an exclusive file lock and land atomically.
type Cache struct {
	dir string
	log logr.Logger
}

func New(dir string, log logr.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", dir)
	}
	return &Cache{dir: dir, log: log}, nil
}

func (c *Cache) Dir() string          { return c.dir }
func (c *Cache) ResultsPath() string  { return filepath.Join(c.dir, ResultsName) }
func (c *Cache) SamplePath() string   { return filepath.Join(c.dir, SampleName) }
func (c *Cache) ManifestPath() string { return filepath.Join(c.dir, ManifestName) }

// Exists reports whether a full dump is present.
func (c *Cache) Exists() bool {
	_, err := os.Stat(c.ResultsPath())
	return err == nil
}

// Clear removes the dump, sample and manifest.
func (c *Cache) Clear() error {
	var result *multierror.Error
	for _, p := range []string{c.ResultsPath(), c.SamplePath(), c.ManifestPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Load streams the cached dump, invoking fn per study.
func (c *Cache) Load(fn func(models.Study) error) error {
	f, err := os.Open(c.ResultsPath())
	if err != nil {
		return errors.Wrap(err, "open cached dump")
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip stream")
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for dec.More() {
		var study models.Study
		if err := dec.Decode(&study); err != nil {
			return errors.Wrap(err, "decode study")
		}
		if err := fn(study); err != nil {
			return err
		}
	}
	return expectDelim(dec, ']')
}

// LoadAll reads the whole dump into memory. The full registry is large;
// prefer Load for anything streaming.
func (c *Cache) LoadAll() ([]models.Study, error) {
	start := time.Now()
	var studies []models.Study
	err := c.Load(func(s models.Study) error {
		studies = append(studies, s)
		return nil
	})
	if err == nil {
		c.log.Info("loaded cached dump", "studies", len(studies), "elapsed", time.Since(start).String())
	}
	return studies, err
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "read dump")
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Errorf("cached dump is not a JSON array (got %v)", tok)
	}
	return nil
}

// WriteSample writes the indented sample file.
func (c *Cache) WriteSample(studies []models.Study) error {
	if len(studies) > SampleSize {
		studies = studies[:SampleSize]
	}
	data, err := json.MarshalIndent(studies, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal sample")
	}
	return errors.Wrap(os.WriteFile(c.SamplePath(), append(data, '\n'), 0o644), "write sample")
}

// ReadSample returns the raw sample file contents.
func (c *Cache) ReadSample() ([]byte, error) {
	data, err := os.ReadFile(c.SamplePath())
	return data, errors.Wrap(err, "read sample")
}
