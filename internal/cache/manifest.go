package cache

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Manifest records where a dump came from, written next to it on every
// successful download.
type Manifest struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	StudyCount  int64     `json:"study_count"`
	TotalCount  int64     `json:"total_count"` // server-reported at walk start
	Fields      []string  `json:"fields,omitempty"`
	PageSize    int       `json:"page_size"`
	Endpoint    string    `json:"endpoint"`
	ToolVersion string    `json:"tool_version"`
}

// WriteManifest stores the manifest for the current dump.
func (c *Cache) WriteManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	return errors.Wrap(os.WriteFile(c.ManifestPath(), append(data, '\n'), 0o644), "write manifest")
}

// ReadManifest loads the manifest for the current dump. A dump produced by
// other tooling may not have one; callers get os.IsNotExist-able errors.
func (c *Cache) ReadManifest() (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(c.ManifestPath())
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "parse manifest")
	}
	return m, nil
}
