// Package config resolves tool configuration from a YAML file and the
// environment. Flags override file values, file values override env, env
// overrides defaults.
package config

import (
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"clinicaltrials-downloader/internal/registry"
)

// Environment variables honored in addition to the config file.
const (
	EnvZenodoToken = "ZENODO_TOKEN"
	EnvPostgresDSN = "CTGOV_DSN"
	EnvEndpoint    = "CTGOV_ENDPOINT"
)

// Config is everything the CLI can read from a file.
type Config struct {
	// DataDir overrides the cache location (normally resolved pystow-style).
	DataDir string `yaml:"dataDir"`
	// PageSize for registry requests, clamped to the API maximum.
	PageSize int `yaml:"pageSize"`
	// Fields restricts downloaded record structure; empty means full records.
	Fields []string `yaml:"fields"`
	// Endpoint overrides the study API URL, mainly for mirrors and tests.
	Endpoint string `yaml:"endpoint"`

	Zenodo   Zenodo   `yaml:"zenodo"`
	Postgres Postgres `yaml:"postgres"`
}

type Zenodo struct {
	Token   string `yaml:"token"`
	Sandbox bool   `yaml:"sandbox"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Default returns the config used when no file is given.
func Default() Config {
	return Config{PageSize: registry.MaxPageSize}
}

// Load reads the file at path (when non-empty), then applies env overrides
// and defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if c.Zenodo.Token == "" {
		c.Zenodo.Token = os.Getenv(EnvZenodoToken)
	}
	if c.Postgres.DSN == "" {
		c.Postgres.DSN = os.Getenv(EnvPostgresDSN)
	}
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv(EnvEndpoint)
	}
}

func (c *Config) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = registry.MaxPageSize
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.PageSize < 0 || c.PageSize > registry.MaxPageSize {
		result = multierror.Append(result,
			errors.Errorf("pageSize must be within 1..%d, got %d", registry.MaxPageSize, c.PageSize))
	}
	for _, f := range c.Fields {
		if f == "" {
			result = multierror.Append(result, errors.New("fields must not contain empty names"))
		}
	}
	return result.ErrorOrNil()
}
