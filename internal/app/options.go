package app

import (
	"github.com/go-logr/logr"
	flag "github.com/spf13/pflag"

	"clinicaltrials-downloader/internal/cache"
	"clinicaltrials-downloader/internal/config"
	"clinicaltrials-downloader/internal/download"
	"clinicaltrials-downloader/internal/logger"
	"clinicaltrials-downloader/internal/registry"
)

// options carries the flags shared by every subcommand, resolved once in
// Complete.
type options struct {
	configPath string
	dataDir    string
	logConfig  logger.Config

	log    logr.Logger
	config config.Config
	cache  *cache.Cache
}

func newOptions() *options {
	return &options{}
}

func (o *options) AddFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&o.dataDir, "data-dir", "", "directory for the local dump (default: pystow-compatible data home)")
	o.logConfig.AddFlags(fs)
}

// Complete parses config and initializes logging and the cache directory.
func (o *options) Complete() error {
	log, err := logger.New(o.logConfig)
	if err != nil {
		return err
	}
	o.log = log

	o.config, err = config.Load(o.configPath)
	if err != nil {
		return err
	}

	dir := o.dataDir
	if dir == "" {
		dir = o.config.DataDir
	}
	if dir == "" {
		dir, err = cache.DefaultDir()
		if err != nil {
			return err
		}
	}

	o.cache, err = cache.New(dir, log.WithName("cache"))
	if err != nil {
		return err
	}
	return nil
}

// newRunner wires the registry client to the cache.
func (o *options) newRunner() *download.Runner {
	client := registry.NewClient(registry.ClientConfig{
		BaseURL:   o.config.Endpoint,
		Log:       o.log.WithName("registry"),
		UserAgent: "clinicaltrials-downloader/" + Version,
	})
	return download.NewRunner(client, o.cache, o.log.WithName("download"), Version)
}
