package app

import (
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progressBar adapts a terminal progress bar to the download.Observer
// interface. Start and Advance come from different goroutines.
type progressBar struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgressBar() *progressBar {
	return &progressBar{}
}

func (p *progressBar) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("Downloading ClinicalTrials.gov"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("trial"),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *progressBar) Advance(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add64(n)
	}
}

func (p *progressBar) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	if err == nil {
		_ = p.bar.Finish()
	}
	_ = p.bar.Close()
	p.bar = nil
}
