// Package status exposes download progress: an in-memory tracker, a local
// HTML dashboard, and a Prometheus registry.
package status

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time view of the current (or last) run.
type Snapshot struct {
	Running    bool      `json:"running"`
	Total      int64     `json:"total"`
	Downloaded int64     `json:"downloaded"`
	Percent    float64   `json:"percent"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Tracker implements download.Observer and feeds both the dashboard and the
// Prometheus metrics. Start and Advance arrive from different goroutines.
type Tracker struct {
	mu         sync.Mutex
	running    bool
	total      int64
	downloaded int64
	startedAt  time.Time
	finishedAt time.Time
	lastError  string

	studiesTotal  prometheus.Counter
	totalGauge    prometheus.Gauge
	runningGauge  prometheus.Gauge
	runsTotal     prometheus.Counter
	failuresTotal prometheus.Counter
}

func NewTracker() *Tracker {
	return &Tracker{
		studiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctgov_studies_downloaded_total",
			Help: "Studies written to the local dump across all runs.",
		}),
		totalGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctgov_registry_study_count",
			Help: "Server-reported total study count at the start of the current run.",
		}),
		runningGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctgov_download_running",
			Help: "1 while a download run is in progress.",
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctgov_download_runs_total",
			Help: "Completed download runs, successful or not.",
		}),
		failuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctgov_download_failures_total",
			Help: "Download runs that ended in an error.",
		}),
	}
}

// Register adds the tracker's metrics to a Prometheus registry.
func (t *Tracker) Register(reg prometheus.Registerer) {
	reg.MustRegister(t.studiesTotal, t.totalGauge, t.runningGauge, t.runsTotal, t.failuresTotal)
}

// Start marks a run in progress with the server-reported total.
func (t *Tracker) Start(total int64) {
	t.mu.Lock()
	t.running = true
	t.total = total
	t.downloaded = 0
	t.startedAt = time.Now()
	t.finishedAt = time.Time{}
	t.lastError = ""
	t.mu.Unlock()

	t.totalGauge.Set(float64(total))
	t.runningGauge.Set(1)
}

// Advance records n more downloaded studies.
func (t *Tracker) Advance(n int64) {
	t.mu.Lock()
	t.downloaded += n
	t.mu.Unlock()

	t.studiesTotal.Add(float64(n))
}

// Finish marks the run complete.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	t.running = false
	t.finishedAt = time.Now()
	if err != nil {
		t.lastError = err.Error()
	}
	t.mu.Unlock()

	t.runningGauge.Set(0)
	t.runsTotal.Inc()
	if err != nil {
		t.failuresTotal.Inc()
	}
}

// Snapshot returns the current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Running:    t.running,
		Total:      t.total,
		Downloaded: t.downloaded,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
		LastError:  t.lastError,
	}
	if s.Total > 0 {
		s.Percent = 100 * float64(s.Downloaded) / float64(s.Total)
	}
	return s
}
