package status

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	s := tr.Snapshot()
	if s.Running || s.Downloaded != 0 {
		t.Fatalf("zero snapshot = %+v", s)
	}

	tr.Start(200)
	tr.Advance(50)
	s = tr.Snapshot()
	if !s.Running || s.Total != 200 || s.Downloaded != 50 {
		t.Errorf("mid snapshot = %+v", s)
	}
	if s.Percent != 25 {
		t.Errorf("percent = %v, want 25", s.Percent)
	}

	tr.Finish(nil)
	s = tr.Snapshot()
	if s.Running || s.LastError != "" || s.FinishedAt.IsZero() {
		t.Errorf("final snapshot = %+v", s)
	}
}

func TestTrackerRecordsFailure(t *testing.T) {
	tr := NewTracker()
	tr.Start(10)
	tr.Finish(errors.New("network sad"))

	if s := tr.Snapshot(); s.LastError != "network sad" {
		t.Errorf("LastError = %q", s.LastError)
	}
}

func TestTrackerRestartResetsProgress(t *testing.T) {
	tr := NewTracker()
	tr.Start(10)
	tr.Advance(10)
	tr.Finish(errors.New("first run failed"))

	tr.Start(20)
	s := tr.Snapshot()
	if s.Downloaded != 0 || s.Total != 20 || s.LastError != "" {
		t.Errorf("snapshot after restart = %+v", s)
	}
}

func setupServer(t *testing.T) (*Tracker, *httptest.Server) {
	t.Helper()
	tr := NewTracker()
	srv := NewServer(tr, logr.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return tr, ts
}

func TestProgressEndpoint(t *testing.T) {
	tr, ts := setupServer(t)
	tr.Start(1000)
	tr.Advance(400)

	resp, err := http.Get(ts.URL + "/api/progress")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var s Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !s.Running || s.Downloaded != 400 || s.Total != 1000 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestDashboardRenders(t *testing.T) {
	tr, ts := setupServer(t)
	tr.Start(100)
	tr.Advance(25)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	html := string(data)
	for _, want := range []string{"ClinicalTrials.gov Download", "25.0%", "Downloading"} {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboardNotFoundForOtherPaths(t *testing.T) {
	_, ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	tr, ts := setupServer(t)
	tr.Start(50)
	tr.Advance(10)
	tr.Finish(nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"ctgov_studies_downloaded_total 10",
		"ctgov_download_runs_total 1",
		"ctgov_download_running 0",
		"ctgov_registry_study_count 50",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
