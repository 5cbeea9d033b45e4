package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"clinicaltrials-downloader/internal/cache"
	"clinicaltrials-downloader/internal/config"
	"clinicaltrials-downloader/internal/models"
)

// fakeRegistry serves a fixed number of synthetic studies with token
// pagination, like the real v2 API.
func fakeRegistry(t *testing.T, total, perPage int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			fmt.Sscanf(tok, "tok-%d", &offset)
		}

		resp := struct {
			TotalCount    int64          `json:"totalCount,omitempty"`
			Studies       []models.Study `json:"studies"`
			NextPageToken string         `json:"nextPageToken,omitempty"`
		}{}
		for i := offset; i < total && i < offset+perPage; i++ {
			resp.Studies = append(resp.Studies, models.Study(fmt.Sprintf(
				`{"protocolSection":{"identificationModule":{"nctId":"NCT%07d","briefTitle":"Study %d"}}}`, i, i)))
		}
		if r.URL.Query().Get("countTotal") == "true" {
			resp.TotalCount = int64(total)
		}
		if next := offset + perPage; next < total {
			resp.NextPageToken = fmt.Sprintf("tok-%d", next)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(context.Background())
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != Version {
		t.Errorf("out = %q, want %q", out, Version)
	}
}

func TestDownloadCommand(t *testing.T) {
	ts := fakeRegistry(t, 23, 10)
	t.Setenv(config.EnvEndpoint, ts.URL)
	dir := t.TempDir()

	out, err := runCommand(t, "download", "--data-dir", dir, "--no-progress")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.Contains(out, "downloaded 23 studies") {
		t.Errorf("out = %q", out)
	}

	c, err := cache.New(dir, logr.Discard())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	studies, err := c.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(studies) != 23 {
		t.Errorf("cached %d studies, want 23", len(studies))
	}

	// A second run hits the cache.
	out, err = runCommand(t, "download", "--data-dir", dir, "--no-progress")
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if !strings.Contains(out, "cached dump") {
		t.Errorf("out = %q", out)
	}
}

func TestDownloadSlimAndFieldsConflict(t *testing.T) {
	ts := fakeRegistry(t, 1, 10)
	t.Setenv(config.EnvEndpoint, ts.URL)

	_, err := runCommand(t, "download",
		"--data-dir", t.TempDir(), "--no-progress",
		"--slim", "--fields", "NCTId")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("err = %v, want mutual exclusion error", err)
	}
}

func TestDownloadSendsConfiguredFields(t *testing.T) {
	var gotFields string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		fmt.Fprint(w, `{"totalCount":0,"studies":[]}`)
	}))
	t.Cleanup(ts.Close)
	t.Setenv(config.EnvEndpoint, ts.URL)

	_, err := runCommand(t, "download",
		"--data-dir", t.TempDir(), "--no-progress",
		"--fields", "NCTId,BriefTitle,Phase")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if gotFields != "NCTId,BriefTitle,Phase" {
		t.Errorf("fields = %q", gotFields)
	}
}

func TestSampleCommand(t *testing.T) {
	ts := fakeRegistry(t, 12, 5)
	t.Setenv(config.EnvEndpoint, ts.URL)
	dir := t.TempDir()

	out, err := runCommand(t, "sample", "--data-dir", dir, "-v", "0")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	var sample []models.Study
	if err := json.Unmarshal([]byte(out), &sample); err != nil {
		t.Fatalf("sample output is not JSON: %v\n%s", err, out)
	}
	if len(sample) != cache.SampleSize {
		t.Errorf("sample has %d studies, want %d", len(sample), cache.SampleSize)
	}
	if sample[0].NCTID() != "NCT0000000" {
		t.Errorf("sample[0] = %q", sample[0].NCTID())
	}
}

func TestLoadCommandRequiresDSN(t *testing.T) {
	t.Setenv(config.EnvPostgresDSN, "")
	_, err := runCommand(t, "load", "--data-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "DSN") {
		t.Fatalf("err = %v, want missing-DSN error", err)
	}
}

func TestPublishCommandRequiresToken(t *testing.T) {
	t.Setenv(config.EnvZenodoToken, "")
	_, err := runCommand(t, "publish", "--data-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("err = %v, want missing-token error", err)
	}
}

func TestDownloadWithConfigFile(t *testing.T) {
	ts := fakeRegistry(t, 8, 4)
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("endpoint: %s\ndataDir: %s\npageSize: 4\n", ts.URL, dir)
	if err := writeFile(cfgPath, content); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCommand(t, "download", "--config", cfgPath, "--no-progress")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !strings.Contains(out, "downloaded 8 studies") {
		t.Errorf("out = %q", out)
	}
}
