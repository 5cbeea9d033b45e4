package zenodo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

// fakeZenodo is a deposition API stub covering create, bucket upload and
// publish.
type fakeZenodo struct {
	t        *testing.T
	mux      *http.ServeMux
	server   *httptest.Server
	uploaded map[string]string // name -> content
	metadata Metadata
}

func newFakeZenodo(t *testing.T) *fakeZenodo {
	f := &fakeZenodo{t: t, uploaded: map[string]string{}}
	f.mux = http.NewServeMux()
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	f.mux.HandleFunc("/deposit/depositions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			http.Error(w, "auth", http.StatusUnauthorized)
			return
		}
		var body struct {
			Metadata Metadata `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.metadata = body.Metadata

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": 77, "links": {"bucket": %q, "html": "https://zenodo.example/record/77"}}`,
			f.server.URL+"/files/bkt")
	})

	f.mux.HandleFunc("/files/bkt/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		data, _ := io.ReadAll(r.Body)
		name := strings.TrimPrefix(r.URL.Path, "/files/bkt/")
		f.uploaded[name] = string(data)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})

	f.mux.HandleFunc("/deposit/depositions/77/actions/publish", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"id": 77, "doi": "10.5281/zenodo.77", "submitted": true}`)
	})

	return f
}

func (f *fakeZenodo) client(t *testing.T) *Client {
	c, err := NewClient(ClientConfig{BaseURL: f.server.URL, Token: "test-token", Log: logr.Discard()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error without token")
	}
}

func TestDepositionLifecycle(t *testing.T) {
	f := newFakeZenodo(t)
	c := f.client(t)
	ctx := context.Background()

	dep, err := c.CreateDeposition(ctx, Metadata{Title: "dump", UploadType: "dataset"})
	if err != nil {
		t.Fatalf("CreateDeposition: %v", err)
	}
	if dep.ID != 77 || dep.Links.Bucket == "" {
		t.Fatalf("deposition = %+v", dep)
	}
	if f.metadata.Title != "dump" || f.metadata.UploadType != "dataset" {
		t.Errorf("server saw metadata %+v", f.metadata)
	}

	if err := c.UploadFile(ctx, dep, "results.json.gz", strings.NewReader("payload")); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if got := f.uploaded["results.json.gz"]; got != "payload" {
		t.Errorf("uploaded content = %q", got)
	}

	published, err := c.Publish(ctx, dep)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published.DOI != "10.5281/zenodo.77" || !published.Submitted {
		t.Errorf("published = %+v", published)
	}
}

func TestUploadRequiresBucket(t *testing.T) {
	f := newFakeZenodo(t)
	c := f.client(t)

	err := c.UploadFile(context.Background(), &Deposition{}, "x", strings.NewReader(""))
	if err == nil {
		t.Error("expected error for missing bucket link")
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"quota exceeded"}`, http.StatusForbidden)
	}))
	defer ts.Close()

	c, err := NewClient(ClientConfig{BaseURL: ts.URL, Token: "t", Log: logr.Discard()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.CreateDeposition(context.Background(), Metadata{})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T (%v), want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Body, "quota exceeded") {
		t.Errorf("body = %q", apiErr.Body)
	}
}
