// Package zenodo is a minimal client for the Zenodo deposition API, enough
// to publish a registry dump as a citable record.
package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

const (
	// BaseURL is the production deposition API.
	BaseURL = "https://zenodo.org/api"
	// SandboxBaseURL is Zenodo's test instance.
	SandboxBaseURL = "https://sandbox.zenodo.org/api"
)

// Metadata is the subset of deposition metadata this tool fills in.
type Metadata struct {
	Title           string   `json:"title"`
	UploadType      string   `json:"upload_type"`
	Description     string   `json:"description"`
	Creators        []Person `json:"creators,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"`
}

type Person struct {
	Name string `json:"name"`
}

// Deposition is the API's representation of an upload in progress.
type Deposition struct {
	ID    int64 `json:"id"`
	Links struct {
		Bucket string `json:"bucket"`
		HTML   string `json:"html"`
	} `json:"links"`
	DOI       string   `json:"doi"`
	Submitted bool     `json:"submitted"`
	Metadata  Metadata `json:"metadata"`
}

// APIError is a non-2xx deposition API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zenodo returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the deposition API with a personal access token.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	log     logr.Logger
}

// ClientConfig configures a Client. Token is required.
type ClientConfig struct {
	// BaseURL defaults to the production API; use SandboxBaseURL for dry
	// runs.
	BaseURL string
	Token   string
	Timeout time.Duration
	Log     logr.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("zenodo token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout == 0 {
		// Uploads stream multi-GB dumps; requests get a generous bound.
		cfg.Timeout = 30 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		hc:      &http.Client{Timeout: cfg.Timeout},
		log:     cfg.Log,
	}, nil
}

// CreateDeposition opens a new draft deposition with the given metadata.
func (c *Client) CreateDeposition(ctx context.Context, meta Metadata) (*Deposition, error) {
	body, err := json.Marshal(map[string]Metadata{"metadata": meta})
	if err != nil {
		return nil, errors.Wrap(err, "marshal metadata")
	}

	var dep Deposition
	err = c.do(ctx, http.MethodPost, c.baseURL+"/deposit/depositions", "application/json", bytes.NewReader(body), &dep)
	if err != nil {
		return nil, err
	}
	c.log.Info("created deposition", "id", dep.ID)
	return &dep, nil
}

// UploadFile streams a file into the deposition's bucket under the given
// name.
func (c *Client) UploadFile(ctx context.Context, dep *Deposition, name string, r io.Reader) error {
	if dep.Links.Bucket == "" {
		return errors.New("deposition has no bucket link")
	}
	u := dep.Links.Bucket + "/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodPut, u, "application/octet-stream", r, nil); err != nil {
		return errors.Wrapf(err, "upload %s", name)
	}
	c.log.Info("uploaded file", "name", name, "deposition", dep.ID)
	return nil
}

// Publish finalizes the deposition and returns it with its DOI assigned.
func (c *Client) Publish(ctx context.Context, dep *Deposition) (*Deposition, error) {
	u := fmt.Sprintf("%s/deposit/depositions/%d/actions/publish", c.baseURL, dep.ID)

	var published Deposition
	if err := c.do(ctx, http.MethodPost, u, "", nil, &published); err != nil {
		return nil, errors.Wrapf(err, "publish deposition %d", dep.ID)
	}
	c.log.Info("published deposition", "id", published.ID, "doi", published.DOI)
	return &published, nil
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "call zenodo")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
