// Package registry implements a client for the ClinicalTrials.gov v2 study
// API, paging through the full registry via continuation tokens.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"clinicaltrials-downloader/internal/models"
)

// StudiesEndpoint is the v2 study search endpoint.
const StudiesEndpoint = "https://clinicaltrials.gov/api/v2/studies"

// MaxPageSize is the largest page size the API accepts.
const MaxPageSize = 1000

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 4
	backoffBase    = 500 * time.Millisecond
	backoffCap     = 16 * time.Second
)

// Page is one response from the study endpoint.
type Page struct {
	// TotalCount is only populated when the request asked for it, which the
	// client does on the first page of a walk.
	TotalCount    int64          `json:"totalCount"`
	Studies       []models.Study `json:"studies"`
	NextPageToken string         `json:"nextPageToken"`
}

// PageRequest describes a single page fetch.
type PageRequest struct {
	PageSize   int
	Fields     []string
	PageToken  string
	CountTotal bool
}

// StreamOptions control a full walk of the registry.
type StreamOptions struct {
	// PageSize is clamped to 1..MaxPageSize; zero means MaxPageSize.
	PageSize int
	// Fields restricts the returned record structure. Empty downloads full
	// records.
	Fields []string
	// OnTotal, if set, is called once with the server-reported total after
	// the first page arrives.
	OnTotal func(int64)
}

// APIError is a non-retryable response from the registry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinicaltrials.gov returned %d: %s", e.StatusCode, e.Body)
}

// ClientConfig configures a Client. The zero value works.
type ClientConfig struct {
	// BaseURL overrides StudiesEndpoint, mainly for tests.
	BaseURL string
	// Timeout bounds each HTTP request. The registry's 1000-study pages can
	// take several seconds, so this defaults to 30s.
	Timeout time.Duration
	// Retries is the number of attempts after the first for transient
	// failures.
	Retries   int
	UserAgent string
	Log       logr.Logger
}

// Client talks to the study endpoint. It is safe for concurrent use.
type Client struct {
	baseURL   string
	hc        *http.Client
	retries   int
	userAgent string
	log       logr.Logger
	sleep     func(context.Context, time.Duration) error
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = StudiesEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "clinicaltrials-downloader"
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		hc:        &http.Client{Timeout: cfg.Timeout},
		retries:   cfg.Retries,
		userAgent: cfg.UserAgent,
		log:       cfg.Log,
		sleep:     sleepCtx,
	}
}

// Endpoint returns the URL the client walks.
func (c *Client) Endpoint() string { return c.baseURL }

// Page fetches a single page.
func (c *Client) Page(ctx context.Context, req PageRequest) (*Page, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint")
	}

	q := u.Query()
	q.Set("pageSize", strconv.Itoa(clampPageSize(req.PageSize)))
	if len(req.Fields) > 0 {
		q.Set("fields", strings.Join(req.Fields, ","))
	}
	if req.CountTotal {
		// The API wants the literal string "true", not a boolean.
		q.Set("countTotal", "true")
	}
	if req.PageToken != "" {
		q.Set("pageToken", req.PageToken)
	}
	u.RawQuery = q.Encode()

	var page *Page
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
			c.log.V(1).Info("retrying page fetch", "attempt", attempt, "err", lastErr)
		}

		page, lastErr = c.fetch(ctx, u.String())
		if lastErr == nil {
			return page, nil
		}
		if !retryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, errors.Wrapf(lastErr, "giving up after %d attempts", c.retries+1)
}

func (c *Client) fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &transientError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &transientError{apiErr}
		}
		return nil, apiErr
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, "decode page")
	}
	return &page, nil
}

// Studies walks the token chain from the first page, invoking fn for every
// study. It returns the server-reported total count. Iteration stops on the
// first fn error or when ctx is done.
func (c *Client) Studies(ctx context.Context, opts StreamOptions, fn func(models.Study) error) (int64, error) {
	req := PageRequest{
		PageSize:   clampPageSize(opts.PageSize),
		Fields:     opts.Fields,
		CountTotal: true, // only the first page carries the count
	}

	var total int64
	for {
		page, err := c.Page(ctx, req)
		if err != nil {
			return total, err
		}
		if req.CountTotal {
			total = page.TotalCount
			if opts.OnTotal != nil {
				opts.OnTotal(total)
			}
		}

		for _, study := range page.Studies {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if err := fn(study); err != nil {
				return total, err
			}
		}

		if page.NextPageToken == "" {
			return total, nil
		}
		req.PageToken = page.NextPageToken
		req.CountTotal = false
	}
}

func clampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// transientError marks failures worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
