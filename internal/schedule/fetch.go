package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	appLog "schedbridge/internal/log"
)

// ErrResourceNotFound is returned when every candidate path failed to
// produce a valid schedule document. Callers surface this as an inline
// error state; it never aborts the process.
var ErrResourceNotFound = errors.New("schedule document not found at any known path")

// FetchResult contains the outcome of loading the schedule document.
type FetchResult struct {
	// Path is the candidate URL that produced the document.
	Path string
	// Body is the raw JSON payload.
	Body []byte
}

// Fetcher loads the schedule document by trying a fixed, ordered list of
// candidate paths, each exactly once. The first response that is both a
// success status and valid JSON wins; if none succeed, the aggregate
// operation fails with the last-seen error wrapped in ErrResourceNotFound.
type Fetcher struct {
	client *http.Client

	// now is used for the cache-busting query parameter. Injectable for
	// tests.
	now func() time.Time
}

// NewFetcher creates a new schedule document Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// Candidates returns the fixed candidate URL list for a base URL and
// resource name, in try order: the relative resource, the same with a
// cache-busting query, the data/ subdirectory variant and its cache-busted
// form.
func (f *Fetcher) Candidates(base, resource string) []string {
	base = strings.TrimSuffix(base, "/")
	bust := "?_=" + strconv.FormatInt(f.now().UnixMilli(), 10)
	plain := base + "/" + resource
	data := base + "/data/" + resource
	return []string{plain, plain + bust, data, data + bust}
}

// Fetch tries each candidate path once and returns the first valid
// document.
func (f *Fetcher) Fetch(ctx context.Context, base, resource string) (FetchResult, error) {
	if base == "" {
		return FetchResult{}, errors.New("fetch: base URL is empty")
	}
	if resource == "" {
		resource = "schedule.json"
	}

	var lastErr error
	for _, p := range f.Candidates(base, resource) {
		body, err := f.fetchOne(ctx, p)
		if err != nil {
			lastErr = err
			appLog.Warn("schedule fetch candidate failed", "path", p, "reason", err)
			continue
		}
		appLog.Info("schedule fetch success", "path", p, "bytes", len(body))
		return FetchResult{Path: p, Body: body}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no candidate paths")
	}
	return FetchResult{}, fmt.Errorf("%w: %w", ErrResourceNotFound, lastErr)
}

// fetchOne performs a single GET. A non-2xx status or a body that is not
// valid JSON counts as failure for this candidate; there are no retries.
func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON from %s", url)
	}
	return body, nil
}
