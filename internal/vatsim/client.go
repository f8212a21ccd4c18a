package vatsim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vatsim-engine/internal/metrics"
)

const (
	backoffBase = 50 * time.Millisecond
	backoffCap  = 5 * time.Second
)

// UpstreamError reports a feed fetch that did not produce a usable
// response. Permanent errors (4xx, undecodable payloads) were not
// retried; others exhausted the retry budget.
type UpstreamError struct {
	URL        string
	Attempts   int
	StatusCode int // last HTTP status seen, 0 for transport errors
	Permanent  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v (after %d attempts)", e.URL, e.Err, e.Attempts)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client fetches the network feeds with bounded retries. It is safe
// for concurrent use once the poll loops are running; DiscoverURLs
// mutates the feed URLs and must only be called during startup.
type Client struct {
	dataURL         string
	transceiversURL string
	statusURL       string
	userAgent       string
	retries         int
	http            *http.Client
	log             zerolog.Logger
}

// ClientOptions configures a Client. Retries is the number of extra
// attempts after the first; 0 means a single attempt per fetch.
type ClientOptions struct {
	DataURL         string
	TransceiversURL string
	StatusURL       string
	UserAgent       string
	Timeout         time.Duration
	Retries         int
}

func NewClient(opts ClientOptions, log zerolog.Logger) *Client {
	return &Client{
		dataURL:         opts.DataURL,
		transceiversURL: opts.TransceiversURL,
		statusURL:       opts.StatusURL,
		userAgent:       opts.UserAgent,
		retries:         opts.Retries,
		http:            &http.Client{Timeout: opts.Timeout},
		log:             log.With().Str("component", "vatsim").Logger(),
	}
}

// FetchSnapshot retrieves the combined pilots/controllers feed.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.fetchJSON(ctx, c.dataURL, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FetchTransceivers retrieves the per-station transceivers feed.
func (c *Client) FetchTransceivers(ctx context.Context) ([]StationTransceivers, error) {
	var stations []StationTransceivers
	if err := c.fetchJSON(ctx, c.transceiversURL, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// DiscoverURLs refreshes the data and transceivers URLs from the
// status document, keeping the configured values when the document
// omits an entry. Call once during startup, before the poll loops
// begin.
func (c *Client) DiscoverURLs(ctx context.Context) error {
	if c.statusURL == "" {
		return nil
	}
	var st Status
	if err := c.fetchJSON(ctx, c.statusURL, &st); err != nil {
		return err
	}
	if len(st.Data.V3) > 0 {
		c.dataURL = st.Data.V3[0]
	}
	if len(st.Data.Transceivers) > 0 {
		c.transceiversURL = st.Data.Transceivers[0]
	}
	c.log.Info().
		Str("data_url", c.dataURL).
		Str("transceivers_url", c.transceiversURL).
		Msg("feed urls discovered")
	return nil
}

// fetchJSON GETs url and decodes the body into out, retrying transport
// errors and 5xx responses with exponential backoff (50ms doubling,
// capped at 5s). 4xx responses and undecodable bodies fail
// immediately.
func (c *Client) fetchJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			metrics.UpstreamRetriesTotal.Inc()
			delay := backoffBase << (attempt - 1)
			if delay > backoffCap || delay <= 0 {
				delay = backoffCap
			}
			select {
			case <-ctx.Done():
				return &UpstreamError{URL: url, Attempts: attempt, StatusCode: lastStatus, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		status, retryable, err := c.getOnce(ctx, url, out)
		if err == nil {
			return nil
		}
		lastErr, lastStatus = err, status

		if !retryable {
			return &UpstreamError{URL: url, Attempts: attempt + 1, StatusCode: status, Permanent: true, Err: err}
		}

		c.log.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt+1).
			Msg("feed fetch failed")
	}

	return &UpstreamError{URL: url, Attempts: c.retries + 1, StatusCode: lastStatus, Err: lastErr}
}

func (c *Client) getOnce(ctx context.Context, url string, out any) (status int, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		return 0, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return resp.StatusCode, true, fmt.Errorf("upstream status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return resp.StatusCode, false, fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, false, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, true, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
