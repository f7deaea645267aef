package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrMissingData is returned when the feed body has no data array
var ErrMissingData = errors.New("feed: response without data")

// Record is one measurement as served by the HRV backend
type Record struct {
	RMSSD     float64 `json:"rMSSD"`
	HFPWR     float64 `json:"HFPWR"`
	LFPWR     float64 `json:"LFPWR"`
	CreatedAt string  `json:"createdAt"`
}

type recentResponse struct {
	Data []Record `json:"data"`
}

// Observer is notified about every fetch attempt
type Observer interface {
	FetchCompleted(d time.Duration, err error)
}

// Client fetches recent measurements from the HRV backend
type Client struct {
	base string
	h    *http.Client
	obs  Observer
}

// New creates a client for the backend rooted at base
func New(base string, timeout time.Duration, obs Observer) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		h:    &http.Client{Timeout: timeout},
		obs:  obs,
	}
}

// FetchRecent calls GET {base}/recent and returns the records in the order served
func (c *Client) FetchRecent(ctx context.Context) ([]Record, error) {
	started := time.Now()
	records, err := c.fetchRecent(ctx)
	if c.obs != nil {
		c.obs.FetchCompleted(time.Since(started), err)
	}
	return records, err
}

func (c *Client) fetchRecent(ctx context.Context) ([]Record, error) {
	u := c.base + "/recent"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed %s returned %d: %s", u, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var payload recentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingData, u)
	}
	return payload.Data, nil
}

// maxBackoffFactor caps the retry wait at this multiple of the base interval
const maxBackoffFactor = 16

// FetchWithRetry keeps calling FetchRecent until it succeeds or ctx ends.
// Failed attempts are logged and retried after interval, doubling the wait
// after every failure up to maxBackoffFactor times interval.
func FetchWithRetry(ctx context.Context, c *Client, interval time.Duration, logger *slog.Logger) ([]Record, error) {
	wait := interval
	for attempt := 1; ; attempt++ {
		records, err := c.FetchRecent(ctx)
		if err == nil {
			return records, nil
		}
		logger.Warn("fetch failed", "attempt", attempt, "error", err, "retry_in", wait)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = nextBackoff(wait, interval)
	}
}

// nextBackoff doubles wait, capped at maxBackoffFactor times interval
func nextBackoff(wait, interval time.Duration) time.Duration {
	limit := interval * maxBackoffFactor
	if wait >= limit/2 {
		return limit
	}
	return wait * 2
}
