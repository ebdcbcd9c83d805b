// Package feed fetches live football fixtures and moneyline odds and normalizes
// them into per-poll match snapshots.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/quotejump/internal/logger"
	"github.com/rewired-gh/quotejump/internal/models"
)

// ErrRateLimited is returned when the feed signals its request quota is exhausted.
var ErrRateLimited = errors.New("feed rate limit reached")

// maxIDsPerRequest is the API limit for /fixtures?ids=.
const maxIDsPerRequest = 20

// ClientConfig holds retry, transport, and filtering settings.
type ClientConfig struct {
	APIKey              string
	APIHost             string
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxOddsCalls        int
	LeagueKeywords      []string
	LeagueExclude       []string
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client provides access to the live-match API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        ClientConfig
	now        func() time.Time
}

// NewClient creates a new feed client. timeout bounds every single HTTP call.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 5
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
		cfg: cfg,
		now: time.Now,
	}
}

// FetchLive returns snapshots for every live fixture in an allowed league.
// Prices are left empty; see FillPrices.
func (c *Client) FetchLive(ctx context.Context) ([]models.MatchSnapshot, error) {
	var resp fixturesResponse
	if err := c.get(ctx, "/fixtures", url.Values{"live": {"all"}}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch live fixtures: %w", err)
	}

	polledAt := c.now()
	snaps := make([]models.MatchSnapshot, 0, len(resp.Response))
	var filtered int
	for _, item := range resp.Response {
		snap, ok := toSnapshot(item, polledAt)
		if !ok {
			continue
		}
		if !leagueAllowed(snap.League, c.cfg.LeagueKeywords, c.cfg.LeagueExclude) {
			filtered++
			continue
		}
		snaps = append(snaps, snap)
	}
	logger.Debug("Fetched %d live fixtures (%d kept, %d filtered by league)", len(resp.Response), len(snaps), filtered)
	return snaps, nil
}

// FetchFixtures returns snapshots for specific fixture ids, live or finished.
// Used to follow matches with unsettled signals after they leave the live list.
func (c *Client) FetchFixtures(ctx context.Context, ids []string) ([]models.MatchSnapshot, error) {
	var snaps []models.MatchSnapshot
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := start + maxIDsPerRequest
		if end > len(ids) {
			end = len(ids)
		}

		var resp fixturesResponse
		q := url.Values{"ids": {strings.Join(ids[start:end], "-")}}
		if err := c.get(ctx, "/fixtures", q, &resp); err != nil {
			return snaps, fmt.Errorf("failed to fetch fixtures: %w", err)
		}
		polledAt := c.now()
		for _, item := range resp.Response {
			if snap, ok := toSnapshot(item, polledAt); ok {
				snaps = append(snaps, snap)
			}
		}
	}
	return snaps, nil
}

// FetchOdds returns the best available home and away moneyline prices for a fixture.
func (c *Client) FetchOdds(ctx context.Context, fixtureID string) (home, away *float64, err error) {
	var resp oddsResponse
	if err := c.get(ctx, "/odds/live", url.Values{"fixture": {fixtureID}}, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch odds for %s: %w", fixtureID, err)
	}
	for _, item := range resp.Response {
		h, a := bestMoneyline(item)
		if h != nil || a != nil {
			return h, a, nil
		}
	}
	return nil, nil, nil
}

// FillPrices fetches odds for up to MaxOddsCalls of ids, in the given order, and
// writes them into the matching snapshots, marking each answered snapshot
// OddsRequested. Matches past the budget or whose call failed stay unmarked, so
// their absent prices are not taken as missing. A rate-limit response stops
// immediately and is returned.
func (c *Client) FillPrices(ctx context.Context, snaps []models.MatchSnapshot, ids []string) (int, error) {
	index := make(map[string]int, len(snaps))
	for i := range snaps {
		if _, dup := index[snaps[i].ID]; !dup {
			index[snaps[i].ID] = i
		}
	}

	if c.cfg.MaxOddsCalls > 0 && len(ids) > c.cfg.MaxOddsCalls {
		logger.Debug("Odds budget: %d matches want prices, fetching %d", len(ids), c.cfg.MaxOddsCalls)
		ids = ids[:c.cfg.MaxOddsCalls]
	}

	var filled int
	for _, id := range ids {
		i, ok := index[id]
		if !ok {
			continue
		}
		home, away, err := c.FetchOdds(ctx, id)
		if errors.Is(err, ErrRateLimited) {
			return filled, err
		}
		if err != nil {
			logger.Warn("Odds unavailable for match %s: %v", id, err)
			continue
		}
		snaps[i].HomePrice = home
		snaps[i].AwayPrice = away
		snaps[i].OddsRequested = true
		if home != nil || away != nil {
			filled++
		}
	}
	return filled, nil
}

// get performs a GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.doRequest(ctx, c.baseURL+path+"?"+query.Encode())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if err := apiError(env.Errors); err != nil {
			return err
		}
	}
	return nil
}

// apiError interprets the "errors" field, which is [] on success and an object otherwise.
func apiError(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil
	}
	var apiErr error
	for key, msg := range fields {
		if key == "requests" || key == "rateLimit" {
			return fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
		apiErr = fmt.Errorf("api error %s: %s", key, msg)
	}
	return apiErr
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-rapidapi-key", c.cfg.APIKey)
		if c.cfg.APIHost != "" {
			req.Header.Set("x-rapidapi-host", c.cfg.APIHost)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		case readErr != nil:
			lastErr = fmt.Errorf("failed to read body: %w", readErr)
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
