// Package riot looks up ranked statistics for a Riot ID from the Riot Games API.
package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/rally-league/internal/config"
	"github.com/dom/rally-league/internal/domain"
	"github.com/dom/rally-league/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	dataDragonBaseURL = "https://ddragon.leagueoflegends.com"

	queueRankedSolo = "RANKED_SOLO_5x5"
	queueRankedFlex = "RANKED_FLEX_SR"
)

var (
	ErrAccountNotFound     = domain.NewError(domain.ErrNotFound, "riot account not found")
	ErrUpstreamUnavailable = domain.NewError(domain.ErrUpstreamUnavailable, "riot api unavailable")
)

// StatsLookup resolves a Riot ID to its current ranked standing.
type StatsLookup interface {
	Lookup(ctx context.Context, riotID string) (*domain.RankedStats, error)
}

type Client struct {
	apiKey            string
	regionalURL       string
	platformURL       string
	dataDragonVersion string
	timeout           time.Duration
	maxRetries        uint64
	initialBackoff    time.Duration
	httpClient        *http.Client
	limiter           *rate.Limiter
	logger            *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetries sets how many times a failed call is retried and the first backoff delay.
func WithRetries(max uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.initialBackoff = initial
	}
}

func NewClient(cfg *config.Config, opts ...Option) *Client {
	perSecond := cfg.RiotRatePerSecond
	if perSecond <= 0 {
		perSecond = 15
	}
	timeout := cfg.RiotTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	c := &Client{
		apiKey:            cfg.RiotAPIKey,
		regionalURL:       cfg.RiotRegionalURL,
		platformURL:       cfg.RiotPlatformURL,
		dataDragonVersion: cfg.DataDragonVersion,
		timeout:           timeout,
		maxRetries:        2,
		initialBackoff:    200 * time.Millisecond,
		httpClient:        &http.Client{Timeout: timeout},
		limiter:           rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type accountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type summonerResponse struct {
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	SummonerLevel int    `json:"summonerLevel"`
}

type leagueEntryResponse struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// Lookup fetches the ranked snapshot for riotID. The whole lookup, retries
// included, is bounded by the configured timeout.
func (c *Client) Lookup(ctx context.Context, riotID string) (*domain.RankedStats, error) {
	id, err := domain.ParseRiotID(riotID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stats, err := c.lookup(ctx, id)
	switch {
	case err == nil:
		metrics.RecordStatsLookup("ok", time.Since(start))
	case errors.Is(err, ErrAccountNotFound):
		metrics.RecordStatsLookup("not_found", time.Since(start))
	default:
		metrics.RecordStatsLookup("unavailable", time.Since(start))
		c.logger.Warn("riot stats lookup failed", "riot_id", id.String(), "error", err)
	}
	return stats, err
}

func (c *Client) lookup(ctx context.Context, id domain.RiotID) (*domain.RankedStats, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var account accountResponse
	accountURL := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionalURL, url.PathEscape(id.GameName), url.PathEscape(id.TagLine))
	if err := c.get(ctx, accountURL, &account); err != nil {
		return nil, err
	}

	var summoner summonerResponse
	summonerURL := fmt.Sprintf("%s/lol/summoner/v4/summoners/by-puuid/%s", c.platformURL, url.PathEscape(account.PUUID))
	if err := c.get(ctx, summonerURL, &summoner); err != nil {
		return nil, err
	}

	var entries []leagueEntryResponse
	entriesURL := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s", c.platformURL, url.PathEscape(account.PUUID))
	if err := c.get(ctx, entriesURL, &entries); err != nil {
		return nil, err
	}

	stats := &domain.RankedStats{
		SummonerLevel: summoner.SummonerLevel,
		ProfileIconID: summoner.ProfileIconID,
		IconURL:       c.iconURL(summoner.ProfileIconID),
	}
	for _, e := range entries {
		q := &domain.QueueStats{
			Tier:         domain.ParseTier(e.Tier),
			Rank:         e.Rank,
			LeaguePoints: e.LeaguePoints,
			Wins:         e.Wins,
			Losses:       e.Losses,
		}
		switch e.QueueType {
		case queueRankedSolo:
			stats.Solo = q
		case queueRankedFlex:
			stats.Flex = q
		}
	}
	return stats, nil
}

func (c *Client) iconURL(iconID int) string {
	if c.dataDragonVersion == "" {
		return ""
	}
	return fmt.Sprintf("%s/cdn/%s/img/profileicon/%d.png", dataDragonBaseURL, c.dataDragonVersion, iconID)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("riot api returned status %d", e.code)
}

// get performs a GET with retries on transport errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-Riot-Token", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode riot response: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrAccountNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return &statusError{code: resp.StatusCode}
		default:
			return backoff.Permanent(&statusError{code: resp.StatusCode})
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
