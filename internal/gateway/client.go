package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/ingestion"
)

const maxErrorBody = 512

type ClientConfig struct {
	Provider  domain.Provider
	BaseURL   string
	APIKey    string
	// Format overrides the provider's default report layout.
	Format    string
	Timeout   time.Duration
	// RateLimit caps requests per second to the provider API; zero disables it.
	RateLimit float64
	Burst     int
}

// Client fetches settlement reports from a provider's reporting API and
// decodes them with the matching ingestion parser.
type Client struct {
	provider   domain.Provider
	format     ingestion.Format
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewClient(cfg ClientConfig, log zerolog.Logger) (*Client, error) {
	if !cfg.Provider.Valid() {
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", cfg.Provider)
	}
	format, err := ingestion.ResolveFormat(cfg.Provider, cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	return &Client{
		provider: cfg.Provider,
		format:   format,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		log:     log.With().Str("component", "gateway").Str("provider", string(cfg.Provider)).Logger(),
	}, nil
}

func (c *Client) Provider() domain.Provider { return c.provider }

// FetchTransactions downloads the provider's settlement records for
// [start, end]. Records outside the window are dropped.
func (c *Client) FetchTransactions(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.TransactionRecord, error) {
	if provider != c.provider {
		return nil, fmt.Errorf("client for %s cannot fetch %s", c.provider, provider)
	}

	q := url.Values{}
	q.Set("from", start.UTC().Format(time.RFC3339))
	q.Set("to", end.UTC().Format(time.RFC3339))

	body, err := c.doRequest(ctx, "/settlements?"+q.Encode())
	if err != nil {
		return nil, err
	}

	records, _, err := ingestion.Parse(c.format, body, c.provider)
	if err != nil {
		return nil, fmt.Errorf("decode %s report: %w", c.format, err)
	}

	out := records[:0]
	for _, r := range records {
		if r.CreatedAt.Before(start) || r.CreatedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.baseURL + path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json, text/csv")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		c.log.Error().Err(err).
			Str("url", endpoint).
			Int64("duration_ms", duration).
			Msg("settlement request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("url", endpoint).
			Int64("duration_ms", duration).
			Str("body", snippet).
			Msg("settlement API error response")
		return nil, fmt.Errorf("%s settlement API: status=%d body=%s", c.provider, resp.StatusCode, snippet)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("url", endpoint).
		Int64("duration_ms", duration).
		Int("bytes", len(body)).
		Msg("settlement report fetched")

	return body, nil
}
