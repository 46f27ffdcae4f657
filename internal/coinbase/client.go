package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/shohag/coinhook/internal/config"
	"github.com/shohag/coinhook/internal/models"
)

const (
	userAgent       = "coinhook/1.0"
	maxResponseBody = 1 << 20
	maxErrorBody    = 4 << 10
)

var ErrMissingAPIKey = errors.New("coinbase api key is not configured")

// APIError is returned for non-2xx responses. Body carries the provider's
// error payload as received.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("coinbase api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("coinbase api error: status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	hasKey  bool
	client  *http.Client
	log     zerolog.Logger
}

// NewClient builds a client that authenticates every request with the API key
// as a bearer token.
func NewClient(cfg config.CoinbaseConfig, log zerolog.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout}, log)
}

// NewClientWithHTTP is NewClient over a caller-supplied base client whose
// transport is wrapped with bearer authentication.
func NewClientWithHTTP(cfg config.CoinbaseConfig, base *http.Client, log zerolog.Logger) *Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})

	hc := oauth2.NewClient(ctx, src)
	hc.Timeout = base.Timeout
	if hc.Timeout == 0 {
		hc.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hasKey:  cfg.APIKey != "",
		client:  hc,
		log:     log,
	}
}

// GetAccounts performs a single GET /accounts. There is no retry.
func (c *Client) GetAccounts(ctx context.Context) (*models.AccountsResponse, error) {
	body, err := c.get(ctx, "/accounts")
	if err != nil {
		c.log.Error().Err(err).Msg("error fetching coinbase accounts")
		return nil, err
	}

	var out models.AccountsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode accounts response: %w", err)
	}
	out.Raw = body

	c.log.Info().
		Int("accounts", len(out.Data)).
		RawJSON("response", body).
		Msg("coinbase accounts fetched")

	return &out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if !c.hasKey {
		return nil, ErrMissingAPIKey
	}
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", http.MethodGet).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("coinbase request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
