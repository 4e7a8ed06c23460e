package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/itemcollector/internal/session"
	"golang.org/x/time/rate"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; every request goes to the same host
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultTimeout bounds a single gateway request.
const DefaultTimeout = 10 * time.Second

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// SessionState is one entry of the gateway session list.
type SessionState struct {
	Name      string `json:"name"`
	SteamID   uint64 `json:"steam_id"`
	Connected bool   `json:"connected"`
	CanIdle   bool   `json:"can_idle"`
	Paused    bool   `json:"paused"`
	Farming   bool   `json:"farming"`
}

type consumePlaytimeRequest struct {
	AppID     uint32 `json:"appid"`
	ItemDefID uint32 `json:"itemdefid"`
}

// ClientConfig configures a [Client].
type ClientConfig struct {
	// URL is the gateway base URL, for example http://localhost:9000.
	URL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds each request. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// RequestsPerSecond throttles outbound requests. Zero or less disables
	// throttling.
	RequestsPerSecond float64
}

// Client is an HTTP client for the session gateway.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to 1MB to prevent memory issues. All requests
// share one rate limiter.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a gateway [Client].
//
// Returns an error if the base URL is not an absolute http(s) URL.
func NewClient(cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url %q: scheme must be http or https", cfg.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q: missing host", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}, nil
}

// ListSessions returns every session the gateway knows about.
func (c *Client) ListSessions(ctx context.Context) ([]SessionState, error) {
	var states []SessionState
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &states); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return states, nil
}

// SendGamesPlayed declares the running applications of a session.
func (c *Client) SendGamesPlayed(ctx context.Context, name string, msg session.GamesPlayed) error {
	if msg.AppIDs == nil {
		msg.AppIDs = []uint32{}
	}
	if err := c.do(ctx, http.MethodPost, sessionPath(name, "games-played"), msg, nil); err != nil {
		return fmt.Errorf("failed to send games played: %w", err)
	}
	return nil
}

// ConsumePlaytime spends playtime of a session for an item definition.
func (c *Client) ConsumePlaytime(ctx context.Context, name string, appID, itemDefID uint32) (session.ConsumePlaytimeResponse, error) {
	var resp session.ConsumePlaytimeResponse
	body := consumePlaytimeRequest{AppID: appID, ItemDefID: itemDefID}
	if err := c.do(ctx, http.MethodPost, sessionPath(name, "inventory/consume-playtime"), body, &resp); err != nil {
		return session.ConsumePlaytimeResponse{}, fmt.Errorf("failed to consume playtime: %w", err)
	}
	return resp, nil
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func sessionPath(name, action string) string {
	return "/sessions/" + url.PathEscape(name) + "/" + action
}

// do performs one request, encoding in as the JSON body and decoding the
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 answer from the gateway.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
