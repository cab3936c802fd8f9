// Package backend is the HTTP client for the ticket-analysis backend. It only
// moves bytes and normalizes failures; conversation and lookup state live in
// their own packages.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the local development address of the backend.
const DefaultBaseURL = "http://localhost:3001"

const maxResponseBytes = 8 << 20

// Client talks to the backend's /chat and /summarize endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	userAgent  string
}

type ClientOption func(*Client) error

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = hc
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) error {
		c.userAgent = strings.TrimSpace(ua)
		return nil
	}
}

// NewClient validates baseURL and returns a client. Timeouts are the caller's
// job: every call takes a context and the components wrap it with a deadline.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid backend base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid backend base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("invalid backend base url %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: http.DefaultClient,
		logger:     log.Logger.With().Str("component", "backend").Logger(),
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "failed to apply client option")
		}
	}
	return c, nil
}

// BaseURL returns the normalized base URL without a trailing slash.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Chat sends one user message. Any non-2xx status or body that is not a JSON
// object is a *TransportError.
func (c *Client) Chat(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	endpoint := c.baseURL + "/chat"
	body, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal chat request")
	}

	status, respBody, err := c.do(ctx, "chat", http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &TransportError{
			Op:         "chat",
			URL:        endpoint,
			Kind:       KindStatus,
			StatusCode: status,
			Err:        errors.Errorf("unexpected response: %s", truncate(respBody, 200)),
		}
	}

	var out ChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &TransportError{Op: "chat", URL: endpoint, Kind: KindDecode, StatusCode: status, Err: err}
	}
	return &out, nil
}

// Summarize fetches the summary for identifier, which is sent URL-escaped.
//
// A JSON body is returned as-is whatever the status, since the backend reports
// "not found" as success=false, sometimes alongside a 404. Only a body that
// does not decode is a failure, reported as KindStatus for non-2xx statuses and
// KindDecode otherwise.
func (c *Client) Summarize(ctx context.Context, identifier string) (*SummaryResponse, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("summarize: identifier is empty")
	}
	endpoint := c.baseURL + "/summarize/" + url.PathEscape(identifier)

	status, respBody, err := c.do(ctx, "summarize", http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var out SummaryResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		kind := KindDecode
		if status < 200 || status > 299 {
			kind = KindStatus
		}
		return nil, &TransportError{Op: "summarize", URL: endpoint, Kind: kind, StatusCode: status, Err: err}
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "failed to create %s request", op)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		te := classify(ctx, op, endpoint, err)
		c.logger.Debug().Err(err).Str("op", op).Str("kind", string(te.Kind)).
			Dur("elapsed", time.Since(started)).Msg("backend request failed")
		return 0, nil, te
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, classify(ctx, op, endpoint, err)
	}
	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("elapsed", time.Since(started)).
		Msg("backend request completed")
	return resp.StatusCode, respBody, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
