// Package ghapi implements the base GitHub search client: one typed
// search call becomes exactly one HTTP request with auth headers, and
// the JSON response (or error body) is parsed into the package's
// result and error types. No retries and no state across calls; rate
// limiting, caching, batching and circuit breaking are layered on top
// by their own packages, each wrapping the Searcher interface.
package ghapi

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

	"github.com/google/uuid"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/log"
)

// apiVersion pins the GitHub REST API version header.
const apiVersion = "2022-11-28"

// DefaultBaseURL is the public GitHub API root.
const DefaultBaseURL = "https://api.github.com"

// DefaultTimeout bounds each network call when no timeout is
// configured.
const DefaultTimeout = 30 * time.Second

// Searcher is the contract every layer of the client stack satisfies.
// Higher layers wrap a Searcher and are substitutable for it.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Result, error)
}

// Config holds construction options for the base Client.
type Config struct {
	// BaseURL defaults to the public API. Trailing slashes are
	// stripped.
	BaseURL string

	// Token authenticates requests. Empty means unauthenticated
	// (60 requests/hour core, 10/minute search).
	Token string

	// Timeout bounds each network call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient defaults to http.DefaultClient. Tests inject a
	// client with a stub RoundTripper.
	HTTPClient *http.Client

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// Client is the base search client.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	clock      clock.Clock
	logger     *log.Logger
}

// NewClient creates a base client from config, applying defaults for
// any zero fields.
func NewClient(config Config) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		timeout:    timeout,
		httpClient: httpClient,
		clock:      clk,
		logger:     log.ForComponent("ghapi"),
	}
}

// Search validates the request, issues one HTTP call with the client's
// configured token and parses the response.
func (c *Client) Search(ctx context.Context, req Request) (*Result, error) {
	return c.SearchWithToken(ctx, req, c.token)
}

// SearchWithToken is Search with an explicit auth token, used by the
// rate-limiting layer to rotate tokens per request. An empty token
// sends the request unauthenticated.
func (c *Client) SearchWithToken(ctx context.Context, req Request, token string) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestURL := c.baseURL + req.Path() + "?" + req.Values().Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ghapi: creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("X-GitHub-Api-Version", apiVersion)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	// Correlates this request across debug logs and server-side audit
	// trails.
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Debugf("GET %s request_id=%s", requestURL, requestID)

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(requestURL, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &NetworkError{URL: requestURL, Err: err}
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, c.parseErrorResponse(response.StatusCode, response.Header, body)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &APIError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("decoding response body: %v", err),
			Body:       string(body),
		}
	}
	result.Header = response.Header

	return &result, nil
}

// classifyTransportError maps an http.Client error onto the timeout or
// network error types.
func classifyTransportError(requestURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: requestURL, Err: err}
	}
	// net/http wraps deadline errors in *url.Error; check the Timeout
	// method as well.
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return &TimeoutError{URL: requestURL, Err: err}
	}
	return &NetworkError{URL: requestURL, Err: err}
}

// parseErrorResponse maps a non-2xx response onto the error taxonomy.
func (c *Client) parseErrorResponse(statusCode int, header http.Header, body []byte) error {
	var wire struct {
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	}
	message := string(body)
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		message = wire.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		return &AuthError{Message: message}
	case statusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Message: message, Fields: wire.Errors}
	case isRateLimitResponse(statusCode, header, message):
		limit, remaining, resetAt := RateLimitFromHeader(header, c.clock.Now())
		return &RateLimitError{
			Limit:     limit,
			Remaining: remaining,
			ResetAt:   resetAt,
			Message:   message,
		}
	default:
		return &APIError{StatusCode: statusCode, Message: message, Body: string(body)}
	}
}

// isRateLimitResponse recognizes primary (403 with exhausted quota
// headers) and secondary (429) rate-limit responses. A 403 with quota
// left is a permission error, not a rate limit.
func isRateLimitResponse(statusCode int, header http.Header, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode != http.StatusForbidden {
		return false
	}
	if header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

// RateLimitFromHeader extracts limit, remaining and reset time from
// X-RateLimit-* response headers. Missing or malformed headers yield
// zero values and a reset of now.
func RateLimitFromHeader(header http.Header, now time.Time) (limit, remaining int, resetAt time.Time) {
	resetAt = now
	if header == nil {
		return
	}
	if parsed, err := strconv.Atoi(header.Get("X-RateLimit-Limit")); err == nil {
		limit = parsed
	}
	if parsed, err := strconv.Atoi(header.Get("X-RateLimit-Remaining")); err == nil {
		remaining = parsed
	}
	if parsed, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		resetAt = time.Unix(parsed, 0)
	}
	return
}
