// Package nexar provides a client for the Nexar (Octopart) supply GraphQL API.
package nexar

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/bom-cli/internal/resilience"
)

// DefaultURL is the production GraphQL endpoint.
const DefaultURL = "https://api.nexar.com/graphql"

var (
	// ErrMissingToken is returned when no API token is configured.
	ErrMissingToken = eris.New("nexar: api token is not set")
	// ErrUnauthorized is returned for 401/403 responses.
	ErrUnauthorized = eris.New("nexar: unauthorized")
	// ErrRateLimited is returned for 429 responses once retries are exhausted.
	ErrRateLimited = eris.New("nexar: rate limited")
	// ErrQuery is returned when the response carries GraphQL errors.
	ErrQuery = eris.New("nexar: query returned errors")
	// ErrMalformed is returned when the response body cannot be decoded.
	ErrMalformed = eris.New("nexar: malformed response")
)

// Client defines the Nexar supply operations.
type Client interface {
	// SearchMPN returns the best match for an MPN, or an empty slice when the
	// directory has no result.
	SearchMPN(ctx context.Context, mpn string) ([]Part, error)
}

// Option configures the Nexar client.
type Option func(*httpClient)

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit paces outgoing requests. A non-positive rate disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker guards requests with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a new Nexar client authenticating with token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: DefaultURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchMPN(ctx context.Context, mpn string) ([]Part, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	mpn = strings.TrimSpace(mpn)
	if mpn == "" {
		return nil, eris.New("nexar: empty mpn")
	}

	payload, err := json.Marshal(graphQLRequest{
		Query:     searchMPNQuery,
		Variables: map[string]any{"mpn": mpn},
	})
	if err != nil {
		return nil, eris.Wrap(err, "nexar: marshal request")
	}

	attempt := func(ctx context.Context) ([]Part, error) {
		if c.breaker != nil {
			return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]Part, error) {
				return c.post(ctx, mpn, payload)
			})
		}
		return c.post(ctx, mpn, payload)
	}

	parts, err := resilience.DoVal(ctx, c.retry, "nexar.search_mpn", attempt)
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func (c *httpClient) post(ctx context.Context, mpn string, payload []byte) ([]Part, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "nexar: rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "nexar: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "nexar: request for %s", mpn)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "nexar: read response body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, eris.Wrapf(ErrUnauthorized, "status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewTransientError(eris.Wrapf(ErrRateLimited, "mpn %s", mpn), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("nexar: status %d: %s", resp.StatusCode, truncate(body, 200)), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("nexar: unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "decode body: %v", err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		joined := strings.Join(msgs, "; ")
		zap.L().Error("nexar: query errors", zap.String("mpn", mpn), zap.String("errors", joined))
		if looksUnauthorized(joined) {
			return nil, eris.Wrap(ErrUnauthorized, joined)
		}
		return nil, eris.Wrap(ErrQuery, joined)
	}
	if result.Data == nil || result.Data.SupSearchMpn == nil {
		return nil, eris.Wrap(ErrMalformed, "missing supSearchMpn")
	}

	parts := make([]Part, 0, len(result.Data.SupSearchMpn.Results))
	for _, r := range result.Data.SupSearchMpn.Results {
		parts = append(parts, r.Part)
	}
	return parts, nil
}

func looksUnauthorized(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid token")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
