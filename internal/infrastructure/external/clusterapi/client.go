// Package clusterapi is the HTTP client of the external student clustering
// service. It implements cluster.Fetcher.
package clusterapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alem-hub/attainment-engine/internal/domain/cluster"
	"github.com/alem-hub/attainment-engine/pkg/circuitbreaker"
	"github.com/alem-hub/attainment-engine/pkg/logger"
	"github.com/alem-hub/attainment-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// endpointPath is appended to the base URL unless already present.
const endpointPath = "/api/cluster"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// ClientConfig contains configuration for the clustering client.
type ClientConfig struct {
	// BaseURL is the service root, e.g. http://cluster:8000. A URL that
	// already ends in /api/cluster is used as is.
	BaseURL string

	// Timeout bounds one HTTP attempt. The caller's context bounds the whole call.
	Timeout time.Duration

	MaxAttempts int
	RetryDelay  time.Duration

	BreakerFailures int
	BreakerTimeout  time.Duration

	// HTTPClient overrides the default client, mainly in tests.
	HTTPClient *http.Client

	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		MaxAttempts:     2,
		RetryDelay:      250 * time.Millisecond,
		BreakerFailures: 3,
		BreakerTimeout:  60 * time.Second,
	}
}

// Endpoint returns the full clustering URL.
func (c ClientConfig) Endpoint() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if strings.HasSuffix(base, endpointPath) {
		return base
	}
	return base + endpointPath
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptyResponse is returned when the service clusters nobody.
	ErrEmptyResponse = errors.New("clusterapi: empty cluster response")

	// ErrInvalidResponse is returned when the body is not a JSON array.
	ErrInvalidResponse = errors.New("clusterapi: response is not an array")
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("clusterapi: status %d", e.StatusCode)
	}
	return fmt.Sprintf("clusterapi: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client calls the clustering service through a circuit breaker with retries.
type Client struct {
	config     ClientConfig
	endpoint   string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	log        *logger.Logger
}

var _ cluster.Fetcher = (*Client)(nil)

// NewClient creates a new clustering client.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("clusterapi"))

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		endpoint:   config.Endpoint(),
		httpClient: httpClient,
		breaker: circuitbreaker.ClusterAPIBreaker(config.BreakerFailures, config.BreakerTimeout,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			},
			circuitbreaker.WithIsFailure(countsAsOutage)),
		retrier: retry.ClusterAPIRetrier(config.MaxAttempts, config.RetryDelay),
		log:     log,
	}
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Fetch implements cluster.Fetcher.
func (c *Client) Fetch(ctx context.Context, students []cluster.Features) (*cluster.FetchResult, error) {
	body, err := json.Marshal(toDTOs(students))
	if err != nil {
		return nil, fmt.Errorf("clusterapi: marshal request: %w", err)
	}

	var result *cluster.FetchResult
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (*cluster.FetchResult, error) {
			return c.post(ctx, body)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// countsAsOutage keeps client errors (4xx other than 429) from opening
// the breaker.
func countsAsOutage(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func (c *Client) post(ctx context.Context, body []byte) (*cluster.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("clusterapi: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(fmt.Errorf("clusterapi: %w", err))
		}
		return nil, retry.Retryable(fmt.Errorf("clusterapi: http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, retry.Retryable(fmt.Errorf("clusterapi: read response: %w", err))
	}

	c.log.Debug("cluster api response",
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 256)}
		if statusErr.Temporary() {
			return nil, retry.Retryable(statusErr)
		}
		return nil, retry.Permanent(statusErr)
	}

	result, err := decodeClusters(respBody)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return result, nil
}

// decodeClusters parses the response array.
func decodeClusters(body []byte) (*cluster.FetchResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidResponse
	}

	var items []ClusterDTO
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyResponse
	}

	result := &cluster.FetchResult{Assignments: make([]cluster.Assignment, 0, len(items))}
	for _, item := range items {
		a, ok := item.toAssignment()
		if !ok {
			continue
		}
		result.Assignments = append(result.Assignments, a)
		if result.SilhouetteScore == nil && item.SilhouetteScore.Value != nil {
			s := *item.SilhouetteScore.Value
			result.SilhouetteScore = &s
		}
	}
	if len(result.Assignments) == 0 {
		return nil, ErrEmptyResponse
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
