package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	errorBodyLimit   = 1024
	maxResponseBytes = 8 << 20

	statusSuccess = "success"
)

type timingConfig struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMaxElapsed time.Duration
}

var defaultTiming = timingConfig{
	timeout:           10 * time.Second,
	rateInterval:      200 * time.Millisecond,
	rateBurst:         1,
	backoffInitial:    500 * time.Millisecond,
	backoffMax:        5 * time.Second,
	backoffMaxElapsed: 15 * time.Second,
}

// client queries the metrics backend's HTTP API with retries for transient
// failures and a rate limit shared across concurrent queries.
type client struct {
	logger  zerolog.Logger
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	timing  timingConfig
}

func newClient(logger zerolog.Logger, baseURL string, timing timingConfig) *client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 0
	httpClient.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	httpClient.Logger = nil
	httpClient.HTTPClient = &http.Client{Timeout: timing.timeout}

	return &client{
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(timing.rateInterval), timing.rateBurst),
		timing:  timing,
	}
}

// Query runs one instant query and returns the decoded result. Transient
// failures (network errors, 5xx, 429) are retried with exponential backoff
// until the backoff budget is spent.
func (c *client) Query(ctx context.Context, promql string) (QueryResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return QueryResult{}, err
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = c.timing.backoffInitial
	backoffCfg.MaxInterval = c.timing.backoffMax
	backoffCfg.MaxElapsedTime = c.timing.backoffMaxElapsed
	backoffCfg.Reset()

	for {
		result, err := c.queryOnce(ctx, promql)
		if err == nil {
			return result, nil
		}

		var retryAfter *retryAfterError
		if errors.As(err, &retryAfter) {
			if !sleepWithContext(ctx, retryAfter.Duration) {
				return QueryResult{}, ctx.Err()
			}
			continue
		}

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return QueryResult{}, err
		}
		wait := backoffCfg.NextBackOff()
		if wait == backoff.Stop {
			return QueryResult{}, err
		}
		if !sleepWithContext(ctx, wait) {
			return QueryResult{}, ctx.Err()
		}
	}
}

func (c *client) queryOnce(ctx context.Context, promql string) (QueryResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timing.timeout)
	defer cancel()

	endpoint := c.baseURL + "/api/v1/query?query=" + url.QueryEscape(promql)
	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("build query request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return QueryResult{}, &retryableError{err: fmt.Errorf("query request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var result QueryResult
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
			return QueryResult{}, fmt.Errorf("decode query response: %w", err)
		}
		if result.Status != statusSuccess {
			return QueryResult{}, fmt.Errorf("query returned status %q", result.Status)
		}
		return result, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	bodyText := strings.TrimSpace(string(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return QueryResult{}, &retryAfterError{
				Duration: wait,
				err:      fmt.Errorf("query rate limited: %s", resp.Status),
			}
		}
		return QueryResult{}, &retryableError{err: fmt.Errorf("query rate limited: %s", resp.Status)}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return QueryResult{}, &retryableError{err: fmt.Errorf("query server error: %s", resp.Status)}
	}
	if bodyText != "" {
		return QueryResult{}, fmt.Errorf("query failed: %s (%s)", resp.Status, bodyText)
	}
	return QueryResult{}, fmt.Errorf("query failed: %s", resp.Status)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		wait := time.Until(when)
		if wait <= 0 {
			return 0, false
		}
		return wait, true
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

type retryAfterError struct {
	Duration time.Duration
	err      error
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("rate limited; retry after %s", e.Duration)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}
