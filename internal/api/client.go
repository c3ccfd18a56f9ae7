package api

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/agavecli/agsync/internal/errors"
	"github.com/agavecli/agsync/internal/logging"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
	"github.com/google/uuid"
)

// Client wraps the files REST API with retry logic and per-call timeouts.
// The supplied http.Client is expected to carry authentication already
// (an oauth2 transport injecting the bearer token).
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	logger     logging.Logger
}

// NewClient creates a new files API client
func NewClient(httpClient *http.Client, baseURL string, maxRetries, retryDelayMs, timeoutSeconds int, logger logging.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = utils.DefaultRequestTimeoutSeconds
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		timeout:    time.Duration(timeoutSeconds) * time.Second,
		logger:     logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(profile string, system string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Profile:     profile,
		System:      system,
		RequestType: requestType,
		TraceID:     uuid.New().String(),
	}
}

// BaseURL returns the service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MaxRetries returns the configured retry budget
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// RetryDelay returns the configured base backoff delay
func (c *Client) RetryDelay() time.Duration {
	return c.retryDelay
}

// Logger returns the client logger
func (c *Client) Logger() logging.Logger {
	return c.logger
}

// ExecuteWithRetry executes an API call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Info("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("profile", reqCtx.Profile),
		logging.F("system", reqCtx.System),
	)

	start := time.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying API operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", client.maxRetries),
			)
		}

		callCtx, cancel := context.WithTimeout(ctx, client.timeout)
		result, lastErr = fn(callCtx)
		cancel()
		if lastErr == nil {
			duration := time.Since(start)
			logger.Info("API operation completed",
				logging.F("duration_ms", duration.Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if ctx.Err() != nil {
			return result, client.classify(lastErr, reqCtx)
		}

		if !IsRetryable(lastErr) {
			duration := time.Since(start)
			logger.Error("API operation failed (non-retryable)",
				logging.F("duration_ms", duration.Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, client.classify(lastErr, reqCtx)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	duration := time.Since(start)
	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", duration.Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, client.classify(lastErr, reqCtx)
}

// IsRetryable checks if an error is retryable: service-side failures,
// throttling, and transport-level transients
func IsRetryable(err error) bool {
	var statusErr *types.APIStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 408, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Backoff returns the delay before the next retry attempt. Callers that
// run their own retry loops share the same backoff policy as
// ExecuteWithRetry.
func Backoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	return calculateBackoff(baseDelay, attempt, err)
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	// Honor Retry-After when the service sends one
	var statusErr *types.APIStatusError
	if errors.As(err, &statusErr) {
		if retryAfter := statusErr.RetryAfter(); retryAfter != "" {
			if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > time.Duration(utils.MaxRetryDelayMs)*time.Millisecond {
					return time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
				}
				return delay
			}
		}
	}

	// Exponential backoff: base * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))

	if delay > time.Duration(utils.MaxRetryDelayMs)*time.Millisecond {
		delay = time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	}

	// Add jitter (±25% of delay)
	jitterRange := delay / 4
	if jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay = delay + jitter
	}

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// Classify maps a raw transport or status error onto a stable error
// code. Exposed for callers that run their own retry loops around Fetch.
func (c *Client) Classify(err error, reqCtx *types.RequestContext) error {
	return c.classify(err, reqCtx)
}

func (c *Client) classify(err error, reqCtx *types.RequestContext) error {
	return apierrors.ClassifyAPIError("files", err, reqCtx, c.logger)
}
