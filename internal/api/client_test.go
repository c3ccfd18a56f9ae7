package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/agavecli/agsync/internal/logging"
	agtest "github.com/agavecli/agsync/internal/testing"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "connection reset" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func statusErr(code int) error {
	return &types.APIStatusError{StatusCode: code}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service unavailable", statusErr(503), true},
		{"bad gateway", statusErr(502), true},
		{"internal error", statusErr(500), true},
		{"gateway timeout", statusErr(504), true},
		{"request timeout", statusErr(408), true},
		{"rate limited", statusErr(429), true},
		{"not found", statusErr(404), false},
		{"forbidden", statusErr(403), false},
		{"bad request", statusErr(400), false},
		{"unauthorized", statusErr(401), false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"transport error", &fakeNetError{}, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	prevMax := time.Duration(0)
	for attempt := 0; attempt < 4; attempt++ {
		expected := base * (1 << attempt)
		// Jitter is ±25% of the exponential delay
		lo, hi := expected*3/4, expected*5/4
		got := Backoff(base, attempt, errors.New("transient"))
		if got < lo || got > hi {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
		}
		if hi <= prevMax {
			t.Errorf("attempt %d: backoff window not growing", attempt)
		}
		prevMax = hi
	}
}

func TestBackoffIsCapped(t *testing.T) {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	// High attempt count would overflow the cap many times over
	got := Backoff(time.Second, 20, errors.New("transient"))
	if got > maxDelay+maxDelay/4 {
		t.Errorf("delay %v exceeds cap %v with jitter margin", got, maxDelay)
	}
}

func TestBackoffHonorsRetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "2")
	err := &types.APIStatusError{StatusCode: 429, Header: header}

	got := Backoff(100*time.Millisecond, 0, err)
	if got != 2*time.Second {
		t.Errorf("delay = %v, want 2s from Retry-After", got)
	}
}

func TestBackoffCapsRetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "3600")
	err := &types.APIStatusError{StatusCode: 429, Header: header}

	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond
	if got := Backoff(100*time.Millisecond, 0, err); got != maxDelay {
		t.Errorf("delay = %v, want cap %v", got, maxDelay)
	}
}

func TestExecuteWithRetryRecoversFromTransientFailure(t *testing.T) {
	client := NewClient(nil, "http://unused", 3, 10, 10, logging.NewNoOpLogger())

	calls := 0
	result, err := ExecuteWithRetry(agtest.TestContext(), client, agtest.TestRequestContext(),
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", statusErr(503)
			}
			return "ok", nil
		})
	agtest.AssertNoError(t, err, "retryable operation")
	if result != "ok" {
		t.Errorf("result = %q", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetryStopsOnClientError(t *testing.T) {
	client := NewClient(nil, "http://unused", 3, 10, 10, logging.NewNoOpLogger())

	calls := 0
	_, err := ExecuteWithRetry(agtest.TestContext(), client, agtest.TestRequestContext(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", statusErr(404)
		})
	agtest.AssertError(t, err, "non-retryable operation")
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on 404)", calls)
	}
	if code := utils.ErrorCode(err); code != utils.ErrCodeFileNotFound {
		t.Errorf("error code = %s, want %s", code, utils.ErrCodeFileNotFound)
	}
}

func TestExecuteWithRetryExhaustsBudget(t *testing.T) {
	client := NewClient(nil, "http://unused", 2, 10, 10, logging.NewNoOpLogger())

	calls := 0
	_, err := ExecuteWithRetry(agtest.TestContext(), client, agtest.TestRequestContext(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", statusErr(503)
		})
	agtest.AssertError(t, err, "budget exhaustion")
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
	if code := utils.ErrorCode(err); code != utils.ErrCodeNetworkError {
		t.Errorf("error code = %s, want %s", code, utils.ErrCodeNetworkError)
	}
}

func TestExecuteWithRetryStopsOnCancelledContext(t *testing.T) {
	client := NewClient(nil, "http://unused", 5, 10, 10, logging.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := ExecuteWithRetry(ctx, client, agtest.TestRequestContext(),
		func(ctx context.Context) (string, error) {
			calls++
			cancel()
			return "", statusErr(503)
		})
	agtest.AssertError(t, err, "cancelled operation")
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries after cancel)", calls)
	}
}

func TestNewRequestContextAssignsTraceID(t *testing.T) {
	a := NewRequestContext("default", "storage", types.RequestTypeList)
	b := NewRequestContext("default", "storage", types.RequestTypeList)

	if a.TraceID == "" || b.TraceID == "" {
		t.Fatal("trace ID missing")
	}
	if a.TraceID == b.TraceID {
		t.Error("trace IDs not unique")
	}
	if a.System != "storage" || a.RequestType != types.RequestTypeList {
		t.Errorf("context = %+v", a)
	}
}
