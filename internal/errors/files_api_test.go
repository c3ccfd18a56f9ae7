package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/agavecli/agsync/internal/logging"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

func classify(t *testing.T, err error) types.CLIError {
	t.Helper()
	reqCtx := &types.RequestContext{
		System:      "test-storage",
		RequestType: types.RequestTypeList,
		TraceID:     "trace-1",
	}
	classified := ClassifyAPIError("files", err, reqCtx, logging.NewNoOpLogger())
	var appErr *utils.AppError
	if !errors.As(classified, &appErr) {
		t.Fatalf("classified error is %T, want *utils.AppError", classified)
	}
	return appErr.CLIError
}

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantCode      string
		wantRetryable bool
	}{
		{"bad request", 400, utils.ErrCodeInvalidArgument, false},
		{"unauthorized", 401, utils.ErrCodeAuthExpired, false},
		{"forbidden", 403, utils.ErrCodePermissionDenied, false},
		{"not found", 404, utils.ErrCodeFileNotFound, false},
		{"request timeout", 408, utils.ErrCodeTimeout, true},
		{"rate limited", 429, utils.ErrCodeRateLimited, true},
		{"internal error", 500, utils.ErrCodeNetworkError, true},
		{"bad gateway", 502, utils.ErrCodeNetworkError, true},
		{"unavailable", 503, utils.ErrCodeNetworkError, true},
		{"gateway timeout", 504, utils.ErrCodeNetworkError, true},
		{"insufficient storage", 507, utils.ErrCodeQuotaExceeded, false},
		{"teapot", 418, utils.ErrCodeUnknown, false},
		{"unmapped 5xx", 599, utils.ErrCodeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cliErr := classify(t, &types.APIStatusError{
				StatusCode: tt.status,
				Message:    "boom",
			})
			if cliErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", cliErr.Code, tt.wantCode)
			}
			if cliErr.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", cliErr.Retryable, tt.wantRetryable)
			}
			if cliErr.HTTPStatus != tt.status {
				t.Errorf("httpStatus = %d, want %d", cliErr.HTTPStatus, tt.status)
			}
		})
	}
}

func TestClassifyTransportErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      string
		wantRetryable bool
	}{
		{"generic transport", errors.New("connection refused"), utils.ErrCodeNetworkError, true},
		{"deadline exceeded", context.DeadlineExceeded, utils.ErrCodeTimeout, true},
		{"cancelled", context.Canceled, utils.ErrCodeCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cliErr := classify(t, tt.err)
			if cliErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", cliErr.Code, tt.wantCode)
			}
			if cliErr.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", cliErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestClassifyCarriesContext(t *testing.T) {
	cliErr := classify(t, &types.APIStatusError{
		StatusCode: 404,
		Status:     "error",
		Message:    "File/folder does not exist",
	})

	if cliErr.Context["traceId"] != "trace-1" {
		t.Errorf("traceId = %v", cliErr.Context["traceId"])
	}
	if cliErr.Context["service"] != "files" {
		t.Errorf("service = %v", cliErr.Context["service"])
	}
	if cliErr.Context["system"] != "test-storage" {
		t.Errorf("system = %v", cliErr.Context["system"])
	}
	if cliErr.APIReason != "error" {
		t.Errorf("apiReason = %q", cliErr.APIReason)
	}
	if cliErr.Context["suggestedAction"] == nil {
		t.Error("suggested action missing for not-found error")
	}
}
