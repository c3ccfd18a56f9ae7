package errors

import (
	"context"
	"errors"
	"net"

	"github.com/agavecli/agsync/internal/logging"
	"github.com/agavecli/agsync/internal/types"
	"github.com/agavecli/agsync/internal/utils"
)

// ClassifyAPIError converts a files API failure into an AppError with a
// stable error code. Transport failures and timeouts are retryable;
// client errors are not.
func ClassifyAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var statusErr *types.APIStatusError
	if !errors.As(err, &statusErr) {
		code := utils.ErrCodeNetworkError
		retryable := true
		if errors.Is(err, context.DeadlineExceeded) {
			code = utils.ErrCodeTimeout
		} else {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				code = utils.ErrCodeTimeout
			}
		}
		if errors.Is(err, context.Canceled) {
			code = utils.ErrCodeCancelled
			retryable = false
		}
		logger.Error("Non-status error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.NewAppError(utils.NewCLIError(code, err.Error()).
			WithRetryable(retryable).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build())
	}

	var code string
	var retryable bool

	switch statusErr.StatusCode {
	case 400:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
	case 404:
		code = utils.ErrCodeFileNotFound
	case 408:
		code = utils.ErrCodeTimeout
		retryable = true
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	case 507:
		code = utils.ErrCodeQuotaExceeded
	default:
		code = utils.ErrCodeUnknown
		retryable = statusErr.StatusCode >= 500
	}

	logger.Error("API error classified",
		logging.F("httpStatus", statusErr.StatusCode),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", statusErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, statusErr.Message).
		WithHTTPStatus(statusErr.StatusCode).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if statusErr.Status != "" {
		builder.WithAPIReason(statusErr.Status)
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "refresh credentials with 'agsync auth refresh'")
	case utils.ErrCodeFileNotFound:
		if reqCtx.System != "" {
			builder.WithContext("system", reqCtx.System)
		}
		builder.WithContext("suggestedAction", "verify the remote path exists and is accessible")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	case utils.ErrCodeQuotaExceeded:
		builder.WithContext("suggestedAction", "free up space on the storage system")
	}

	return utils.NewAppError(builder.Build())
}
