package youtube

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// IsTransientAPIError classifies YouTube Data API errors for retry
// purposes. Rate limiting and server-side failures are transient;
// definitive rejections (bad credentials, forbidden, not found) are not.
func IsTransientAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return true
		}
		if apiErr.Code == http.StatusTooManyRequests {
			return true
		}
		if apiErr.Code == http.StatusForbidden {
			// 403 carries both hard rejections and rate limiting; only the
			// quota reasons are worth retrying.
			for _, item := range apiErr.Errors {
				switch item.Reason {
				case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
					return true
				}
			}
			return false
		}
		// Remaining 4xx are definitive rejections.
		return false
	}

	// The API surfaces some quota errors only as text.
	if strings.Contains(err.Error(), "quotaExceeded") ||
		strings.Contains(err.Error(), "rateLimitExceeded") {
		return true
	}

	// Unknown transport errors are worth another attempt.
	return true
}
