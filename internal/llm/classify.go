package llm

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/corpuskit/corpuskit/internal/errtax"
)

// ClassifyHTTPError maps an HTTP status code and transport error into the
// corpuskit error taxonomy so callers can decide whether to retry.
func ClassifyHTTPError(statusCode int, body string, transportErr error) error {
	if transportErr != nil {
		var netErr net.Error
		if errors.As(transportErr, &netErr) {
			return errtax.New(errtax.ErrCodeNetworkTimeout, "network error calling llm provider: "+transportErr.Error(), transportErr)
		}
		return errtax.New(errtax.ErrCodeNetworkUnavailable, "transport error calling llm provider: "+transportErr.Error(), transportErr)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return errtax.New(errtax.ErrCodeRateLimited, "llm provider rate limited request: "+body, nil)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errtax.New(errtax.ErrCodeAuthRejected, "llm provider rejected credentials: "+body, nil)
	case statusCode >= 500:
		return errtax.New(errtax.ErrCodeServerError, "llm provider server error ("+strconv.Itoa(statusCode)+"): "+body, nil)
	case statusCode >= 400:
		return errtax.New(errtax.ErrCodeConversionFailed, "llm provider rejected request ("+strconv.Itoa(statusCode)+"): "+body, nil)
	default:
		return nil
	}
}
