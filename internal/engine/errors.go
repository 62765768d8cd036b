package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/hrassist/internal/ollama"
)

// IsTransient reports whether err looks like a failure that may succeed on
// retry: connection errors, network timeouts, 429 and 5xx responses.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *ollama.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
