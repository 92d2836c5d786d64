package resilience

import (
	"context"
	"errors"
	"net/http"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/openai/openai-go"
)

// StatusCoder is implemented by errors that carry the HTTP status the
// collaborator answered with.
type StatusCoder interface {
	HTTPStatus() int
}

// Retryable reports whether err is worth another attempt: timeouts, rate
// limits, 5xx answers and transport failures. Requests the collaborator
// rejected on their merits (bad input, auth, context length) are not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, anyllmlib.ErrRateLimit):
		return true
	case errors.Is(err, anyllmlib.ErrAuthentication), errors.Is(err, anyllmlib.ErrContextLength):
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return retryableStatus(sc.HTTPStatus())
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
