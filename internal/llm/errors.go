package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// isRateLimited reports whether the provider rejected the call for
// quota reasons. These errors sideline the credential rather than
// consuming a retry attempt.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429
	}
	return false
}

// isRetryable reports whether the error is transient. Provider-side
// failures (5xx) and transport failures retry; malformed requests and
// content rejections (4xx) do not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 && reqErr.HTTPStatusCode != 429 {
			return false
		}
		return true
	}
	// Unknown errors are assumed to be transport-level.
	return true
}
