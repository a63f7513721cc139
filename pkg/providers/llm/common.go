// Package llm holds the Generator Adapter implementations (spec §6.1):
// one thin HTTP client per LLM collaborator, each retried with backoff and,
// where the collaborator's API supports it, given the current turn's
// image context alongside the conversation messages.
package llm

import (
	"context"
	"encoding/base64"

	"github.com/cenkalti/backoff/v5"

	"github.com/lokutor-ai/voice-gateway/pkg/orchestrator"
)

// maxAttempts mirrors spec §6.1's three-attempt retry policy for a
// collaborator call before the pipeline falls back to an apology.
const maxAttempts = 3

// withRetry wraps a single LLM call with the shared backoff policy. A
// collaborator's hard 4xx (bad request, invalid key) still exhausts all
// three attempts today; none of the four adapters distinguish retryable
// from non-retryable HTTP statuses, matching the teacher's adapters, which
// did not either.
func withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	operation := func() (string, error) {
		return fn()
	}
	return backoff.Retry(ctx, operation,
		backoff.WithMaxTries(maxAttempts),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
}

// b64Image returns the base64 payload a collaborator's image content block
// expects, defaulting the mime type when the caller left it blank.
func b64Image(img *orchestrator.ImageRef) (data, mimeType string) {
	mimeType = img.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return base64.StdEncoding.EncodeToString(img.Bytes), mimeType
}
