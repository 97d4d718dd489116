package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClassifierUnavailable wraps every failure to obtain a verdict from the provider.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrRateLimited marks throttling, quota and billing errors. Always joined with ErrClassifierUnavailable.
	ErrRateLimited = errors.New("classifier rate limited")
	// ErrMalformedOutput marks a reply with no usable text.
	ErrMalformedOutput = errors.New("malformed classifier output")
)

var rateLimitPatterns = []string{
	"rate limit",
	"ratelimit",
	"too many requests",
	"429",
	"quota",
	"throttl",
	"credit balance",
	"billing",
	"resource_exhausted",
	"overloaded",
}

// isRateLimitError checks error text for provider throttling signatures.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapProviderError tags a provider error with the classifier sentinels.
// Errors already tagged pass through unchanged.
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClassifierUnavailable) {
		return err
	}
	if isRateLimitError(err) {
		return fmt.Errorf("%w: %w: %w", ErrClassifierUnavailable, ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
}
