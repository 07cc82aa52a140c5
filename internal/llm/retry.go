package llm

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls the retry loop around completion calls.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt (default: 3)
	InitialInterval time.Duration // first backoff delay (default: 500ms)
	MaxInterval     time.Duration // backoff ceiling (default: 10s)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns are substrings that indicate a transient provider
// failure worth retrying. Provider SDKs flatten HTTP status into opaque
// error strings, so string matching is the only classification available
// at this boundary.
var retryablePatterns = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"quota",
	"overloaded",
	"unavailable",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"EOF",
	"broken pipe",
	"temporarily",
	"try again",
	"internal error",
}

// fatalPatterns mark errors that retrying can never fix. Checked before
// retryablePatterns so "invalid api key (401)" is not retried for its
// digits.
var fatalPatterns = []string{
	"400",
	"401",
	"403",
	"404",
	"invalid api key",
	"api key not valid",
	"permission denied",
	"not found",
	"unsupported",
	"invalid argument",
}

// retryableError reports whether err is worth another attempt.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if containsAny(msg, fatalPatterns) {
		return false
	}
	return containsAny(msg, retryablePatterns)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// backoffDelay computes the delay before retry attempt n (0-based) with
// equal jitter, so concurrent callers hitting the same outage do not
// retry in lockstep.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.InitialInterval
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxInterval {
			delay = cfg.MaxInterval
			break
		}
	}
	half := delay / 2
	return half + rand.N(half+1)
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
