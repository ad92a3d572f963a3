package retry

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/ytwarehouse/pkg/metrics"
)

// Policy retries a unit of remote work when it fails with a transient status code.
//
// After the n-th failed call the caller sleeps Base^n seconds, so the default
// policy waits 1.6s, 2.56s, 4.1s and 6.55s before giving up on the fifth call.
type Policy struct {
	MaxAttempts int
	Base        float64
	Retryable   map[int]struct{}
	// Jitter spreads each delay by +/- this fraction. Zero keeps delays exact.
	Jitter float64

	// Classify maps an error to a status code; defaults to StatusCode.
	Classify func(error) (int, bool)
	// Sleep waits between attempts; defaults to a context-aware timer.
	Sleep  func(context.Context, time.Duration) error
	Logger *zap.Logger
}

// DefaultRetryable is the set of status codes retried by DefaultPolicy.
var DefaultRetryable = []int{403, 500, 503, 504}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Base:        1.6,
		Retryable:   Codes(DefaultRetryable...),
	}
}

// Codes builds a retryable set.
func Codes(codes ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

// Delay is the wait after the given number of failed calls, before jitter.
func (p Policy) Delay(attempt int) time.Duration {
	secs := math.Pow(p.Base, float64(attempt))
	return time.Duration(secs * float64(time.Second))
}

func (p Policy) retryable(code int) bool {
	_, ok := p.Retryable[code]
	return ok
}

// Do runs fn under policy p. The last error is returned unwrapped so callers
// can still inspect its status code.
func Do[T any](ctx context.Context, p Policy, operation string, fn func(context.Context) (T, error)) (T, error) {
	classify := p.Classify
	if classify == nil {
		classify = StatusCode
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	for {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		attempt++

		code, hasCode := classify(err)
		if !hasCode || !p.retryable(code) || attempt >= maxAttempts {
			metrics.APIFailures.WithLabelValues(operation, statusLabel(code, hasCode)).Inc()
			return out, err
		}

		delay := p.Delay(attempt)
		if p.Jitter > 0 {
			delay = time.Duration(jitter(float64(delay), p.Jitter))
		}
		metrics.APIRetries.WithLabelValues(operation, statusLabel(code, hasCode)).Inc()
		logger.Warn("Remote call failed with transient status, retrying",
			zap.String("operation", operation),
			zap.Int("status", code),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		if serr := sleep(ctx, delay); serr != nil {
			return out, errors.Join(err, serr)
		}
	}
}

func statusLabel(code int, ok bool) string {
	if !ok {
		return "none"
	}
	return strconv.Itoa(code)
}
