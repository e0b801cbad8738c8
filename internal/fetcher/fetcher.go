// Package fetcher measures the engagement of a single post URL.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/trackr/internal/domain"
)

// MetricFetcher returns the current metrics of one post.
// Implementations report failures wrapping domain.ErrFetchFailure.
type MetricFetcher interface {
	Fetch(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error)
}

// Func adapts a plain function to MetricFetcher.
type Func func(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error) {
	return f(ctx, url, platform)
}

type timeoutFetcher struct {
	next    MetricFetcher
	timeout time.Duration
}

// WithTimeout bounds every Fetch call by timeout. An expired deadline is
// reported as domain.ErrFetchTimeout, which also matches ErrFetchFailure.
func WithTimeout(next MetricFetcher, timeout time.Duration) MetricFetcher {
	if timeout <= 0 {
		return next
	}
	return &timeoutFetcher{next: next, timeout: timeout}
}

func (f *timeoutFetcher) Fetch(ctx context.Context, url string, platform domain.Platform) (domain.Metrics, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	type result struct {
		m   domain.Metrics
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := f.next.Fetch(ctx, url, platform)
		done <- result{m, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Metrics{}, fmt.Errorf("%w after %s: %v", domain.ErrFetchTimeout, f.timeout, r.err)
		}
		return r.m, r.err
	case <-ctx.Done():
		return domain.Metrics{}, fmt.Errorf("%w after %s", domain.ErrFetchTimeout, f.timeout)
	}
}

// failure builds a retryable fetch failure.
func failure(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrFetchFailure, fmt.Sprintf(format, args...))
}
