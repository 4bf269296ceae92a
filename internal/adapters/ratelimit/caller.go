// Package ratelimit throttles and retries calls to external model endpoints.
// One Caller guards one endpoint class (embedding or generation).
package ratelimit

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// Options configures throttling and retry.
type Options struct {
	MinInterval time.Duration // zero disables throttling
	MaxRetries  int           // retries after the first attempt
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Caller serializes calls to at most one per MinInterval and retries retryable failures
// with capped exponential backoff.
type Caller struct {
	name string
	opts Options

	mu   sync.Mutex
	last time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a Caller. name is used in log lines only.
func NewCaller(name string, opts Options) *Caller {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 20 * time.Second
	}
	return &Caller{
		name:  name,
		opts:  opts,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Do runs fn under the throttle, retrying retryable errors. After the last attempt the
// last error is returned.
func (c *Caller) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if err := c.wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil || !IsRetryable(err) || attempt == c.opts.MaxRetries {
			break
		}
		delay := c.backoff(attempt, err)
		logging.Warnf("%s call failed (attempt %d/%d), retrying in %s: %v",
			c.name, attempt+1, c.opts.MaxRetries+1, delay, err)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, c *Caller, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// wait blocks until MinInterval has passed since the previous call started.
// The lock is held while sleeping so concurrent callers queue behind each other.
func (c *Caller) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.MinInterval > 0 && !c.last.IsZero() {
		if d := c.opts.MinInterval - c.now().Sub(c.last); d > 0 {
			if err := c.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	c.last = c.now()
	return nil
}

func (c *Caller) backoff(attempt int, err error) time.Duration {
	d := c.opts.BaseBackoff
	for i := 0; i < attempt && d < c.opts.MaxBackoff; i++ {
		d *= 2
	}
	var re *ports.RetryableError
	if errors.As(err, &re) && re.RetryAfter > d {
		d = re.RetryAfter
	}
	if d > c.opts.MaxBackoff {
		d = c.opts.MaxBackoff
	}
	return d
}

var retryMarkers = []string{
	"429", "rate limit", "ratelimit", "rate_limit", "quota",
	"resourceexhausted", "resource exhausted", "exceeded", "retry", "temporarily",
}

// IsRetryable reports whether err is a transient external failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ports.ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	var re *ports.RetryableError
	if errors.As(err, &re) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
