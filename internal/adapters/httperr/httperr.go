// Package httperr maps HTTP responses from model endpoints to domain errors.
package httperr

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

const maxErrorBody = 2048

// Check returns nil for 2xx responses. 429 and 5xx become *ports.RetryableError,
// 401/403 wrap ports.ErrNotConfigured, anything else is a plain error.
// The body is read (up to a small limit) only on failure.
func Check(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	base := fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(raw)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &ports.RetryableError{
			StatusCode: resp.StatusCode,
			RetryAfter: RetryAfter(resp.Header.Get("Retry-After")),
			Err:        base,
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ports.ErrNotConfigured, base)
	default:
		return base
	}
}

// RetryAfter parses a Retry-After header given in seconds. Other forms yield zero.
func RetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
