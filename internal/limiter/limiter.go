// Package limiter defines interfaces and implementations for login and
// session-open rate limiting. Counters live in Postgres so limits hold
// across instances.
package limiter

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Limiter controls login attempts and temporary lockouts per (document, ip).
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, document string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, document string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, document string, ipHash []byte) (bool, time.Duration, error)
}

// OpenLimiter caps ballot-session opens per voter within a sliding window.
type OpenLimiter interface {
	// Acquire counts one open attempt and reports whether it is allowed,
	// with a retry-after duration when it is not.
	Acquire(ctx context.Context, voterID uuid.UUID) (bool, time.Duration, error)
}
