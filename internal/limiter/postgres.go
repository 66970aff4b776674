package limiter

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// PG is a PostgreSQL-backed login limiter with sliding window and lockout.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

// NewPG constructs a PostgreSQL-backed login limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: pool, window: window, maxFails: maxFails, blockFor: blockFor}
}

// NewPGWithQuerier constructs a login limiter over any querier (tests).
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, document string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE document=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, document, ipHash).Scan(&blockedUntil)
	switch err {
	case nil:
		if now := time.Now(); blockedUntil.After(now) {
			return false, time.Until(blockedUntil), nil
		}
		return true, 0, nil
	case pgx.ErrNoRows:
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (document, ip).
func (l *PG) Success(ctx context.Context, document string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (document, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',now())
ON CONFLICT (document, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.pool.Exec(ctx, q, document, ipHash)
	return err
}

// Failure records a failed attempt; may set a block until a future time.
func (l *PG) Failure(ctx context.Context, document string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter (document, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (document, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN EXCLUDED.updated_at - auth_limiter.updated_at > $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, document, ipHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails >= l.maxFails {
		blockUntil := time.Now().Add(l.blockFor)
		const upd = `UPDATE auth_limiter SET blocked_until=$3 WHERE document=$1 AND ip_hash=$2`
		if _, err := l.pool.Exec(ctx, upd, document, ipHash, blockUntil); err != nil {
			return false, 0, err
		}
		return true, l.blockFor, nil
	}
	return false, 0, nil
}

// OpenPG is a PostgreSQL-backed limiter for session opens per voter.
// One row per voter holds the current window start and its open count.
type OpenPG struct {
	pool     pgxQuerier
	window   time.Duration
	maxOpens int
}

// NewOpenPG constructs a session-open limiter.
func NewOpenPG(pool *pgxpool.Pool, window time.Duration, maxOpens int) *OpenPG {
	return &OpenPG{pool: pool, window: window, maxOpens: maxOpens}
}

// NewOpenPGWithQuerier constructs a session-open limiter over any querier (tests).
func NewOpenPGWithQuerier(q pgxQuerier, window time.Duration, maxOpens int) *OpenPG {
	return &OpenPG{pool: q, window: window, maxOpens: maxOpens}
}

// Acquire counts one open attempt inside the voter's current window. When the
// stored window has aged out it is restarted; denied attempts are counted too.
func (l *OpenPG) Acquire(ctx context.Context, voterID uuid.UUID) (bool, time.Duration, error) {
	now := time.Now()
	cutoff := now.Add(-l.window)

	const q = `
INSERT INTO open_limiter (voter_id, window_start, opens)
VALUES ($1,$2,1)
ON CONFLICT (voter_id) DO UPDATE
SET
  opens = CASE WHEN open_limiter.window_start < $3 THEN 1 ELSE open_limiter.opens + 1 END,
  window_start = CASE WHEN open_limiter.window_start < $3 THEN $2 ELSE open_limiter.window_start END
RETURNING opens, window_start`
	var (
		opens       int
		windowStart time.Time
	)
	if err := l.pool.QueryRow(ctx, q, voterID, now, cutoff).Scan(&opens, &windowStart); err != nil {
		return false, 0, err
	}
	if opens > l.maxOpens {
		retryAfter := windowStart.Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}
