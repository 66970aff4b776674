// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary block due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionActive indicates an active ballot session already exists
	// for the (ballot, voter) pair.
	ErrSessionActive = errors.New("session already active")

	// ErrSessionNotActive indicates the session is missing or no longer active.
	ErrSessionNotActive = errors.New("session not active")

	// ErrSessionExpired indicates the session deadline passed without a vote.
	ErrSessionExpired = errors.New("session expired")

	// ErrExtensionLimit indicates the session has used all allowed extensions.
	ErrExtensionLimit = errors.New("extension limit reached")

	// ErrBallotClosed indicates the ballot's voting window is not open.
	ErrBallotClosed = errors.New("ballot voting window closed")

	// ErrAlreadyVoted indicates a vote already exists for the (ballot, voter) pair.
	ErrAlreadyVoted = errors.New("already voted")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., document taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrKeyNotLoaded indicates the receipt signing key is unavailable (fatal at startup).
	ErrKeyNotLoaded = errors.New("signing key not loaded")
)
