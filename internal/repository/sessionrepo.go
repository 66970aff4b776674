// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/lmoreno/balota/internal/model"
)

// SessionRepository persists ballot sessions. The "at most one active session
// per (ballot, voter)" invariant is enforced by the backend, not by callers.
type SessionRepository interface {
	// Open inserts a new active session. Returns errs.ErrSessionActive if an
	// active session already exists for the (ballot, voter) pair.
	Open(ctx context.Context, s *model.BallotSession) error
	// Get loads a session by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.BallotSession, error)
	// GetActive loads the active session for a (ballot, voter) pair.
	GetActive(ctx context.Context, ballotID int64, voterID uuid.UUID) (*model.BallotSession, error)
	// Extend grants one extension if the session is active, unexpired and
	// under the extension cap, pushing the deadline by extension.
	Extend(ctx context.Context, id uuid.UUID, maxExtensions int, extension time.Duration, now time.Time) (*model.BallotSession, error)
	// Expire flips a single active session to expired.
	Expire(ctx context.Context, id uuid.UUID, at time.Time) error
	// ExpireDue flips every active session whose deadline passed; returns the count.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	// CastVote atomically persists the vote and flips its session to voted.
	CastVote(ctx context.Context, v *model.Vote) (*model.BallotSession, error)
}

// BallotRepository provides read access to ballot metadata owned by the CRUD layer.
type BallotRepository interface {
	// Get loads ballot metadata by ID.
	Get(ctx context.Context, id int64) (*model.Ballot, error)
}

// VoterRepository provides access to voter accounts.
type VoterRepository interface {
	// Create inserts a new voter.
	Create(ctx context.Context, v *model.Voter) error
	// GetByDocument loads a voter by document number.
	GetByDocument(ctx context.Context, document string) (*model.Voter, error)
}
