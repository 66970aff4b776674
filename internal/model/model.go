// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// SessionState is the lifecycle state of a ballot session.
type SessionState string

// Session states. A session is created active and ends voted or expired;
// historical rows are retained for audit and never deleted.
const (
	SessionActive  SessionState = "active"
	SessionVoted   SessionState = "voted"
	SessionExpired SessionState = "expired"
)

// BallotSession is one voter's time-boxed attempt window on one ballot.
// At most one row per (ballot, voter) may be active at any time; the
// guarantee is a partial unique index in the store, not application logic.
type BallotSession struct {
	ID             uuid.UUID
	BallotID       int64
	VoterID        uuid.UUID
	State          SessionState
	OpenedAt       time.Time
	ClosedAt       *time.Time // set on voted/expired
	Deadline       time.Time  // opened_at + duration + extensions_used*extension
	ExtensionsUsed int
	OriginIP       string // optional, for IP-consistency checks
}

// ExpiredBy reports whether an active session's deadline has passed at now.
func (s *BallotSession) ExpiredBy(now time.Time) bool {
	return s.State == SessionActive && now.After(s.Deadline)
}

// Remaining returns the time left until the deadline, never negative.
func (s *BallotSession) Remaining(now time.Time) time.Duration {
	if d := s.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Voter is an account allowed to cast votes. Credentials are argon2id hashed.
type Voter struct {
	ID        uuid.UUID
	Document  string // unique national document / registration number
	Name      string
	PwdHash   []byte
	SaltAuth  []byte
	CreatedAt time.Time
}

// BallotQuestion is one question presented on a ballot.
type BallotQuestion struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// Ballot is a single voting event with its voting window.
type Ballot struct {
	ID        int64
	Title     string
	Questions []BallotQuestion
	OpensAt   time.Time
	ClosesAt  time.Time
}

// WindowOpen reports whether the ballot accepts sessions at now.
func (b *Ballot) WindowOpen(now time.Time) bool {
	return !now.Before(b.OpensAt) && now.Before(b.ClosesAt)
}

// Answer pairs one question with the voter's chosen answer. Semantics of
// both strings are opaque to this subsystem.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answers is an ordered question->answer mapping. Order is preserved from
// submission so canonical encoding stays deterministic.
type Answers []Answer

// Vote is one cast vote, written atomically with its session's voted flip.
type Vote struct {
	ID           uuid.UUID
	BallotID     int64
	VoterID      uuid.UUID
	SessionID    uuid.UUID
	Answers      Answers
	ReceiptToken string
	CastAt       time.Time
}

// Tokens collects issued access tokens for an authenticated voter.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}
