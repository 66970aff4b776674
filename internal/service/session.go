package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/limiter"
	"github.com/lmoreno/balota/internal/model"
	"github.com/lmoreno/balota/internal/receipt"
	"github.com/lmoreno/balota/internal/repository"
)

// Policy holds the configurable session lifecycle rules.
type Policy struct {
	Duration      time.Duration // base session length
	Extension     time.Duration // length of one extension
	MaxExtensions int           // hard cap on extensions per session
	Warning       time.Duration // countdown hint thresholds for clients
	Critical      time.Duration
	EnforceIP     bool // reject continuation from a different IP
}

// DefaultPolicy mirrors the production defaults.
var DefaultPolicy = Policy{
	Duration:      5 * time.Minute,
	Extension:     2 * time.Minute,
	MaxExtensions: 1,
	Warning:       2 * time.Minute,
	Critical:      30 * time.Second,
}

// SessionStatus is a point-in-time view of a session for countdown UIs.
type SessionStatus struct {
	Session        *model.BallotSession
	Remaining      time.Duration
	ExtensionsLeft int
	Warning        bool
	Critical       bool
}

// CastResult is the outcome of a successful vote cast.
type CastResult struct {
	Session *model.BallotSession
	Token   string
	Payload *receipt.Payload
}

// SessionService orchestrates the ballot-session lifecycle against policy
// and triggers receipt issuance on a successful cast.
type SessionService interface {
	// Open starts a new session if the ballot window is open, the voter is
	// under the open-rate limit, and no active session exists.
	Open(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string) (*model.BallotSession, error)
	// Status reports the active session's state, lazily expiring it when due.
	Status(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string) (*SessionStatus, error)
	// Extend grants one extension within the policy cap.
	Extend(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string) (*SessionStatus, error)
	// CastVote consumes the session: persists the vote, flips the session to
	// voted and issues the receipt token, all or nothing.
	CastVote(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string, answers model.Answers) (*CastResult, error)
}

type SessionManager struct {
	sessions repository.SessionRepository
	ballots  repository.BallotRepository
	receipts *receipt.Protocol
	lim      limiter.OpenLimiter
	policy   Policy
	now      func() time.Time
}

// NewSessionManager constructs the manager with injected collaborators.
func NewSessionManager(
	sessions repository.SessionRepository,
	ballots repository.BallotRepository,
	receipts *receipt.Protocol,
	lim limiter.OpenLimiter,
	policy Policy,
) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		ballots:  ballots,
		receipts: receipts,
		lim:      lim,
		policy:   policy,
		now:      time.Now,
	}
}

// Open validates the ballot window and rate limit, then inserts a fresh
// active session. The store's partial unique index settles concurrent opens.
func (m *SessionManager) Open(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string) (*model.BallotSession, error) {
	now := m.now()

	b, err := m.ballots.Get(ctx, ballotID)
	if err != nil {
		return nil, err
	}
	if !b.WindowOpen(now) {
		return nil, errs.ErrBallotClosed
	}

	allowed, _, err := m.lim.Acquire(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	s := &model.BallotSession{
		ID:       id,
		BallotID: ballotID,
		VoterID:  voterID,
		State:    model.SessionActive,
		OpenedAt: now,
		Deadline: now.Add(m.policy.Duration),
		OriginIP: ip,
	}
	if err := m.sessions.Open(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Status loads the active session, expiring it lazily when the deadline has
// passed. An expired session is reported, not an error: the client needs the
// terminal state to render.
func (m *SessionManager) Status(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string) (*SessionStatus, error) {
	s, err := m.sessions.GetActive(ctx, ballotID, voterID)
	if err != nil {
		return nil, err
	}
	if err := m.checkOrigin(s, ip); err != nil {
		return nil, err
	}

	now := m.now()
	if s.ExpiredBy(now) {
		if err := m.sessions.Expire(ctx, s.ID, now); err != nil && !errors.Is(err, errs.ErrSessionNotActive) {
			return nil, err
		}
		s.State = model.SessionExpired
		closed := now
		s.ClosedAt = &closed
	}
	return m.status(s, now), nil
}

// Extend grants one extension; the repository re-checks state, deadline and
// cap under a row lock.
func (m *SessionManager) Extend(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string) (*SessionStatus, error) {
	s, err := m.sessions.GetActive(ctx, ballotID, voterID)
	if err != nil {
		return nil, err
	}
	if err := m.checkOrigin(s, ip); err != nil {
		return nil, err
	}

	now := m.now()
	s, err = m.sessions.Extend(ctx, s.ID, m.policy.MaxExtensions, m.policy.Extension, now)
	if err != nil {
		return nil, err
	}
	return m.status(s, now), nil
}

// CastVote is the single consuming transition. The receipt is built before
// the transaction (pure computation); the vote write and the active->voted
// flip commit together or not at all.
func (m *SessionManager) CastVote(ctx context.Context, ballotID int64, voterID uuid.UUID, ip string, answers model.Answers) (*CastResult, error) {
	if len(answers) == 0 {
		return nil, errors.New("validation: empty answers")
	}

	s, err := m.sessions.GetActive(ctx, ballotID, voterID)
	if err != nil {
		return nil, err
	}
	if err := m.checkOrigin(s, ip); err != nil {
		return nil, err
	}

	now := m.now()
	if s.ExpiredBy(now) {
		_ = m.sessions.Expire(ctx, s.ID, now)
		return nil, errs.ErrSessionExpired
	}

	token, payload, err := m.receipts.Issue(ballotID, answers, now, &s.OpenedAt)
	if err != nil {
		return nil, err
	}

	voteID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	updated, err := m.sessions.CastVote(ctx, &model.Vote{
		ID:           voteID,
		BallotID:     ballotID,
		VoterID:      voterID,
		SessionID:    s.ID,
		Answers:      answers,
		ReceiptToken: token,
		CastAt:       now,
	})
	if err != nil {
		return nil, err
	}
	return &CastResult{Session: updated, Token: token, Payload: payload}, nil
}

// checkOrigin enforces optional IP pinning on session continuation.
func (m *SessionManager) checkOrigin(s *model.BallotSession, ip string) error {
	if m.policy.EnforceIP && s.OriginIP != "" && ip != "" && s.OriginIP != ip {
		return errs.ErrUnauthorized
	}
	return nil
}

func (m *SessionManager) status(s *model.BallotSession, now time.Time) *SessionStatus {
	remaining := s.Remaining(now)
	if s.State != model.SessionActive {
		remaining = 0
	}
	left := m.policy.MaxExtensions - s.ExtensionsUsed
	if left < 0 {
		left = 0
	}
	return &SessionStatus{
		Session:        s,
		Remaining:      remaining,
		ExtensionsLeft: left,
		Warning:        s.State == model.SessionActive && remaining <= m.policy.Warning,
		Critical:       s.State == model.SessionActive && remaining <= m.policy.Critical,
	}
}
