package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL. The partial
// unique index ballot_sessions_one_active is the concurrency primitive:
// two concurrent Open calls for the same (ballot, voter) cannot both commit.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionCols = `id, ballot_id, voter_id, state, opened_at, closed_at, deadline, extensions_used, origin_ip`

// Open inserts a new active session row.
func (r *SessionRepo) Open(ctx context.Context, s *model.BallotSession) error {
	const q = `
INSERT INTO ballot_sessions (id, ballot_id, voter_id, state, opened_at, deadline, extensions_used, origin_ip)
VALUES ($1, $2, $3, 'active', $4, $5, 0, $6)`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.BallotID, s.VoterID, s.OpenedAt, s.Deadline, s.OriginIP)
	if isUniqueViolation(err) {
		return errs.ErrSessionActive
	}
	return err
}

// Get selects a session by ID.
func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*model.BallotSession, error) {
	const q = `SELECT ` + sessionCols + ` FROM ballot_sessions WHERE id=$1`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// GetActive selects the single active session for a (ballot, voter) pair.
func (r *SessionRepo) GetActive(ctx context.Context, ballotID int64, voterID uuid.UUID) (*model.BallotSession, error) {
	const q = `SELECT ` + sessionCols + ` FROM ballot_sessions WHERE ballot_id=$1 AND voter_id=$2 AND state='active'`
	s, err := scanSession(r.db.Pool.QueryRow(ctx, q, ballotID, voterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSessionNotActive
		}
		return nil, err
	}
	return s, nil
}

// Extend pushes the deadline by extension if the session is active, not past
// its deadline, and under the cap. The row is locked for the duration of the
// check so concurrent extends cannot exceed the cap.
func (r *SessionRepo) Extend(
	ctx context.Context, id uuid.UUID, maxExtensions int, extension time.Duration, now time.Time,
) (s *model.BallotSession, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT ` + sessionCols + ` FROM ballot_sessions WHERE id=$1 FOR UPDATE`
	s, err = scanSession(tx.QueryRow(ctx, sel, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSessionNotActive
		}
		return nil, err
	}
	if s.State != model.SessionActive {
		return nil, errs.ErrSessionNotActive
	}
	if now.After(s.Deadline) {
		return nil, errs.ErrSessionExpired
	}
	if s.ExtensionsUsed >= maxExtensions {
		// No mutation: closed_at and state stay untouched.
		return nil, errs.ErrExtensionLimit
	}

	newDeadline := s.Deadline.Add(extension)
	const upd = `UPDATE ballot_sessions SET extensions_used=$2, deadline=$3 WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, id, s.ExtensionsUsed+1, newDeadline); err != nil {
		return nil, err
	}
	s.ExtensionsUsed++
	s.Deadline = newDeadline
	return s, nil
}

// Expire flips one active session to expired, keeping the row for audit.
func (r *SessionRepo) Expire(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE ballot_sessions SET state='expired', closed_at=$2 WHERE id=$1 AND state='active'`
	tag, err := r.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrSessionNotActive
	}
	return nil
}

// ExpireDue sweeps every active session whose deadline has passed.
func (r *SessionRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE ballot_sessions SET state='expired', closed_at=$1 WHERE state='active' AND deadline < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CastVote persists the vote and flips its session from active to voted in
// one transaction. Any failure rolls back both writes; a voted session
// without a vote (or the reverse) cannot persist.
func (r *SessionRepo) CastVote(ctx context.Context, v *model.Vote) (s *model.BallotSession, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT ` + sessionCols + ` FROM ballot_sessions WHERE id=$1 FOR UPDATE`
	s, err = scanSession(tx.QueryRow(ctx, sel, v.SessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSessionNotActive
		}
		return nil, err
	}
	if s.State != model.SessionActive {
		return nil, errs.ErrSessionNotActive
	}
	if v.CastAt.After(s.Deadline) {
		return nil, errs.ErrSessionExpired
	}

	const ins = `
INSERT INTO votes (id, ballot_id, voter_id, session_id, answers, receipt_token, cast_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.Exec(ctx, ins, v.ID, v.BallotID, v.VoterID, v.SessionID, v.Answers, v.ReceiptToken, v.CastAt); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrAlreadyVoted
		}
		return nil, err
	}

	const upd = `UPDATE ballot_sessions SET state='voted', closed_at=$2 WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, v.SessionID, v.CastAt); err != nil {
		return nil, err
	}
	s.State = model.SessionVoted
	closed := v.CastAt
	s.ClosedAt = &closed
	return s, nil
}

func scanSession(row pgx.Row) (*model.BallotSession, error) {
	var (
		s     model.BallotSession
		state string
	)
	if err := row.Scan(&s.ID, &s.BallotID, &s.VoterID, &state, &s.OpenedAt, &s.ClosedAt, &s.Deadline, &s.ExtensionsUsed, &s.OriginIP); err != nil {
		return nil, err
	}
	s.State = model.SessionState(state)
	return &s, nil
}
