package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var sessionColNames = []string{
	"id", "ballot_id", "voter_id", "state", "opened_at", "closed_at", "deadline", "extensions_used", "origin_ip",
}

func activeSessionRow(id uuid.UUID, ballotID int64, voterID uuid.UUID, opened, deadline time.Time, exts int) *pgxmock.Rows {
	return pgxmock.NewRows(sessionColNames).
		AddRow(id, ballotID, voterID, "active", opened, nil, deadline, exts, "10.0.0.1")
}

func TestSessionRepo_Open_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	s := &model.BallotSession{
		ID:       uuid.Must(uuid.NewV4()),
		BallotID: 7,
		VoterID:  uuid.Must(uuid.NewV4()),
		OpenedAt: time.Now(),
		Deadline: time.Now().Add(5 * time.Minute),
		OriginIP: "10.0.0.1",
	}

	mock.ExpectExec(`INSERT INTO ballot_sessions`).
		WithArgs(s.ID, s.BallotID, s.VoterID, s.OpenedAt, s.Deadline, s.OriginIP).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Open(context.Background(), s))
}

func TestSessionRepo_Open_SecondActive_Conflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	s := &model.BallotSession{
		ID:       uuid.Must(uuid.NewV4()),
		BallotID: 7,
		VoterID:  uuid.Must(uuid.NewV4()),
		OpenedAt: time.Now(),
		Deadline: time.Now().Add(5 * time.Minute),
	}

	// The loser of a concurrent open hits the partial unique index.
	mock.ExpectExec(`INSERT INTO ballot_sessions`).
		WithArgs(s.ID, s.BallotID, s.VoterID, s.OpenedAt, s.Deadline, s.OriginIP).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ballot_sessions_one_active"})

	require.ErrorIs(t, r.Open(context.Background(), s), errs.ErrSessionActive)
}

func TestSessionRepo_GetActive_None(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	voterID := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE ballot_id=\$1 AND voter_id=\$2 AND state='active'`).
		WithArgs(int64(7), voterID).
		WillReturnRows(pgxmock.NewRows(sessionColNames))

	_, err := r.GetActive(context.Background(), 7, voterID)
	require.ErrorIs(t, err, errs.ErrSessionNotActive)
}

func TestSessionRepo_Extend_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	id := uuid.Must(uuid.NewV4())
	now := time.Now()
	deadline := now.Add(2 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(activeSessionRow(id, 7, uuid.Must(uuid.NewV4()), now.Add(-3*time.Minute), deadline, 0))
	mock.ExpectExec(`UPDATE ballot_sessions SET extensions_used=\$2, deadline=\$3 WHERE id=\$1`).
		WithArgs(id, 1, deadline.Add(2*time.Minute)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	s, err := r.Extend(context.Background(), id, 1, 2*time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, 1, s.ExtensionsUsed)
	require.Equal(t, deadline.Add(2*time.Minute), s.Deadline)
}

func TestSessionRepo_Extend_LimitReached(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(activeSessionRow(id, 7, uuid.Must(uuid.NewV4()), now.Add(-3*time.Minute), now.Add(2*time.Minute), 1))
	mock.ExpectRollback()

	_, err := r.Extend(context.Background(), id, 1, 2*time.Minute, now)
	require.ErrorIs(t, err, errs.ErrExtensionLimit)
}

func TestSessionRepo_Extend_PastDeadline(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	id := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(activeSessionRow(id, 7, uuid.Must(uuid.NewV4()), now.Add(-10*time.Minute), now.Add(-time.Second), 0))
	mock.ExpectRollback()

	_, err := r.Extend(context.Background(), id, 1, 2*time.Minute, now)
	require.ErrorIs(t, err, errs.ErrSessionExpired)
}

func TestSessionRepo_Extend_NotActive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	id := uuid.Must(uuid.NewV4())
	now := time.Now()
	closed := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(sessionColNames).
			AddRow(id, int64(7), uuid.Must(uuid.NewV4()), "voted", now.Add(-10*time.Minute), &closed, now.Add(time.Minute), 0, ""))
	mock.ExpectRollback()

	_, err := r.Extend(context.Background(), id, 1, 2*time.Minute, now)
	require.ErrorIs(t, err, errs.ErrSessionNotActive)
}

func TestSessionRepo_CastVote_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now()
	v := &model.Vote{
		ID:           uuid.Must(uuid.NewV4()),
		BallotID:     7,
		VoterID:      uuid.Must(uuid.NewV4()),
		SessionID:    uuid.Must(uuid.NewV4()),
		Answers:      model.Answers{{Question: "q1", Answer: "a1"}},
		ReceiptToken: "tok",
		CastAt:       now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(v.SessionID).
		WillReturnRows(activeSessionRow(v.SessionID, 7, v.VoterID, now.Add(-2*time.Minute), now.Add(3*time.Minute), 0))
	mock.ExpectExec(`INSERT INTO votes`).
		WithArgs(v.ID, v.BallotID, v.VoterID, v.SessionID, v.Answers, v.ReceiptToken, v.CastAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE ballot_sessions SET state='voted', closed_at=\$2 WHERE id=\$1`).
		WithArgs(v.SessionID, v.CastAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	s, err := r.CastVote(context.Background(), v)
	require.NoError(t, err)
	require.Equal(t, model.SessionVoted, s.State)
	require.NotNil(t, s.ClosedAt)
}

func TestSessionRepo_CastVote_SessionVoted_Rollback(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now()
	closed := now.Add(-time.Minute)
	v := &model.Vote{
		ID:        uuid.Must(uuid.NewV4()),
		BallotID:  7,
		VoterID:   uuid.Must(uuid.NewV4()),
		SessionID: uuid.Must(uuid.NewV4()),
		CastAt:    now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(v.SessionID).
		WillReturnRows(pgxmock.NewRows(sessionColNames).
			AddRow(v.SessionID, int64(7), v.VoterID, "voted", now.Add(-10*time.Minute), &closed, now.Add(time.Minute), 0, ""))
	mock.ExpectRollback()

	_, err := r.CastVote(context.Background(), v)
	require.ErrorIs(t, err, errs.ErrSessionNotActive)
}

func TestSessionRepo_CastVote_PastDeadline_Rollback(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now()
	v := &model.Vote{
		ID:        uuid.Must(uuid.NewV4()),
		BallotID:  7,
		VoterID:   uuid.Must(uuid.NewV4()),
		SessionID: uuid.Must(uuid.NewV4()),
		CastAt:    now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(v.SessionID).
		WillReturnRows(activeSessionRow(v.SessionID, 7, v.VoterID, now.Add(-10*time.Minute), now.Add(-time.Second), 0))
	mock.ExpectRollback()

	_, err := r.CastVote(context.Background(), v)
	require.ErrorIs(t, err, errs.ErrSessionExpired)
}

func TestSessionRepo_CastVote_DuplicateVote_Rollback(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now()
	v := &model.Vote{
		ID:        uuid.Must(uuid.NewV4()),
		BallotID:  7,
		VoterID:   uuid.Must(uuid.NewV4()),
		SessionID: uuid.Must(uuid.NewV4()),
		CastAt:    now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM ballot_sessions WHERE id=\$1 FOR UPDATE`).
		WithArgs(v.SessionID).
		WillReturnRows(activeSessionRow(v.SessionID, 7, v.VoterID, now.Add(-2*time.Minute), now.Add(3*time.Minute), 0))
	mock.ExpectExec(`INSERT INTO votes`).
		WithArgs(v.ID, v.BallotID, v.VoterID, v.SessionID, v.Answers, v.ReceiptToken, v.CastAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "votes_ballot_voter_key"})
	mock.ExpectRollback()

	_, err := r.CastVote(context.Background(), v)
	require.ErrorIs(t, err, errs.ErrAlreadyVoted)
}

func TestSessionRepo_ExpireDue_Count(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	now := time.Now()
	mock.ExpectExec(`UPDATE ballot_sessions SET state='expired', closed_at=\$1 WHERE state='active' AND deadline < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := r.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestSessionRepo_Expire_NotActive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)

	id := uuid.Must(uuid.NewV4())
	now := time.Now()
	mock.ExpectExec(`UPDATE ballot_sessions SET state='expired', closed_at=\$2 WHERE id=\$1 AND state='active'`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, r.Expire(context.Background(), id, now), errs.ErrSessionNotActive)
}
