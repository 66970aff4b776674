package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/model"
)

// BallotRepo implements BallotRepository using PostgreSQL. Ballot rows are
// owned by the CRUD layer; this side only reads metadata.
type BallotRepo struct{ db *DB }

// NewBallotRepo constructs a ballot repository.
func NewBallotRepo(db *DB) *BallotRepo { return &BallotRepo{db: db} }

// Get selects ballot metadata by ID.
func (r *BallotRepo) Get(ctx context.Context, id int64) (*model.Ballot, error) {
	const q = `
SELECT id, title, questions, opens_at, closes_at
FROM ballots WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var b model.Ballot
	if err := row.Scan(&b.ID, &b.Title, &b.Questions, &b.OpensAt, &b.ClosesAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
