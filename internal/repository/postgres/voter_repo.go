package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/model"
)

// VoterRepo implements VoterRepository using PostgreSQL.
type VoterRepo struct{ db *DB }

// NewVoterRepo constructs a voter repository.
func NewVoterRepo(db *DB) *VoterRepo { return &VoterRepo{db: db} }

// Create inserts a new voter row.
func (r *VoterRepo) Create(ctx context.Context, v *model.Voter) error {
	const q = `
INSERT INTO voters (id, document, name, pwd_hash, salt_auth)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, v.ID, v.Document, v.Name, v.PwdHash, v.SaltAuth)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByDocument selects a voter by document number.
func (r *VoterRepo) GetByDocument(ctx context.Context, document string) (*model.Voter, error) {
	const q = `
SELECT id, document, name, pwd_hash, salt_auth, created_at
FROM voters WHERE document=$1`
	row := r.db.Pool.QueryRow(ctx, q, document)
	var v model.Voter
	if err := row.Scan(&v.ID, &v.Document, &v.Name, &v.PwdHash, &v.SaltAuth, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
