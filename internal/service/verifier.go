package service

import (
	"context"
	"time"

	"github.com/lmoreno/balota/internal/receipt"
	"github.com/lmoreno/balota/internal/repository"
)

// VerifyOutcome is a receipt verification enriched with best-effort ballot
// metadata. BallotExists never affects validity; a deleted ballot only means
// the response carries no title.
type VerifyOutcome struct {
	receipt.Verification
	BallotExists bool
	BallotTitle  string
	VerifiedAt   time.Time
}

// VerifierService checks receipt tokens for anyone, no authentication and no
// state mutation.
type VerifierService interface {
	Verify(ctx context.Context, token string) *VerifyOutcome
}

type VerifierImpl struct {
	receipts *receipt.Protocol
	ballots  repository.BallotRepository
	now      func() time.Time
}

// NewVerifier constructs the public verifier.
func NewVerifier(receipts *receipt.Protocol, ballots repository.BallotRepository) *VerifierImpl {
	return &VerifierImpl{receipts: receipts, ballots: ballots, now: time.Now}
}

// Verify runs the token checks and then a best-effort ballot lookup.
func (v *VerifierImpl) Verify(ctx context.Context, token string) *VerifyOutcome {
	out := &VerifyOutcome{
		Verification: v.receipts.Verify(token),
		VerifiedAt:   v.now().UTC(),
	}
	if out.Payload != nil {
		// Lookup failures are swallowed: the token stands on its own.
		if b, err := v.ballots.Get(ctx, out.Payload.BallotID); err == nil {
			out.BallotExists = true
			out.BallotTitle = b.Title
		}
	}
	return out
}
