// Package service contains application services for voter authentication,
// ballot session management and receipt verification.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/lmoreno/balota/internal/crypto"
	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/limiter"
	"github.com/lmoreno/balota/internal/model"
	"github.com/lmoreno/balota/internal/repository"
)

// AuthService authenticates voters for the session endpoints. Voter
// provisioning itself belongs to the CRUD layer; Register exists for that
// layer and for tests.
type AuthService interface {
	// Register creates a new voter with secure password hashing.
	Register(ctx context.Context, document, name, password string) (voterID string, err error)
	// LoginWithIP applies rate-limiting and authenticates the voter.
	LoginWithIP(ctx context.Context, document, password, ip string) (tokens model.Tokens, voter model.Voter, err error)
}

type AuthServiceImpl struct {
	voters    repository.VoterRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(voters repository.VoterRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{voters: voters, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Register creates a new voter record with a per-voter salt.
func (s *AuthServiceImpl) Register(ctx context.Context, document, name, password string) (string, error) {
	if document == "" || password == "" {
		return "", errors.New("empty document/password")
	}
	vid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	saltAuth, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return "", err
	}
	v := &model.Voter{
		ID:       vid,
		Document: document,
		Name:     name,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), saltAuth),
		SaltAuth: saltAuth,
	}
	if err := s.voters.Create(ctx, v); err != nil {
		return "", err
	}
	return vid.String(), nil
}

// LoginWithIP authenticates with rate limiting by (document, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, document, password, ip string) (model.Tokens, model.Voter, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, document, ipHash)
	if err != nil {
		return model.Tokens{}, model.Voter{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Voter{}, errs.ErrRateLimited
	}

	v, err := s.voters.GetByDocument(ctx, document)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), v.SaltAuth, v.PwdHash) {
		// Record failure; if the threshold is reached report rate-limited.
		if blocked, _, ferr := s.lim.Failure(ctx, document, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Voter{}, errs.ErrRateLimited
		}
		// Unknown document and wrong password look identical to the caller.
		return model.Tokens{}, model.Voter{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, document, ipHash)

	access, exp, err := s.issueAccessToken(v.ID)
	if err != nil {
		return model.Tokens{}, model.Voter{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *v, nil
}

// issueAccessToken creates a signed HS256 JWT for the given voter.
func (s *AuthServiceImpl) issueAccessToken(voterID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   voterID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
