package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/lmoreno/balota/internal/crypto"
	"github.com/lmoreno/balota/internal/errs"
	"github.com/lmoreno/balota/internal/limiter"
	"github.com/lmoreno/balota/internal/model"
	"github.com/lmoreno/balota/internal/repository"
)

type fakeVoters struct {
	byDoc map[string]*model.Voter

	createErr error
	getErr    error
}

var _ repository.VoterRepository = (*fakeVoters)(nil)

func (f *fakeVoters) Create(_ context.Context, v *model.Voter) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byDoc == nil {
		f.byDoc = map[string]*model.Voter{}
	}
	if _, exists := f.byDoc[v.Document]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *v
	f.byDoc[v.Document] = &cpy
	return nil
}

func (f *fakeVoters) GetByDocument(_ context.Context, document string) (*model.Voter, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.byDoc[document]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *v
	return &cpy, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successCalls int
	failureCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func seedVoter(t *testing.T, voters *fakeVoters, document, password string) uuid.UUID {
	t.Helper()
	salt, err := pkgcrypto.RandBytes(16)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	id := uuid.Must(uuid.NewV4())
	if err := voters.Create(context.Background(), &model.Voter{
		ID:       id,
		Document: document,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), salt),
		SaltAuth: salt,
	}); err != nil {
		t.Fatalf("seed voter: %v", err)
	}
	return id
}

func TestAuth_Login_OK_IssuesJWT(t *testing.T) {
	voters := &fakeVoters{}
	id := seedVoter(t, voters, "12345678", "hunter2")
	key := []byte("test-sign-key")
	svc := NewAuthService(voters, key, 15*time.Minute, &fakeLimiter{allowOK: true})

	tokens, v, err := svc.LoginWithIP(context.Background(), "12345678", "hunter2", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if v.ID != id {
		t.Fatalf("wrong voter returned")
	}

	parsed, err := jwt.ParseWithClaims(tokens.AccessToken, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("issued token does not parse: %v", err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Subject != id.String() {
		t.Fatalf("subject=%s want=%s", claims.Subject, id)
	}
}

func TestAuth_Login_WrongPassword(t *testing.T) {
	voters := &fakeVoters{}
	seedVoter(t, voters, "12345678", "hunter2")
	lim := &fakeLimiter{allowOK: true}
	svc := NewAuthService(voters, []byte("k"), time.Minute, lim)

	_, _, err := svc.LoginWithIP(context.Background(), "12345678", "wrong", "ip")
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if lim.failureCalls != 1 {
		t.Fatalf("failure not recorded")
	}
}

func TestAuth_Login_UnknownDocument_SameError(t *testing.T) {
	svc := NewAuthService(&fakeVoters{}, []byte("k"), time.Minute, &fakeLimiter{allowOK: true})

	_, _, err := svc.LoginWithIP(context.Background(), "nobody", "pw", "ip")
	if !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("unknown document must look like bad credentials, got %v", err)
	}
}

func TestAuth_Login_RateLimited(t *testing.T) {
	voters := &fakeVoters{}
	seedVoter(t, voters, "12345678", "hunter2")

	svc := NewAuthService(voters, []byte("k"), time.Minute, &fakeLimiter{allowOK: false})
	if _, _, err := svc.LoginWithIP(context.Background(), "12345678", "hunter2", "ip"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}

	// Failure threshold reached during a bad attempt also reports rate-limited.
	svc = NewAuthService(voters, []byte("k"), time.Minute, &fakeLimiter{allowOK: true, failBlocked: true})
	if _, _, err := svc.LoginWithIP(context.Background(), "12345678", "wrong", "ip"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited at threshold, got %v", err)
	}
}

func TestAuth_Register_HashesPassword(t *testing.T) {
	voters := &fakeVoters{}
	svc := NewAuthService(voters, []byte("k"), time.Minute, &fakeLimiter{allowOK: true})

	idStr, err := svc.Register(context.Background(), "12345678", "Ada", "hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := uuid.FromString(idStr); err != nil {
		t.Fatalf("not a uuid: %q", idStr)
	}

	v := voters.byDoc["12345678"]
	if v == nil || len(v.PwdHash) == 0 || len(v.SaltAuth) == 0 {
		t.Fatalf("voter not stored with hash+salt")
	}
	if string(v.PwdHash) == "hunter2" {
		t.Fatalf("password stored in plaintext")
	}
	if !pkgcrypto.VerifyPassword([]byte("hunter2"), v.SaltAuth, v.PwdHash) {
		t.Fatalf("stored hash does not verify")
	}
}

func TestAuth_Register_Validation(t *testing.T) {
	svc := NewAuthService(&fakeVoters{}, []byte("k"), time.Minute, &fakeLimiter{})
	if _, err := svc.Register(context.Background(), "", "x", "pw"); err == nil {
		t.Fatalf("empty document must fail")
	}
	if _, err := svc.Register(context.Background(), "doc", "x", ""); err == nil {
		t.Fatalf("empty password must fail")
	}
}
