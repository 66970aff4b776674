package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/lmoreno/balota/internal/crypto"
	"github.com/lmoreno/balota/internal/errs"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Document == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "document and password are required")
		return
	}

	tokens, voter, err := s.auth.LoginWithIP(r.Context(), req.Document, req.Password, clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.ExpiresAt.UTC().Format(time.RFC3339),
		VoterID:     voter.ID.String(),
		Name:        voter.Name,
	})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ballotID, voterID, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Open(r.Context(), ballotID, voterID, clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	st, err := s.sessions.Status(r.Context(), sess.BallotID, sess.VoterID, clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(st))
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	ballotID, voterID, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	st, err := s.sessions.Status(r.Context(), ballotID, voterID, clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	ballotID, voterID, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	st, err := s.sessions.Extend(r.Context(), ballotID, voterID, clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	ballotID, voterID, ok := s.sessionParams(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "answers are required")
		return
	}

	res, err := s.sessions.CastVote(r.Context(), ballotID, voterID, clientIP(r), req.Answers)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		ReceiptToken:  res.Token,
		VoteCastAt:    res.Payload.VoteCastAt,
		TimeInSession: res.Payload.TimeInSession,
	})
}

// handleVerify always answers 200: a bad token is a result, not a failure.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	out := s.verifier.Verify(r.Context(), r.PathValue("token"))
	writeJSON(w, http.StatusOK, toVerifyResponse(out))
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := s.signer.PublicKeyPEM()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "public key unavailable")
		return
	}
	writeJSON(w, http.StatusOK, publicKeyResponse{
		PublicKey:          string(pemBytes),
		Algorithm:          pkgcrypto.Algorithm,
		SignatureAlgorithm: pkgcrypto.SignatureAlgorithm,
	})
}

// sessionParams extracts the ballot ID path value and the authenticated voter.
func (s *Server) sessionParams(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, bool) {
	ballotID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ballot id")
		return 0, uuid.Nil, false
	}
	voterID, ok := VoterIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return 0, uuid.Nil, false
	}
	return ballotID, voterID, true
}

// writeServiceError maps sentinel errors to stable HTTP codes and
// voter-facing messages. Raw store errors never reach the client.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "bad credentials")
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	case errors.Is(err, errs.ErrSessionActive):
		writeError(w, http.StatusConflict, "you already have an active session")
	case errors.Is(err, errs.ErrSessionNotActive):
		writeError(w, http.StatusNotFound, "no active session")
	case errors.Is(err, errs.ErrSessionExpired):
		writeError(w, http.StatusGone, "your session has expired")
	case errors.Is(err, errs.ErrExtensionLimit):
		writeError(w, http.StatusConflict, "extension limit reached")
	case errors.Is(err, errs.ErrBallotClosed):
		writeError(w, http.StatusForbidden, "voting window is closed")
	case errors.Is(err, errs.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "a vote was already cast for this ballot")
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}
