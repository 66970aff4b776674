// Package httpserver exposes the voting session and receipt verification HTTP API.
package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	pkgcrypto "github.com/lmoreno/balota/internal/crypto"
	"github.com/lmoreno/balota/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth     service.AuthService
	sessions service.SessionService
	verifier service.VerifierService
	signer   *pkgcrypto.Signer
	signKey  []byte
	log      *zap.Logger
}

// New constructs an HTTP server with injected services.
func New(
	auth service.AuthService,
	sessions service.SessionService,
	verifier service.VerifierService,
	signer *pkgcrypto.Signer,
	signKey []byte,
	log *zap.Logger,
) *Server {
	return &Server{auth: auth, sessions: sessions, verifier: verifier, signer: signer, signKey: signKey, log: log}
}

// Handler builds the route table wrapped in recover and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /auth/login", s.handleLogin)

	// Session lifecycle (authenticated).
	mux.HandleFunc("POST /ballots/{id}/session", s.requireAuth(s.handleOpenSession))
	mux.HandleFunc("GET /ballots/{id}/session", s.requireAuth(s.handleSessionStatus))
	mux.HandleFunc("POST /ballots/{id}/session/extend", s.requireAuth(s.handleExtendSession))
	mux.HandleFunc("POST /ballots/{id}/vote", s.requireAuth(s.handleCastVote))

	// Public verification, no authentication and no state mutation.
	mux.HandleFunc("GET /verify/public-key", s.handlePublicKey)
	mux.HandleFunc("GET /verify/{token}", s.handleVerify)

	return Recover(s.log)(Logging(s.log)(mux))
}
