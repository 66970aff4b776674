package httpserver

import (
	"time"

	"github.com/lmoreno/balota/internal/model"
	"github.com/lmoreno/balota/internal/receipt"
	"github.com/lmoreno/balota/internal/service"
)

type loginRequest struct {
	Document string `json:"document"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	VoterID     string `json:"voter_id"`
	Name        string `json:"name,omitempty"`
}

type sessionResponse struct {
	SessionID        string `json:"session_id"`
	BallotID         int64  `json:"ballot_id"`
	State            string `json:"state"`
	OpenedAt         string `json:"opened_at"`
	Deadline         string `json:"deadline"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	ExtensionsUsed   int    `json:"extensions_used"`
	ExtensionsLeft   int    `json:"extensions_left"`
	Warning          bool   `json:"warning"`
	Critical         bool   `json:"critical"`
}

type voteRequest struct {
	Answers model.Answers `json:"answers"`
}

type voteResponse struct {
	ReceiptToken  string                 `json:"receipt_token"`
	VoteCastAt    string                 `json:"vote_cast_at"`
	TimeInSession *receipt.TimeInSession `json:"time_in_session,omitempty"`
}

type publicKeyResponse struct {
	PublicKey          string `json:"public_key"`
	Algorithm          string `json:"algorithm"`
	SignatureAlgorithm string `json:"signature_algorithm"`
}

type verificationDetails struct {
	FormatValid    bool   `json:"format_valid"`
	SignatureValid bool   `json:"signature_valid"`
	HashValid      bool   `json:"hash_valid"`
	BallotExists   bool   `json:"ballot_exists"`
	VerifiedAt     string `json:"verified_at"`
}

type verifyResponse struct {
	IsValid             bool                `json:"is_valid"`
	Error               string              `json:"error,omitempty"`
	VoteData            *receipt.Payload    `json:"vote_data,omitempty"`
	BallotTitle         string              `json:"ballot_title,omitempty"`
	VerificationDetails verificationDetails `json:"verification_details"`
}

func toSessionResponse(st *service.SessionStatus) sessionResponse {
	s := st.Session
	return sessionResponse{
		SessionID:        s.ID.String(),
		BallotID:         s.BallotID,
		State:            string(s.State),
		OpenedAt:         s.OpenedAt.UTC().Format(time.RFC3339),
		Deadline:         s.Deadline.UTC().Format(time.RFC3339),
		RemainingSeconds: int64(st.Remaining / time.Second),
		ExtensionsUsed:   s.ExtensionsUsed,
		ExtensionsLeft:   st.ExtensionsLeft,
		Warning:          st.Warning,
		Critical:         st.Critical,
	}
}

func toVerifyResponse(out *service.VerifyOutcome) verifyResponse {
	return verifyResponse{
		IsValid:     out.Valid,
		Error:       out.Err,
		VoteData:    out.Payload,
		BallotTitle: out.BallotTitle,
		VerificationDetails: verificationDetails{
			FormatValid:    out.FormatValid,
			SignatureValid: out.SignatureValid,
			HashValid:      out.HashValid,
			BallotExists:   out.BallotExists,
			VerifiedAt:     out.VerifiedAt.Format(time.RFC3339),
		},
	}
}
