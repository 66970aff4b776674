// Package receipt implements the vote receipt token protocol: canonical
// payload construction, content hashing, signing, and URL-safe encoding.
// Tokens are self-contained; verification needs only the public key.
package receipt

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lmoreno/balota/internal/canonical"
	pkgcrypto "github.com/lmoreno/balota/internal/crypto"
	"github.com/lmoreno/balota/internal/model"
)

// legacyTokenRe matches the pre-signing receipt format: a bare SHA-256 hex
// digest. Recognized by shape and reported as not verifiable, never as malformed.
var legacyTokenRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

const nonceBytes = 16 // 128-bit nonce

// TimeInSession is a derived convenience breakdown of vote_cast_at minus
// session_opened_at. It is embedded for display and covered by the hash, but
// always recomputable from the two timestamps.
type TimeInSession struct {
	Minutes      int    `json:"minutes"`
	Seconds      int    `json:"seconds"`
	TotalSeconds int64  `json:"total_seconds"`
	Display      string `json:"display"`
}

// Payload is the signed content embedded in a token. Field order here is the
// wire order; canonical encoding enforces the same order for hash and signature.
type Payload struct {
	BallotID        int64          `json:"ballot_id"`
	Answers         model.Answers  `json:"answers"`
	VoteCastAt      string         `json:"vote_cast_at"`
	SessionOpenedAt string         `json:"session_opened_at,omitempty"` // absent for legacy/un-timed ballots
	Nonce           string         `json:"nonce"`
	TimeInSession   *TimeInSession `json:"time_in_session,omitempty"`
	ContentHash     string         `json:"content_hash"`
}

// signedToken is the wire envelope serialized into the base64url token.
type signedToken struct {
	VoteData        Payload `json:"vote_data"`
	ServerSignature string  `json:"server_signature"`
}

// Verification is the full result of checking one token. Valid is strictly
// HashValid AND SignatureValid; the individual flags let callers distinguish
// tampered content from a forged signature.
type Verification struct {
	Valid          bool
	FormatValid    bool
	HashValid      bool
	SignatureValid bool
	Legacy         bool
	Payload        *Payload
	Err            string
}

// Protocol issues and verifies receipt tokens with one active keypair.
type Protocol struct {
	signer *pkgcrypto.Signer
}

// New constructs the receipt protocol around a loaded signer.
func New(signer *pkgcrypto.Signer) *Protocol {
	return &Protocol{signer: signer}
}

// Issue builds, hashes, signs and encodes a receipt for a durably recorded
// vote. sessionOpenedAt may be nil for ballots without timed sessions.
func (p *Protocol) Issue(ballotID int64, answers model.Answers, voteCastAt time.Time, sessionOpenedAt *time.Time) (string, *Payload, error) {
	nonce, err := pkgcrypto.RandBytes(nonceBytes)
	if err != nil {
		return "", nil, fmt.Errorf("receipt: nonce: %w", err)
	}

	pl := Payload{
		BallotID:   ballotID,
		Answers:    answers,
		VoteCastAt: voteCastAt.UTC().Format(time.RFC3339),
		Nonce:      hex.EncodeToString(nonce),
	}
	if sessionOpenedAt != nil {
		pl.SessionOpenedAt = sessionOpenedAt.UTC().Format(time.RFC3339)
		pl.TimeInSession = NewTimeInSession(*sessionOpenedAt, voteCastAt)
	}

	hash, err := contentHash(pl)
	if err != nil {
		return "", nil, err
	}
	pl.ContentHash = hash

	signed, err := canonical.Encode(canonicalPayload(pl, true))
	if err != nil {
		return "", nil, fmt.Errorf("receipt: encode for signing: %w", err)
	}
	sig, err := p.signer.Sign(signed)
	if err != nil {
		return "", nil, fmt.Errorf("receipt: sign: %w", err)
	}

	envelope, err := json.Marshal(signedToken{
		VoteData:        pl,
		ServerSignature: base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		return "", nil, fmt.Errorf("receipt: marshal envelope: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(envelope), &pl, nil
}

// Verify decodes a token and runs both integrity checks. Hash and signature
// are checked independently even after one fails, so diagnostics stay precise.
// Verify never returns an error for bad input; failures are result values.
func (p *Protocol) Verify(token string) Verification {
	if legacyTokenRe.MatchString(token) {
		return Verification{
			FormatValid: true,
			Legacy:      true,
			Err:         "legacy receipt format, not cryptographically verifiable",
		}
	}

	envelope, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Verification{Err: "malformed token"}
	}
	var st signedToken
	if err := json.Unmarshal(envelope, &st); err != nil {
		return Verification{Err: "malformed token"}
	}

	v := Verification{FormatValid: true, Payload: &st.VoteData}

	recomputed, err := contentHash(st.VoteData)
	if err == nil {
		v.HashValid = subtle.ConstantTimeCompare([]byte(recomputed), []byte(st.VoteData.ContentHash)) == 1
	}

	signed, err := canonical.Encode(canonicalPayload(st.VoteData, true))
	if err == nil {
		sig, decErr := base64.StdEncoding.DecodeString(st.ServerSignature)
		if decErr == nil {
			v.SignatureValid = pkgcrypto.Verify(signed, sig, p.signer.Public())
		}
	}

	v.Valid = v.HashValid && v.SignatureValid
	if !v.Valid {
		switch {
		case !v.HashValid:
			v.Err = "content hash mismatch"
		case !v.SignatureValid:
			v.Err = "signature invalid"
		}
	}
	return v
}

// NewTimeInSession computes the derived duration breakdown between session
// open and vote cast.
func NewTimeInSession(opened, cast time.Time) *TimeInSession {
	d := cast.Sub(opened)
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return &TimeInSession{
		Minutes:      int(total / 60),
		Seconds:      int(total % 60),
		TotalSeconds: total,
		Display:      fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60),
	}
}

// contentHash hex-encodes the SHA-256 over the canonical encoding of every
// payload field except content_hash itself.
func contentHash(pl Payload) (string, error) {
	data, err := canonical.Encode(canonicalPayload(pl, false))
	if err != nil {
		return "", fmt.Errorf("receipt: encode for hashing: %w", err)
	}
	return pkgcrypto.SHA256Hex(data), nil
}

// canonicalPayload lays out the payload fields in their fixed wire order.
// session_opened_at is always present (null when unset) so issue and verify
// hash identical bytes; time_in_session appears only when derived.
func canonicalPayload(pl Payload, includeHash bool) canonical.Object {
	answers := make([]canonical.Object, 0, len(pl.Answers))
	for _, a := range pl.Answers {
		answers = append(answers, canonical.Object{
			{Name: "question", Value: a.Question},
			{Name: "answer", Value: a.Answer},
		})
	}

	var openedAt any
	if pl.SessionOpenedAt != "" {
		openedAt = pl.SessionOpenedAt
	}

	obj := canonical.Object{
		{Name: "ballot_id", Value: pl.BallotID},
		{Name: "answers", Value: answers},
		{Name: "vote_cast_at", Value: pl.VoteCastAt},
		{Name: "session_opened_at", Value: openedAt},
		{Name: "nonce", Value: pl.Nonce},
	}
	if pl.TimeInSession != nil {
		obj = append(obj, canonical.Field{Name: "time_in_session", Value: canonical.Object{
			{Name: "minutes", Value: pl.TimeInSession.Minutes},
			{Name: "seconds", Value: pl.TimeInSession.Seconds},
			{Name: "total_seconds", Value: pl.TimeInSession.TotalSeconds},
			{Name: "display", Value: pl.TimeInSession.Display},
		}})
	}
	if includeHash {
		obj = append(obj, canonical.Field{Name: "content_hash", Value: pl.ContentHash})
	}
	return obj
}
