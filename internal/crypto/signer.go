package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/lmoreno/balota/internal/errs"
)

// Algorithm identifiers reported by the public-key endpoint.
const (
	Algorithm          = "RSA-2048"
	SignatureAlgorithm = "SHA256withRSA"
)

// Signer owns the single active receipt signing keypair. It is loaded once at
// process start and treated as read-only shared state afterwards.
type Signer struct {
	priv *rsa.PrivateKey
}

// LoadSigner parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func LoadSigner(pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("load signer: no PEM block: %w", errs.ErrKeyNotLoaded)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{priv: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("load signer: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("load signer: not an RSA private key")
	}
	return &Signer{priv: key}, nil
}

// LoadSignerFile reads and parses a PEM private key file.
func LoadSignerFile(path string) (*Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load signer %s: %w", path, err)
	}
	return LoadSigner(pemBytes)
}

// GenerateSigner creates a fresh keypair. Dev and test use only; production
// keys are provisioned and loaded from PEM.
func GenerateSigner(bits int) (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &Signer{priv: key}, nil
}

// Sign produces an RSA PKCS#1 v1.5 signature over the SHA-256 of data.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	if s == nil || s.priv == nil {
		return nil, errs.ErrKeyNotLoaded
	}
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest[:])
}

// Public returns the public half of the active keypair, nil if none is loaded.
func (s *Signer) Public() *rsa.PublicKey {
	if s == nil || s.priv == nil {
		return nil
	}
	return &s.priv.PublicKey
}

// PublicKeyPEM exports the public key as PKIX PEM for independent verification.
func (s *Signer) PublicKeyPEM() ([]byte, error) {
	pub := s.Public()
	if pub == nil {
		return nil, errs.ErrKeyNotLoaded
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PrivateKeyPEM exports the private key as PKCS#1 PEM (dev key bootstrap).
func (s *Signer) PrivateKeyPEM() ([]byte, error) {
	if s == nil || s.priv == nil {
		return nil, errs.ErrKeyNotLoaded
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(s.priv),
	}), nil
}

// Verify reports whether sig is a valid signature over data for the given
// public key. Malformed input degrades to false, never to an error.
func Verify(data, sig []byte, pub *rsa.PublicKey) bool {
	if pub == nil {
		return false
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ParsePublicKeyPEM parses a PKIX PEM public key, the inverse of PublicKeyPEM.
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("parse public key: no PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("parse public key: not RSA")
	}
	return pub, nil
}
