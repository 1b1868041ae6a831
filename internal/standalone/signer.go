package standalone

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"securesign/internal/lifecycle"
)

// Signer is the in-process signing capability for standalone mode. It
// produces deterministic HMAC-SHA256 envelopes over the document digest
// and verifies them by recomputation. No keys ever leave the process.
type Signer struct {
	mu     sync.Mutex
	secret []byte
	keys   map[string]struct{}
}

type signedEnvelope struct {
	Timestamp     string `json:"timestamp"`
	Signature     string `json:"signature"`
	HashAlgorithm string `json:"hash_algorithm"`
	UserID        string `json:"user_id"`
	DocumentHash  string `json:"document_hash"`
	Algorithm     string `json:"algorithm"`
	KeyType       string `json:"key_type"`
}

// NewSigner builds the provider. secret keys the HMAC.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, keys: make(map[string]struct{})}
}

// GenerateKeys marks the user as having keys. Idempotent.
func (s *Signer) GenerateKeys(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[userID] = struct{}{}
	return nil
}

// Sign hashes the document and wraps an HMAC over hash and user into an
// envelope mirroring the signing service's package shape.
func (s *Signer) Sign(filename string, document io.Reader, signatureBase64, userID string) (lifecycle.SignedEnvelope, error) {
	s.mu.Lock()
	_, hasKeys := s.keys[userID]
	s.mu.Unlock()
	if !hasKeys {
		return lifecycle.SignedEnvelope{}, errors.New("no signing keys for user")
	}
	digest, err := hashReader(document)
	if err != nil {
		return lifecycle.SignedEnvelope{}, err
	}
	env := signedEnvelope{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Signature:     s.mac(digest, userID),
		HashAlgorithm: "SHA-256",
		UserID:        userID,
		DocumentHash:  digest,
		Algorithm:     "HMAC-SHA256",
		KeyType:       "HMAC",
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return lifecycle.SignedEnvelope{}, err
	}
	return lifecycle.SignedEnvelope{
		Signature:    env.Signature,
		DocumentHash: env.DocumentHash,
		Algorithm:    env.Algorithm,
		KeyType:      env.KeyType,
		Package:      raw,
	}, nil
}

// Verify recomputes the document digest and the HMAC and compares them
// against the envelope. A mismatch is a negative verdict, not an error.
func (s *Signer) Verify(filename string, document io.Reader, signedPackage []byte, signatureBase64 string) (lifecycle.Verdict, error) {
	var env signedEnvelope
	if err := json.Unmarshal(signedPackage, &env); err != nil {
		return lifecycle.Verdict{}, fmt.Errorf("parse signed package: %w", err)
	}
	digest, err := hashReader(document)
	if err != nil {
		return lifecycle.Verdict{}, err
	}
	if digest != env.DocumentHash {
		return lifecycle.Verdict{
			Valid:   false,
			Message: "Document has been modified since signing",
			Details: map[string]any{"expected_hash": env.DocumentHash, "actual_hash": digest},
		}, nil
	}
	if !hmac.Equal([]byte(s.mac(digest, env.UserID)), []byte(env.Signature)) {
		return lifecycle.Verdict{Valid: false, Message: "Signature does not match document"}, nil
	}
	return lifecycle.Verdict{Valid: true, Message: "Signature is valid"}, nil
}

func (s *Signer) mac(digest, userID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(digest))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func hashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
