package lifecycle

import (
	"context"
	"errors"
	"io"

	"securesign/pkg/domain"
)

// Guard violations surfaced before any collaborator call.
var (
	ErrNotFound       = errors.New("document not found")
	ErrRevoked        = errors.New("document has been revoked")
	ErrExpired        = errors.New("document has expired")
	ErrKeysMissing    = errors.New("signing keys have not been generated")
	ErrPayloadMissing = errors.New("document content is not available, please re-upload")
	ErrNotSigned      = errors.New("document must be signed before verification")
	ErrAlreadySigned  = errors.New("document already has all required signatures")
)

// StoredDocument is the storage capability's answer to an upload.
type StoredDocument struct {
	ID          string
	Hash        string
	ContentHash string
	LedgerTxID  string
	FileSize    int64
	FileType    string
}

// SignatureRecord is what the storage capability persists per signature.
type SignatureRecord struct {
	UserID          string
	SignatureType   string
	SignatureData   string
	CryptoSignature string
	Algorithm       string
	KeyType         string
}

// DocumentStore is the document storage capability: the remote document
// service or the standalone stand-in.
type DocumentStore interface {
	Upload(title, userID, securityLevel, filename string, r io.Reader) (StoredDocument, error)
	RecordSignature(documentID string, rec SignatureRecord) error
	Share(documentID, sharedBy, email, permission string) error
}

// SignedEnvelope is the signing capability's product: the cryptographic
// signature, the authoritative document hash, and the raw package bytes
// kept for later verification.
type SignedEnvelope struct {
	Signature    string
	DocumentHash string
	Algorithm    string
	KeyType      string
	Package      []byte
}

// Verdict is a verification outcome. A negative verdict is a result,
// not an error.
type Verdict struct {
	Valid   bool
	Message string
	Details map[string]any
}

// Signer is the cryptographic signing capability.
type Signer interface {
	GenerateKeys(userID string) error
	Sign(filename string, document io.Reader, signatureBase64, userID string) (SignedEnvelope, error)
	Verify(filename string, document io.Reader, signedPackage []byte, signatureBase64 string) (Verdict, error)
}

// ChainStatus is the ledger's integrity verdict over the whole chain.
type ChainStatus struct {
	Valid       bool
	Message     string
	TotalBlocks int64
}

// LedgerStats summarizes ledger activity.
type LedgerStats struct {
	TotalBlocks   int64
	ActionsByType map[string]int64
}

// Ledger is the blockchain ledger capability.
type Ledger interface {
	Record(action domain.LedgerAction) (string, error)
	DocumentHistory(documentID string) ([]domain.LedgerEntry, error)
	UserActions(userID string) ([]domain.LedgerEntry, error)
	VerifyChain() (ChainStatus, error)
	Stats() (LedgerStats, error)
}

// ActionRecorder enqueues ledger actions for asynchronous recording.
// Failures are the recorder's problem; lifecycle operations never block
// on, or fail because of, ledger recording.
type ActionRecorder interface {
	Enqueue(ctx context.Context, action domain.LedgerAction) error
}
