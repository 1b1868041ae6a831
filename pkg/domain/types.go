package domain

import "time"

// DocumentStatus tracks where a document sits in its signing lifecycle.
type DocumentStatus string

const (
	StatusUploaded           DocumentStatus = "UPLOADED"
	StatusPartiallySigned    DocumentStatus = "PARTIALLY_SIGNED"
	StatusSigned             DocumentStatus = "SIGNED"
	StatusVerified           DocumentStatus = "VERIFIED"
	StatusVerificationFailed DocumentStatus = "VERIFICATION_FAILED"
	StatusShared             DocumentStatus = "SHARED"
	StatusRevoked            DocumentStatus = "REVOKED"
	StatusExpired            DocumentStatus = "EXPIRED"
)

// Terminal reports whether no further sign/share transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// SecurityLevel classifies documents and drives the signature requirement.
type SecurityLevel string

const (
	LevelLow      SecurityLevel = "LOW"
	LevelMedium   SecurityLevel = "MEDIUM"
	LevelHigh     SecurityLevel = "HIGH"
	LevelCritical SecurityLevel = "CRITICAL"
)

// SignaturesRequired returns the signature count fixed at creation time.
// CRITICAL documents need two signers, everything else one. The count is
// never recalculated afterwards even if the level changes.
func (l SecurityLevel) SignaturesRequired() int {
	if l == LevelCritical {
		return 2
	}
	return 1
}

// ParseSecurityLevel normalizes a string into a known level, defaulting to MEDIUM.
func ParseSecurityLevel(s string) SecurityLevel {
	switch SecurityLevel(s) {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return SecurityLevel(s)
	}
	return LevelMedium
}

// SignatureType labels how a signature was produced.
type SignatureType string

const (
	SignatureElectronic         SignatureType = "ELECTRONIC"
	SignatureBiometric          SignatureType = "BIOMETRIC"
	SignatureDigitalCertificate SignatureType = "DIGITAL_CERTIFICATE"
)

// VerificationMethod tags audit entries with the check that produced them.
type VerificationMethod string

const (
	MethodHashComparison         VerificationMethod = "HASH_COMPARISON"
	MethodBlockchainVerification VerificationMethod = "BLOCKCHAIN_VERIFICATION"
	MethodDigitalCertificate     VerificationMethod = "DIGITAL_CERTIFICATE"
)

// Signature is immutable once appended to a document.
type Signature struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	UserName        string        `json:"userName"`
	Timestamp       time.Time     `json:"timestamp"`
	ImageRef        string        `json:"imageRef,omitempty"`
	SignatureType   SignatureType `json:"signatureType"`
	CryptoSignature string        `json:"cryptoSignature,omitempty"`
	Algorithm       string        `json:"algorithm,omitempty"`
	KeyType         string        `json:"keyType,omitempty"`
	Verified        bool          `json:"verified"`
}

// VerificationRecord is an append-only audit entry. One is added per
// upload/sign/verify/share/revoke action.
type VerificationRecord struct {
	ID           string             `json:"id"`
	Timestamp    time.Time          `json:"timestamp"`
	VerifierID   string             `json:"verifierId,omitempty"`
	VerifierName string             `json:"verifierName,omitempty"`
	Verified     bool               `json:"verified"`
	Method       VerificationMethod `json:"verificationMethod"`
	Details      string             `json:"details,omitempty"`
}

// Metadata carries descriptive document attributes fixed at upload.
type Metadata struct {
	CreatedBy          string    `json:"createdBy"`
	CreatedAt          time.Time `json:"createdAt"`
	PageCount          int       `json:"pageCount,omitempty"`
	Size               int64     `json:"size"`
	Version            int       `json:"version"`
	ContentHash        string    `json:"contentHash,omitempty"`
	SignaturesRequired int       `json:"signaturesRequired"`
}

// Document is a registry record. Title, file name, file type and metadata
// are immutable after upload; signatures, sharedWith and the verification
// history are append-only.
type Document struct {
	ID            string               `json:"id"`
	OwnerID       string               `json:"ownerId"`
	Title         string               `json:"title"`
	FileName      string               `json:"fileName"`
	FileType      string               `json:"fileType"`
	UploadedAt    time.Time            `json:"uploadedAt"`
	Status        DocumentStatus       `json:"status"`
	Hash          string               `json:"hash,omitempty"`
	CryptoHash    string               `json:"cryptoHash,omitempty"`
	LedgerTxID    string               `json:"ledgerTxId,omitempty"`
	SecurityLevel SecurityLevel        `json:"securityLevel"`
	ExpiryDate    *time.Time           `json:"expiryDate,omitempty"`
	Revoked       bool                 `json:"revoked,omitempty"`
	RevokedReason string               `json:"revokedReason,omitempty"`
	Signatures    []Signature          `json:"signatures"`
	SharedWith    []string             `json:"sharedWith"`
	History       []VerificationRecord `json:"verificationHistory"`
	Metadata      Metadata             `json:"metadata"`
	SignedPackage []byte               `json:"signedPackage,omitempty"`

	// PayloadKey locates the original file bytes in the payload store.
	// The bytes themselves are never serialized with the record; after a
	// restart with no payload available, operations needing them fail
	// with a re-upload error.
	PayloadKey string `json:"payloadKey,omitempty"`
}

// SharedWithContains reports whether the recipient already appears.
func (d Document) SharedWithContains(email string) bool {
	for _, e := range d.SharedWith {
		if e == email {
			return true
		}
	}
	return false
}

// FullySigned reports whether the required signature count has been reached.
func (d Document) FullySigned() bool {
	return len(d.Signatures) >= d.Metadata.SignaturesRequired
}

// Expired reports whether the expiry date, when set, has passed.
func (d Document) Expired(now time.Time) bool {
	return d.ExpiryDate != nil && now.After(*d.ExpiryDate)
}

// User mirrors the auth service's profile shape.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Organization string    `json:"organization,omitempty"`
	Role         int       `json:"role,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserKeyInfo tracks whether signing keys exist for a user. Created on
// demand, never deleted within a session.
type UserKeyInfo struct {
	UserID         string    `json:"userId"`
	HasKeys        bool      `json:"hasKeys"`
	KeyGeneratedAt time.Time `json:"keyGeneratedAt,omitempty"`
}

// LoginHistoryEntry is one row of the auth service's login audit.
type LoginHistoryEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Success   bool      `json:"success"`
}

// LedgerActionType enumerates actions recorded on the ledger.
type LedgerActionType string

const (
	ActionUpload LedgerActionType = "UPLOAD"
	ActionSign   LedgerActionType = "SIGN"
	ActionSend   LedgerActionType = "SEND"
	ActionVerify LedgerActionType = "VERIFY"
	ActionRevoke LedgerActionType = "REVOKE"
)

// LedgerAction is the request shape for recording an action on the ledger.
type LedgerAction struct {
	ActionType LedgerActionType `json:"action_type"`
	UserID     string           `json:"user_id"`
	DocumentID string           `json:"document_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	ActionData map[string]any   `json:"action_data,omitempty"`
}

// LedgerEntry is one block of the ledger's history.
type LedgerEntry struct {
	BlockID    int64            `json:"block_id"`
	Hash       string           `json:"hash"`
	PrevHash   string           `json:"previous_hash,omitempty"`
	ActionType LedgerActionType `json:"action_type"`
	UserID     string           `json:"user_id"`
	DocumentID string           `json:"document_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Data       map[string]any   `json:"data,omitempty"`
}
