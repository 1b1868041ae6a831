package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"securesign/internal/docinfo"
	"securesign/internal/registry"
	"securesign/pkg/domain"
	"securesign/pkg/storage"
)

// Orchestrator drives the document lifecycle: every state transition
// goes through it. Collaborator calls happen before any registry
// mutation, so a failed call leaves the record exactly as it was.
// Ledger recording is asynchronous and never fails an operation.
type Orchestrator struct {
	registry *registry.Registry
	payloads storage.PayloadStore
	docs     DocumentStore
	signer   Signer
	ledger   Ledger
	recorder ActionRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// New wires the orchestrator. recorder may be nil, in which case ledger
// actions are dropped with a log line.
func New(reg *registry.Registry, payloads storage.PayloadStore, docs DocumentStore, signer Signer, ledger Ledger, recorder ActionRecorder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		payloads: payloads,
		docs:     docs,
		signer:   signer,
		ledger:   ledger,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// UploadInput carries everything needed to register a new document.
type UploadInput struct {
	Title         string
	Filename      string
	SecurityLevel string
	ExpiryDate    *time.Time
	Data          []byte
}

// Upload sends the file to the storage capability, stashes the payload
// for later signing, and registers the record in UPLOADED state. The
// required signature count is fixed here and never recalculated.
func (o *Orchestrator) Upload(ctx context.Context, actor domain.User, in UploadInput) (domain.Document, error) {
	level := domain.ParseSecurityLevel(in.SecurityLevel)
	info := docinfo.Inspect(in.Filename, in.Data)

	stored, err := o.docs.Upload(in.Title, actor.ID, string(level), in.Filename, bytes.NewReader(in.Data))
	if err != nil {
		return domain.Document{}, fmt.Errorf("upload document: %w", err)
	}

	if err := o.payloads.Put(ctx, stored.ID, in.Filename, info.ContentType, bytes.NewReader(in.Data), int64(len(in.Data))); err != nil {
		return domain.Document{}, fmt.Errorf("stash payload: %w", err)
	}

	now := o.now().UTC()
	fileType := stored.FileType
	if fileType == "" {
		fileType = info.FileType
	}
	doc := domain.Document{
		ID:            stored.ID,
		OwnerID:       actor.ID,
		Title:         in.Title,
		FileName:      in.Filename,
		FileType:      fileType,
		UploadedAt:    now,
		Status:        domain.StatusUploaded,
		Hash:          stored.Hash,
		LedgerTxID:    stored.LedgerTxID,
		SecurityLevel: level,
		ExpiryDate:    in.ExpiryDate,
		PayloadKey:    stored.ID,
		Signatures:    []domain.Signature{},
		SharedWith:    []string{},
		History: []domain.VerificationRecord{
			o.auditEntry(actor, true, domain.MethodHashComparison, "Document uploaded"),
		},
		Metadata: domain.Metadata{
			CreatedBy:          actor.ID,
			CreatedAt:          now,
			PageCount:          info.PageCount,
			Size:               int64(len(in.Data)),
			Version:            1,
			ContentHash:        stored.ContentHash,
			SignaturesRequired: level.SignaturesRequired(),
		},
	}
	doc, err = o.registry.Add(doc)
	if err != nil {
		return domain.Document{}, fmt.Errorf("register document: %w", err)
	}

	o.record(ctx, domain.LedgerAction{
		ActionType: domain.ActionUpload,
		UserID:     actor.ID,
		DocumentID: doc.ID,
		Timestamp:  now,
		ActionData: map[string]any{"title": doc.Title, "hash": doc.Hash},
	})
	return doc, nil
}

// GenerateKeys provisions signing keys for the user and remembers that
// they exist. Keys are created once per user; repeated calls refresh
// the generation timestamp.
func (o *Orchestrator) GenerateKeys(ctx context.Context, actor domain.User) (domain.UserKeyInfo, error) {
	if err := o.signer.GenerateKeys(actor.ID); err != nil {
		return domain.UserKeyInfo{}, fmt.Errorf("generate keys: %w", err)
	}
	info := domain.UserKeyInfo{
		UserID:         actor.ID,
		HasKeys:        true,
		KeyGeneratedAt: o.now().UTC(),
	}
	if err := o.registry.SaveKeyInfo(info); err != nil {
		return domain.UserKeyInfo{}, fmt.Errorf("save key info: %w", err)
	}
	return info, nil
}

// SignInput carries the hand-drawn signature image and its labeling.
type SignInput struct {
	SignatureBase64 string
	SignatureType   domain.SignatureType
}

// Sign runs the full signing chain: guards, cryptographic signing,
// storage-side signature record, then the registry transition. The
// authoritative hash is set from the first signing response and never
// overwritten afterwards.
func (o *Orchestrator) Sign(ctx context.Context, actor domain.User, docID string, in SignInput) (domain.Document, error) {
	doc, err := o.find(docID)
	if err != nil {
		return domain.Document{}, err
	}
	if err := o.guardActive(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	if doc.FullySigned() {
		return domain.Document{}, ErrAlreadySigned
	}
	keys, ok, err := o.registry.KeyInfo(actor.ID)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok || !keys.HasKeys {
		return domain.Document{}, ErrKeysMissing
	}
	payload, err := o.loadPayload(ctx, doc)
	if err != nil {
		return domain.Document{}, err
	}

	envelope, err := o.signer.Sign(doc.FileName, bytes.NewReader(payload), in.SignatureBase64, actor.ID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("sign document: %w", err)
	}
	sigType := in.SignatureType
	if sigType == "" {
		sigType = domain.SignatureElectronic
	}
	if err := o.docs.RecordSignature(doc.ID, SignatureRecord{
		UserID:          actor.ID,
		SignatureType:   string(sigType),
		SignatureData:   in.SignatureBase64,
		CryptoSignature: envelope.Signature,
		Algorithm:       envelope.Algorithm,
		KeyType:         envelope.KeyType,
	}); err != nil {
		return domain.Document{}, fmt.Errorf("record signature: %w", err)
	}

	now := o.now().UTC()
	updated, err := o.registry.Update(doc.ID, func(d *domain.Document) error {
		if d.Revoked || d.Status.Terminal() {
			return ErrRevoked
		}
		if d.FullySigned() {
			return ErrAlreadySigned
		}
		d.Signatures = append(d.Signatures, domain.Signature{
			ID:              registry.NewID(),
			UserID:          actor.ID,
			UserName:        actor.Name,
			Timestamp:       now,
			SignatureType:   sigType,
			CryptoSignature: envelope.Signature,
			Algorithm:       envelope.Algorithm,
			KeyType:         envelope.KeyType,
		})
		if d.FullySigned() {
			d.Status = domain.StatusSigned
		} else {
			d.Status = domain.StatusPartiallySigned
		}
		if d.CryptoHash == "" {
			d.CryptoHash = envelope.DocumentHash
		}
		d.SignedPackage = envelope.Package
		d.History = append(d.History, o.auditEntry(actor, true, domain.MethodDigitalCertificate,
			fmt.Sprintf("Signature %d of %d applied", len(d.Signatures), d.Metadata.SignaturesRequired)))
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}

	o.record(ctx, domain.LedgerAction{
		ActionType: domain.ActionSign,
		UserID:     actor.ID,
		DocumentID: doc.ID,
		Timestamp:  now,
		ActionData: map[string]any{"status": string(updated.Status)},
	})
	return updated, nil
}

// Verify asks the signing capability for a verdict on the stored signed
// package. A negative verdict transitions to VERIFICATION_FAILED and is
// returned as data; the capability's message is recorded verbatim.
// Revoked and expired documents stay verifiable: the Revoked flag is
// untouched while Status reflects the verification outcome, so a
// verified-then-revoked record reads VERIFIED with Revoked still true.
func (o *Orchestrator) Verify(ctx context.Context, actor domain.User, docID string) (domain.Document, Verdict, error) {
	doc, err := o.find(docID)
	if err != nil {
		return domain.Document{}, Verdict{}, err
	}
	if len(doc.Signatures) == 0 || len(doc.SignedPackage) == 0 {
		return domain.Document{}, Verdict{}, ErrNotSigned
	}
	payload, err := o.loadPayload(ctx, doc)
	if err != nil {
		return domain.Document{}, Verdict{}, err
	}

	verdict, err := o.signer.Verify(doc.FileName, bytes.NewReader(payload), doc.SignedPackage, "")
	if err != nil {
		return domain.Document{}, Verdict{}, fmt.Errorf("verify document: %w", err)
	}

	now := o.now().UTC()
	updated, err := o.registry.Update(doc.ID, func(d *domain.Document) error {
		if verdict.Valid {
			d.Status = domain.StatusVerified
		} else {
			d.Status = domain.StatusVerificationFailed
		}
		d.History = append(d.History, o.auditEntry(actor, verdict.Valid, domain.MethodDigitalCertificate, verdict.Message))
		return nil
	})
	if err != nil {
		return domain.Document{}, Verdict{}, err
	}

	o.record(ctx, domain.LedgerAction{
		ActionType: domain.ActionVerify,
		UserID:     actor.ID,
		DocumentID: doc.ID,
		Timestamp:  now,
		ActionData: map[string]any{"valid": verdict.Valid},
	})
	return updated, verdict, nil
}

// Share grants a recipient access. Sharing twice with the same email is
// a no-op: no collaborator call, no duplicate list entry. Only
// revocation blocks sharing; an expired document can still be handed to
// a recipient for reference.
func (o *Orchestrator) Share(ctx context.Context, actor domain.User, docID, email, permission string) (domain.Document, error) {
	doc, err := o.find(docID)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.Revoked || doc.Status == domain.StatusRevoked {
		return domain.Document{}, ErrRevoked
	}
	if doc.SharedWithContains(email) {
		return doc, nil
	}

	if err := o.docs.Share(doc.ID, actor.ID, email, permission); err != nil {
		return domain.Document{}, fmt.Errorf("share document: %w", err)
	}

	now := o.now().UTC()
	updated, err := o.registry.Update(doc.ID, func(d *domain.Document) error {
		if d.Revoked || d.Status == domain.StatusRevoked {
			return ErrRevoked
		}
		if !d.SharedWithContains(email) {
			d.SharedWith = append(d.SharedWith, email)
		}
		d.Status = domain.StatusShared
		d.History = append(d.History, o.auditEntry(actor, true, domain.MethodHashComparison, "Shared with "+email))
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}

	o.record(ctx, domain.LedgerAction{
		ActionType: domain.ActionSend,
		UserID:     actor.ID,
		DocumentID: doc.ID,
		Timestamp:  now,
		ActionData: map[string]any{"shared_with": email},
	})
	return updated, nil
}

// Revoke is terminal: the document rejects all further sign and share
// attempts. Revocation is a registry-local decision, no collaborator is
// consulted.
func (o *Orchestrator) Revoke(ctx context.Context, actor domain.User, docID, reason string) (domain.Document, error) {
	doc, err := o.find(docID)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.Revoked {
		return domain.Document{}, ErrRevoked
	}

	now := o.now().UTC()
	updated, err := o.registry.Update(doc.ID, func(d *domain.Document) error {
		d.Revoked = true
		d.RevokedReason = reason
		d.Status = domain.StatusRevoked
		d.History = append(d.History, o.auditEntry(actor, true, domain.MethodHashComparison, "Document revoked: "+reason))
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}

	o.record(ctx, domain.LedgerAction{
		ActionType: domain.ActionRevoke,
		UserID:     actor.ID,
		DocumentID: doc.ID,
		Timestamp:  now,
		ActionData: map[string]any{"reason": reason},
	})
	return updated, nil
}

// Get returns a single record.
func (o *Orchestrator) Get(docID string) (domain.Document, error) {
	return o.find(docID)
}

// List returns the actor's documents.
func (o *Orchestrator) List(actor domain.User) ([]domain.Document, error) {
	return o.registry.ListByOwner(actor.ID)
}

// KeyInfo reports whether the user has signing keys.
func (o *Orchestrator) KeyInfo(userID string) (domain.UserKeyInfo, error) {
	info, ok, err := o.registry.KeyInfo(userID)
	if err != nil {
		return domain.UserKeyInfo{}, err
	}
	if !ok {
		return domain.UserKeyInfo{UserID: userID}, nil
	}
	return info, nil
}

// History lists the ledger entries recorded for a document.
func (o *Orchestrator) History(docID string) ([]domain.LedgerEntry, error) {
	if _, err := o.find(docID); err != nil {
		return nil, err
	}
	return o.ledger.DocumentHistory(docID)
}

// UserActions lists the ledger entries recorded for the acting user,
// across all documents.
func (o *Orchestrator) UserActions(actor domain.User) ([]domain.LedgerEntry, error) {
	return o.ledger.UserActions(actor.ID)
}

// VerifyChain checks ledger integrity.
func (o *Orchestrator) VerifyChain() (ChainStatus, error) {
	return o.ledger.VerifyChain()
}

// LedgerStats returns aggregate ledger activity.
func (o *Orchestrator) LedgerStats() (LedgerStats, error) {
	return o.ledger.Stats()
}

func (o *Orchestrator) find(docID string) (domain.Document, error) {
	doc, err := o.registry.Find(docID)
	if errors.Is(err, registry.ErrDocumentNotFound) {
		return domain.Document{}, ErrNotFound
	}
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// guardActive rejects terminal and expired records before any network
// call is made. Detecting a passed expiry date transitions the record
// to EXPIRED as a side effect.
func (o *Orchestrator) guardActive(ctx context.Context, doc domain.Document) error {
	if doc.Revoked || doc.Status == domain.StatusRevoked {
		return ErrRevoked
	}
	if doc.Status == domain.StatusExpired {
		return ErrExpired
	}
	if doc.Expired(o.now()) {
		if _, err := o.registry.Update(doc.ID, func(d *domain.Document) error {
			d.Status = domain.StatusExpired
			return nil
		}); err != nil {
			o.logger.Warn("mark expired", "document_id", doc.ID, "error", err)
		}
		return ErrExpired
	}
	return nil
}

func (o *Orchestrator) loadPayload(ctx context.Context, doc domain.Document) ([]byte, error) {
	if doc.PayloadKey == "" {
		return nil, ErrPayloadMissing
	}
	data, err := o.payloads.Get(ctx, doc.PayloadKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPayloadMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return data, nil
}

func (o *Orchestrator) auditEntry(actor domain.User, verified bool, method domain.VerificationMethod, details string) domain.VerificationRecord {
	return domain.VerificationRecord{
		ID:           registry.NewID(),
		Timestamp:    o.now().UTC(),
		VerifierID:   actor.ID,
		VerifierName: actor.Name,
		Verified:     verified,
		Method:       method,
		Details:      details,
	}
}

func (o *Orchestrator) record(ctx context.Context, action domain.LedgerAction) {
	if o.recorder == nil {
		o.logger.Debug("ledger recording disabled", "action", string(action.ActionType))
		return
	}
	if err := o.recorder.Enqueue(ctx, action); err != nil {
		o.logger.Warn("enqueue ledger action",
			"action", string(action.ActionType),
			"document_id", action.DocumentID,
			"error", err)
	}
}
