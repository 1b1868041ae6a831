package lifecycle

import (
	"io"

	"securesign/internal/cryptoclient"
	"securesign/internal/docclient"
	"securesign/internal/ledgerclient"
	"securesign/pkg/domain"
)

// RemoteDocumentStore adapts the document service HTTP client to the
// DocumentStore capability.
type RemoteDocumentStore struct {
	Client *docclient.Client
}

func (r RemoteDocumentStore) Upload(title, userID, securityLevel, filename string, body io.Reader) (StoredDocument, error) {
	resp, err := r.Client.Upload(title, userID, securityLevel, filename, body)
	if err != nil {
		return StoredDocument{}, err
	}
	return StoredDocument{
		ID:          resp.DocumentID.String(),
		Hash:        resp.DocumentHash,
		ContentHash: resp.ContentHash,
		LedgerTxID:  resp.BlockchainTxID.String(),
		FileSize:    resp.FileSize,
		FileType:    resp.FileType,
	}, nil
}

func (r RemoteDocumentStore) RecordSignature(documentID string, rec SignatureRecord) error {
	_, err := r.Client.RecordSignature(documentID, docclient.SignRequest{
		UserID:          rec.UserID,
		SignatureType:   rec.SignatureType,
		SignatureData:   rec.SignatureData,
		CryptoSignature: rec.CryptoSignature,
		Algorithm:       rec.Algorithm,
		KeyType:         rec.KeyType,
	})
	return err
}

func (r RemoteDocumentStore) Share(documentID, sharedBy, email, permission string) error {
	_, err := r.Client.Share(documentID, docclient.ShareRequest{
		SharedBy:        sharedBy,
		SharedWithEmail: email,
		PermissionLevel: permission,
	})
	return err
}

// RemoteSigner adapts the signing service HTTP client to the Signer
// capability.
type RemoteSigner struct {
	Client *cryptoclient.Client
}

func (r RemoteSigner) GenerateKeys(userID string) error {
	return r.Client.GenerateKeys(userID)
}

func (r RemoteSigner) Sign(filename string, document io.Reader, signatureBase64, userID string) (SignedEnvelope, error) {
	pkg, raw, err := r.Client.SignRaw(filename, document, signatureBase64, userID)
	if err != nil {
		return SignedEnvelope{}, err
	}
	return SignedEnvelope{
		Signature:    pkg.Signature,
		DocumentHash: pkg.DocumentHash,
		Algorithm:    pkg.SigningInfo.Algorithm,
		KeyType:      pkg.SigningInfo.KeyType,
		Package:      raw,
	}, nil
}

func (r RemoteSigner) Verify(filename string, document io.Reader, signedPackage []byte, signatureBase64 string) (Verdict, error) {
	res, err := r.Client.Verify(filename, document, signedPackage, signatureBase64)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Valid: res.Valid, Message: res.Message, Details: res.Details}, nil
}

// RemoteLedger adapts the ledger service HTTP client to the Ledger
// capability.
type RemoteLedger struct {
	Client *ledgerclient.Client
}

func (r RemoteLedger) Record(action domain.LedgerAction) (string, error) {
	resp, err := r.Client.Record(action)
	if err != nil {
		return "", err
	}
	return resp.Hash, nil
}

func (r RemoteLedger) DocumentHistory(documentID string) ([]domain.LedgerEntry, error) {
	return r.Client.DocumentHistory(documentID)
}

func (r RemoteLedger) UserActions(userID string) ([]domain.LedgerEntry, error) {
	return r.Client.UserActions(userID)
}

func (r RemoteLedger) VerifyChain() (ChainStatus, error) {
	resp, err := r.Client.VerifyChain()
	if err != nil {
		return ChainStatus{}, err
	}
	return ChainStatus{Valid: resp.Valid, Message: resp.Message, TotalBlocks: resp.TotalBlocks}, nil
}

func (r RemoteLedger) Stats() (LedgerStats, error) {
	resp, err := r.Client.GetStats()
	if err != nil {
		return LedgerStats{}, err
	}
	return LedgerStats{TotalBlocks: resp.TotalBlocks, ActionsByType: resp.ActionsByType}, nil
}
