package registry

import (
	"securesign/pkg/domain"
)

// Store defines persistence for document records and per-user key info.
// The full record set is rewritten on every mutation by snapshot-style
// backends; last writer wins.
type Store interface {
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments() ([]domain.Document, error)
	ListDocumentsByOwner(ownerID string) ([]domain.Document, error)
	DeleteDocument(id string) error

	SaveKeyInfo(domain.UserKeyInfo) error
	GetKeyInfo(userID string) (domain.UserKeyInfo, bool, error)
}
