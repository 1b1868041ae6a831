package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"securesign/pkg/domain"
)

// DocumentModel is the documents table row. Append-only collections are
// stored as JSONB.
type DocumentModel struct {
	ID            string `gorm:"primaryKey"`
	OwnerID       string `gorm:"index"`
	Title         string
	FileName      string
	FileType      string
	UploadedAt    time.Time
	Status        string
	Hash          string
	CryptoHash    string
	LedgerTxID    string
	SecurityLevel string
	ExpiryDate    *time.Time
	Revoked       bool
	RevokedReason string
	PayloadKey    string
	Signatures    datatypes.JSON `gorm:"type:jsonb"`
	SharedWith    datatypes.JSON `gorm:"type:jsonb"`
	History       datatypes.JSON `gorm:"type:jsonb"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	SignedPackage []byte
	Seq           int64 `gorm:"autoIncrement;uniqueIndex"`
}

// UserKeyModel is the per-user key info table row.
type UserKeyModel struct {
	UserID         string `gorm:"primaryKey"`
	HasKeys        bool
	KeyGeneratedAt time.Time
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&DocumentModel{}, &UserKeyModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveDocument inserts or replaces a record.
func (g *GormStore) SaveDocument(d domain.Document) error {
	model, err := toModel(d)
	if err != nil {
		return err
	}
	var existing DocumentModel
	err = g.db.Select("seq").Where("id = ?", d.ID).First(&existing).Error
	switch {
	case err == nil:
		model.Seq = existing.Seq
		return g.db.Save(&model).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return g.db.Create(&model).Error
	default:
		return err
	}
}

// GetDocument retrieves a record by ID.
func (g *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	err := g.db.Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, err
	}
	doc, err := fromModel(model)
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

// ListDocuments returns all records in insertion order.
func (g *GormStore) ListDocuments() ([]domain.Document, error) {
	var models []DocumentModel
	if err := g.db.Order("seq asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromModels(models)
}

// ListDocumentsByOwner returns records filtered by owner.
func (g *GormStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := g.db.Where("owner_id = ?", ownerID).Order("seq asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromModels(models)
}

// DeleteDocument removes a record.
func (g *GormStore) DeleteDocument(id string) error {
	return g.db.Where("id = ?", id).Delete(&DocumentModel{}).Error
}

// SaveKeyInfo inserts or replaces a user's key info.
func (g *GormStore) SaveKeyInfo(info domain.UserKeyInfo) error {
	model := UserKeyModel{
		UserID:         info.UserID,
		HasKeys:        info.HasKeys,
		KeyGeneratedAt: info.KeyGeneratedAt,
	}
	return g.db.Save(&model).Error
}

// GetKeyInfo retrieves key info for a user.
func (g *GormStore) GetKeyInfo(userID string) (domain.UserKeyInfo, bool, error) {
	var model UserKeyModel
	err := g.db.Where("user_id = ?", userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UserKeyInfo{}, false, nil
	}
	if err != nil {
		return domain.UserKeyInfo{}, false, err
	}
	return domain.UserKeyInfo{
		UserID:         model.UserID,
		HasKeys:        model.HasKeys,
		KeyGeneratedAt: model.KeyGeneratedAt,
	}, true, nil
}

func toModel(d domain.Document) (DocumentModel, error) {
	signatures, err := json.Marshal(d.Signatures)
	if err != nil {
		return DocumentModel{}, fmt.Errorf("serialize signatures: %w", err)
	}
	shared, err := json.Marshal(d.SharedWith)
	if err != nil {
		return DocumentModel{}, fmt.Errorf("serialize shared list: %w", err)
	}
	history, err := json.Marshal(d.History)
	if err != nil {
		return DocumentModel{}, fmt.Errorf("serialize history: %w", err)
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return DocumentModel{}, fmt.Errorf("serialize metadata: %w", err)
	}
	return DocumentModel{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Title:         d.Title,
		FileName:      d.FileName,
		FileType:      d.FileType,
		UploadedAt:    d.UploadedAt,
		Status:        string(d.Status),
		Hash:          d.Hash,
		CryptoHash:    d.CryptoHash,
		LedgerTxID:    d.LedgerTxID,
		SecurityLevel: string(d.SecurityLevel),
		ExpiryDate:    d.ExpiryDate,
		Revoked:       d.Revoked,
		RevokedReason: d.RevokedReason,
		PayloadKey:    d.PayloadKey,
		Signatures:    datatypes.JSON(signatures),
		SharedWith:    datatypes.JSON(shared),
		History:       datatypes.JSON(history),
		Metadata:      datatypes.JSON(metadata),
		SignedPackage: d.SignedPackage,
	}, nil
}

func fromModel(m DocumentModel) (domain.Document, error) {
	doc := domain.Document{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Title:         m.Title,
		FileName:      m.FileName,
		FileType:      m.FileType,
		UploadedAt:    m.UploadedAt,
		Status:        domain.DocumentStatus(m.Status),
		Hash:          m.Hash,
		CryptoHash:    m.CryptoHash,
		LedgerTxID:    m.LedgerTxID,
		SecurityLevel: domain.SecurityLevel(m.SecurityLevel),
		ExpiryDate:    m.ExpiryDate,
		Revoked:       m.Revoked,
		RevokedReason: m.RevokedReason,
		PayloadKey:    m.PayloadKey,
		SignedPackage: m.SignedPackage,
	}
	if len(m.Signatures) > 0 {
		if err := json.Unmarshal(m.Signatures, &doc.Signatures); err != nil {
			return domain.Document{}, fmt.Errorf("parse signatures: %w", err)
		}
	}
	if len(m.SharedWith) > 0 {
		if err := json.Unmarshal(m.SharedWith, &doc.SharedWith); err != nil {
			return domain.Document{}, fmt.Errorf("parse shared list: %w", err)
		}
	}
	if len(m.History) > 0 {
		if err := json.Unmarshal(m.History, &doc.History); err != nil {
			return domain.Document{}, fmt.Errorf("parse history: %w", err)
		}
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &doc.Metadata); err != nil {
			return domain.Document{}, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return doc, nil
}

func fromModels(models []DocumentModel) ([]domain.Document, error) {
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		doc, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, nil
}
