package registry

import (
	"errors"
	"testing"
	"time"

	"securesign/pkg/domain"
)

func sampleDocument(id string) domain.Document {
	return domain.Document{
		ID:            id,
		OwnerID:       "user-1",
		Title:         "Contract",
		FileName:      "contract.pdf",
		FileType:      "pdf",
		UploadedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:        domain.StatusUploaded,
		Hash:          "abc123",
		SecurityLevel: domain.LevelCritical,
		Signatures:    []domain.Signature{},
		SharedWith:    []string{},
		History:       []domain.VerificationRecord{},
		Metadata: domain.Metadata{
			CreatedBy:          "user-1",
			CreatedAt:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Size:               1024,
			Version:            1,
			SignaturesRequired: 2,
		},
	}
}

func TestAddAndFind(t *testing.T) {
	reg := New(NewMemoryStore())
	doc, err := reg.Add(sampleDocument("doc-1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := reg.Find(doc.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Title != "Contract" || got.Metadata.SignaturesRequired != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if _, err := reg.Find("missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestAddRejectsDuplicateID(t *testing.T) {
	reg := New(NewMemoryStore())
	if _, err := reg.Add(sampleDocument("doc-1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := reg.Add(sampleDocument("doc-1")); err == nil {
		t.Fatal("expected duplicate ID to be rejected")
	}
}

func TestAddAssignsID(t *testing.T) {
	reg := New(NewMemoryStore())
	doc := sampleDocument("")
	added, err := reg.Add(doc)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected assigned ID")
	}
}

// Update must apply mutations to the freshest stored record, so two
// appends through stale outer copies never lose each other.
func TestUpdateReloadsBeforeMutating(t *testing.T) {
	reg := New(NewMemoryStore())
	doc, err := reg.Add(sampleDocument("doc-1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	appendSig := func(userID string) {
		t.Helper()
		_, err := reg.Update(doc.ID, func(d *domain.Document) error {
			d.Signatures = append(d.Signatures, domain.Signature{ID: NewID(), UserID: userID})
			return nil
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	appendSig("user-1")
	appendSig("user-2")

	got, err := reg.Find(doc.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Signatures) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(got.Signatures))
	}
}

func TestUpdateErrorLeavesRecordUntouched(t *testing.T) {
	reg := New(NewMemoryStore())
	doc, err := reg.Add(sampleDocument("doc-1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	boom := errors.New("boom")
	if _, err := reg.Update(doc.ID, func(d *domain.Document) error {
		d.Status = domain.StatusRevoked
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	got, err := reg.Find(doc.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != domain.StatusUploaded {
		t.Fatalf("expected status untouched, got %s", got.Status)
	}
}

func TestListByOwner(t *testing.T) {
	reg := New(NewMemoryStore())
	a := sampleDocument("doc-1")
	b := sampleDocument("doc-2")
	b.OwnerID = "user-2"
	for _, d := range []domain.Document{a, b} {
		if _, err := reg.Add(d); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	docs, err := reg.ListByOwner("user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-1" {
		t.Fatalf("unexpected listing: %+v", docs)
	}
}

func TestKeyInfoRoundTrip(t *testing.T) {
	reg := New(NewMemoryStore())
	if _, ok, err := reg.KeyInfo("user-1"); err != nil || ok {
		t.Fatalf("expected no key info, ok=%v err=%v", ok, err)
	}
	info := domain.UserKeyInfo{UserID: "user-1", HasKeys: true, KeyGeneratedAt: time.Now().UTC()}
	if err := reg.SaveKeyInfo(info); err != nil {
		t.Fatalf("save key info: %v", err)
	}
	got, ok, err := reg.KeyInfo("user-1")
	if err != nil || !ok {
		t.Fatalf("key info: ok=%v err=%v", ok, err)
	}
	if !got.HasKeys {
		t.Fatal("expected HasKeys")
	}
}
