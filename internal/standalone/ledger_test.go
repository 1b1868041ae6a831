package standalone

import (
	"testing"
	"time"

	"securesign/pkg/domain"
)

func recordAction(t *testing.T, l *Ledger, actionType domain.LedgerActionType, docID string) string {
	t.Helper()
	hash, err := l.Record(domain.LedgerAction{
		ActionType: actionType,
		UserID:     "user-1",
		DocumentID: docID,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return hash
}

func TestLedgerChainsBlocks(t *testing.T) {
	l := NewLedger()
	first := recordAction(t, l, domain.ActionUpload, "doc-1")
	recordAction(t, l, domain.ActionSign, "doc-1")

	history, err := l.DocumentHistory("doc-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(history))
	}
	if history[0].PrevHash != "" {
		t.Fatalf("genesis block has previous hash %q", history[0].PrevHash)
	}
	if history[1].PrevHash != first {
		t.Fatal("second block not linked to first")
	}

	status, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if !status.Valid || status.TotalBlocks != 2 {
		t.Fatalf("expected valid 2-block chain, got %+v", status)
	}
}

func TestLedgerDetectsTampering(t *testing.T) {
	l := NewLedger()
	recordAction(t, l, domain.ActionUpload, "doc-1")
	recordAction(t, l, domain.ActionSign, "doc-1")

	l.blocks[0].UserID = "someone-else"

	status, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if status.Valid {
		t.Fatal("tampered chain reported valid")
	}
}

func TestLedgerStats(t *testing.T) {
	l := NewLedger()
	recordAction(t, l, domain.ActionUpload, "doc-1")
	recordAction(t, l, domain.ActionUpload, "doc-2")
	recordAction(t, l, domain.ActionSign, "doc-1")

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBlocks != 3 {
		t.Fatalf("expected 3 blocks, got %d", stats.TotalBlocks)
	}
	if stats.ActionsByType["UPLOAD"] != 2 || stats.ActionsByType["SIGN"] != 1 {
		t.Fatalf("unexpected counts: %+v", stats.ActionsByType)
	}
}

func TestLedgerUserActions(t *testing.T) {
	l := NewLedger()
	recordAction(t, l, domain.ActionUpload, "doc-1")
	if _, err := l.Record(domain.LedgerAction{
		ActionType: domain.ActionUpload,
		UserID:     "user-2",
		DocumentID: "doc-2",
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	actions, err := l.UserActions("user-1")
	if err != nil {
		t.Fatalf("user actions: %v", err)
	}
	if len(actions) != 1 || actions[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
}
