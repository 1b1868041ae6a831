package standalone

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"securesign/internal/lifecycle"
	"securesign/pkg/domain"
)

// Ledger is the in-process ledger capability for standalone mode: an
// append-only hash chain where each block's hash covers the previous
// hash and the block's canonical JSON, so any tampering breaks the
// chain from that block onward.
type Ledger struct {
	mu     sync.Mutex
	blocks []domain.LedgerEntry
}

// NewLedger builds an empty chain.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends a block and returns its hash.
func (l *Ledger) Record(action domain.LedgerAction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := ""
	if n := len(l.blocks); n > 0 {
		prev = l.blocks[n-1].Hash
	}
	entry := domain.LedgerEntry{
		BlockID:    int64(len(l.blocks) + 1),
		PrevHash:   prev,
		ActionType: action.ActionType,
		UserID:     action.UserID,
		DocumentID: action.DocumentID,
		Timestamp:  action.Timestamp,
		Data:       action.ActionData,
	}
	hash, err := blockHash(entry)
	if err != nil {
		return "", err
	}
	entry.Hash = hash
	l.blocks = append(l.blocks, entry)
	return hash, nil
}

// DocumentHistory lists blocks recorded for a document, oldest first.
func (l *Ledger) DocumentHistory(documentID string) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.LedgerEntry
	for _, b := range l.blocks {
		if b.DocumentID == documentID {
			out = append(out, b)
		}
	}
	return out, nil
}

// UserActions lists blocks recorded for a user, oldest first.
func (l *Ledger) UserActions(userID string) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.LedgerEntry
	for _, b := range l.blocks {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

// VerifyChain recomputes every block hash and checks the links.
func (l *Ledger) VerifyChain() (lifecycle.ChainStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := ""
	for _, b := range l.blocks {
		if b.PrevHash != prev {
			return lifecycle.ChainStatus{
				Valid:       false,
				Message:     fmt.Sprintf("broken link at block %d", b.BlockID),
				TotalBlocks: int64(len(l.blocks)),
			}, nil
		}
		stored := b.Hash
		b.Hash = ""
		recomputed, err := blockHash(b)
		if err != nil {
			return lifecycle.ChainStatus{}, err
		}
		if recomputed != stored {
			return lifecycle.ChainStatus{
				Valid:       false,
				Message:     fmt.Sprintf("hash mismatch at block %d", b.BlockID),
				TotalBlocks: int64(len(l.blocks)),
			}, nil
		}
		prev = stored
	}
	return lifecycle.ChainStatus{
		Valid:       true,
		Message:     "chain intact",
		TotalBlocks: int64(len(l.blocks)),
	}, nil
}

// Stats aggregates block counts by action type.
func (l *Ledger) Stats() (lifecycle.LedgerStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byType := make(map[string]int64)
	for _, b := range l.blocks {
		byType[string(b.ActionType)]++
	}
	return lifecycle.LedgerStats{
		TotalBlocks:   int64(len(l.blocks)),
		ActionsByType: byType,
	}, nil
}

// blockHash hashes previous_hash concatenated with the block's
// canonical JSON, the Hash field itself excluded.
func blockHash(entry domain.LedgerEntry) (string, error) {
	entry.Hash = ""
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("serialize block: %w", err)
	}
	sum := sha256.Sum256(append([]byte(entry.PrevHash), data...))
	return hex.EncodeToString(sum[:]), nil
}
