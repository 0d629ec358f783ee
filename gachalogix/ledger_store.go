package gachalogix

import (
	"context"
	"encoding/json"
	"fmt"
)

// RedemptionReceipt records one completed (user, code) redemption.
type RedemptionReceipt struct {
	ID            string `json:"id"`
	RedeemTimeSec int64  `json:"redeem_time_sec"`
}

// RedemptionLedger is the code catalog plus the per-user used-code record.
// A (user, code) pair moves from unredeemed to redeemed exactly once and is
// never reverted; the gacha system consults valid codes but never creates or
// deletes them.
type RedemptionLedger struct {
	ValidCodes map[string]*CodeReward                   `json:"valid_codes,omitempty"`
	UsedCodes  map[string]map[string]*RedemptionReceipt `json:"used_codes,omitempty"`
}

// ValidCode looks the code up in the valid-code table.
func (l *RedemptionLedger) ValidCode(code string) (*CodeReward, bool) {
	reward, ok := l.ValidCodes[code]
	return reward, ok
}

// Redeemed reports whether the user has already used the code.
func (l *RedemptionLedger) Redeemed(userID, code string) bool {
	_, ok := l.UsedCodes[userID][code]
	return ok
}

// MarkRedeemed records the receipt for the (user, code) pair.
func (l *RedemptionLedger) MarkRedeemed(userID, code string, receipt *RedemptionReceipt) {
	if l.UsedCodes == nil {
		l.UsedCodes = make(map[string]map[string]*RedemptionReceipt)
	}
	if l.UsedCodes[userID] == nil {
		l.UsedCodes[userID] = make(map[string]*RedemptionReceipt)
	}
	l.UsedCodes[userID][code] = receipt
}

// LedgerStore is the typed layer over the DocumentStore for the redemption
// ledger dataset. When the document does not exist yet the ledger is seeded
// with the configured code catalog; after the first write the stored
// valid-code table is authoritative.
type LedgerStore struct {
	store     DocumentStore
	key       string
	seedCodes map[string]*CodeReward
}

func NewLedgerStore(store DocumentStore, key string, seedCodes map[string]*CodeReward) *LedgerStore {
	return &LedgerStore{store: store, key: key, seedCodes: seedCodes}
}

// Load returns the ledger with its version token.
func (s *LedgerStore) Load(ctx context.Context) (*RedemptionLedger, string, error) {
	data, version, err := s.store.Read(ctx, s.key)
	if err != nil {
		return nil, "", err
	}

	ledger := &RedemptionLedger{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, ledger); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal redemption ledger: %w", err)
		}
	} else {
		ledger.ValidCodes = make(map[string]*CodeReward, len(s.seedCodes))
		for code, reward := range s.seedCodes {
			ledger.ValidCodes[code] = reward
		}
	}
	return ledger, version, nil
}

// Save writes the ledger back against the version read by Load.
func (s *LedgerStore) Save(ctx context.Context, ledger *RedemptionLedger, version string) (string, error) {
	data, err := json.Marshal(ledger)
	if err != nil {
		return "", fmt.Errorf("failed to marshal redemption ledger: %w", err)
	}
	return s.store.Write(ctx, s.key, data, version)
}
