package gachalogix

import (
	"context"
	"encoding/json"
	"fmt"
)

// UserInventory is one user's record inside the shared collection document:
// the per-tier owned item sets, the draw reserve and the anchor of the last
// successful replenishment. Mutated only by the gacha system.
type UserInventory struct {
	Tiers              map[string][]string `json:"tiers,omitempty"`
	ReserveCount       int32               `json:"reserve_count"`
	LastReplenishAtSec int64               `json:"last_replenish_at_sec"`
}

// HasItem reports set membership; the stored slice order is irrelevant.
func (u *UserInventory) HasItem(tierID, item string) bool {
	for _, owned := range u.Tiers[tierID] {
		if owned == item {
			return true
		}
	}
	return false
}

// AddItem inserts the item into the tier's owned set. It reports false for a
// duplicate, leaving the set unchanged.
func (u *UserInventory) AddItem(tierID, item string) bool {
	if u.HasItem(tierID, item) {
		return false
	}
	if u.Tiers == nil {
		u.Tiers = make(map[string][]string)
	}
	u.Tiers[tierID] = append(u.Tiers[tierID], item)
	return true
}

// userCollectionsDocument is the whole-dataset document persisted as one
// blob. There is no per-user partial write: the collection is read, mutated
// and written back as a unit under compare-and-swap.
type userCollectionsDocument struct {
	Collections map[string]*UserInventory `json:"collections,omitempty"`
}

// InventoryStore is the typed layer over the DocumentStore for the user
// inventory dataset.
type InventoryStore struct {
	store DocumentStore
	key   string
}

func NewInventoryStore(store DocumentStore, key string) *InventoryStore {
	return &InventoryStore{store: store, key: key}
}

// Load returns the full user-inventory collection with its version token. An
// absent document yields an empty collection and the empty version.
func (s *InventoryStore) Load(ctx context.Context) (map[string]*UserInventory, string, error) {
	data, version, err := s.store.Read(ctx, s.key)
	if err != nil {
		return nil, "", err
	}

	doc := &userCollectionsDocument{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal user collections: %w", err)
		}
	}
	if doc.Collections == nil {
		doc.Collections = make(map[string]*UserInventory)
	}
	return doc.Collections, version, nil
}

// Save writes the full collection back against the version read by Load.
func (s *InventoryStore) Save(ctx context.Context, collections map[string]*UserInventory, version string) (string, error) {
	data, err := json.Marshal(&userCollectionsDocument{Collections: collections})
	if err != nil {
		return "", fmt.Errorf("failed to marshal user collections: %w", err)
	}
	return s.store.Write(ctx, s.key, data, version)
}
