package gachalogix

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/require"
)

// testNakamaModule is a test double for runtime.NakamaModule backed by an
// in-memory versioned store, so compare-and-swap conflicts behave like the
// real storage engine. Only the methods the gacha system needs are
// implemented.
type testNakamaModule struct {
	runtime.NakamaModule

	mu      sync.Mutex
	objects map[string]*storedObject
	writes  map[string]int

	// failWrites rejects the next N writes per key with the storage
	// engine's version-check error, without touching the stored object.
	failWrites map[string]int

	// beforeWrite runs under the lock ahead of each write attempt, letting
	// tests interleave a competing writer.
	beforeWrite func(key string)
}

type storedObject struct {
	value   string
	version int
}

func newTestNakama() *testNakamaModule {
	return &testNakamaModule{
		objects:    make(map[string]*storedObject),
		writes:     make(map[string]int),
		failWrites: make(map[string]int),
	}
}

var errVersionCheck = errors.New("storage write rejected: version check failed")

func storageKey(collection, key string) string {
	return collection + "/" + key
}

func (n *testNakamaModule) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	result := make([]*api.StorageObject, 0, len(reads))
	for _, read := range reads {
		obj, ok := n.objects[storageKey(read.Collection, read.Key)]
		if !ok {
			continue
		}
		result = append(result, &api.StorageObject{
			Collection: read.Collection,
			Key:        read.Key,
			UserId:     read.UserID,
			Value:      obj.value,
			Version:    strconv.Itoa(obj.version),
		})
	}
	return result, nil
}

func (n *testNakamaModule) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	result := make([]*api.StorageObjectAck, 0, len(writes))
	for _, write := range writes {
		if n.beforeWrite != nil {
			n.beforeWrite(write.Key)
		}
		key := storageKey(write.Collection, write.Key)
		if n.failWrites[key] > 0 {
			n.failWrites[key]--
			return nil, errVersionCheck
		}

		obj, exists := n.objects[key]
		switch write.Version {
		case "":
			// Unconditional write.
		case "*":
			if exists {
				return nil, errVersionCheck
			}
		default:
			if !exists || strconv.Itoa(obj.version) != write.Version {
				return nil, errVersionCheck
			}
		}

		next := 1
		if exists {
			next = obj.version + 1
		}
		n.objects[key] = &storedObject{value: write.Value, version: next}
		n.writes[key]++
		result = append(result, &api.StorageObjectAck{
			Collection: write.Collection,
			Key:        write.Key,
			UserId:     write.UserID,
			Version:    strconv.Itoa(next),
		})
	}
	return result, nil
}

// putObject seeds a stored document directly, bypassing version checks.
func (n *testNakamaModule) putObject(collection, key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	obj, exists := n.objects[storageKey(collection, key)]
	version := 1
	if exists {
		version = obj.version + 1
	}
	n.objects[storageKey(collection, key)] = &storedObject{value: value, version: version}
}

func (n *testNakamaModule) getObject(collection, key string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	obj, ok := n.objects[storageKey(collection, key)]
	if !ok {
		return "", false
	}
	return obj.value, true
}

func (n *testNakamaModule) writeCount(collection, key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writes[storageKey(collection, key)]
}

// mockLogger is a no-op runtime.Logger for tests.
type mockLogger struct{}

func (l *mockLogger) Debug(format string, v ...interface{})                   {}
func (l *mockLogger) Info(format string, v ...interface{})                    {}
func (l *mockLogger) Warn(format string, v ...interface{})                    {}
func (l *mockLogger) Error(format string, v ...interface{})                   {}
func (l *mockLogger) WithField(key string, v interface{}) runtime.Logger      { return l }
func (l *mockLogger) WithFields(fields map[string]interface{}) runtime.Logger { return l }
func (l *mockLogger) Fields() map[string]interface{}                          { return nil }

// seqRand pops pre-baked values. Each value must already be valid for the
// Intn bound it will be consumed by; running out is a test bug.
type seqRand struct {
	seq []int
}

func (r *seqRand) Intn(n int) int {
	if len(r.seq) == 0 {
		panic("seqRand exhausted")
	}
	v := r.seq[0]
	r.seq = r.seq[1:]
	if v >= n {
		panic("seqRand value out of range")
	}
	return v
}

func testCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		Tiers: []*CatalogConfigTier{
			{ID: "common", Weight: 78, Items: []string{"Slime", "Goblin", "Rat"}},
			{ID: "rare", Weight: 15, Items: []string{"Knight", "Mage"}},
			{ID: "epic", Weight: 5, Items: []string{"Dragon"}},
			{ID: "legendary", Weight: 2, Items: []string{"Phoenix"}},
		},
	}
}

func testGachaConfig() *GachaConfig {
	config := &GachaConfig{
		Catalog: testCatalogConfig(),
		Codes: map[string]*CodeReward{
			"PACKS5":  {ReserveUnits: 5},
			"DRAGON1": {TierID: "epic", Item: "Dragon"},
		},
	}
	config.applyDefaults()
	return config
}

// newTestSystem builds a gacha system over the fake Nakama module with a
// fixed clock and a caller-controlled random sequence.
func newTestSystem(t *testing.T, nk *testNakamaModule, config *GachaConfig) *NakamaGachaSystem {
	t.Helper()
	if config == nil {
		config = testGachaConfig()
	}
	require.NoError(t, config.validate())

	catalog, err := NewCatalog(config.Catalog, nil)
	require.NoError(t, err)

	docStore := NewNakamaDocumentStore(nk, config.Store.Collection, time.Duration(config.Store.TimeoutSec)*time.Second)
	inventoryStore := NewInventoryStore(docStore, config.Store.InventoryKey)
	ledgerStore := NewLedgerStore(docStore, config.Store.LedgerKey, config.Codes)

	return NewNakamaGachaSystem(config, catalog, inventoryStore, ledgerStore)
}

// seedInventory stores a user record directly in the fake module.
func seedInventory(t *testing.T, nk *testNakamaModule, config *GachaConfig, userID string, inv *UserInventory) {
	t.Helper()
	doc := &userCollectionsDocument{Collections: map[string]*UserInventory{userID: inv}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	nk.putObject(config.Store.Collection, config.Store.InventoryKey, string(data))
}

// loadInventory reads a user record back out of the fake module.
func loadInventory(t *testing.T, nk *testNakamaModule, config *GachaConfig, userID string) *UserInventory {
	t.Helper()
	value, ok := nk.getObject(config.Store.Collection, config.Store.InventoryKey)
	require.True(t, ok, "user collections document not persisted")
	doc := &userCollectionsDocument{}
	require.NoError(t, json.Unmarshal([]byte(value), doc))
	inv, ok := doc.Collections[userID]
	require.True(t, ok, "user %s not in persisted collections", userID)
	return inv
}

func loadLedger(t *testing.T, nk *testNakamaModule, config *GachaConfig) *RedemptionLedger {
	t.Helper()
	value, ok := nk.getObject(config.Store.Collection, config.Store.LedgerKey)
	require.True(t, ok, "redemption ledger document not persisted")
	ledger := &RedemptionLedger{}
	require.NoError(t, json.Unmarshal([]byte(value), ledger))
	return ledger
}
