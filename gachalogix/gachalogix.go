// Package gachalogix implements a gacha economy for Nakama: weighted card
// draws from an immutable catalog, per-user collections with duplicate
// detection, a time-gated draw reserve and one-time promotional code
// redemption, all persisted in shared versioned storage objects under
// optimistic concurrency control.
package gachalogix

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Init loads the gacha definition file, builds the catalog, stores and
// system, and registers the RPC surface.
func Init(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, initializer runtime.Initializer, configFile string) (GachaSystem, error) {
	logger.Info("Initializing gacha system, config file: %s", configFile)

	configData, err := nk.ReadFile(configFile)
	if err != nil {
		logger.Error("Failed to read config file %s: %v", configFile, err)
		return nil, err
	}
	configBytes, err := io.ReadAll(configData)
	configData.Close()
	if err != nil {
		logger.Error("Failed to read config file contents: %v", err)
		return nil, err
	}

	config := &GachaConfig{}
	if err := json.Unmarshal(configBytes, config); err != nil {
		logger.Error("Failed to parse gacha config: %v", err)
		return nil, err
	}
	config.applyDefaults()
	if err := config.validate(); err != nil {
		logger.Error("Invalid gacha config: %v", err)
		return nil, err
	}

	catalog, err := NewCatalog(config.Catalog, nk.ReadFile)
	if err != nil {
		logger.Error("Failed to load catalog: %v", err)
		return nil, err
	}

	docStore := NewNakamaDocumentStore(nk, config.Store.Collection, time.Duration(config.Store.TimeoutSec)*time.Second)
	inventoryStore := NewInventoryStore(docStore, config.Store.InventoryKey)
	ledgerStore := NewLedgerStore(docStore, config.Store.LedgerKey, config.Codes)

	system := NewNakamaGachaSystem(config, catalog, inventoryStore, ledgerStore)

	if err := initializer.RegisterRpc(RpcIdGachaDraw, rpcGachaDraw(system)); err != nil {
		return nil, err
	}
	if err := initializer.RegisterRpc(RpcIdGachaOpenPack, rpcGachaOpenPack(system)); err != nil {
		return nil, err
	}
	if err := initializer.RegisterRpc(RpcIdGachaInventory, rpcGachaInventory(system)); err != nil {
		return nil, err
	}
	if err := initializer.RegisterRpc(RpcIdGachaReserve, rpcGachaReserve(system)); err != nil {
		return nil, err
	}
	if err := initializer.RegisterRpc(RpcIdGachaRedeem, rpcGachaRedeem(system)); err != nil {
		return nil, err
	}
	if err := initializer.RegisterRpc(RpcIdGachaReset, rpcGachaReset(system)); err != nil {
		return nil, err
	}

	return system, nil
}
