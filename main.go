package main

import (
	"context"
	"database/sql"
	"time"

	"gachaforge/gachalogix"

	"github.com/heroiclabs/nakama-common/runtime"
)

const gachaConfigFile = "gacha.json"

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading Gachaforge Nakama plugin...")

	if _, err := gachalogix.Init(ctx, logger, nk, initializer, gachaConfigFile); err != nil {
		logger.Error("Failed to initialize gacha system: %v", err)
		return err
	}

	logger.Info("Gachaforge Nakama plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}

// main is unused; the module is loaded as a Nakama plugin via InitModule.
func main() {}
