package gachalogix

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
)

// RPC identifiers registered by Init.
const (
	RpcIdGachaDraw      = "gacha_draw"
	RpcIdGachaOpenPack  = "gacha_open_pack"
	RpcIdGachaInventory = "gacha_inventory"
	RpcIdGachaReserve   = "gacha_reserve"
	RpcIdGachaRedeem    = "gacha_redeem"
	RpcIdGachaReset     = "gacha_reset"
)

func sessionUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if !ok || userID == "" {
		return "", ErrNoSessionUser
	}
	return userID, nil
}

func rpcGachaDraw(g GachaSystem) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if g == nil {
			return "", ErrSystemNotFound
		}
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		result, err := g.Draw(ctx, logger, userID)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(result)
		if err != nil {
			logger.Error("Failed to marshal draw result: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}

func rpcGachaOpenPack(g GachaSystem) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if g == nil {
			return "", ErrSystemNotFound
		}
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		result, err := g.OpenPack(ctx, logger, userID)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(result)
		if err != nil {
			logger.Error("Failed to marshal pack result: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}

func rpcGachaInventory(g GachaSystem) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if g == nil {
			return "", ErrSystemNotFound
		}
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		tiers, err := g.Inventory(ctx, logger, userID)
		if err != nil {
			return "", err
		}

		response := struct {
			Tiers []*TierInventory `json:"tiers"`
		}{Tiers: tiers}

		data, err := json.Marshal(&response)
		if err != nil {
			logger.Error("Failed to marshal inventory: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}

func rpcGachaReserve(g GachaSystem) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if g == nil {
			return "", ErrSystemNotFound
		}
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		reserve, err := g.Reserve(ctx, logger, userID)
		if err != nil {
			return "", err
		}

		response := struct {
			Reserve int32 `json:"reserve"`
		}{Reserve: reserve}

		data, err := json.Marshal(&response)
		if err != nil {
			logger.Error("Failed to marshal reserve: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}

func rpcGachaRedeem(g GachaSystem) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if g == nil {
			return "", ErrSystemNotFound
		}
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		var request struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal redeem request: %v", err)
			return "", ErrPayloadDecode
		}
		if request.Code == "" {
			return "", ErrBadInput
		}

		result, err := g.Redeem(ctx, logger, userID, request.Code)
		if err != nil {
			return "", err
		}

		data, err := json.Marshal(result)
		if err != nil {
			logger.Error("Failed to marshal redeem result: %v", err)
			return "", ErrPayloadEncode
		}
		return string(data), nil
	}
}

// rpcGachaReset deletes the user's collection progress. The payload must
// carry an explicit confirmation; the transport layer is expected to run its
// own confirm/cancel exchange before sending it.
func rpcGachaReset(g GachaSystem) func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if g == nil {
			return "", ErrSystemNotFound
		}
		userID, err := sessionUserID(ctx)
		if err != nil {
			return "", err
		}

		var request struct {
			Confirm bool `json:"confirm"`
		}
		if err := json.Unmarshal([]byte(payload), &request); err != nil {
			logger.Error("Failed to unmarshal reset request: %v", err)
			return "", ErrPayloadDecode
		}
		if !request.Confirm {
			return "", ErrResetNotConfirmed
		}

		if err := g.Reset(ctx, logger, userID); err != nil {
			return "", err
		}
		return `{"reset": true}`, nil
	}
}
