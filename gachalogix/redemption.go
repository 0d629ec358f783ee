package gachalogix

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// Redeem applies a promotional code's reward exactly once per (user, code).
//
// The ledger is written first: the (user, code) mark commits under
// compare-and-swap before the reward touches the inventory document, so the
// reward can never be granted twice. Each retry re-reads the ledger and
// re-checks the used-code set, which also closes the race between two
// near-simultaneous redemptions of the same code: the loser's write
// conflicts, and its reload sees the mark.
//
// The two documents are not updated atomically. A crash between the ledger
// write and the inventory write burns the code without its reward; that is
// the accepted side of the ledger-first ordering.
func (g *NakamaGachaSystem) Redeem(ctx context.Context, logger runtime.Logger, userID, code string) (*RedeemResult, error) {
	if userID == "" {
		return nil, ErrNoSessionUser
	}
	if code == "" {
		return nil, ErrBadInput
	}

	var reward *CodeReward
	var receipt *RedemptionReceipt
	committed := false
	for attempt := 0; attempt < g.maxWriteRetries; attempt++ {
		ledger, version, err := g.ledger.Load(ctx)
		if err != nil {
			logger.Error("Failed to load redemption ledger: %v", err)
			return nil, err
		}

		r, valid := ledger.ValidCode(code)
		if !valid {
			return &RedeemResult{Outcome: RedeemOutcomeInvalidCode}, nil
		}
		if ledger.Redeemed(userID, code) {
			return &RedeemResult{Outcome: RedeemOutcomeAlreadyRedeemed}, nil
		}

		receipt = &RedemptionReceipt{
			ID:            uuid.NewString(),
			RedeemTimeSec: g.now().Unix(),
		}
		ledger.MarkRedeemed(userID, code, receipt)

		if _, err := g.ledger.Save(ctx, ledger, version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				logger.Debug("Redemption ledger version conflict, retrying (attempt %d)", attempt+1)
				continue
			}
			logger.Error("Failed to save redemption ledger: %v", err)
			return nil, err
		}
		reward = r
		committed = true
		break
	}
	if !committed {
		logger.Warn("Redemption ledger write retries exhausted for code %s", code)
		return nil, ErrStoreUnavailable
	}

	var reserve int32
	err := g.withInventory(ctx, logger, func(collections map[string]*UserInventory) (bool, error) {
		inv := g.userRecord(collections, userID, g.now())
		g.applyCodeReward(inv, reward)
		reserve = inv.ReserveCount
		return true, nil
	})
	if err != nil {
		// The ledger mark is already committed; the reward is lost until an
		// operator intervenes. Surface loudly rather than pretend otherwise.
		logger.Error("Code %s marked redeemed for user %s but reward grant failed: %v", code, userID, err)
		return nil, err
	}

	return &RedeemResult{
		Outcome: RedeemOutcomeGranted,
		Receipt: receipt.ID,
		Reward:  reward,
		Reserve: reserve,
	}, nil
}

// applyCodeReward mutates the user record with the code's grant. Reserve
// grants are capped at capacity; item grants go through the usual dedup.
func (g *NakamaGachaSystem) applyCodeReward(inv *UserInventory, reward *CodeReward) {
	if reward.ReserveUnits > 0 {
		inv.ReserveCount += reward.ReserveUnits
		if inv.ReserveCount > g.capacity {
			inv.ReserveCount = g.capacity
		}
	}
	if reward.TierID != "" && reward.Item != "" {
		inv.AddItem(reward.TierID, reward.Item)
	}
}
