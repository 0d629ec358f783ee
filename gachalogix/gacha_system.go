package gachalogix

import (
	"context"
	"errors"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

// NakamaGachaSystem implements the GachaSystem interface over the two shared
// documents. It holds no mutable state of its own: every operation is a
// read-modify-write cycle against the current document version, retried with
// a fresh load on conflict.
type NakamaGachaSystem struct {
	catalog   *Catalog
	strategy  DrawStrategy
	inventory *InventoryStore
	ledger    *LedgerStore

	rng Rand
	now func() time.Time

	capacity        int32
	replenishCount  int32
	replenishWindow time.Duration
	replenishSched  cron.Schedule
	packSize        int
	chargeOnFailure bool
	maxWriteRetries int
}

// NewNakamaGachaSystem creates the gacha system from a validated config. The
// config must have had defaults applied.
func NewNakamaGachaSystem(config *GachaConfig, catalog *Catalog, inventory *InventoryStore, ledger *LedgerStore) *NakamaGachaSystem {
	g := &NakamaGachaSystem{
		catalog:         catalog,
		strategy:        newDrawStrategy(config.Draw.Strategy),
		inventory:       inventory,
		ledger:          ledger,
		rng:             systemRand{},
		now:             time.Now,
		capacity:        config.Reserve.Capacity,
		replenishCount:  config.Reserve.ReplenishCount,
		replenishWindow: time.Duration(config.Reserve.ReplenishSec) * time.Second,
		packSize:        config.Draw.PackSize,
		chargeOnFailure: *config.Draw.ChargeOnSamplingFailure,
		maxWriteRetries: config.Store.MaxWriteRetries,
	}
	if expr := config.Reserve.ReplenishCronexpr; expr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		// Validated at config load.
		g.replenishSched, _ = parser.Parse(expr)
	}
	return g
}

// withInventory runs fn inside a bounded compare-and-swap retry loop. Each
// attempt starts from a fresh load, so fn must derive everything it mutates
// from the collection it is handed. fn's first return value reports whether
// the collection changed and must be persisted.
func (g *NakamaGachaSystem) withInventory(ctx context.Context, logger runtime.Logger, fn func(collections map[string]*UserInventory) (bool, error)) error {
	for attempt := 0; attempt < g.maxWriteRetries; attempt++ {
		collections, version, err := g.inventory.Load(ctx)
		if err != nil {
			logger.Error("Failed to load user collections: %v", err)
			return err
		}

		persist, err := fn(collections)
		if err != nil {
			return err
		}
		if !persist {
			return nil
		}

		if _, err := g.inventory.Save(ctx, collections, version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				logger.Debug("User collections version conflict, retrying (attempt %d)", attempt+1)
				continue
			}
			logger.Error("Failed to save user collections: %v", err)
			return err
		}
		return nil
	}
	logger.Warn("User collections write retries exhausted")
	return ErrStoreUnavailable
}

// userRecord locates the user's record, creating it lazily with a full
// reserve anchored at now.
func (g *NakamaGachaSystem) userRecord(collections map[string]*UserInventory, userID string, now time.Time) *UserInventory {
	inv, ok := collections[userID]
	if !ok {
		inv = &UserInventory{
			Tiers:              make(map[string][]string),
			ReserveCount:       g.capacity,
			LastReplenishAtSec: now.Unix(),
		}
		collections[userID] = inv
	}
	return inv
}

// replenish applies any due regeneration in place and reports whether the
// record changed. The regeneration is windowed, not a trickle: it fires at
// most once per call, only when the full window has elapsed since the last
// successful replenishment, and adds at most
// min(replenishCount, capacity-reserve). In cron mode the reserve instead
// refills to capacity at each schedule boundary.
func (g *NakamaGachaSystem) replenish(inv *UserInventory, now time.Time) bool {
	last := time.Unix(inv.LastReplenishAtSec, 0)

	if g.replenishSched != nil {
		if now.Before(g.replenishSched.Next(last)) {
			return false
		}
		inv.ReserveCount = g.capacity
		inv.LastReplenishAtSec = now.Unix()
		return true
	}

	if now.Sub(last) < g.replenishWindow {
		return false
	}
	grant := g.replenishCount
	if room := g.capacity - inv.ReserveCount; grant > room {
		grant = room
	}
	inv.ReserveCount += grant
	inv.LastReplenishAtSec = now.Unix()
	return true
}

// remainingUntilReplenish is the time left until the next window boundary.
func (g *NakamaGachaSystem) remainingUntilReplenish(inv *UserInventory, now time.Time) time.Duration {
	if g.replenishSched != nil {
		return g.replenishSched.Next(now).Sub(now)
	}
	last := time.Unix(inv.LastReplenishAtSec, 0)
	return last.Add(g.replenishWindow).Sub(now)
}

// Draw consumes one reserve unit and samples a card for the user.
//
// The unit is consumed even when the resulting card is a duplicate. When the
// weight table selects no tier it stays consumed too, unless
// charge_on_sampling_failure is disabled.
func (g *NakamaGachaSystem) Draw(ctx context.Context, logger runtime.Logger, userID string) (*DrawResult, error) {
	if userID == "" {
		return nil, ErrNoSessionUser
	}

	var result *DrawResult
	err := g.withInventory(ctx, logger, func(collections map[string]*UserInventory) (bool, error) {
		now := g.now()
		inv := g.userRecord(collections, userID, now)
		replenished := g.replenish(inv, now)

		if inv.ReserveCount == 0 {
			result = &DrawResult{
				Outcome:     DrawOutcomeNoReserve,
				Reserve:     0,
				ReplenishIn: newReplenishCountdown(g.remainingUntilReplenish(inv, now)),
			}
			return replenished, nil
		}

		inv.ReserveCount--

		cards, ok := g.strategy.Pull(g.catalog, g.rng)
		if !ok || len(cards) == 0 {
			if !g.chargeOnFailure {
				inv.ReserveCount++
			}
			logger.Warn("Draw selected no tier for user %s (table total below roll)", userID)
			result = &DrawResult{
				Outcome: DrawOutcomeSamplingError,
				Reserve: inv.ReserveCount,
			}
			return replenished || g.chargeOnFailure, nil
		}

		drawn := make([]*DrawnCard, 0, len(cards))
		newCount := 0
		for _, card := range cards {
			added := inv.AddItem(card.TierID, card.Item)
			if added {
				newCount++
			}
			drawn = append(drawn, &DrawnCard{TierID: card.TierID, Item: card.Item, New: added})
		}

		outcome := DrawOutcomeDuplicate
		if newCount > 0 {
			outcome = DrawOutcomeNewItem
		}
		result = &DrawResult{
			Outcome: outcome,
			TierID:  cards[0].TierID,
			Item:    cards[0].Item,
			Cards:   drawn,
			Reserve: inv.ReserveCount,
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OpenPack performs up to packSize draws against one loaded document,
// consuming one reserve unit per card and stopping early when the reserve
// runs out. The whole pack persists as a single write.
func (g *NakamaGachaSystem) OpenPack(ctx context.Context, logger runtime.Logger, userID string) (*PackResult, error) {
	if userID == "" {
		return nil, ErrNoSessionUser
	}

	var result *PackResult
	err := g.withInventory(ctx, logger, func(collections map[string]*UserInventory) (bool, error) {
		now := g.now()
		inv := g.userRecord(collections, userID, now)
		replenished := g.replenish(inv, now)

		if inv.ReserveCount == 0 {
			result = &PackResult{
				Outcome:     DrawOutcomeNoReserve,
				Reserve:     0,
				ReplenishIn: newReplenishCountdown(g.remainingUntilReplenish(inv, now)),
			}
			return replenished, nil
		}

		var drawn []*DrawnCard
		newCount := 0
		failures := 0
		charged := false
		for i := 0; i < g.packSize && inv.ReserveCount > 0; i++ {
			inv.ReserveCount--
			cards, ok := g.strategy.Pull(g.catalog, g.rng)
			if !ok || len(cards) == 0 {
				if g.chargeOnFailure {
					charged = true
				} else {
					inv.ReserveCount++
				}
				failures++
				continue
			}
			charged = true
			for _, card := range cards {
				added := inv.AddItem(card.TierID, card.Item)
				if added {
					newCount++
				}
				drawn = append(drawn, &DrawnCard{TierID: card.TierID, Item: card.Item, New: added})
			}
		}

		outcome := DrawOutcomeDuplicate
		switch {
		case len(drawn) == 0 && failures > 0:
			logger.Warn("Pack produced no cards for user %s after %d failed samples", userID, failures)
			outcome = DrawOutcomeSamplingError
		case newCount > 0:
			outcome = DrawOutcomeNewItem
		}
		result = &PackResult{
			Outcome: outcome,
			Cards:   drawn,
			Reserve: inv.ReserveCount,
		}
		return replenished || charged, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Inventory returns the user's owned items per tier in the catalog's
// declared tier order. The replenishment check still runs so a due
// regeneration is applied and persisted, but an unknown user is not created.
func (g *NakamaGachaSystem) Inventory(ctx context.Context, logger runtime.Logger, userID string) ([]*TierInventory, error) {
	if userID == "" {
		return nil, ErrNoSessionUser
	}

	var out []*TierInventory
	err := g.withInventory(ctx, logger, func(collections map[string]*UserInventory) (bool, error) {
		inv, ok := collections[userID]
		replenished := false
		if ok {
			replenished = g.replenish(inv, g.now())
		}

		out = make([]*TierInventory, 0, len(g.catalog.Tiers()))
		for _, tier := range g.catalog.Tiers() {
			owned := make([]string, 0)
			if ok {
				for _, item := range tier.Items {
					if inv.HasItem(tier.ID, item) {
						owned = append(owned, item)
					}
				}
			}
			out = append(out, &TierInventory{TierID: tier.ID, Items: owned})
		}
		return replenished, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reserve returns the user's current reserve after applying any due
// replenishment. A user who has never drawn reports the full capacity.
func (g *NakamaGachaSystem) Reserve(ctx context.Context, logger runtime.Logger, userID string) (int32, error) {
	if userID == "" {
		return 0, ErrNoSessionUser
	}

	reserve := g.capacity
	err := g.withInventory(ctx, logger, func(collections map[string]*UserInventory) (bool, error) {
		inv, ok := collections[userID]
		if !ok {
			reserve = g.capacity
			return false, nil
		}
		replenished := g.replenish(inv, g.now())
		reserve = inv.ReserveCount
		return replenished, nil
	})
	if err != nil {
		return 0, err
	}
	return reserve, nil
}

// Reset unconditionally empties the user's owned sets and restores the
// reserve to capacity. Confirming the operation is the caller's concern.
func (g *NakamaGachaSystem) Reset(ctx context.Context, logger runtime.Logger, userID string) error {
	if userID == "" {
		return ErrNoSessionUser
	}

	return g.withInventory(ctx, logger, func(collections map[string]*UserInventory) (bool, error) {
		collections[userID] = &UserInventory{
			Tiers:              make(map[string][]string),
			ReserveCount:       g.capacity,
			LastReplenishAtSec: g.now().Unix(),
		}
		return true, nil
	})
}
