package gachalogix

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

var (
	ErrInternal          = runtime.NewError("internal error occurred", 13) // INTERNAL
	ErrBadInput          = runtime.NewError("bad input", 3)                // INVALID_ARGUMENT
	ErrNoSessionUser     = runtime.NewError("no user ID in session", 3)    // INVALID_ARGUMENT
	ErrPayloadDecode     = runtime.NewError("cannot decode json", 13)      // INTERNAL
	ErrPayloadEncode     = runtime.NewError("cannot encode json", 13)      // INTERNAL
	ErrResetNotConfirmed = runtime.NewError("reset not confirmed", 9)      // FAILED_PRECONDITION
	ErrSystemNotFound    = runtime.NewError("system not found", 13)        // INTERNAL
)

// GachaConfig is the data definition for the GachaSystem type.
type GachaConfig struct {
	Catalog *CatalogConfig         `json:"catalog" validate:"required"`
	Reserve GachaConfigReserve     `json:"reserve"`
	Draw    GachaConfigDraw        `json:"draw"`
	Codes   map[string]*CodeReward `json:"codes,omitempty" validate:"dive,required"`
	Store   GachaConfigStore       `json:"store"`
}

// GachaConfigReserve controls the replenishing pool of draws each user holds.
//
// The reserve regenerates in fixed windows: once ReplenishSec has elapsed
// since the last successful replenishment the next operation adds up to
// ReplenishCount units, capped at Capacity. When ReplenishCronexpr is set the
// windowed mode is replaced by a full refill at each cron boundary.
type GachaConfigReserve struct {
	Capacity          int32  `json:"capacity,omitempty" validate:"min=0"`
	ReplenishCount    int32  `json:"replenish_count,omitempty" validate:"min=0"`
	ReplenishSec      int64  `json:"replenish_sec,omitempty" validate:"min=0"`
	ReplenishCronexpr string `json:"replenish_cronexpr,omitempty"`
}

type GachaConfigDraw struct {
	Strategy DrawStrategyName `json:"strategy,omitempty" validate:"omitempty,oneof=single_draw independent_per_tier"`
	PackSize int              `json:"pack_size,omitempty" validate:"min=0"`

	// ChargeOnSamplingFailure keeps the reserve unit consumed when the weight
	// table selects no tier. Defaults to true, which prevents cost-free
	// retries against a degenerate table.
	ChargeOnSamplingFailure *bool `json:"charge_on_sampling_failure,omitempty"`
}

type GachaConfigStore struct {
	Collection      string `json:"collection,omitempty"`
	InventoryKey    string `json:"inventory_key,omitempty"`
	LedgerKey       string `json:"ledger_key,omitempty"`
	TimeoutSec      int64  `json:"timeout_sec,omitempty" validate:"min=0"`
	MaxWriteRetries int    `json:"max_write_retries,omitempty" validate:"min=0"`
}

// CodeReward describes what a redemption code grants: either a number of
// reserve units or a specific item placed into a named tier.
type CodeReward struct {
	ReserveUnits int32  `json:"reserve_units,omitempty" validate:"min=0"`
	TierID       string `json:"tier_id,omitempty"`
	Item         string `json:"item,omitempty"`
}

const (
	defaultReserveCapacity = 10
	defaultReplenishCount  = 5
	defaultReplenishSec    = 12 * 60 * 60
	defaultPackSize        = 5
	defaultStoreCollection = "gacha"
	defaultInventoryKey    = "user_collections"
	defaultLedgerKey       = "redemptions"
	defaultStoreTimeoutSec = 5
	defaultMaxWriteRetries = 3
)

func (c *GachaConfig) applyDefaults() {
	if c.Reserve.Capacity == 0 {
		c.Reserve.Capacity = defaultReserveCapacity
	}
	if c.Reserve.ReplenishCount == 0 {
		c.Reserve.ReplenishCount = defaultReplenishCount
	}
	if c.Reserve.ReplenishSec == 0 {
		c.Reserve.ReplenishSec = defaultReplenishSec
	}
	if c.Draw.Strategy == "" {
		c.Draw.Strategy = StrategySingleDraw
	}
	if c.Draw.PackSize == 0 {
		c.Draw.PackSize = defaultPackSize
	}
	if c.Draw.ChargeOnSamplingFailure == nil {
		charge := true
		c.Draw.ChargeOnSamplingFailure = &charge
	}
	if c.Store.Collection == "" {
		c.Store.Collection = defaultStoreCollection
	}
	if c.Store.InventoryKey == "" {
		c.Store.InventoryKey = defaultInventoryKey
	}
	if c.Store.LedgerKey == "" {
		c.Store.LedgerKey = defaultLedgerKey
	}
	if c.Store.TimeoutSec == 0 {
		c.Store.TimeoutSec = defaultStoreTimeoutSec
	}
	if c.Store.MaxWriteRetries == 0 {
		c.Store.MaxWriteRetries = defaultMaxWriteRetries
	}
}

// validate checks the structural rules the tag validator cannot express:
// cron expressions, code reward shapes and tier references.
func (c *GachaConfig) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if expr := c.Reserve.ReplenishCronexpr; expr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid replenish_cronexpr %q: %w", expr, err)
		}
	}
	tierIDs := make(map[string]bool, len(c.Catalog.Tiers))
	for _, tier := range c.Catalog.Tiers {
		tierIDs[tier.ID] = true
	}
	for code, reward := range c.Codes {
		hasItem := reward.TierID != "" || reward.Item != ""
		if reward.ReserveUnits <= 0 && !hasItem {
			return fmt.Errorf("code %q grants nothing", code)
		}
		if hasItem && (reward.TierID == "" || reward.Item == "") {
			return fmt.Errorf("code %q must name both a tier and an item", code)
		}
		if reward.TierID != "" && !tierIDs[reward.TierID] {
			return fmt.Errorf("code %q references unknown tier %q", code, reward.TierID)
		}
	}
	return nil
}

// DrawOutcome discriminates the result of a draw or pack opening.
type DrawOutcome string

const (
	DrawOutcomeNewItem       DrawOutcome = "new_item"
	DrawOutcomeDuplicate     DrawOutcome = "duplicate"
	DrawOutcomeNoReserve     DrawOutcome = "no_reserve"
	DrawOutcomeSamplingError DrawOutcome = "sampling_error"
)

// ReplenishCountdown is the remaining time until the next replenishment
// window boundary, decomposed for display.
type ReplenishCountdown struct {
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

func newReplenishCountdown(d time.Duration) *ReplenishCountdown {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return &ReplenishCountdown{
		Hours:   secs / 3600,
		Minutes: (secs % 3600) / 60,
		Seconds: secs % 60,
	}
}

// DrawnCard is one sampled card with its dedup state.
type DrawnCard struct {
	TierID string `json:"tier_id"`
	Item   string `json:"item"`
	New    bool   `json:"new"`
}

// DrawResult reports one draw. TierID and Item carry the primary card for
// single-card pulls; Cards lists every card the pull produced (the
// independent per-tier strategy can yield more than one).
type DrawResult struct {
	Outcome     DrawOutcome         `json:"outcome"`
	TierID      string              `json:"tier_id,omitempty"`
	Item        string              `json:"item,omitempty"`
	Cards       []*DrawnCard        `json:"cards,omitempty"`
	Reserve     int32               `json:"reserve"`
	ReplenishIn *ReplenishCountdown `json:"replenish_in,omitempty"`
}

// PackResult reports one pack opening of up to pack_size draws.
type PackResult struct {
	Outcome     DrawOutcome         `json:"outcome"`
	Cards       []*DrawnCard        `json:"cards,omitempty"`
	Reserve     int32               `json:"reserve"`
	ReplenishIn *ReplenishCountdown `json:"replenish_in,omitempty"`
}

// TierInventory is the owned portion of one tier, ordered by the catalog's
// declared item order.
type TierInventory struct {
	TierID string   `json:"tier_id"`
	Items  []string `json:"items"`
}

// RedeemOutcome discriminates the result of a code redemption.
type RedeemOutcome string

const (
	RedeemOutcomeGranted         RedeemOutcome = "granted"
	RedeemOutcomeInvalidCode     RedeemOutcome = "invalid_code"
	RedeemOutcomeAlreadyRedeemed RedeemOutcome = "already_redeemed"
)

type RedeemResult struct {
	Outcome RedeemOutcome `json:"outcome"`
	Receipt string        `json:"receipt,omitempty"`
	Reward  *CodeReward   `json:"reward,omitempty"`
	Reserve int32         `json:"reserve,omitempty"`
}

// The GachaSystem provides a gameplay system for weighted card draws, a
// per-user collection with duplicate detection, a replenishing draw reserve
// and one-time promotional code redemption.
//
// All mutable state lives in two shared documents behind a DocumentStore; the
// system itself is stateless between calls and safe for concurrent use.
type GachaSystem interface {
	// Draw consumes one reserve unit and samples a card for the user.
	Draw(ctx context.Context, logger runtime.Logger, userID string) (*DrawResult, error)

	// OpenPack performs up to pack_size draws in one call, consuming one
	// reserve unit per card and stopping early when the reserve runs out.
	OpenPack(ctx context.Context, logger runtime.Logger, userID string) (*PackResult, error)

	// Inventory returns the user's owned items per tier, in the catalog's
	// declared tier order.
	Inventory(ctx context.Context, logger runtime.Logger, userID string) ([]*TierInventory, error)

	// Reserve returns the user's current reserve after applying any due
	// replenishment.
	Reserve(ctx context.Context, logger runtime.Logger, userID string) (int32, error)

	// Redeem applies a promotional code's reward exactly once per (user, code).
	Redeem(ctx context.Context, logger runtime.Logger, userID, code string) (*RedeemResult, error)

	// Reset empties the user's owned sets and restores the reserve to
	// capacity. Confirmation is the caller's responsibility.
	Reset(ctx context.Context, logger runtime.Logger, userID string) error
}
