package gachalogix

import "math/rand"

// Rolls are drawn uniformly from the inclusive range [rollMin, rollMax] and
// compared against cumulative tier weights.
const (
	rollMin = 1
	rollMax = 100
)

// Rand yields uniform random integers for draws. *rand.Rand satisfies it;
// tests inject fixed sequences.
type Rand interface {
	// Intn returns a uniform integer in [0, n). n must be > 0.
	Intn(n int) int
}

// systemRand draws from the package-level math/rand source, which is safe
// for concurrent use.
type systemRand struct{}

func (systemRand) Intn(n int) int { return rand.Intn(n) }

// Roll draws the next rarity roll in [rollMin, rollMax].
func Roll(rng Rand) int64 {
	return int64(rng.Intn(rollMax)) + rollMin
}

// DrawTier walks the table in its declared order accumulating weights and
// returns the first tier whose cumulative sum reaches roll. ok is false when
// the table's total weight is below the roll; that is a defined outcome of a
// table summing to less than 100, not an internal error.
func DrawTier(table RarityTable, roll int64) (tierID string, ok bool) {
	var cumulative int64
	for _, w := range table {
		cumulative += w.Weight
		if roll <= cumulative {
			return w.TierID, true
		}
	}
	return "", false
}

// DrawItem picks uniformly from the tier's item list. The tier must not be
// empty.
func DrawItem(tier *Tier, rng Rand) string {
	return tier.Items[rng.Intn(len(tier.Items))]
}

// DrawStrategyName selects one of the named sampling strategies by config.
type DrawStrategyName string

const (
	StrategySingleDraw         DrawStrategyName = "single_draw"
	StrategyIndependentPerTier DrawStrategyName = "independent_per_tier"
)

// SampledCard is one (tier, item) pair produced by a pull.
type SampledCard struct {
	TierID string
	Item   string
}

// A DrawStrategy turns one pull into zero or more sampled cards. Strategies
// are pure: given the same catalog and random sequence they produce the same
// cards.
type DrawStrategy interface {
	Name() DrawStrategyName

	// Pull samples the cards granted by a single pull. ok reports whether
	// the weight table produced a defined selection; a false value means the
	// roll exceeded the table's cumulative sum.
	Pull(c *Catalog, rng Rand) (cards []SampledCard, ok bool)
}

func newDrawStrategy(name DrawStrategyName) DrawStrategy {
	if name == StrategyIndependentPerTier {
		return IndependentPerTierDraw{}
	}
	return SingleDraw{}
}

// SingleDraw rolls once against the cumulative rarity table and draws one
// item from the selected tier.
type SingleDraw struct{}

func (SingleDraw) Name() DrawStrategyName { return StrategySingleDraw }

func (SingleDraw) Pull(c *Catalog, rng Rand) ([]SampledCard, bool) {
	tierID, ok := DrawTier(c.RarityTable(), Roll(rng))
	if !ok {
		return nil, false
	}
	tier := c.Tier(tierID)
	if len(tier.Items) == 0 {
		return nil, false
	}
	return []SampledCard{{TierID: tierID, Item: DrawItem(tier, rng)}}, true
}

// IndependentPerTierDraw rolls once per tier against that tier's own weight;
// every tier whose roll lands within its weight yields an item, so a single
// pull can produce zero to many cards.
type IndependentPerTierDraw struct{}

func (IndependentPerTierDraw) Name() DrawStrategyName { return StrategyIndependentPerTier }

func (IndependentPerTierDraw) Pull(c *Catalog, rng Rand) ([]SampledCard, bool) {
	var cards []SampledCard
	for _, tier := range c.Tiers() {
		if Roll(rng) > tier.Weight {
			continue
		}
		if len(tier.Items) == 0 {
			continue
		}
		cards = append(cards, SampledCard{TierID: tier.ID, Item: DrawItem(tier, rng)})
	}
	return cards, true
}
