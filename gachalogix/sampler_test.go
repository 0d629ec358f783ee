package gachalogix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollRange(t *testing.T) {
	assert.Equal(t, int64(1), Roll(&seqRand{seq: []int{0}}))
	assert.Equal(t, int64(100), Roll(&seqRand{seq: []int{99}}))
}

func TestDrawTierBoundaries(t *testing.T) {
	table := RarityTable{
		{TierID: "common", Weight: 78},
		{TierID: "rare", Weight: 15},
		{TierID: "epic", Weight: 5},
		{TierID: "legendary", Weight: 2},
	}
	require.Equal(t, int64(100), table.TotalWeight())

	tests := []struct {
		roll int64
		tier string
	}{
		{1, "common"},
		{78, "common"},
		{79, "rare"},
		{93, "rare"},
		{94, "epic"},
		{98, "epic"},
		{99, "legendary"},
		{100, "legendary"},
	}
	for _, tc := range tests {
		tierID, ok := DrawTier(table, tc.roll)
		require.True(t, ok, "roll %d", tc.roll)
		assert.Equal(t, tc.tier, tierID, "roll %d", tc.roll)
	}
}

func TestDrawTierEveryRollSelects(t *testing.T) {
	table := RarityTable{
		{TierID: "common", Weight: 78},
		{TierID: "rare", Weight: 15},
		{TierID: "epic", Weight: 5},
		{TierID: "legendary", Weight: 2},
	}

	counts := make(map[string]int)
	for roll := int64(rollMin); roll <= rollMax; roll++ {
		tierID, ok := DrawTier(table, roll)
		require.True(t, ok, "roll %d selected no tier", roll)
		counts[tierID]++
	}
	assert.Equal(t, 78, counts["common"])
	assert.Equal(t, 15, counts["rare"])
	assert.Equal(t, 5, counts["epic"])
	assert.Equal(t, 2, counts["legendary"])
}

func TestDrawTierShortTable(t *testing.T) {
	// A table summing below the roll range leaves the high rolls unmatched.
	table := RarityTable{
		{TierID: "common", Weight: 50},
		{TierID: "rare", Weight: 10},
	}

	tierID, ok := DrawTier(table, 60)
	require.True(t, ok)
	assert.Equal(t, "rare", tierID)

	_, ok = DrawTier(table, 61)
	assert.False(t, ok)
	_, ok = DrawTier(table, 100)
	assert.False(t, ok)
}

func TestDrawTierDeterministic(t *testing.T) {
	table := RarityTable{
		{TierID: "common", Weight: 78},
		{TierID: "rare", Weight: 15},
	}
	first, ok1 := DrawTier(table, 80)
	second, ok2 := DrawTier(table, 80)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}

func TestSingleDrawPull(t *testing.T) {
	catalog, err := NewCatalog(testCatalogConfig(), nil)
	require.NoError(t, err)

	// Roll 79 lands in rare, item index 1 picks Mage.
	cards, ok := SingleDraw{}.Pull(catalog, &seqRand{seq: []int{78, 1}})
	require.True(t, ok)
	require.Len(t, cards, 1)
	assert.Equal(t, "rare", cards[0].TierID)
	assert.Equal(t, "Mage", cards[0].Item)
}

func TestSingleDrawPullNoTier(t *testing.T) {
	catalog, err := NewCatalog(&CatalogConfig{
		Tiers: []*CatalogConfigTier{
			{ID: "common", Weight: 50, Items: []string{"Slime"}},
		},
	}, nil)
	require.NoError(t, err)

	cards, ok := SingleDraw{}.Pull(catalog, &seqRand{seq: []int{50}})
	assert.False(t, ok)
	assert.Empty(t, cards)
}

func TestIndependentPerTierPull(t *testing.T) {
	catalog, err := NewCatalog(testCatalogConfig(), nil)
	require.NoError(t, err)

	// Per-tier rolls: common 77 (fires, Goblin), rare 94 (misses),
	// epic 5 (fires, Dragon), legendary 50 (misses).
	rng := &seqRand{seq: []int{76, 1, 93, 4, 0, 49}}
	cards, ok := IndependentPerTierDraw{}.Pull(catalog, rng)
	require.True(t, ok)
	require.Len(t, cards, 2)
	assert.Equal(t, SampledCard{TierID: "common", Item: "Goblin"}, cards[0])
	assert.Equal(t, SampledCard{TierID: "epic", Item: "Dragon"}, cards[1])
}

func TestIndependentPerTierPullCanMissAll(t *testing.T) {
	catalog, err := NewCatalog(testCatalogConfig(), nil)
	require.NoError(t, err)

	// Every tier's roll exceeds its own weight.
	rng := &seqRand{seq: []int{99, 99, 99, 99}}
	cards, ok := IndependentPerTierDraw{}.Pull(catalog, rng)
	assert.True(t, ok)
	assert.Empty(t, cards)
}

func TestNewDrawStrategy(t *testing.T) {
	assert.Equal(t, StrategySingleDraw, newDrawStrategy(StrategySingleDraw).Name())
	assert.Equal(t, StrategyIndependentPerTier, newDrawStrategy(StrategyIndependentPerTier).Name())
	assert.Equal(t, StrategySingleDraw, newDrawStrategy("").Name())
}
