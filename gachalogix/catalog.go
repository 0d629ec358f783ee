package gachalogix

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// CatalogConfig declares the rarity tiers in draw order. Each tier carries a
// positive integer weight and its item list, either inline or as a flat file
// with one item name per line.
type CatalogConfig struct {
	Tiers []*CatalogConfigTier `json:"tiers" validate:"required,min=1,dive,required"`
}

type CatalogConfigTier struct {
	ID        string   `json:"id" validate:"required"`
	Weight    int64    `json:"weight" validate:"min=1"`
	Items     []string `json:"items,omitempty"`
	ItemsFile string   `json:"items_file,omitempty"`
}

// FileReader resolves an item list file path to its contents. Nakama's
// nk.ReadFile satisfies this; tests use os.Open.
type FileReader func(path string) (*os.File, error)

// Tier is one immutable rarity bucket.
type Tier struct {
	ID     string
	Weight int64
	Items  []string
}

// RarityWeight is one (tier, weight) pair of the rarity table.
type RarityWeight struct {
	TierID string
	Weight int64
}

// RarityTable preserves the catalog's declared tier order. Cumulative sums
// for sampling are computed by walking it in this order; the total need not
// reach 100.
type RarityTable []RarityWeight

func (t RarityTable) TotalWeight() int64 {
	var total int64
	for _, w := range t {
		total += w.Weight
	}
	return total
}

// Catalog is the process-wide table of tiers and their item lists. Loaded
// once at startup and never mutated afterwards.
type Catalog struct {
	tiers []*Tier
	byID  map[string]*Tier
	table RarityTable
}

// NewCatalog builds the immutable catalog from its config, reading item list
// files through readFile. Non-positive weights, duplicate tier IDs and
// duplicate item names within a tier are load errors.
func NewCatalog(config *CatalogConfig, readFile FileReader) (*Catalog, error) {
	if config == nil || len(config.Tiers) == 0 {
		return nil, fmt.Errorf("catalog declares no tiers")
	}

	c := &Catalog{
		tiers: make([]*Tier, 0, len(config.Tiers)),
		byID:  make(map[string]*Tier, len(config.Tiers)),
		table: make(RarityTable, 0, len(config.Tiers)),
	}

	for _, tierConfig := range config.Tiers {
		if tierConfig.Weight <= 0 {
			return nil, fmt.Errorf("tier %q has non-positive weight %d", tierConfig.ID, tierConfig.Weight)
		}
		if _, exists := c.byID[tierConfig.ID]; exists {
			return nil, fmt.Errorf("duplicate tier %q", tierConfig.ID)
		}

		items := tierConfig.Items
		if tierConfig.ItemsFile != "" {
			fileItems, err := readItemsFile(tierConfig.ItemsFile, readFile)
			if err != nil {
				return nil, fmt.Errorf("tier %q: %w", tierConfig.ID, err)
			}
			items = append(items, fileItems...)
		}

		seen := make(map[string]bool, len(items))
		for _, item := range items {
			if seen[item] {
				return nil, fmt.Errorf("tier %q lists item %q twice", tierConfig.ID, item)
			}
			seen[item] = true
		}

		tier := &Tier{
			ID:     tierConfig.ID,
			Weight: tierConfig.Weight,
			Items:  items,
		}
		c.tiers = append(c.tiers, tier)
		c.byID[tier.ID] = tier
		c.table = append(c.table, RarityWeight{TierID: tier.ID, Weight: tier.Weight})
	}

	return c, nil
}

// readItemsFile reads one item name per line, trimming whitespace and
// skipping blank lines.
func readItemsFile(path string, readFile FileReader) ([]string, error) {
	if readFile == nil {
		return nil, fmt.Errorf("no file reader configured for items file %q", path)
	}
	f, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file %q: %w", path, err)
	}
	defer f.Close()

	var items []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan items file %q: %w", path, err)
	}
	return items, nil
}

// Tiers returns the tiers in declared order.
func (c *Catalog) Tiers() []*Tier {
	return c.tiers
}

// Tier returns the tier by ID, or nil when unknown.
func (c *Catalog) Tier(id string) *Tier {
	return c.byID[id]
}

// RarityTable returns the (tier, weight) pairs in declared order.
func (c *Catalog) RarityTable() RarityTable {
	return c.table
}
