package config

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultTotalItems  = 50
	DefaultActiveSlots = 3
)

// Catalog is what an auction house puts up for sale.
type Catalog struct {
	ActiveSlots int           `toml:"active_slots"`
	Items       []CatalogItem `toml:"items"`
}

type CatalogItem struct {
	Description string  `toml:"description"`
	MinBid      float64 `toml:"min_bid"`
}

func LoadCatalog(path string) (Catalog, error) {
	var cat Catalog
	if err := loadToml(path, &cat); err != nil {
		return Catalog{}, err
	}
	if cat.ActiveSlots == 0 {
		cat.ActiveSlots = DefaultActiveSlots
	}
	for i := range cat.Items {
		if strings.TrimSpace(cat.Items[i].Description) == "" {
			cat.Items[i].Description = lotName(i + 1)
		}
	}
	if err := ValidateCatalog(cat); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// GenerateCatalog builds total "Lot N" items with minimum bids drawn
// uniformly from 1..100.
func GenerateCatalog(total, activeSlots int, rng *rand.Rand) Catalog {
	if total <= 0 {
		total = DefaultTotalItems
	}
	if activeSlots <= 0 {
		activeSlots = DefaultActiveSlots
	}
	cat := Catalog{ActiveSlots: activeSlots, Items: make([]CatalogItem, 0, total)}
	for i := 1; i <= total; i++ {
		cat.Items = append(cat.Items, CatalogItem{
			Description: lotName(i),
			MinBid:      float64(rng.Intn(100) + 1),
		})
	}
	return cat
}

func lotName(n int) string {
	return fmt.Sprintf("Lot %d", n)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateCatalog(cat Catalog) error {
	if cat.ActiveSlots < 1 {
		return fmt.Errorf("catalog active_slots must be positive")
	}
	if len(cat.Items) == 0 {
		return fmt.Errorf("catalog has no items")
	}
	for i, it := range cat.Items {
		if it.MinBid < 0 {
			return fmt.Errorf("items[%d] invalid: min_bid is negative", i)
		}
	}
	return nil
}
