package config

import (
	"github.com/danmuck/auctionctl/internal/protocol"
	"github.com/shopspring/decimal"
)

// ListingItems numbers the catalog's items from 1 in catalog order.
func ListingItems(cat Catalog) []protocol.Item {
	items := make([]protocol.Item, 0, len(cat.Items))
	for i, entry := range cat.Items {
		items = append(items, protocol.Item{
			Number:      i + 1,
			Description: entry.Description,
			MinBid:      decimal.NewFromFloat(entry.MinBid).Round(2),
			CurrentBid:  decimal.Zero,
		})
	}
	return items
}
