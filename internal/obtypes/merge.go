package obtypes

import (
	"cmp"
	"slices"

	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

// Merge combines the latest Summary from every source into one ranked
// view:
//  1. concatenate all bids, all asks;
//  2. sort bids by (-price, -amount), asks by (+price, -amount);
//  3. recompute spread from the post-sort top of book;
//  4. truncate both sides to 10.
//
// Sorting uses cmp.Compare, the standard library's total order over
// float64 (NaN sorts below every other value, -0 equals 0) so the result
// is deterministic even under adversarial input.
func Merge(sources []*orderbook.Summary) *orderbook.Summary {
	var bids, asks []*orderbook.Level
	for _, s := range sources {
		if s == nil {
			continue
		}
		bids = append(bids, s.Bids...)
		asks = append(asks, s.Asks...)
	}

	slices.SortFunc(bids, func(a, b *orderbook.Level) int {
		if c := cmp.Compare(b.Price, a.Price); c != 0 {
			return c
		}
		return cmp.Compare(b.Amount, a.Amount)
	})
	slices.SortFunc(asks, func(a, b *orderbook.Level) int {
		if c := cmp.Compare(a.Price, b.Price); c != 0 {
			return c
		}
		return cmp.Compare(b.Amount, a.Amount)
	})

	merged := &orderbook.Summary{}
	if len(bids) > 0 && len(asks) > 0 {
		merged.Spread = asks[0].Price - bids[0].Price
	}

	if len(bids) > maxLevelsPerSide {
		bids = bids[:maxLevelsPerSide]
	}
	if len(asks) > maxLevelsPerSide {
		asks = asks[:maxLevelsPerSide]
	}
	merged.Bids = bids
	merged.Asks = asks
	return merged
}
