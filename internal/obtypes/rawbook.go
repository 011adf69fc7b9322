// Package obtypes holds the normalized order-book shapes shared by every
// exchange client and the merger, plus the merge algorithm that combines
// per-source summaries into one ranked view.
package obtypes

import (
	"fmt"
	"strconv"

	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

// RawLevel is a single (price, amount) pair exactly as delivered by an
// exchange, still string-encoded.
type RawLevel struct {
	Price  string
	Amount string
}

// RawBook is a single-exchange decoded snapshot prior to merge: two
// ordered sequences of price/amount pairs as delivered by the source,
// already truncated to the top 10 per side.
type RawBook struct {
	Bids []RawLevel
	Asks []RawLevel
}

const maxLevelsPerSide = 10

// truncate keeps at most the first maxLevelsPerSide entries of levels.
func truncate(levels []RawLevel) []RawLevel {
	if len(levels) > maxLevelsPerSide {
		return levels[:maxLevelsPerSide]
	}
	return levels
}

// NewRawBook builds a RawBook from raw bid/ask sequences, truncating each
// side to the top 10 entries.
func NewRawBook(bids, asks []RawLevel) RawBook {
	return RawBook{Bids: truncate(bids), Asks: truncate(asks)}
}

// ToSummary converts a RawBook into a tagged, un-sorted Summary for a
// single exchange. Any unparseable price or amount aborts the whole
// conversion: partial decodes are never published.
func ToSummary(exchange string, book RawBook) (*orderbook.Summary, error) {
	bids, err := convertSide(exchange, book.Bids)
	if err != nil {
		return nil, fmt.Errorf("decode %s bids: %w", exchange, err)
	}
	asks, err := convertSide(exchange, book.Asks)
	if err != nil {
		return nil, fmt.Errorf("decode %s asks: %w", exchange, err)
	}

	summary := &orderbook.Summary{Bids: bids, Asks: asks}
	if len(bids) > 0 && len(asks) > 0 {
		summary.Spread = asks[0].Price - bids[0].Price
	}
	return summary, nil
}

func convertSide(exchange string, side []RawLevel) ([]*orderbook.Level, error) {
	levels := make([]*orderbook.Level, 0, len(side))
	for _, raw := range side {
		price, err := strconv.ParseFloat(raw.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", raw.Price, err)
		}
		amount, err := strconv.ParseFloat(raw.Amount, 64)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw.Amount, err)
		}
		levels = append(levels, &orderbook.Level{
			Exchange: exchange,
			Price:    price,
			Amount:   amount,
		})
	}
	return levels, nil
}
