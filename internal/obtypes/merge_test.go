package obtypes

import (
	"math"
	"testing"

	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

func level(exchange string, price, amount float64) *orderbook.Level {
	return &orderbook.Level{Exchange: exchange, Price: price, Amount: amount}
}

// TestMergeScenarioA checks the initial-merge numbers for a two-exchange
// book.
func TestMergeScenarioA(t *testing.T) {
	binance := &orderbook.Summary{
		Bids: []*orderbook.Level{level("binance", 0.07140100, 23.30750000), level("binance", 0.07138900, 10.50000000)},
		Asks: []*orderbook.Level{level("binance", 0.07143800, 14.56878000), level("binance", 0.07150000, 2.50000000)},
	}
	bitstamp := &orderbook.Summary{
		Bids: []*orderbook.Level{level("bitstamp", 0.07138988, 0.60000000), level("bitstamp", 0.07138900, 1.20000000)},
		Asks: []*orderbook.Level{level("bitstamp", 0.07143677, 2.56878000), level("bitstamp", 0.07150000, 10.10000000)},
	}

	merged := Merge([]*orderbook.Summary{binance, bitstamp})

	wantBids := []*orderbook.Level{
		level("binance", 0.07140100, 23.3075),
		level("bitstamp", 0.07138988, 0.6),
		level("binance", 0.07138900, 10.5),
		level("bitstamp", 0.07138900, 1.2),
	}
	wantAsks := []*orderbook.Level{
		level("bitstamp", 0.07143677, 2.56878),
		level("binance", 0.07143800, 14.56878),
		level("bitstamp", 0.07150000, 10.1),
		level("binance", 0.07150000, 2.5),
	}
	assertLevels(t, "bids", merged.Bids, wantBids)
	assertLevels(t, "asks", merged.Asks, wantAsks)

	wantSpread := 0.07143677 - 0.07140100
	if merged.Spread != wantSpread {
		t.Errorf("spread = %v, want %v", merged.Spread, wantSpread)
	}
}

// TestMergeScenarioB checks that a new best ask re-ranks the ask side
// without disturbing bids.
func TestMergeScenarioB(t *testing.T) {
	sources := []*orderbook.Summary{
		{
			Bids: []*orderbook.Level{level("binance", 0.07140100, 23.3075), level("binance", 0.07138900, 10.5)},
			Asks: []*orderbook.Level{level("binance", 0.07143800, 14.56878), level("binance", 0.07150000, 2.5)},
		},
		{
			Bids: []*orderbook.Level{level("bitstamp", 0.07138988, 0.6), level("bitstamp", 0.07138900, 1.2)},
			Asks: []*orderbook.Level{level("bitstamp", 0.07143300, 10.1)},
		},
	}

	merged := Merge(sources)

	wantAsks := []*orderbook.Level{
		level("bitstamp", 0.07143300, 10.1),
		level("binance", 0.07143800, 14.56878),
		level("binance", 0.07150000, 2.5),
	}
	assertLevels(t, "asks", merged.Asks, wantAsks)

	wantSpread := 0.07143300 - 0.07140100
	if merged.Spread != wantSpread {
		t.Errorf("spread = %v, want %v", merged.Spread, wantSpread)
	}
}

// TestMergeScenarioC checks that a new best bid re-ranks the bid side
// without disturbing asks.
func TestMergeScenarioC(t *testing.T) {
	sources := []*orderbook.Summary{
		{
			Bids: []*orderbook.Level{level("binance", 0.07143000, 10.5)},
			Asks: []*orderbook.Level{level("binance", 0.07143800, 14.56878), level("binance", 0.07150000, 2.5)},
		},
		{
			Bids: []*orderbook.Level{level("bitstamp", 0.07138988, 0.6), level("bitstamp", 0.07138900, 1.2)},
			Asks: []*orderbook.Level{level("bitstamp", 0.07143300, 10.1)},
		},
	}

	merged := Merge(sources)

	wantBids := []*orderbook.Level{
		level("binance", 0.07143000, 10.5),
		level("bitstamp", 0.07138988, 0.6),
		level("bitstamp", 0.07138900, 1.2),
	}
	assertLevels(t, "bids", merged.Bids, wantBids)

	wantSpread := 0.07143300 - 0.07143000
	if math.Abs(merged.Spread-wantSpread) > 1e-12 {
		t.Errorf("spread = %v, want %v", merged.Spread, wantSpread)
	}
}

func TestMergeCapsAtTenPerSide(t *testing.T) {
	var bids, asks []*orderbook.Level
	for i := 0; i < 15; i++ {
		price := float64(i + 1)
		bids = append(bids, level("x", price, 1))
		asks = append(asks, level("x", price, 1))
	}

	merged := Merge([]*orderbook.Summary{{Bids: bids, Asks: asks}})

	if len(merged.Bids) != 10 {
		t.Errorf("len(bids) = %d, want 10", len(merged.Bids))
	}
	if len(merged.Asks) != 10 {
		t.Errorf("len(asks) = %d, want 10", len(merged.Asks))
	}
	// Highest-priced bids survive the truncation; lowest-priced asks do.
	if merged.Bids[0].Price != 15 {
		t.Errorf("best bid price = %v, want 15", merged.Bids[0].Price)
	}
	if merged.Asks[0].Price != 1 {
		t.Errorf("best ask price = %v, want 1", merged.Asks[0].Price)
	}
}

func TestMergeIdempotent(t *testing.T) {
	sources := []*orderbook.Summary{
		{Bids: []*orderbook.Level{level("binance", 1.0, 2.0)}, Asks: []*orderbook.Level{level("binance", 1.1, 2.0)}},
		{Bids: []*orderbook.Level{level("bitstamp", 1.0, 3.0)}, Asks: []*orderbook.Level{level("bitstamp", 1.2, 1.0)}},
	}

	first := Merge(sources)
	second := Merge(sources)

	assertLevels(t, "bids", first.Bids, second.Bids)
	assertLevels(t, "asks", first.Asks, second.Asks)
	if first.Spread != second.Spread {
		t.Errorf("spread not stable across repeated merges: %v != %v", first.Spread, second.Spread)
	}
}

func assertLevels(t *testing.T, side string, got, want []*orderbook.Level) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s length = %d, want %d (%+v)", side, len(got), len(want), got)
	}
	for i := range want {
		if got[i].Exchange != want[i].Exchange || got[i].Price != want[i].Price || got[i].Amount != want[i].Amount {
			t.Errorf("%s[%d] = %+v, want %+v", side, i, got[i], want[i])
		}
	}
}
