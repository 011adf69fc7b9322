// Package merger implements the merging stage: a mutex-protected
// latest-Summary-per-source store where every write is immediately
// followed by a recomputed merged republish in the same critical
// section, so observers never see a partial update.
package merger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/BullionBear/orderbook-aggregator/internal/broadcast"
	"github.com/BullionBear/orderbook-aggregator/internal/obtypes"
	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

// Source is one upstream feed the merger listens to.
type Source struct {
	Name string
	Bus  *broadcast.Bus[*orderbook.Summary]
}

// Merger combines the latest Summary from each registered source into
// one merged, ranked Summary and republishes it on every update.
type Merger struct {
	log zerolog.Logger
	out *broadcast.Bus[*orderbook.Summary]

	mu     sync.Mutex
	latest []*orderbook.Summary // one slot per source, index-addressed
}

// New creates a Merger with one empty slot per source: the merger
// maintains exactly one slot per registered upstream source, and an
// uninitialized slot holds the empty Summary.
func New(log zerolog.Logger, sources []Source) *Merger {
	latest := make([]*orderbook.Summary, len(sources))
	for i := range latest {
		latest[i] = &orderbook.Summary{}
	}
	return &Merger{
		log:    log.With().Str("component", "merger").Logger(),
		out:    broadcast.New[*orderbook.Summary](),
		latest: latest,
	}
}

// Out returns the merger's outbound publisher of merged Summaries.
func (m *Merger) Out() *broadcast.Bus[*orderbook.Summary] { return m.out }

// Run starts one task per source and blocks until every task has ended
// (ctx is cancelled or every source bus has closed), then closes the
// outbound bus. Each
// task reads its source's bus, stores the update into its slot, and
// republishes a freshly merged Summary — all under the same lock, so the
// published stream is never behind the stored state.
func (m *Merger) Run(ctx context.Context, sources []Source) {
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(index int, src Source) {
			defer wg.Done()
			m.runSource(ctx, index, src)
		}(i, src)
	}
	wg.Wait()
	m.out.Close()
}

func (m *Merger) runSource(ctx context.Context, index int, src Source) {
	sub := src.Bus.Subscribe()
	defer sub.Unsubscribe()

	for {
		summary, lagged, closed, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		if closed {
			m.log.Info().Str("source", src.Name).Msg("source bus closed")
			return
		}
		if lagged {
			// Lag is dropped; the Summary just received is already the
			// latest available state.
			m.log.Debug().Str("source", src.Name).Msg("source lagged")
		}

		m.mu.Lock()
		m.latest[index] = summary
		merged := obtypes.Merge(m.latest)
		m.out.Publish(merged)
		m.mu.Unlock()
	}
}
