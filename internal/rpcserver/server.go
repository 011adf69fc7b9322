// Package rpcserver implements the streaming fan-out RPC stage: one call
// attaches one subscriber to the merger's outbound bus, drops lag
// silently, and ends the stream cleanly on publisher close or client
// disconnect.
package rpcserver

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BullionBear/orderbook-aggregator/internal/broadcast"
	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

// Server implements orderbook.OrderbookAggregatorServer.
type Server struct {
	orderbook.UnimplementedOrderbookAggregatorServer

	log zerolog.Logger
	bus *broadcast.Bus[*orderbook.Summary]
}

// New builds a Server that fans out from bus.
func New(log zerolog.Logger, bus *broadcast.Bus[*orderbook.Summary]) *Server {
	return &Server{log: log.With().Str("component", "rpcserver").Logger(), bus: bus}
}

// BookSummary attaches a fresh subscriber for the lifetime of the call
// and streams every successfully received Summary to the client,
// skipping lagged notifications silently.
func (s *Server) BookSummary(_ *orderbook.Empty, stream orderbook.OrderbookAggregator_BookSummaryServer) error {
	subscriberID := uuid.NewString()
	log := s.log.With().Str("subscriber_id", subscriberID).Logger()
	log.Info().Msg("client subscribed")

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	ctx := stream.Context()
	for {
		summary, lagged, closed, err := sub.Recv(ctx)
		if err != nil {
			log.Info().Msg("client disconnected")
			return nil
		}
		if closed {
			log.Info().Msg("publisher closed, ending stream")
			return nil
		}
		if lagged {
			log.Debug().Msg("subscriber lagged, skipping to latest")
		}

		if err := stream.Send(summary); err != nil {
			log.Warn().Err(err).Msg("stream send failed, ending stream")
			return err
		}
	}
}
