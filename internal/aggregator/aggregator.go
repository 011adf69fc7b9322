// Package aggregator wires the exchange clients, the merger, and the
// gRPC fan-out server together and drives process start-up. It reads its
// three environment variables directly with os.LookupEnv rather than
// pulling in a configuration-parsing dependency.
package aggregator

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/BullionBear/orderbook-aggregator/internal/exchange"
	"github.com/BullionBear/orderbook-aggregator/internal/exchange/binance"
	"github.com/BullionBear/orderbook-aggregator/internal/exchange/bitstamp"
	"github.com/BullionBear/orderbook-aggregator/internal/merger"
	"github.com/BullionBear/orderbook-aggregator/internal/rpcserver"
	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

const (
	defaultBinanceURL  = "wss://stream.binance.com:9443"
	defaultBitstampURL = "wss://ws.bitstamp.net"
	defaultGRPCPort    = "7016"
	symbol             = "ethbtc"
	startupTimeout     = 12 * time.Second
)

// Config is the bootstrap's resolved configuration, read from the
// environment.
type Config struct {
	BinanceURL  string
	BitstampURL string
	GRPCPort    string
}

// ConfigFromEnv reads BINANCE_URL, BITSTAMP_URL and GRPC_PORT, falling
// back to their defaults when unset.
func ConfigFromEnv() Config {
	return Config{
		BinanceURL:  getEnvOr("BINANCE_URL", defaultBinanceURL),
		BitstampURL: getEnvOr("BITSTAMP_URL", defaultBitstampURL),
		GRPCPort:    getEnvOr("GRPC_PORT", defaultGRPCPort),
	}
}

func getEnvOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Run launches both exchange clients, waits for each to publish its
// first Summary (failing fast if either misses the 12-second deadline),
// starts the merger, and serves the gRPC fan-out endpoint until ctx is
// cancelled.
func Run(ctx context.Context, cfg Config, log zerolog.Logger) error {
	binanceClient := binance.New(exchange.Config{URL: cfg.BinanceURL, Symbol: symbol}, log)
	bitstampClient := bitstamp.New(exchange.Config{URL: cfg.BitstampURL, Symbol: symbol}, log)

	clientCtx, cancelClients := context.WithCancel(ctx)
	defer cancelClients()
	go binanceClient.Run(clientCtx)
	go bitstampClient.Run(clientCtx)

	if err := awaitStartup(ctx, log, map[string]<-chan struct{}{
		"binance":  binanceClient.Ready(),
		"bitstamp": bitstampClient.Ready(),
	}); err != nil {
		return err
	}

	sources := []merger.Source{
		{Name: "binance", Bus: binanceClient.Bus()},
		{Name: "bitstamp", Bus: bitstampClient.Bus()},
	}
	m := merger.New(log, sources)
	go m.Run(clientCtx, sources)

	return serve(ctx, cfg.GRPCPort, log, m)
}

// awaitStartup waits for every client's first-Summary handshake
// concurrently, failing fast if any misses the 12-second deadline.
// errgroup.Group is the idiomatic Go expression of awaiting several
// concurrent operations and failing fast on the first error.
func awaitStartup(ctx context.Context, log zerolog.Logger, ready map[string]<-chan struct{}) error {
	return awaitStartupWithTimeout(ctx, log, ready, startupTimeout)
}

func awaitStartupWithTimeout(ctx context.Context, log zerolog.Logger, ready map[string]<-chan struct{}, timeout time.Duration) error {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(deadline)
	for name, done := range ready {
		name, done := name, done
		g.Go(func() error {
			select {
			case <-done:
				log.Info().Str("exchange", name).Msg("client connected")
				return nil
			case <-gctx.Done():
				return fmt.Errorf("%s start-up: %w", name, gctx.Err())
			}
		})
	}
	return g.Wait()
}

func serve(ctx context.Context, port string, log zerolog.Logger, m *merger.Merger) error {
	addr := fmt.Sprintf("127.0.0.1:%s", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	orderbook.RegisterOrderbookAggregatorServer(grpcServer, rpcserver.New(log, m.Out()))

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	log.Info().Str("addr", addr).Msg("server listening")
	if err := grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
