package rpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/BullionBear/orderbook-aggregator/internal/broadcast"
	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

func dialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
}

func TestBookSummaryStreamsPublishedValues(t *testing.T) {
	bus := broadcast.New[*orderbook.Summary]()
	srv := New(zerolog.Nop(), bus)

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	orderbook.RegisterOrderbookAggregatorServer(grpcServer, srv)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(lis)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	client := orderbook.NewOrderbookAggregatorClient(conn)
	stream, err := client.BookSummary(ctx, &orderbook.Empty{})
	if err != nil {
		t.Fatalf("BookSummary: %v", err)
	}

	bus.Publish(&orderbook.Summary{
		Bids: []*orderbook.Level{{Exchange: "binance", Price: 1.0, Amount: 2.0}},
	})

	got, err := stream.Recv()
	if err != nil {
		t.Fatalf("stream.Recv: %v", err)
	}
	if len(got.Bids) != 1 || got.Bids[0].Exchange != "binance" {
		t.Errorf("unexpected summary: %+v", got)
	}
}

func TestBookSummaryEndsWhenBusCloses(t *testing.T) {
	bus := broadcast.New[*orderbook.Summary]()
	srv := New(zerolog.Nop(), bus)

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	orderbook.RegisterOrderbookAggregatorServer(grpcServer, srv)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(lis)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	client := orderbook.NewOrderbookAggregatorClient(conn)
	stream, err := client.BookSummary(ctx, &orderbook.Empty{})
	if err != nil {
		t.Fatalf("BookSummary: %v", err)
	}

	bus.Close()

	if _, err := stream.Recv(); err == nil {
		t.Fatal("expected the stream to end once the publisher closed")
	}
}
