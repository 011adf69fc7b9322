// Package binance implements the Binance-shaped exchange client: the
// symbol is encoded in the URL path, the server pushes unsolicited depth
// snapshots, and no subscribe handshake is needed. A failed connect is
// retried after a fixed one-second sleep, with no backoff; a dropped
// connection is redialled immediately.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BullionBear/orderbook-aggregator/internal/broadcast"
	"github.com/BullionBear/orderbook-aggregator/internal/exchange"
	"github.com/BullionBear/orderbook-aggregator/internal/obtypes"
	"github.com/BullionBear/orderbook-aggregator/pkg/protobuf/orderbook"
)

const exchangeName = "binance"

// depthMessage is the inbound shape on <base>/ws/<symbol>@depth10@100ms.
// Other fields such as lastUpdateId are ignored.
type depthMessage struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// Client is the Binance exchange client state machine.
type Client struct {
	cfg    exchange.Config
	log    zerolog.Logger
	bus    *broadcast.Bus[*orderbook.Summary]
	ready  *exchange.Ready
	dialer *websocket.Dialer
}

// New constructs a Binance client. Run must be called to start the
// connect/read/reconnect loop.
func New(cfg exchange.Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		log:    log.With().Str("exchange", exchangeName).Logger(),
		bus:    broadcast.New[*orderbook.Summary](),
		ready:  exchange.NewReady(),
		dialer: websocket.DefaultDialer,
	}
}

// Bus returns the publisher new subscribers attach to.
func (c *Client) Bus() *broadcast.Bus[*orderbook.Summary] { return c.bus }

// Ready reports the client's first successful publish.
func (c *Client) Ready() <-chan struct{} { return c.ready.Done() }

// Run drives the client's outer connect/read/reconnect loop until ctx is
// cancelled. It is intended to run for the lifetime of the process.
func (c *Client) Run(ctx context.Context) {
	url := fmt.Sprintf("%s/ws/%s@depth10@100ms", c.cfg.URL, c.cfg.Symbol)
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, url, nil)
		if err != nil {
			c.log.Warn().Err(err).Str("url", url).Msg("binance connect failed, retrying")
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}
		c.log.Info().Str("url", url).Msg("binance connected")

		c.readLoop(ctx, conn)
		conn.Close()
	}
}

// readLoop decodes inbound frames until the connection ends, then
// returns to the outer loop for reconnect.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn().Err(err).Msg("binance read failed, reconnecting")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg depthMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("binance decode failed, dropping message")
			continue
		}

		book := obtypes.NewRawBook(toRawLevels(msg.Bids), toRawLevels(msg.Asks))
		summary, err := obtypes.ToSummary(exchangeName, book)
		if err != nil {
			c.log.Warn().Err(err).Msg("binance conversion failed, dropping message")
			continue
		}

		c.bus.Publish(summary)
		c.ready.Fire()
	}
}

func toRawLevels(pairs [][2]string) []obtypes.RawLevel {
	levels := make([]obtypes.RawLevel, len(pairs))
	for i, pair := range pairs {
		levels[i] = obtypes.RawLevel{Price: pair[0], Amount: pair[1]}
	}
	return levels
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
