// Package bitstamp implements the Bitstamp-shaped exchange client: after
// connecting, the client sends a vendor subscribe envelope, then filters
// inbound frames on their event field before decoding. Connection
// handling follows the same reconnecting shape as internal/exchange/binance.
package bitstamp

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

const exchangeName = "bitstamp"

type subscribeRequest struct {
	Event string        `json:"event"`
	Data  subscribeChan `json:"data"`
}

type subscribeChan struct {
	Channel string `json:"channel"`
}

// inboundMessage is the envelope every Bitstamp frame arrives in.
// Messages whose Event is not "data" (subscription acks, etc.) carry no
// Data.Bids/Data.Asks and are skipped before decoding.
type inboundMessage struct {
	Event string `json:"event"`
	Data  struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	} `json:"data"`
}

// Client is the Bitstamp exchange client state machine.
type Client struct {
	cfg    exchange.Config
	log    zerolog.Logger
	bus    *broadcast.Bus[*orderbook.Summary]
	ready  *exchange.Ready
	dialer *websocket.Dialer
}

// New constructs a Bitstamp client. Run must be called to start the
// connect/subscribe/read/reconnect loop.
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

// Run drives the client's outer connect/subscribe/read/reconnect loop
// until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			c.log.Warn().Err(err).Str("url", c.cfg.URL).Msg("bitstamp connect failed, retrying")
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}
		c.log.Info().Str("url", c.cfg.URL).Msg("bitstamp connected")

		if err := c.subscribe(conn); err != nil {
			c.log.Warn().Err(err).Msg("bitstamp subscribe failed, reconnecting")
			conn.Close()
			continue
		}

		c.readLoop(ctx, conn)
		conn.Close()
	}
}

// subscribe sends the vendor subscription envelope once, before the read
// loop starts.
func (c *Client) subscribe(conn *websocket.Conn) error {
	req := subscribeRequest{
		Event: "bts:subscribe",
		Data:  subscribeChan{Channel: fmt.Sprintf("order_book_%s", c.cfg.Symbol)},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn().Err(err).Msg("bitstamp read failed, reconnecting")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var envelope struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.log.Warn().Err(err).Msg("bitstamp decode failed, dropping message")
			continue
		}
		if envelope.Event != "data" {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("bitstamp decode failed, dropping message")
			continue
		}

		book := obtypes.NewRawBook(toRawLevels(msg.Data.Bids), toRawLevels(msg.Data.Asks))
		summary, err := obtypes.ToSummary(exchangeName, book)
		if err != nil {
			c.log.Warn().Err(err).Msg("bitstamp conversion failed, dropping message")
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
