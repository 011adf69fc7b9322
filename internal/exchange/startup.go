// Package exchange holds the pieces shared by every upstream exchange
// client: connection configuration and the one-shot start-up signal
// each client fires on its first successfully published Summary.
package exchange

import "sync"

// Config is the connection configuration for one upstream client.
type Config struct {
	// URL is the websocket base URL (BINANCE_URL / BITSTAMP_URL).
	URL string
	// Symbol is the hard-wired trading pair, e.g. "ethbtc".
	Symbol string
}

// Ready is a one-shot gate: Fire closes Done exactly once, on the first
// successful publish. Later reconnects never retrigger it.
type Ready struct {
	once sync.Once
	ch   chan struct{}
}

// NewReady returns an unfired gate.
func NewReady() *Ready {
	return &Ready{ch: make(chan struct{})}
}

// Fire closes Done the first time it is called; later calls are no-ops.
func (r *Ready) Fire() {
	r.once.Do(func() { close(r.ch) })
}

// Done reports the first successful publish.
func (r *Ready) Done() <-chan struct{} {
	return r.ch
}
