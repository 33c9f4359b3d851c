package binance

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/yitech/klinechart/adapter"
)

// DefaultEndpoint is the public Binance market stream base.
const DefaultEndpoint = "wss://stream.binance.com:9443/ws"

const source = "binance"

// Adapter streams Binance klines, one WebSocket per subscription.
type Adapter struct {
	endpoint string
	dialer   *websocket.Dialer
}

type Option func(*Adapter)

// WithEndpoint overrides the stream base URL, e.g. for a testnet or mirror.
func WithEndpoint(u string) Option {
	return func(a *Adapter) {
		if u != "" {
			a.endpoint = u
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(a *Adapter) { a.dialer = d }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{
		endpoint: DefaultEndpoint,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StreamURL returns <endpoint>/<pair-lower>@kline_<interval>.
func (a *Adapter) StreamURL(pair, interval string) string {
	return strings.TrimRight(a.endpoint, "/") + "/" + strings.ToLower(pair) + "@kline_" + interval
}

// Subscribe dials the kline stream for pair/interval and invokes handler for
// every decoded update until the token is cancelled or the connection drops.
func (a *Adapter) Subscribe(ctx context.Context, pair, interval string, handler adapter.Handler) (adapter.Token, error) {
	return subscribeKline(ctx, a.dialer, a.StreamURL(pair, interval), pair, interval, handler)
}

var _ adapter.Feed = (*Adapter)(nil)
