package adapter

import (
	"context"
	"errors"

	"github.com/yitech/klinechart/model/candle"
)

// ErrDecode wraps every failure to turn an inbound feed message into a Candle.
var ErrDecode = errors.New("decode kline")

// Handler receives each decoded candle, in arrival order, from one session.
type Handler func(c candle.Candle)

// Token represents one live subscription.
type Token interface {
	// Unsubscribe closes the connection. It is safe to call more than once.
	Unsubscribe()

	// Done is closed once the session has ended for any reason.
	Done() <-chan struct{}

	// Err reports why the session ended: nil after Unsubscribe, otherwise
	// the dial or read error. Only meaningful after Done is closed.
	Err() error
}

// Feed defines the contract for kline streaming sources.
// Each call to Subscribe opens exactly one streaming connection; there is
// no reconnect when it drops.
type Feed interface {
	Subscribe(ctx context.Context, pair, interval string, handler Handler) (Token, error)
}
