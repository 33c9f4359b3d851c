package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/metrics"
	"github.com/yitech/klinechart/model/market"
)

const source = "relay"

// Client is an adapter.Feed backed by a relay server. Each Subscribe is
// one server stream; like the direct feed it does not reconnect.
type Client struct {
	conn *grpc.ClientConn
}

func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("relay: new client %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Subscribe(ctx context.Context, pair, interval string, handler adapter.Handler) (adapter.Token, error) {
	ctx, cancel := context.WithCancel(ctx)
	sel := market.Selection{Pair: pair, Interval: interval}

	stream, err := openStream(ctx, c.conn, EncodeRequest(sel))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("relay: subscribe %s: %w", sel, err)
	}
	sess := adapter.NewSession(cancel)

	go func() {
		err := readStream(ctx, stream, sel, handler)
		if err != nil {
			logger.Warn().Str("pair", pair).Str("interval", interval).Err(err).Msg("relay: stream closed")
		}
		cancel()
		sess.Finish(err)
	}()
	return sess, nil
}

func readStream(ctx context.Context, stream grpc.ClientStream, sel market.Selection, handler adapter.Handler) error {
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("relay: server ended the stream")
			}
			return fmt.Errorf("relay: recv: %w", err)
		}

		c, err := DecodeCandle(msg)
		if err != nil {
			metrics.FeedDecodeErrorsTotal.WithLabelValues(source).Inc()
			logger.Warn().Str("pair", sel.Pair).Str("interval", sel.Interval).Err(err).Msg("relay: dropping message")
			continue
		}
		metrics.FeedMessagesTotal.WithLabelValues(source, sel.Pair, sel.Interval).Inc()
		handler(c)
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

var _ adapter.Feed = (*Client)(nil)
