package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/metrics"
	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/trace"
)

// subscribeKline opens one WebSocket session. The dial happens before
// returning so that an unreachable endpoint is reported to the caller; the
// read loop then runs on its own goroutine until the token is cancelled or
// the connection fails. There is no reconnect.
func subscribeKline(ctx context.Context, dialer *websocket.Dialer, u, pair, interval string, handler adapter.Handler) (adapter.Token, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("binance: dial %s: %w", u, err)
	}
	sess := adapter.NewSession(cancel)

	// Close the connection when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	go func() {
		spanCtx, span := trace.StartSpan(ctx, "binance.session", oteltrace.WithAttributes(
			attribute.String("pair", pair),
			attribute.String("interval", interval),
		))
		err := readLoop(spanCtx, conn, pair, interval, handler)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn().Str("pair", pair).Str("interval", interval).Err(err).Msg("binance ws: stream closed")
		}
		span.End()
		cancel()
		sess.Finish(err)
	}()

	return sess, nil
}

// readLoop delivers decoded candles in arrival order. Undecodable messages
// are counted and skipped.
func readLoop(ctx context.Context, conn *websocket.Conn, pair, interval string, handler adapter.Handler) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("binance: read: %w", err)
		}

		c, err := parseWsKline(msg)
		if err != nil {
			metrics.FeedDecodeErrorsTotal.WithLabelValues(source).Inc()
			logger.Warn().Str("pair", pair).Str("interval", interval).Err(err).Msg("binance ws: dropping message")
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		metrics.FeedMessagesTotal.WithLabelValues(source, pair, interval).Inc()
		handler(c)
	}
}

// wsKlineMsg is the Binance kline stream message envelope. Only the nested
// kline is read; the price fields arrive as numeric strings but plain JSON
// numbers are accepted too.
type wsKlineMsg struct {
	Kline *wsKline `json:"k"`
}

type wsKline struct {
	OpenTime *int64              `json:"t"`
	Open     decimal.NullDecimal `json:"o"`
	High     decimal.NullDecimal `json:"h"`
	Low      decimal.NullDecimal `json:"l"`
	Close    decimal.NullDecimal `json:"c"`
}

func parseWsKline(msg []byte) (candle.Candle, error) {
	var m wsKlineMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return candle.Candle{}, fmt.Errorf("%w: %v", adapter.ErrDecode, err)
	}
	k := m.Kline
	if k == nil {
		return candle.Candle{}, fmt.Errorf("%w: missing kline object", adapter.ErrDecode)
	}
	if k.OpenTime == nil {
		return candle.Candle{}, fmt.Errorf("%w: missing open time", adapter.ErrDecode)
	}

	fields := []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"open", k.Open}, {"high", k.High}, {"low", k.Low}, {"close", k.Close},
	}
	var prices [4]float64
	for i, f := range fields {
		if !f.v.Valid {
			return candle.Candle{}, fmt.Errorf("%w: missing %s price", adapter.ErrDecode, f.name)
		}
		v, _ := f.v.Decimal.Float64()
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return candle.Candle{}, fmt.Errorf("%w: %s price %s out of range", adapter.ErrDecode, f.name, f.v.Decimal)
		}
		prices[i] = v
	}

	return candle.Candle{
		OpenTime: *k.OpenTime,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
	}, nil
}
