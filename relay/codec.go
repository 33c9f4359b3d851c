package relay

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/model/market"
)

// Relay messages are google.protobuf.Struct values:
//
//	request: {"pair": string, "interval": string}
//	candle:  {"pair", "interval": string, "time", "open", "high", "low", "close": number}

func EncodeRequest(sel market.Selection) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"pair":     structpb.NewStringValue(sel.Pair),
		"interval": structpb.NewStringValue(sel.Interval),
	}}
}

func DecodeRequest(s *structpb.Struct) (market.Selection, error) {
	pair := s.GetFields()["pair"].GetStringValue()
	interval := s.GetFields()["interval"].GetStringValue()
	if pair == "" || interval == "" {
		return market.Selection{}, fmt.Errorf("relay: request needs pair and interval")
	}
	return market.Selection{Pair: pair, Interval: interval}, nil
}

func EncodeCandle(sel market.Selection, c candle.Candle) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"pair":     structpb.NewStringValue(sel.Pair),
		"interval": structpb.NewStringValue(sel.Interval),
		"time":     structpb.NewNumberValue(float64(c.OpenTime)),
		"open":     structpb.NewNumberValue(c.Open),
		"high":     structpb.NewNumberValue(c.High),
		"low":      structpb.NewNumberValue(c.Low),
		"close":    structpb.NewNumberValue(c.Close),
	}}
}

// DecodeCandle is the guarded counterpart of EncodeCandle: every price
// field and the open time must be present and numeric.
func DecodeCandle(s *structpb.Struct) (candle.Candle, error) {
	fields := s.GetFields()
	num := func(name string) (float64, error) {
		v, ok := fields[name]
		if !ok {
			return 0, fmt.Errorf("%w: missing %s", adapter.ErrDecode, name)
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return 0, fmt.Errorf("%w: %s is not a number", adapter.ErrDecode, name)
		}
		if math.IsInf(n.NumberValue, 0) || math.IsNaN(n.NumberValue) {
			return 0, fmt.Errorf("%w: %s is not finite", adapter.ErrDecode, name)
		}
		return n.NumberValue, nil
	}

	var vals [5]float64
	for i, name := range []string{"time", "open", "high", "low", "close"} {
		v, err := num(name)
		if err != nil {
			return candle.Candle{}, err
		}
		vals[i] = v
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if vals[0] < math.MinInt64 || vals[0] >= math.MaxInt64 {
		return candle.Candle{}, fmt.Errorf("%w: time %g out of range", adapter.ErrDecode, vals[0])
	}
	return candle.Candle{
		OpenTime: int64(vals[0]),
		Open:     vals[1],
		High:     vals[2],
		Low:      vals[3],
		Close:    vals[4],
	}, nil
}
