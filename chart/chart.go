package chart

import (
	"time"

	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/model/market"
)

// MaxTicks caps how many x-axis labels are shown.
const MaxTicks = 10

// LabelLayout formats a candle's open time on the x-axis.
const LabelLayout = "15:04:05"

// Series colors, one per price line.
const (
	CloseColor = "#4bc0c0"
	HighColor  = "#ff6384"
	LowColor   = "#36a2eb"
)

// Series is one labeled price line.
type Series struct {
	Label  string
	Color  string
	Values []float64
}

// Chart is the render-ready view of one candle series.
type Chart struct {
	Title  string
	Labels []string
	Series []Series
}

// Empty reports whether there is nothing to draw.
func (c Chart) Empty() bool { return len(c.Labels) == 0 }

// Source is anything that can hand out the candles of one pair/interval.
type Source interface {
	Series(pair, interval string) []candle.Candle
}

type options struct {
	loc *time.Location
}

type Option func(*options)

// WithLocation formats labels in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// Render derives the close/high/low lines for sel from src. It holds no
// state; a selection with no candles yields empty labels and no series.
func Render(src Source, sel market.Selection, opts ...Option) Chart {
	o := options{loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	c := Chart{Title: sel.String(), Labels: []string{}}
	data := src.Series(sel.Pair, sel.Interval)
	if len(data) == 0 {
		return c
	}

	closes := make([]float64, len(data))
	highs := make([]float64, len(data))
	lows := make([]float64, len(data))
	c.Labels = make([]string, len(data))
	for i, d := range data {
		c.Labels[i] = d.Time(o.loc).Format(LabelLayout)
		closes[i] = d.Close
		highs[i] = d.High
		lows[i] = d.Low
	}

	c.Series = []Series{
		{Label: "Close Price", Color: CloseColor, Values: closes},
		{Label: "High Price", Color: HighColor, Values: highs},
		{Label: "Low Price", Color: LowColor, Values: lows},
	}
	return c
}

// TickIndices picks at most max evenly spaced label positions out of n,
// always starting at 0.
func TickIndices(n, max int) []int {
	if n <= 0 || max <= 0 {
		return nil
	}
	step := (n + max - 1) / max
	out := make([]int, 0, max)
	for i := 0; i < n; i += step {
		out = append(out, i)
	}
	return out
}
