package candle

import "time"

// Candle is one OHLC price bar for a pair/interval/time bucket.
// The JSON shape is the one persisted in store snapshots.
type Candle struct {
	OpenTime int64   `json:"time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
}

// Time returns the open time as a time.Time in the given location.
func (c Candle) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(c.OpenTime).In(loc)
}

// Keep returns the last n candles of s, or s itself when it is short enough.
func Keep(s []Candle, n int) []Candle {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
