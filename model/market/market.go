package market

import "slices"

var (
	// DefaultPairs are the selectable trading pairs when none are configured.
	DefaultPairs = []string{"ETHUSDT", "BNBUSDT", "DOTUSDT"}

	// DefaultIntervals are the selectable kline intervals when none are configured.
	DefaultIntervals = []string{"1m", "3m", "5m"}
)

// Selection is the pair/interval whose series is streamed and drawn.
type Selection struct {
	Pair     string
	Interval string
}

func (s Selection) String() string {
	return s.Pair + " - " + s.Interval
}

// Universe is the closed set of pairs and intervals a widget may select.
type Universe struct {
	Pairs     []string
	Intervals []string
}

func DefaultUniverse() Universe {
	return Universe{
		Pairs:     slices.Clone(DefaultPairs),
		Intervals: slices.Clone(DefaultIntervals),
	}
}

func (u Universe) HasPair(p string) bool { return slices.Contains(u.Pairs, p) }

func (u Universe) HasInterval(i string) bool { return slices.Contains(u.Intervals, i) }

// First returns the initial selection: the first pair and first interval.
func (u Universe) First() Selection {
	var s Selection
	if len(u.Pairs) > 0 {
		s.Pair = u.Pairs[0]
	}
	if len(u.Intervals) > 0 {
		s.Interval = u.Intervals[0]
	}
	return s
}
