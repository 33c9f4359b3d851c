package widget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/chart"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/model/market"
	"github.com/yitech/klinechart/store"
)

var (
	ErrUnknownPair     = errors.New("widget: unknown pair")
	ErrUnknownInterval = errors.New("widget: unknown interval")
	ErrClosed          = errors.New("widget: closed")
)

// State is the connection state of the widget.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Event is produced by the active feed subscription. Gen identifies the
// subscription; the widget ignores events from any earlier one. An event
// with Ended set reports that the stream stopped on its own.
type Event struct {
	Gen      uint64
	Pair     string
	Interval string
	Candle   candle.Candle
	Ended    bool
	Err      error
}

// Widget ties the selection, the feed subscription and the candle store
// together. Feed goroutines only post Events; every other method must be
// called from one goroutine (the UI loop), which is where the store is
// mutated and the chart derived.
type Widget struct {
	ctx    context.Context
	cancel context.CancelFunc

	feed     adapter.Feed
	store    *store.Store
	universe market.Universe
	sel      market.Selection
	loc      *time.Location

	events    chan Event
	gen       uint64
	state     State
	token     adapter.Token
	subCancel context.CancelFunc
	lastErr   error
	closed    bool
}

type Option func(*Widget)

func WithUniverse(u market.Universe) Option {
	return func(w *Widget) { w.universe = u }
}

// WithSelection sets the initial selection; it must be part of the universe.
func WithSelection(sel market.Selection) Option {
	return func(w *Widget) { w.sel = sel }
}

// WithLocation sets the time zone for chart labels.
func WithLocation(loc *time.Location) Option {
	return func(w *Widget) { w.loc = loc }
}

func WithEventBuffer(n int) Option {
	return func(w *Widget) {
		if n > 0 {
			w.events = make(chan Event, n)
		}
	}
}

// New builds a disconnected widget. Call Start to open the first stream.
func New(ctx context.Context, feed adapter.Feed, st *store.Store, opts ...Option) (*Widget, error) {
	w := &Widget{
		feed:     feed,
		store:    st,
		universe: market.DefaultUniverse(),
		loc:      time.Local,
		events:   make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(w)
	}

	if len(w.universe.Pairs) == 0 || len(w.universe.Intervals) == 0 {
		return nil, errors.New("widget: universe needs at least one pair and one interval")
	}
	if w.sel == (market.Selection{}) {
		w.sel = w.universe.First()
	}
	if err := w.validate(w.sel); err != nil {
		return nil, err
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	return w, nil
}

func (w *Widget) validate(sel market.Selection) error {
	if !w.universe.HasPair(sel.Pair) {
		return fmt.Errorf("%w: %q", ErrUnknownPair, sel.Pair)
	}
	if !w.universe.HasInterval(sel.Interval) {
		return fmt.Errorf("%w: %q", ErrUnknownInterval, sel.Interval)
	}
	return nil
}

// Start subscribes to the current selection.
func (w *Widget) Start() error {
	if w.closed {
		return ErrClosed
	}
	return w.connect()
}

func (w *Widget) Selection() market.Selection { return w.sel }

func (w *Widget) Universe() market.Universe { return w.universe }

func (w *Widget) State() State { return w.state }

// Err returns the last feed or persistence error, if any.
func (w *Widget) Err() error { return w.lastErr }

// Generation identifies the current subscription.
func (w *Widget) Generation() uint64 { return w.gen }

// Events carries feed output for Handle.
func (w *Widget) Events() <-chan Event { return w.events }

func (w *Widget) SetPair(p string) error {
	return w.Select(market.Selection{Pair: p, Interval: w.sel.Interval})
}

func (w *Widget) SetInterval(i string) error {
	return w.Select(market.Selection{Pair: w.sel.Pair, Interval: i})
}

// Select switches pair and interval together. An unknown value is rejected
// without side effects; re-selecting the current value does nothing.
// The store is never touched.
func (w *Widget) Select(sel market.Selection) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.validate(sel); err != nil {
		return err
	}
	if sel == w.sel {
		return nil
	}
	w.sel = sel
	return w.connect()
}

// connect tears down the current subscription and opens one for w.sel.
func (w *Widget) connect() error {
	w.disconnect()
	w.gen++
	gen, sel := w.gen, w.sel

	subCtx, subCancel := context.WithCancel(w.ctx)
	post := func(ev Event) {
		select {
		case w.events <- ev:
		case <-subCtx.Done():
		}
	}

	tok, err := w.feed.Subscribe(subCtx, sel.Pair, sel.Interval, func(c candle.Candle) {
		post(Event{Gen: gen, Pair: sel.Pair, Interval: sel.Interval, Candle: c})
	})
	if err != nil {
		subCancel()
		w.lastErr = err
		logger.Warn().Str("pair", sel.Pair).Str("interval", sel.Interval).Err(err).Msg("widget: subscribe failed")
		return fmt.Errorf("widget: subscribe %s: %w", sel, err)
	}

	go func() {
		select {
		case <-tok.Done():
		case <-subCtx.Done():
			return
		}
		if err := tok.Err(); err != nil {
			post(Event{Gen: gen, Pair: sel.Pair, Interval: sel.Interval, Ended: true, Err: err})
		}
	}()

	w.token, w.subCancel = tok, subCancel
	w.state = Connected
	w.lastErr = nil
	logger.Info().Str("pair", sel.Pair).Str("interval", sel.Interval).Uint64("gen", gen).Msg("widget: connected")
	return nil
}

func (w *Widget) disconnect() {
	if w.subCancel != nil {
		w.subCancel()
		w.subCancel = nil
	}
	if w.token != nil {
		w.token.Unsubscribe()
		w.token = nil
	}
	w.state = Disconnected
}

// Handle applies one event. It reports false for events from a superseded
// subscription, which are dropped unseen.
func (w *Widget) Handle(ev Event) bool {
	if w.closed || ev.Gen != w.gen {
		return false
	}
	if ev.Ended {
		w.state = Disconnected
		w.lastErr = ev.Err
		return true
	}
	if err := w.store.Append(w.ctx, ev.Pair, ev.Interval, ev.Candle); err != nil {
		w.lastErr = err
		logger.Warn().Str("pair", ev.Pair).Str("interval", ev.Interval).Err(err).Msg("widget: persist failed")
	}
	return true
}

// Chart renders the selected series.
func (w *Widget) Chart() chart.Chart {
	return chart.Render(w.store, w.sel, chart.WithLocation(w.loc))
}

// Close tears down the subscription for good.
func (w *Widget) Close() error {
	if w.closed {
		return nil
	}
	w.disconnect()
	w.closed = true
	w.cancel()
	return nil
}
