package widget

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/model/market"
	"github.com/yitech/klinechart/store"
)

type fakeSub struct {
	pair, interval string
	handler        adapter.Handler
	sess           *adapter.Session
}

type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (f *fakeFeed) Subscribe(ctx context.Context, pair, interval string, h adapter.Handler) (adapter.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ctx, cancel := context.WithCancel(ctx)
	sess := adapter.NewSession(cancel)
	go func() {
		<-ctx.Done()
		sess.Finish(nil)
	}()
	f.subs = append(f.subs, &fakeSub{pair: pair, interval: interval, handler: h, sess: sess})
	return sess, nil
}

func (f *fakeFeed) last(t *testing.T) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		t.Fatal("no subscriptions")
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func newWidget(t *testing.T, feed adapter.Feed) (*Widget, *store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), store.NewMemoryStorage())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	w, err := New(context.Background(), feed, st, WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, st
}

// pump handles n events from the widget's channel.
func pump(t *testing.T, w *Widget, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case ev := <-w.Events():
			w.Handle(ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
}

func TestStartSubscribesDefaultSelection(t *testing.T) {
	feed := &fakeFeed{}
	w, _ := newWidget(t, feed)

	if w.State() != Disconnected {
		t.Errorf("state before Start = %v", w.State())
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sub := feed.last(t)
	if sub.pair != "ETHUSDT" || sub.interval != "1m" {
		t.Errorf("subscribed to %s/%s, want ETHUSDT/1m", sub.pair, sub.interval)
	}
	if w.State() != Connected {
		t.Errorf("state = %v, want connected", w.State())
	}
}

func TestFeedToChart(t *testing.T) {
	feed := &fakeFeed{}
	w, st := newWidget(t, feed)
	w.Start()

	sub := feed.last(t)
	in := []candle.Candle{
		{OpenTime: 1000, Open: 1, High: 1.5, Low: 0.5, Close: 1.2},
		{OpenTime: 2000, Open: 2, High: 2.5, Low: 1.5, Close: 2.2},
		{OpenTime: 3000, Open: 3, High: 3.5, Low: 2.5, Close: 3.2},
	}
	for _, c := range in {
		sub.handler(c)
	}
	pump(t, w, 3)

	if got := st.Series("ETHUSDT", "1m"); !reflect.DeepEqual(got, in) {
		t.Fatalf("series = %+v, want %+v", got, in)
	}
	c := w.Chart()
	if len(c.Labels) != 3 || len(c.Series) != 3 {
		t.Fatalf("chart has %d labels and %d series", len(c.Labels), len(c.Series))
	}
	for _, s := range c.Series {
		if len(s.Values) != 3 {
			t.Errorf("%s has %d values", s.Label, len(s.Values))
		}
	}
	if !reflect.DeepEqual(c.Series[0].Values, []float64{1.2, 2.2, 3.2}) {
		t.Errorf("close = %v", c.Series[0].Values)
	}
}

func TestSwitchSelectionMidStream(t *testing.T) {
	feed := &fakeFeed{}
	w, st := newWidget(t, feed)
	w.Start()

	old := feed.last(t)
	old.handler(candle.Candle{OpenTime: 1000, Close: 1})
	pump(t, w, 1)
	before := st.Snapshot()
	oldGen := w.Generation()

	if err := w.Select(market.Selection{Pair: "BNBUSDT", Interval: "5m"}); err != nil {
		t.Fatalf("Select: %v", err)
	}

	select {
	case <-old.sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("previous subscription was not closed")
	}
	sub := feed.last(t)
	if sub.pair != "BNBUSDT" || sub.interval != "5m" {
		t.Errorf("new subscription %s/%s, want BNBUSDT/5m", sub.pair, sub.interval)
	}
	if feed.count() != 2 {
		t.Errorf("subscriptions = %d, want 2", feed.count())
	}
	if !reflect.DeepEqual(st.Snapshot(), before) {
		t.Error("switching selection mutated the store")
	}

	c := w.Chart()
	if c.Title != "BNBUSDT - 5m" {
		t.Errorf("title = %q", c.Title)
	}
	if len(c.Labels) != 0 || len(c.Series) != 0 {
		t.Errorf("expected empty chart for the new selection, got %+v", c)
	}

	// A late message from the old connection is dropped.
	late := Event{Gen: oldGen, Pair: "ETHUSDT", Interval: "1m", Candle: candle.Candle{OpenTime: 2000}}
	if w.Handle(late) {
		t.Error("stale event was applied")
	}
	if !reflect.DeepEqual(st.Snapshot(), before) {
		t.Error("stale event mutated the store")
	}

	sub.handler(candle.Candle{OpenTime: 5000, Close: 7})
	pump(t, w, 1)
	if got := w.Chart().Series; len(got) != 3 || got[0].Values[0] != 7 {
		t.Errorf("chart after new data = %+v", got)
	}
}

func TestSetPairAndInterval(t *testing.T) {
	feed := &fakeFeed{}
	w, _ := newWidget(t, feed)
	w.Start()

	if err := w.SetPair("DOTUSDT"); err != nil {
		t.Fatalf("SetPair: %v", err)
	}
	if err := w.SetInterval("3m"); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if got := w.Selection(); got != (market.Selection{Pair: "DOTUSDT", Interval: "3m"}) {
		t.Errorf("selection = %+v", got)
	}
	if feed.count() != 3 {
		t.Errorf("subscriptions = %d, want 3", feed.count())
	}

	if err := w.SetInterval("3m"); err != nil {
		t.Errorf("re-selecting: %v", err)
	}
	if feed.count() != 3 {
		t.Error("re-selecting the current interval reconnected")
	}
}

func TestRejectsUnknownSelection(t *testing.T) {
	feed := &fakeFeed{}
	w, _ := newWidget(t, feed)
	w.Start()

	if err := w.SetPair("BTCUSDT"); !errors.Is(err, ErrUnknownPair) {
		t.Errorf("SetPair err = %v, want ErrUnknownPair", err)
	}
	if err := w.SetInterval("1h"); !errors.Is(err, ErrUnknownInterval) {
		t.Errorf("SetInterval err = %v, want ErrUnknownInterval", err)
	}
	if feed.count() != 1 {
		t.Errorf("rejected selection reconnected: %d subscriptions", feed.count())
	}
	if got := w.Selection(); got != (market.Selection{Pair: "ETHUSDT", Interval: "1m"}) {
		t.Errorf("selection changed to %+v", got)
	}
}

func TestStreamDropStopsUpdates(t *testing.T) {
	feed := &fakeFeed{}
	w, _ := newWidget(t, feed)
	w.Start()

	feed.last(t).sess.Finish(errors.New("connection reset"))
	pump(t, w, 1)

	if w.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", w.State())
	}
	if w.Err() == nil {
		t.Error("expected the drop error to be reported")
	}
	if feed.count() != 1 {
		t.Error("widget reconnected on its own")
	}

	// A selection change is the way back.
	w.SetPair("BNBUSDT")
	if w.State() != Connected {
		t.Errorf("state after reselect = %v", w.State())
	}
}

func TestSubscribeFailure(t *testing.T) {
	feed := &fakeFeed{err: errors.New("dial refused")}
	w, _ := newWidget(t, feed)

	if err := w.Start(); err == nil {
		t.Fatal("expected subscribe error")
	}
	if w.State() != Disconnected || w.Err() == nil {
		t.Errorf("state=%v err=%v", w.State(), w.Err())
	}
}

func TestClose(t *testing.T) {
	feed := &fakeFeed{}
	w, _ := newWidget(t, feed)
	w.Start()
	sub := feed.last(t)

	w.Close()
	select {
	case <-sub.sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed on Close")
	}
	if w.State() != Disconnected {
		t.Errorf("state = %v", w.State())
	}
	if err := w.SetPair("BNBUSDT"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetPair after Close err = %v, want ErrClosed", err)
	}
	if w.Handle(Event{Gen: w.Generation(), Pair: "ETHUSDT", Interval: "1m"}) {
		t.Error("Handle after Close applied an event")
	}
}

func TestNewRejectsSelectionOutsideUniverse(t *testing.T) {
	st, _ := store.New(context.Background(), store.NewMemoryStorage())
	_, err := New(context.Background(), &fakeFeed{}, st, WithSelection(market.Selection{Pair: "BTCUSDT", Interval: "1m"}))
	if !errors.Is(err, ErrUnknownPair) {
		t.Errorf("err = %v, want ErrUnknownPair", err)
	}
}

type failingSaves struct{ *store.MemoryStorage }

func (failingSaves) Save(context.Context, string, []byte) error { return errors.New("disk full") }

func TestPersistFailureKeepsCandleAndReportsError(t *testing.T) {
	st, err := store.New(context.Background(), failingSaves{store.NewMemoryStorage()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	feed := &fakeFeed{}
	w, err := New(context.Background(), feed, st, WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	w.Start()

	feed.last(t).handler(candle.Candle{OpenTime: 1000, Close: 1.2})
	pump(t, w, 1)

	if w.Err() == nil || !strings.Contains(w.Err().Error(), "disk full") {
		t.Errorf("Err = %v, want the save error", w.Err())
	}
	if w.State() != Connected {
		t.Errorf("state = %v, a save error must not end the stream", w.State())
	}
	if got := st.Series("ETHUSDT", "1m"); len(got) != 1 || got[0].Close != 1.2 {
		t.Errorf("series = %+v", got)
	}
	if c := w.Chart(); len(c.Labels) != 1 {
		t.Errorf("chart labels = %v", c.Labels)
	}
}
