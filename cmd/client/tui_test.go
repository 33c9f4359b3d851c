package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/model/market"
	"github.com/yitech/klinechart/store"
	"github.com/yitech/klinechart/widget"
)

type stubFeed struct {
	handler adapter.Handler
	subs    []market.Selection
}

func (f *stubFeed) Subscribe(ctx context.Context, pair, interval string, h adapter.Handler) (adapter.Token, error) {
	ctx, cancel := context.WithCancel(ctx)
	sess := adapter.NewSession(cancel)
	go func() {
		<-ctx.Done()
		sess.Finish(nil)
	}()
	f.handler = h
	f.subs = append(f.subs, market.Selection{Pair: pair, Interval: interval})
	return sess, nil
}

func newTestModel(t *testing.T) (model, *stubFeed) {
	t.Helper()
	st, err := store.New(context.Background(), store.NewMemoryStorage())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	feed := &stubFeed{}
	w, err := widget.New(context.Background(), feed, st, widget.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("widget.New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	next, _ := newModel(w).Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(model), feed
}

func press(t *testing.T, m model, keys ...tea.KeyMsg) model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(model)
	}
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestPairDropdown(t *testing.T) {
	m, feed := newTestModel(t)

	m = press(t, m, runes("p"))
	if !m.menuOpen || m.cursor != 0 {
		t.Fatalf("menu open=%v cursor=%d", m.menuOpen, m.cursor)
	}
	if !strings.Contains(m.View(), "DOTUSDT") {
		t.Error("open menu does not list every pair")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	if m.menuOpen {
		t.Error("menu still open after choosing")
	}
	if got := m.w.Selection(); got.Pair != "BNBUSDT" || got.Interval != "1m" {
		t.Errorf("selection = %+v", got)
	}
	if len(feed.subs) != 2 {
		t.Errorf("subscriptions = %d, want 2", len(feed.subs))
	}

	m = press(t, m, runes("p"), tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEsc})
	if m.menuOpen || m.w.Selection().Pair != "BNBUSDT" {
		t.Errorf("esc changed selection to %+v", m.w.Selection())
	}
}

func TestIntervalKeys(t *testing.T) {
	m, _ := newTestModel(t)

	m = press(t, m, runes("3"))
	if got := m.w.Selection().Interval; got != "5m" {
		t.Errorf("after 3: interval = %s", got)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if got := m.w.Selection().Interval; got != "1m" {
		t.Errorf("after tab: interval = %s", got)
	}
	m = press(t, m, runes("9"))
	if got := m.w.Selection().Interval; got != "1m" {
		t.Errorf("out of range key changed interval to %s", got)
	}
	if m.err != nil {
		t.Errorf("err = %v", m.err)
	}
}

func TestEventsReachTheChart(t *testing.T) {
	m, feed := newTestModel(t)

	feed.handler(candle.Candle{OpenTime: 1000, Open: 1, High: 1.5, Low: 0.5, Close: 1.2})
	msg := waitForEvent(m.w.Events())()
	next, cmd := m.Update(msg)
	m = next.(model)
	if cmd == nil {
		t.Error("event handling must keep listening")
	}

	view := m.View()
	for _, want := range []string{"ETHUSDT - 1m", "Close Price", "connected"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

type refusingFeed struct{}

func (refusingFeed) Subscribe(context.Context, string, string, adapter.Handler) (adapter.Token, error) {
	return nil, errors.New("dial refused")
}

func TestStartFailureIsLogged(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "client.log")
	closer, err := logger.Init(logger.Config{Service: "test", File: logFile})
	if err != nil {
		t.Fatalf("logger.Init: %v", err)
	}
	defer closer.Close()

	st, _ := store.New(context.Background(), store.NewMemoryStorage())
	w, err := widget.New(context.Background(), refusingFeed{}, st)
	if err != nil {
		t.Fatalf("widget.New: %v", err)
	}
	defer w.Close()

	if err := startWidget(w); err == nil {
		t.Fatal("expected the subscribe error")
	}
	b, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "initial subscribe failed") || !strings.Contains(string(b), "dial refused") {
		t.Errorf("log = %s", b)
	}
	if w.Err() == nil {
		t.Error("status line has no error to show")
	}
}
