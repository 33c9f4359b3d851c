package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/metrics"
	"github.com/yitech/klinechart/model/candle"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Hub multiplexes one upstream subscription per "pair:interval" key to any
// number of relay subscribers.
//
// The upstream is opened lazily by the first Join for a key and cancelled
// when the last subscriber leaves. If the upstream ends on its own every
// subscriber channel of that key is closed; the next Join opens a fresh one.
// A subscriber whose queue is full misses candles rather than stalling the
// others.
type Hub struct {
	ctx      context.Context
	cancel   context.CancelFunc
	upstream adapter.Feed
	buffer   int

	mu     sync.Mutex
	states map[string]*keyState
}

// keyState holds runtime data for one "pair:interval" key. While the
// upstream is being opened token is nil and ready is still open; once it
// closes either token is set or err says why the open failed.
type keyState struct {
	pair     string
	interval string
	token    adapter.Token
	subs     map[string]chan candle.Candle

	ready chan struct{}
	err   error
}

// Subscription is one subscriber's view of a key.
type Subscription struct {
	ID string

	// C yields candles in upstream order. It is closed when the subscriber
	// leaves or the upstream stream ends.
	C <-chan candle.Candle

	hub   *Hub
	key   string
	state *keyState
}

func NewHub(ctx context.Context, upstream adapter.Feed, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		ctx:      ctx,
		cancel:   cancel,
		upstream: upstream,
		buffer:   buffer,
		states:   make(map[string]*keyState),
	}
}

func hubKey(pair, interval string) string { return pair + ":" + interval }

var errHubClosed = errors.New("relay: hub closed")

// Join registers a subscriber for pair/interval, opening the upstream if
// this is the first one. The upstream is dialed without holding the hub
// lock; concurrent joins for the same key wait for that dial and share its
// outcome.
func (h *Hub) Join(pair, interval string) (*Subscription, error) {
	key := hubKey(pair, interval)

	h.mu.Lock()
	for {
		if h.ctx.Err() != nil {
			h.mu.Unlock()
			return nil, errHubClosed
		}
		st, ok := h.states[key]
		if !ok {
			break
		}
		select {
		case <-st.ready:
			sub := h.addLocked(key, st)
			h.mu.Unlock()
			return sub, nil
		default:
		}
		h.mu.Unlock()
		<-st.ready
		if st.err != nil {
			return nil, st.err
		}
		h.mu.Lock()
	}

	st := &keyState{
		pair:     pair,
		interval: interval,
		subs:     make(map[string]chan candle.Candle),
		ready:    make(chan struct{}),
	}
	h.states[key] = st
	// Registered before the dial so no early candle is missed.
	sub := h.addLocked(key, st)
	h.mu.Unlock()

	tok, err := h.upstream.Subscribe(h.ctx, pair, interval, func(c candle.Candle) {
		h.broadcast(st, c)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil && h.ctx.Err() != nil {
		tok.Unsubscribe()
		err = errHubClosed
	}
	if err != nil {
		st.err = fmt.Errorf("relay [%s]: %w", key, err)
		if h.states[key] == st {
			delete(h.states, key)
		}
		for id, ch := range st.subs {
			delete(st.subs, id)
			close(ch)
		}
		close(st.ready)
		return nil, st.err
	}

	st.token = tok
	close(st.ready)
	go h.watch(key, st)
	logger.Info().Str("key", key).Msg("relay: upstream opened")
	return sub, nil
}

func (h *Hub) addLocked(key string, st *keyState) *Subscription {
	ch := make(chan candle.Candle, h.buffer)
	id := uuid.NewString()
	st.subs[id] = ch
	return &Subscription{ID: id, C: ch, hub: h, key: key, state: st}
}

// Leave unregisters the subscriber. It is safe to call more than once.
func (s *Subscription) Leave() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := s.state.subs[s.ID]
	if !ok {
		return
	}
	delete(s.state.subs, s.ID)
	close(ch)

	if len(s.state.subs) == 0 && h.states[s.key] == s.state {
		delete(h.states, s.key)
		s.state.token.Unsubscribe()
		logger.Info().Str("key", s.key).Msg("relay: upstream closed, no subscribers left")
	}
}

// broadcast is called by the upstream for every candle.
func (h *Hub) broadcast(st *keyState, c candle.Candle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range st.subs {
		select {
		case ch <- c:
		default:
			metrics.RelayDroppedTotal.WithLabelValues(st.pair, st.interval).Inc()
		}
	}
}

// watch ends every subscription of st when its upstream stops by itself.
func (h *Hub) watch(key string, st *keyState) {
	<-st.token.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.states[key] == st {
		delete(h.states, key)
	}
	for id, ch := range st.subs {
		delete(st.subs, id)
		close(ch)
	}
	if err := st.token.Err(); err != nil {
		logger.Warn().Str("key", key).Err(err).Msg("relay: upstream ended")
	}
}

// Counts returns the number of subscribers per "pair:interval" key.
func (h *Hub) Counts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.states))
	for key, st := range h.states {
		out[key] = len(st.subs)
	}
	return out
}

// Close cancels every upstream subscription managed by this hub.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.states {
		// A key still dialing is rolled back by its Join.
		if st.token != nil {
			st.token.Unsubscribe()
		}
	}
}
