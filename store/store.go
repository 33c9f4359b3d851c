package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/metrics"
	"github.com/yitech/klinechart/model/candle"
	"github.com/yitech/klinechart/trace"
)

const (
	// DefaultKey is the storage key holding the whole snapshot.
	DefaultKey = "chartData"

	// DefaultWindow is how many candles each series keeps.
	DefaultWindow = 100
)

// Snapshot is the serialized form of a Store: pair → interval → series.
type Snapshot map[string]map[string][]candle.Candle

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for pair, byInterval := range s {
		m := make(map[string][]candle.Candle, len(byInterval))
		for interval, series := range byInterval {
			m[interval] = slices.Clone(series)
		}
		out[pair] = m
	}
	return out
}

// DecodeSnapshot parses a serialized snapshot. JSON null decodes to an
// empty snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	if s == nil {
		s = make(Snapshot)
	}
	return s, nil
}

// Store holds the recent candles of every pair/interval seen so far and
// mirrors the whole set to a Persister after each mutation.
type Store struct {
	mu        sync.RWMutex
	data      Snapshot
	window    int
	key       string
	persister Persister
}

type Option func(*Store)

// WithWindow caps each series at n candles.
func WithWindow(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithKey changes the storage key used for the snapshot.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// New builds a Store and restores the last snapshot from p. A missing
// snapshot starts empty, as does a corrupt one (logged). Only a failing
// Persister is reported as an error.
func New(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		data:      make(Snapshot),
		window:    DefaultWindow,
		key:       DefaultKey,
		persister: p,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := p.Load(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("store: load %q: %w", s.key, err)
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		logger.Warn().Str("key", s.key).Err(err).Msg("store: ignoring corrupt snapshot")
		return s, nil
	}
	for pair, byInterval := range snap {
		for interval, series := range byInterval {
			if s.data[pair] == nil {
				s.data[pair] = make(map[string][]candle.Candle)
			}
			s.data[pair][interval] = slices.Clone(candle.Keep(series, s.window))
		}
	}
	return s, nil
}

// Window returns the per-series cap.
func (s *Store) Window() int { return s.window }

// Append adds c to the pair/interval series, drops the oldest candles beyond
// the window and saves the whole store. The candle stays in memory even if
// the save fails.
func (s *Store) Append(ctx context.Context, pair, interval string, c candle.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byInterval, ok := s.data[pair]
	if !ok {
		byInterval = make(map[string][]candle.Candle)
		s.data[pair] = byInterval
	}
	series := append(byInterval[interval], c)
	if len(series) > s.window {
		series = slices.Clone(candle.Keep(series, s.window))
	}
	byInterval[interval] = series

	return s.persistLocked(ctx)
}

// persistLocked serializes the whole store and overwrites the snapshot.
func (s *Store) persistLocked(ctx context.Context) (err error) {
	ctx, span := trace.StartSpan(ctx, "store.persist", oteltrace.WithAttributes(attribute.String("key", s.key)))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.StorePersistDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
		span.End()
	}()

	data, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	span.SetAttributes(attribute.Int("bytes", len(data)))
	if err := s.persister.Save(ctx, s.key, data); err != nil {
		return fmt.Errorf("store: save %q: %w", s.key, err)
	}
	return nil
}

// Series returns a copy of the candles for pair/interval, oldest first, or
// nil when nothing has been received for that combination.
func (s *Store) Series(pair, interval string) []candle.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[pair][interval])
}

// Snapshot returns a deep copy of the store contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// MarshalJSON encodes the store exactly as it is persisted.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.data)
}
