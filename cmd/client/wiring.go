package main

import (
	"context"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/adapter/binance"
	"github.com/yitech/klinechart/config"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/relay"
	"github.com/yitech/klinechart/store"
	"github.com/yitech/klinechart/store/pgstore"
	"github.com/yitech/klinechart/store/redisstore"
	"github.com/yitech/klinechart/widget"
)

func noop() error { return nil }

// openPersister builds the snapshot backend named by the config.
func openPersister(ctx context.Context, cfg *config.Config) (store.Persister, func() error, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return store.NewMemoryStorage(), noop, nil
	case config.BackendRedis:
		rs := redisstore.New(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, err
		}
		return rs, rs.Close, nil
	case config.BackendPostgres:
		pg, err := pgstore.Open(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		fs, err := store.NewFileStorage(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	}
}

// openFeed builds the kline source named by the config.
func openFeed(cfg *config.Config) (adapter.Feed, func() error, error) {
	if cfg.Feed.Source == config.SourceRelay {
		c, err := relay.Dial(cfg.Feed.RelayAddr)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	return binance.New(binance.WithEndpoint(cfg.Feed.Endpoint)), noop, nil
}

// startWidget opens the first stream. A failure is logged and then left to
// the status line; changing the selection retries.
func startWidget(w *widget.Widget) error {
	err := w.Start()
	if err != nil {
		logger.Warn().Err(err).Msg("initial subscribe failed")
	}
	return err
}
