package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/yitech/klinechart/config"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/store"
	"github.com/yitech/klinechart/trace"
	"github.com/yitech/klinechart/widget"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "klinechart: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(getEnv("KLINECHART_CONFIG", "klinechart.yaml"))
	if err != nil {
		return err
	}

	// The alternate screen owns stdout, so logs and spans go to files.
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = "klinechart.log"
	}
	closer, err := logger.Init(logger.Config{Service: "klinechart-client", Level: cfg.Log.Level, File: logFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	traceFile := cfg.Trace.File
	if traceFile == "" {
		traceFile = "klinechart-trace.log"
	}
	if err := trace.Init(trace.Config{Enabled: cfg.Trace.Enabled, File: traceFile}); err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := trace.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("trace shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persister, closeStorage, err := openPersister(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	st, err := store.New(ctx, persister, store.WithWindow(cfg.Market.Window), store.WithKey(cfg.Storage.Key))
	if err != nil {
		return err
	}

	feed, closeFeed, err := openFeed(cfg)
	if err != nil {
		return err
	}
	defer closeFeed()

	w, err := widget.New(ctx, feed, st, widget.WithUniverse(cfg.Universe()))
	if err != nil {
		return err
	}
	defer w.Close()

	startWidget(w)

	p := tea.NewProgram(newModel(w), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
