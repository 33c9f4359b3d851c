package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/adapter/binance"
	"github.com/yitech/klinechart/config"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/relay"
	"github.com/yitech/klinechart/trace"
)

func main() {
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("relay stopped")
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(getEnv("KLINECHART_CONFIG", "klinechart.yaml"))
	if err != nil {
		return err
	}

	closer, err := logger.Init(logger.Config{Service: "klinechart-relay", Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := trace.Init(trace.Config{Enabled: cfg.Trace.Enabled, File: cfg.Trace.File}); err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var upstream adapter.Feed = binance.New(binance.WithEndpoint(cfg.Feed.Endpoint))
	if brokers := cfg.Relay.Kafka.Brokers; len(brokers) > 0 {
		pub := relay.NewKafkaPublisher(brokers, cfg.Relay.Kafka.Topic)
		defer pub.Close()
		upstream = relay.NewMirrorFeed(upstream, pub)
		logger.Info().Strs("brokers", brokers).Str("topic", cfg.Relay.Kafka.Topic).Msg("mirroring candles to kafka")
	}

	hub := relay.NewHub(ctx, upstream, cfg.Relay.Buffer)
	defer hub.Close()

	lis, err := net.Listen("tcp", cfg.Relay.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Relay.Listen, err)
	}
	s := grpc.NewServer()
	relay.RegisterCandleRelayServer(s, relay.NewServer(hub, cfg.Universe()))

	gin.SetMode(gin.ReleaseMode)
	admin := &http.Server{
		Addr:              cfg.Relay.Admin,
		Handler:           relay.NewAdminRouter(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Relay.Listen).Msg("gRPC relay listening")
		if err := s.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC serve failed")
			stop()
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.Relay.Admin).Msg("admin listening")
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin serve failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	s.GracefulStop()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("admin shutdown")
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("trace shutdown")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
