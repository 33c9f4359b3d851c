package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klinechart_feed_messages_total",
			Help: "Kline messages decoded from the upstream feed",
		},
		[]string{"source", "pair", "interval"},
	)

	FeedDecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klinechart_feed_decode_errors_total",
			Help: "Feed messages dropped because they could not be decoded",
		},
		[]string{"source"},
	)

	StorePersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "klinechart_store_persist_duration_seconds",
			Help:    "Time spent serializing and saving a store snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"result"},
	)

	RelaySubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "klinechart_relay_subscribers",
			Help: "Active relay subscribers per pair and interval",
		},
		[]string{"pair", "interval"},
	)

	RelayDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klinechart_relay_dropped_total",
			Help: "Candles dropped for relay subscribers with a full buffer",
		},
		[]string{"pair", "interval"},
	)
)
