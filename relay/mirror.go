package relay

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/yitech/klinechart/adapter"
	"github.com/yitech/klinechart/logger"
	"github.com/yitech/klinechart/model/candle"
)

// Publisher receives a copy of every candle read from upstream.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaPublisher wraps kafka.Writer. Writes are asynchronous so a slow
// broker never holds up the upstream read loop.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// mirrorRecord is the published value.
type mirrorRecord struct {
	Pair     string `json:"pair"`
	Interval string `json:"interval"`
	candle.Candle
}

// MirrorFeed passes candles through from the wrapped feed after handing a
// copy to pub.
type MirrorFeed struct {
	feed adapter.Feed
	pub  Publisher
}

func NewMirrorFeed(feed adapter.Feed, pub Publisher) *MirrorFeed {
	return &MirrorFeed{feed: feed, pub: pub}
}

func (m *MirrorFeed) Subscribe(ctx context.Context, pair, interval string, handler adapter.Handler) (adapter.Token, error) {
	key := []byte(hubKey(pair, interval))
	return m.feed.Subscribe(ctx, pair, interval, func(c candle.Candle) {
		data, err := json.Marshal(mirrorRecord{Pair: pair, Interval: interval, Candle: c})
		if err == nil {
			err = m.pub.Publish(ctx, key, data)
		}
		if err != nil {
			logger.Warn().Str("pair", pair).Str("interval", interval).Err(err).Msg("relay: mirror publish failed")
		}
		handler(c)
	})
}
