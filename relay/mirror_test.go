package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/yitech/klinechart/model/candle"
)

type recordedMsg struct {
	key, value []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []recordedMsg
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, recordedMsg{key: key, value: value})
	return p.err
}

func TestMirrorFeedPublishesAndDelivers(t *testing.T) {
	up := &fakeUpstream{}
	pub := &fakePublisher{}
	feed := NewMirrorFeed(up, pub)

	var got []candle.Candle
	tok, err := feed.Subscribe(context.Background(), "ETHUSDT", "1m", func(c candle.Candle) { got = append(got, c) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer tok.Unsubscribe()

	c := candle.Candle{OpenTime: 1000, Open: 1, High: 1.5, Low: 0.5, Close: 1.2}
	up.last().handler(c)

	if len(got) != 1 || got[0] != c {
		t.Fatalf("delivered %+v", got)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	if string(pub.msgs[0].key) != "ETHUSDT:1m" {
		t.Errorf("key = %s", pub.msgs[0].key)
	}
	var rec map[string]any
	if err := json.Unmarshal(pub.msgs[0].value, &rec); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if rec["pair"] != "ETHUSDT" || rec["interval"] != "1m" || rec["close"] != 1.2 || rec["time"] != float64(1000) {
		t.Errorf("value = %v", rec)
	}
}

func TestMirrorFeedPublishErrorDoesNotBlockDelivery(t *testing.T) {
	up := &fakeUpstream{}
	feed := NewMirrorFeed(up, &fakePublisher{err: errors.New("broker down")})

	delivered := 0
	tok, _ := feed.Subscribe(context.Background(), "BNBUSDT", "5m", func(candle.Candle) { delivered++ })
	defer tok.Unsubscribe()

	up.last().handler(candle.Candle{OpenTime: 1})
	up.last().handler(candle.Candle{OpenTime: 2})
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}
