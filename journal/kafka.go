package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers     []string
	TradesTopic string
	EquityTopic string
	// Timeout bounds each publish. Zero means 5s.
	Timeout time.Duration
}

// messageWriter is the part of *kafka.Writer the journal uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaJournal publishes JSON records keyed by owner, so one owner's fills
// land on one partition in order.
type KafkaJournal struct {
	trades  messageWriter
	equity  messageWriter
	timeout time.Duration
}

func NewKafka(cfg KafkaConfig) (*KafkaJournal, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka journal: no brokers configured")
	}
	if cfg.TradesTopic == "" || cfg.EquityTopic == "" {
		return nil, errors.New("kafka journal: trades and equity topics are required")
	}
	writer := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
	}
	return newKafka(writer(cfg.TradesTopic), writer(cfg.EquityTopic), cfg.Timeout), nil
}

func newKafka(trades, equity messageWriter, timeout time.Duration) *KafkaJournal {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaJournal{trades: trades, equity: equity, timeout: timeout}
}

func (j *KafkaJournal) publish(w messageWriter, key string, at time.Time, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body, Time: at})
}

func (j *KafkaJournal) RecordTrade(t TradeRecord) error {
	if err := j.publish(j.trades, t.Owner, t.ExecutedAt, t); err != nil {
		return fmt.Errorf("publish trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *KafkaJournal) RecordEquity(e EquitySnapshot) error {
	if err := j.publish(j.equity, e.Owner, e.Time, e); err != nil {
		return fmt.Errorf("publish equity for %s: %w", e.Owner, err)
	}
	return nil
}

func (j *KafkaJournal) Close() error {
	return errors.Join(j.trades.Close(), j.equity.Close())
}
