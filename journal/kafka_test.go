package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaJournalRecordTrade(t *testing.T) {
	t.Parallel()

	trades, equity := &fakeWriter{}, &fakeWriter{}
	j := newKafka(trades, equity, 0)

	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.Len(t, trades.msgs, 1)
	assert.Empty(t, equity.msgs)

	msg := trades.msgs[0]
	assert.Equal(t, "alice", string(msg.Key))
	assert.True(t, msg.Time.Equal(executed))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "BUY", body["side"])
	assert.Equal(t, "190.5", body["price"])
	assert.Equal(t, float64(10), body["qty"])
}

func TestKafkaJournalRecordEquity(t *testing.T) {
	t.Parallel()

	trades, equity := &fakeWriter{}, &fakeWriter{}
	j := newKafka(trades, equity, 0)

	require.NoError(t, j.RecordEquity(sampleEquity()))
	require.Len(t, equity.msgs, 1)
	assert.Equal(t, "alice", string(equity.msgs[0].Key))

	require.NoError(t, j.Close())
	assert.True(t, trades.closed)
	assert.True(t, equity.closed)
}

func TestKafkaJournalError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	j := newKafka(&fakeWriter{err: boom}, &fakeWriter{}, 0)
	err := j.RecordTrade(sampleTrade())
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaConfig(t *testing.T) {
	t.Parallel()

	_, err := NewKafka(KafkaConfig{})
	assert.Error(t, err)
	_, err = NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	j, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}, TradesTopic: "paper.trades", EquityTopic: "paper.equity"})
	require.NoError(t, err)
	assert.NoError(t, j.Close())
}
