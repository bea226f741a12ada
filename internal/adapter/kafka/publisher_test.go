package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade/internal/domain"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishCopyResult(t *testing.T) {
	w := &recordingWriter{}
	p := &CopyResultPublisher{writer: w, Topic: "copy-trade-results"}
	brokerID := uuid.New()

	err := p.PublishCopyResult(context.Background(), brokerID, domain.CopyResult{
		Follower: "alice",
		Trade:    "BTCUSD buy 1",
		Action:   domain.ActionOpen,
		Success:  true,
		Status:   domain.CopyStatusExecuted,
		CopySize: 0.01,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, brokerID.String(), string(w.msgs[0].Key))

	var got copyResultMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, brokerID, got.BrokerID)
	assert.Equal(t, "alice", got.Result.Follower)
	assert.Equal(t, 0.01, got.Result.CopySize)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishCopyResultWriteError(t *testing.T) {
	p := &CopyResultPublisher{writer: &recordingWriter{err: errors.New("leader not available")}}

	err := p.PublishCopyResult(context.Background(), uuid.New(), domain.CopyResult{})
	assert.ErrorContains(t, err, "kafka write")
}

func TestNewCopyResultPublisherFlushesQuickly(t *testing.T) {
	p := NewCopyResultPublisher([]string{"localhost:9092"}, "copy-results")
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, writerBatchTimeout, w.BatchTimeout)
	assert.Less(t, w.BatchTimeout, 100*time.Millisecond)
	assert.Equal(t, "copy-results", w.Topic)
}
