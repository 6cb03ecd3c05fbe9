package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
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

func TestSendMessageEncodesJSON(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w)

	err := p.SendMessage(context.Background(), "pricing.reports", "AAPL",
		map[string]float64{"price": 10.45},
		kafka.Header{Key: "event_type", Value: []byte("pricing.completed")})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "pricing.reports", msg.Topic)
	assert.Equal(t, []byte("AAPL"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)

	var body map[string]float64
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, 10.45, body["price"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestSendMessageErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewProducerWithWriter(&recordingWriter{err: boom})
	assert.ErrorIs(t, p.SendMessage(context.Background(), "t", "k", 1), boom)

	err := p.SendMessage(context.Background(), "t", "k", func() {})
	assert.ErrorContains(t, err, "failed to marshal message")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(KafkaConfig{})
	assert.Error(t, err)
}
