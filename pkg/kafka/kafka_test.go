package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/voice-context-engine/pkg/kafka/kafkatest"
)

func runUntilDrained(t *testing.T, c *Consumer, r *kafkatest.Reader) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for !r.Drained() {
		select {
		case err := <-errc:
			return err
		case <-deadline:
			t.Fatal("consumer did not drain")
		case <-time.After(time.Millisecond):
		}
	}
	// let the last handler finish before stopping
	time.Sleep(10 * time.Millisecond)
	cancel()
	return <-errc
}

func TestConsumerProcessesInOrderAndCommits(t *testing.T) {
	r := kafkatest.NewReader(
		kafka.Message{Key: []byte("s1"), Value: []byte(`1`)},
		kafka.Message{Key: []byte("s1"), Value: []byte(`2`)},
		kafka.Message{Key: []byte("s1"), Value: []byte(`3`)},
	)
	var seen []string
	c := NewConsumerWithReader(r, "transcripts.text", func(_ context.Context, _ []byte, value []byte) error {
		seen = append(seen, string(value))
		return nil
	})

	require.NoError(t, runUntilDrained(t, c, r))
	assert.Equal(t, []string{"1", "2", "3"}, seen)
	assert.Len(t, r.Committed(), 3)
}

func TestConsumerCommitsSkippedMessages(t *testing.T) {
	r := kafkatest.NewReader(
		kafka.Message{Value: []byte(`garbage`)},
		kafka.Message{Value: []byte(`{}`)},
	)
	c := NewConsumerWithReader(r, "t", func(_ context.Context, _ []byte, value []byte) error {
		if string(value) == "garbage" {
			return fmt.Errorf("bad payload: %w", ErrSkip)
		}
		return nil
	})

	require.NoError(t, runUntilDrained(t, c, r))
	assert.Len(t, r.Committed(), 2)
}

func TestConsumerStopsOnHandlerError(t *testing.T) {
	r := kafkatest.NewReader(
		kafka.Message{Value: []byte(`a`)},
		kafka.Message{Value: []byte(`b`)},
	)
	boom := errors.New("downstream unavailable")
	c := NewConsumerWithReader(r, "t", func(context.Context, []byte, []byte) error {
		return boom
	})

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Committed())
}

func TestProducerPublish(t *testing.T) {
	w := &kafkatest.Writer{}
	p := NewProducerWithWriter(w, "transcripts.annotated")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "s1", Value: map[string]string{"text": "hi"}}))
	require.NoError(t, p.PublishBatch(context.Background(), []Event{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))

	msgs := w.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "s1", string(msgs[0].Key))
	assert.JSONEq(t, `{"text":"hi"}`, string(msgs[0].Value))
	assert.Equal(t, "2", string(msgs[2].Value))

	w.SetErr(errors.New("broker down"))
	assert.Error(t, p.Publish(context.Background(), Event{Key: "x", Value: 1}))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Text string `json:"text"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}
