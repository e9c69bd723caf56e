// Package kafkatest provides in-memory Reader and Writer fakes for tests
// that drive pkg/kafka consumers and producers without a broker.
package kafkatest

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Reader replays a fixed list of messages, then blocks until ctx is done.
type Reader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	next      int
	committed []kafka.Message
	closed    bool
}

func NewReader(messages ...kafka.Message) *Reader {
	for i := range messages {
		messages[i].Offset = int64(i)
	}
	return &Reader{messages: messages}
}

func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.next < len(r.messages) {
		msg := r.messages[r.next]
		r.next++
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *Reader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Committed returns the messages committed so far.
func (r *Reader) Committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

// Drained reports whether every message has been fetched.
func (r *Reader) Drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next >= len(r.messages)
}

// Writer records written messages. Err, when set, fails every write.
type Writer struct {
	mu       sync.Mutex
	messages []kafka.Message
	Err      error
}

func (w *Writer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *Writer) Close() error { return nil }

// Messages returns the messages written so far.
func (w *Writer) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

// SetErr changes the write error under the lock.
func (w *Writer) SetErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Err = err
}
