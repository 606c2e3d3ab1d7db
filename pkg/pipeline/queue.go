package pipeline

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueClosed is returned by Receive when the queue was closed
	// before End was sent, and by Send after Close.
	ErrQueueClosed = errors.New("queue closed before end of stream")

	// ErrQueueEnded is returned by Send after End.
	ErrQueueEnded = errors.New("send after end of stream")
)

// MessageKind distinguishes ids from the end-of-stream marker.
type MessageKind int

const (
	// KindItem carries one patch id.
	KindItem MessageKind = iota

	// KindEnd marks the end of the stream. It is always the last message.
	KindEnd
)

// Message is the unit passed from the Producer to the Collector.
type Message struct {
	Kind MessageKind
	ID   string
}

// Item returns a message carrying id.
func Item(id string) Message {
	return Message{Kind: KindItem, ID: id}
}

// End returns the end-of-stream marker.
func End() Message {
	return Message{Kind: KindEnd}
}

// IsEnd reports whether m is the end-of-stream marker.
func (m Message) IsEnd() bool {
	return m.Kind == KindEnd
}

// Queue is an unbounded FIFO for one sender and one receiver. Send
// never blocks; Receive blocks until a message is available.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	ended  bool
	closed bool

	// ready holds at most one pending wakeup for the receiver.
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Send appends msg. It fails after End or Close.
func (q *Queue) Send(msg Message) error {
	q.mu.Lock()
	switch {
	case q.ended:
		q.mu.Unlock()
		return ErrQueueEnded
	case q.closed:
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, msg)
	if msg.IsEnd() {
		q.ended = true
	}
	queueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()

	q.notify()
	return nil
}

// Close stops the queue. Messages already sent can still be received;
// once they are drained Receive returns ErrQueueClosed unless End was
// among them.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.notify()
}

// Receive returns the next message, waiting for one if the queue is
// empty.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = Message{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			queueDepth.Set(float64(len(q.items)))
			q.mu.Unlock()
			return msg, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Message{}, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Len returns the number of messages waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
