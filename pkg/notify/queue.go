// Package notify provides the outbound notification queue. Delivery is
// fire-and-forget: enqueue failures are logged and never block or fail the
// operation that triggered them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewdesk/crewdesk/pkg/async"
)

// MessageType identifies the notification template
type MessageType string

const (
	TypeVerification  MessageType = "email_verification"
	TypePasswordReset MessageType = "password_reset"
	TypeInvitation    MessageType = "workspace_invitation"
	TypeWelcome       MessageType = "welcome"
)

// Message is a queued notification
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage builds a message with a fresh ID
func NewMessage(typ MessageType, recipient string, data map[string]string) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Recipient: recipient,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// Queue accepts notifications for asynchronous delivery
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Dispatcher delivers a single message. The SMTP/webhook transport behind it
// is out of scope here; the default dispatcher logs the delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// ChannelQueue is an in-process queue draining to a Dispatcher through a
// bounded channel. When the buffer is full the message is dropped with an
// error rather than blocking the caller.
type ChannelQueue struct {
	ch         chan Message
	dispatcher Dispatcher

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	drained   chan struct{}
}

// NewChannelQueue creates a queue with the given buffer size
func NewChannelQueue(dispatcher Dispatcher, buffer int) *ChannelQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelQueue{
		ch:         make(chan Message, buffer),
		dispatcher: dispatcher,
		done:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
}

// Start launches the delivery worker
func (q *ChannelQueue) Start() {
	q.startOnce.Do(func() {
		async.Go("notification worker", q.run)
	})
}

func (q *ChannelQueue) run() {
	defer close(q.drained)
	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		case <-q.done:
			// Drain whatever is already buffered before exiting
			for {
				select {
				case msg := <-q.ch:
					q.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *ChannelQueue) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Dispatch errors are the dispatcher's to log; a failed delivery never
	// propagates back to the producer.
	_ = q.dispatcher.Dispatch(ctx, msg)
}

// Enqueue queues a message for delivery
func (q *ChannelQueue) Enqueue(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Stop signals the worker to drain and exit, waiting up to the context
// deadline
func (q *ChannelQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.done)
	})
	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
