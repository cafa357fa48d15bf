// Package notify delivers the short user-facing messages every mutation
// emits: a polled feed for the UI, a queue for the audit worker, and the log.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"classroll/internal/queue"
)

// Level classifies a notification.
type Level string

const (
	Success Level = "success"
	Error   Level = "error"
	Info    Level = "info"
)

// Notification is one message shown to the operator.
type Notification struct {
	Seq     uint64    `json:"seq"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications. Implementations must not block for long
// and must never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Discard drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Notification) {}

// Multi fans out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, nt := range m {
		nt.Notify(ctx, n)
	}
}

// LogNotifier writes each notification to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) {
	log.Printf("[%s] %s", n.Level, n.Message)
}

// QueueNotifier publishes notifications for the worker.
type QueueNotifier struct {
	Q queue.Queue
}

func (q QueueNotifier) Notify(ctx context.Context, n Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		log.Printf("notify: encode failed: %v", err)
		return
	}
	if err := q.Q.Publish(ctx, queue.Message{Type: queue.TypeNotification, Body: body}); err != nil {
		log.Printf("notify: publish failed: %v", err)
	}
}

// Forward consumes notifications published by QueueNotifier and hands
// them to sink until ctx is done. Other message types are skipped.
func Forward(ctx context.Context, q queue.Queue, sink Notifier) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != queue.TypeNotification {
			continue
		}
		var n Notification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			log.Printf("notify: skipping malformed message: %v", err)
			continue
		}
		sink.Notify(ctx, n)
	}
	return nil
}

// Feed keeps the most recent notifications for polling clients.
type Feed struct {
	mu    sync.Mutex
	size  int
	seq   uint64
	items []Notification
	now   func() time.Time
}

// NewFeed keeps up to size notifications (100 when size <= 0).
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 100
	}
	return &Feed{size: size, now: time.Now}
}

// Notify stamps n with the next sequence number and appends it.
func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	n.Seq = f.seq
	if n.At.IsZero() {
		n.At = f.now()
	}
	f.items = append(f.items, n)
	if len(f.items) > f.size {
		f.items = append(f.items[:0:0], f.items[len(f.items)-f.size:]...)
	}
}

// Since returns retained notifications with Seq > after, oldest first.
func (f *Feed) Since(after uint64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Notification{}
	for _, n := range f.items {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// Send builds a notification stamped with the current time and delivers it.
func Send(ctx context.Context, nt Notifier, level Level, msg string) {
	nt.Notify(ctx, Notification{Level: level, Message: msg, At: time.Now()})
}
