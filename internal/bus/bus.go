// Package bus provides the in-process publish/subscribe channel that keeps
// independent views consistent without coupling them. Publishing is
// synchronous and fire-and-forget: handler failures are logged, never
// returned, and subscribers registered after a publish do not see it.
package bus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Topic identifies a notification channel.
type Topic string

const (
	// TopicBillUploaded fires exactly once per accepted bill.
	TopicBillUploaded Topic = "billUploaded"
)

// String returns the string representation of the topic
func (t Topic) String() string { return string(t) }

// Notification is the payload delivered to subscribers.
type Notification struct {
	Topic   Topic
	Payload map[string]interface{}
}

// PayloadString retrieves a string value from the payload.
func (n *Notification) PayloadString(key string) string {
	if v, ok := n.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Handler processes a notification.
type Handler func(n *Notification)

type subscription struct {
	name    string
	handler Handler
}

// NotificationBus routes notifications to named subscribers.
type NotificationBus struct {
	mu       sync.RWMutex
	handlers map[Topic][]subscription
	logger   *zap.Logger
}

// New creates a notification bus. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *NotificationBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationBus{
		handlers: make(map[Topic][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a named handler for a topic. The name is the handle for
// later revocation; registering the same name twice replaces the handler.
func (b *NotificationBus) Subscribe(topic Topic, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	for i, s := range subs {
		if s.name == name {
			subs[i].handler = handler
			return
		}
	}
	b.handlers[topic] = append(subs, subscription{name: name, handler: handler})

	b.logger.Debug("Subscriber registered",
		zap.String("topic", topic.String()),
		zap.String("subscriber", name))
}

// Unsubscribe removes a handler by name so a torn-down view stops receiving
// notifications.
func (b *NotificationBus) Unsubscribe(topic Topic, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[topic]
	filtered := subs[:0]
	for _, s := range subs {
		if s.name != name {
			filtered = append(filtered, s)
		}
	}
	b.handlers[topic] = filtered

	b.logger.Debug("Subscriber removed",
		zap.String("topic", topic.String()),
		zap.String("subscriber", name))
}

// Publish delivers the notification to every current subscriber of its topic,
// synchronously and in registration order. There is no replay for late
// subscribers and no error channel back to the publisher.
func (b *NotificationBus) Publish(n *Notification) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[n.Topic]...)
	b.mu.RUnlock()

	b.logger.Debug("Publishing notification",
		zap.String("topic", n.Topic.String()),
		zap.Int("subscriber_count", len(subs)))

	for _, s := range subs {
		b.safeInvoke(n, s)
	}
}

// safeInvoke runs a handler with panic recovery so one broken view cannot
// take down the publisher.
func (b *NotificationBus) safeInvoke(n *Notification, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Subscriber panic recovered",
				zap.String("topic", n.Topic.String()),
				zap.String("subscriber", s.name),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	s.handler(n)
}
