package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

type memorySubscription struct {
	id       string
	topic    models.Topic
	handler  Handler
	onStatus StatusFunc
	broker   *MemoryBroker
	once     sync.Once
}

func (s *memorySubscription) Topic() models.Topic { return s.topic }

func (s *memorySubscription) Close() error {
	s.once.Do(func() { s.broker.remove(s.id) })
	return nil
}

// MemoryBroker implements Broker with in-process pub/sub. It backs single-node
// deployments and tests.
type MemoryBroker struct {
	mu            sync.RWMutex
	subscriptions map[string]*memorySubscription
	closed        bool
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subscriptions: make(map[string]*memorySubscription)}
}

// Publish delivers the event synchronously to every subscription on its topic.
func (b *MemoryBroker) Publish(ctx context.Context, event models.ChangeEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	var handlers []Handler
	for _, sub := range b.subscriptions {
		if sub.topic.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

// Subscribe registers handler on topic and reports SUBSCRIBED before returning.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic models.Topic, handler Handler, onStatus StatusFunc) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}
	sub := &memorySubscription{
		id:       uuid.NewString(),
		topic:    topic,
		handler:  handler,
		onStatus: onStatus,
		broker:   b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	if onStatus != nil {
		onStatus(models.SubscriptionSubscribed, nil)
	}
	return sub, nil
}

// FailTopic drops every subscription on topic and reports CHANNEL_ERROR to
// each of them, the way a lost upstream channel would.
func (b *MemoryBroker) FailTopic(topic models.Topic, err error) int {
	b.mu.Lock()
	var failed []*memorySubscription
	for id, sub := range b.subscriptions {
		if sub.topic == topic {
			failed = append(failed, sub)
			delete(b.subscriptions, id)
		}
	}
	b.mu.Unlock()

	for _, sub := range failed {
		if sub.onStatus != nil {
			sub.onStatus(models.SubscriptionChannelError, err)
		}
	}
	return len(failed)
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *MemoryBroker) SubscriberCount(topic models.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	count := 0
	for _, sub := range b.subscriptions {
		if sub.topic == topic {
			count++
		}
	}
	return count
}

// Close drops all subscriptions and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscriptions = make(map[string]*memorySubscription)
	return nil
}

func (b *MemoryBroker) remove(id string) {
	b.mu.Lock()
	delete(b.subscriptions, id)
	b.mu.Unlock()
}
