package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// RedisBroker implements Broker over Redis pub/sub. Each topic maps to one
// channel named by models.Topic.String.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker constructs a Redis-backed broker.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger}
}

// Publish encodes the event as JSON and publishes it on the event's topic channel.
func (b *RedisBroker) Publish(ctx context.Context, event models.ChangeEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	topic := models.TopicOf(event)
	if err := validateTopic(topic); err != nil {
		return err
	}
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, topic.String(), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a channel subscription and waits for the server
// confirmation before reporting SUBSCRIBED. The receive loop ends with
// CHANNEL_ERROR on the first receive failure.
func (b *RedisBroker) Subscribe(ctx context.Context, topic models.Topic, handler Handler, onStatus StatusFunc) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}

	pubsub := b.client.Subscribe(ctx, topic.String())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{topic: topic, pubsub: pubsub, cancel: cancel}
	if onStatus != nil {
		onStatus(models.SubscriptionSubscribed, nil)
	}
	go b.receive(loopCtx, sub, handler, onStatus)
	return sub, nil
}

func (b *RedisBroker) receive(ctx context.Context, sub *redisSubscription, handler Handler, onStatus StatusFunc) {
	for {
		msg, err := sub.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if sub.isClosed() || errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Warn("change event channel error", zap.String("topic", sub.topic.String()), zap.Error(err))
			_ = sub.pubsub.Close()
			if onStatus != nil {
				onStatus(models.SubscriptionChannelError, err)
			}
			return
		}
		event, err := decodeEvent([]byte(msg.Payload))
		if err != nil {
			b.logger.Warn("drop malformed change event", zap.String("topic", sub.topic.String()), zap.Error(err))
			continue
		}
		if !sub.topic.Matches(event) {
			continue
		}
		handler(event)
	}
}

type redisSubscription struct {
	topic  models.Topic
	pubsub *redis.PubSub
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (s *redisSubscription) Topic() models.Topic { return s.topic }

func (s *redisSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *redisSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if err := s.pubsub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
