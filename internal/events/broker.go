// Package events delivers row-level change notifications scoped to one table
// and one organization.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

var (
	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = errors.New("events: nil handler")
	// ErrInvalidTopic is returned for topics missing a table or organization.
	ErrInvalidTopic = errors.New("events: topic requires table and organization")
	// ErrBrokerClosed is returned after the broker has shut down.
	ErrBrokerClosed = errors.New("events: broker closed")
)

// Handler receives events delivered on a subscribed topic.
type Handler func(event models.ChangeEvent)

// StatusFunc observes subscription lifecycle transitions. err is set for CHANNEL_ERROR.
type StatusFunc func(status models.SubscriptionStatus, err error)

// Subscription is a live topic subscription. Close is idempotent and does not
// report CLOSED to the status callback.
type Subscription interface {
	Topic() models.Topic
	Close() error
}

// Broker publishes and subscribes to change events. A subscription that
// reports CHANNEL_ERROR delivers nothing further; callers resubscribe.
type Broker interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
	Subscribe(ctx context.Context, topic models.Topic, handler Handler, onStatus StatusFunc) (Subscription, error)
}

func validateTopic(topic models.Topic) error {
	if topic.Table == "" || topic.OrganizationID == "" {
		return ErrInvalidTopic
	}
	return nil
}

func encodeEvent(event models.ChangeEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode change event: %w", err)
	}
	return payload, nil
}

func decodeEvent(payload []byte) (models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return models.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	return event, nil
}
