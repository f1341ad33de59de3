package models

import (
	"fmt"
	"time"
)

// ChangeEventType mirrors row-level database operations.
type ChangeEventType string

const (
	ChangeEventInsert ChangeEventType = "INSERT"
	ChangeEventUpdate ChangeEventType = "UPDATE"
	ChangeEventDelete ChangeEventType = "DELETE"
)

// Tables that publish change events.
const (
	TableCurricula        = "curricula"
	TableApprovalRequired = "approval_required"
)

// Row is a flat JSON-compatible representation of a table row.
type Row map[string]interface{}

// Bool reads a boolean column, treating absent or non-boolean values as false.
func (r Row) Bool(key string) bool {
	if r == nil {
		return false
	}
	v, ok := r[key].(bool)
	return ok && v
}

// ChangeEvent is a row-level notification scoped to one organization.
type ChangeEvent struct {
	ID             string          `json:"id"`
	EventType      ChangeEventType `json:"eventType"`
	Table          string          `json:"table"`
	OrganizationID string          `json:"orgId"`
	New            Row             `json:"new,omitempty"`
	Old            Row             `json:"old,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// Topic identifies a change-event stream: one table filtered by organization id.
type Topic struct {
	Table          string `json:"table"`
	OrganizationID string `json:"orgId"`
}

// String renders the topic as a channel name.
func (t Topic) String() string {
	return fmt.Sprintf("changes:%s:org:%s", t.Table, t.OrganizationID)
}

// Matches reports whether the event belongs to the topic.
func (t Topic) Matches(event ChangeEvent) bool {
	return event.Table == t.Table && event.OrganizationID == t.OrganizationID
}

// TopicOf returns the topic an event is delivered on.
func TopicOf(event ChangeEvent) Topic {
	return Topic{Table: event.Table, OrganizationID: event.OrganizationID}
}

// SubscriptionStatus mirrors the lifecycle of a change-event channel.
type SubscriptionStatus string

const (
	SubscriptionSubscribed   SubscriptionStatus = "SUBSCRIBED"
	SubscriptionChannelError SubscriptionStatus = "CHANNEL_ERROR"
)
