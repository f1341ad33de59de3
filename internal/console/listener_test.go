package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
)

var curriculaTopic = models.Topic{Table: models.TableCurricula, OrganizationID: "org-1"}

func newTestListeners(broker events.Broker, metrics *service.MetricsService) (*Listeners, *fakeScheduler) {
	sched := &fakeScheduler{}
	l := NewListeners(broker, "s1", 0, metrics, nil)
	l.schedule = sched.schedule
	return l, sched
}

type statusLog struct {
	mu       sync.Mutex
	statuses []ConnectionStatus
}

func (s *statusLog) record(status ConnectionStatus) {
	s.mu.Lock()
	s.statuses = append(s.statuses, status)
	s.mu.Unlock()
}

func (s *statusLog) last() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func TestListenersAcquireAndRelease(t *testing.T) {
	broker := events.NewMemoryBroker()
	metrics := service.NewMetricsService()
	listeners, _ := newTestListeners(broker, metrics)

	var got []models.ChangeEvent
	handle, err := listeners.Acquire(context.Background(), "org-1", ListenerCallbacks{
		OnCurricula: func(e models.ChangeEvent) { got = append(got, e) },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, handle.Status())
	assert.Equal(t, 1, broker.SubscriberCount(curriculaTopic))
	assert.Equal(t, int64(2), metrics.Snapshot().ActiveSubscriptions)

	require.NoError(t, broker.Publish(context.Background(), models.ChangeEvent{Table: models.TableCurricula, OrganizationID: "org-1", EventType: models.ChangeEventInsert}))
	require.NoError(t, broker.Publish(context.Background(), models.ChangeEvent{Table: models.TableCurricula, OrganizationID: "org-2", EventType: models.ChangeEventInsert}))
	assert.Len(t, got, 1)

	listeners.Release(handle)
	listeners.Release(handle)
	assert.Equal(t, 0, broker.SubscriberCount(curriculaTopic))
	assert.Equal(t, StatusDisconnected, handle.Status())
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveSubscriptions)

	require.NoError(t, broker.Publish(context.Background(), models.ChangeEvent{Table: models.TableCurricula, OrganizationID: "org-1"}))
	assert.Len(t, got, 1)
}

func TestChannelErrorSchedulesExactlyOneReconnect(t *testing.T) {
	broker := events.NewMemoryBroker()
	metrics := service.NewMetricsService()
	listeners, sched := newTestListeners(broker, metrics)
	statuses := &statusLog{}

	handle, err := listeners.Acquire(context.Background(), "org-1", ListenerCallbacks{OnStatus: statuses.record})
	require.NoError(t, err)
	require.Equal(t, StatusConnected, statuses.last())

	topic := handle.topics[0]
	assert.Equal(t, 1, broker.FailTopic(curriculaTopic, errors.New("socket closed")))
	topic.onStatus(models.SubscriptionChannelError, errors.New("duplicate report"))

	require.Equal(t, 1, sched.scheduled())
	assert.Equal(t, 5*time.Second, sched.delays[0])
	assert.Equal(t, StatusConnecting, handle.Status())
	assert.Equal(t, StatusConnecting, statuses.last())

	sched.fireLast()
	assert.Equal(t, StatusConnected, handle.Status())
	assert.Equal(t, StatusConnected, statuses.last())
	assert.Equal(t, 1, broker.SubscriberCount(curriculaTopic))
	assert.Equal(t, uint64(1), metrics.Snapshot().Reconnects)
	assert.Equal(t, int64(2), metrics.Snapshot().ActiveSubscriptions)
}

func TestReconnectRepeatsWithoutBound(t *testing.T) {
	broker := &flakyBroker{MemoryBroker: events.NewMemoryBroker()}
	listeners, sched := newTestListeners(broker, nil)

	handle, err := listeners.Acquire(context.Background(), "org-1", ListenerCallbacks{})
	require.NoError(t, err)

	broker.failNext(3)
	broker.FailTopic(curriculaTopic, errors.New("lost"))
	for attempt := 1; attempt <= 3; attempt++ {
		require.Equal(t, attempt, sched.scheduled())
		sched.fireLast()
		assert.Equal(t, StatusConnecting, handle.Status(), "attempt %d", attempt)
	}
	require.Equal(t, 4, sched.scheduled())
	sched.fireLast()
	assert.Equal(t, StatusConnected, handle.Status())
	for _, d := range sched.delays {
		assert.Equal(t, DefaultReconnectDelay, d)
	}
}

func TestReleaseCancelsPendingReconnect(t *testing.T) {
	broker := events.NewMemoryBroker()
	listeners, sched := newTestListeners(broker, nil)

	handle, err := listeners.Acquire(context.Background(), "org-1", ListenerCallbacks{})
	require.NoError(t, err)
	broker.FailTopic(curriculaTopic, errors.New("lost"))
	require.Equal(t, 1, sched.scheduled())

	listeners.Release(handle)
	assert.Equal(t, 1, sched.stopped)

	sched.fireLast()
	assert.Equal(t, 0, broker.SubscriberCount(curriculaTopic))
}

func TestAcquireRetriesInitialSubscribeFailure(t *testing.T) {
	broker := &flakyBroker{MemoryBroker: events.NewMemoryBroker()}
	broker.failNext(1)
	listeners, sched := newTestListeners(broker, nil)

	handle, err := listeners.Acquire(context.Background(), "org-1", ListenerCallbacks{})
	require.NoError(t, err)
	assert.Equal(t, StatusConnecting, handle.Status())
	require.Equal(t, 1, sched.scheduled())

	sched.fireLast()
	assert.Equal(t, StatusConnected, handle.Status())
}

func TestChannelErrorBeforeSubscribeReturnsIsNotCountedLive(t *testing.T) {
	broker := newRacyBroker()
	broker.failEarly(curriculaTopic)
	metrics := service.NewMetricsService()
	listeners, sched := newTestListeners(broker, metrics)

	handle, err := listeners.Acquire(context.Background(), "org-1", ListenerCallbacks{})
	require.NoError(t, err)
	assert.Equal(t, StatusConnecting, handle.Status())
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveSubscriptions)
	require.Equal(t, 1, sched.scheduled())

	sched.fireLast()
	assert.Equal(t, StatusConnected, handle.Status())
	assert.Equal(t, int64(2), metrics.Snapshot().ActiveSubscriptions)
	assert.Equal(t, 1, broker.SubscriberCount(curriculaTopic))

	// A late report from the superseded subscription changes nothing.
	first := broker.statusFuncs(curriculaTopic)[0]
	first(models.SubscriptionChannelError, errors.New("late"))
	assert.Equal(t, StatusConnected, handle.Status())
	assert.Equal(t, int64(2), metrics.Snapshot().ActiveSubscriptions)
	assert.Equal(t, 1, sched.scheduled())

	listeners.Release(handle)
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveSubscriptions)
}
