package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
)

// DefaultReconnectDelay is the fixed wait before resubscribing a failed channel.
const DefaultReconnectDelay = 5 * time.Second

// ConnectionStatus is the listener state shown to reviewers.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// scheduleFunc runs fn after delay and returns a function cancelling it.
type scheduleFunc func(delay time.Duration, fn func()) (stop func() bool)

func afterFunc(delay time.Duration, fn func()) func() bool {
	return time.AfterFunc(delay, fn).Stop
}

// ListenerCallbacks receive events and status changes of a Handle.
type ListenerCallbacks struct {
	OnCurricula        events.Handler
	OnApprovalRequired events.Handler
	OnStatus           func(ConnectionStatus)
}

// Listeners acquires change-event subscriptions for one console session.
type Listeners struct {
	broker   events.Broker
	owner    string
	delay    time.Duration
	schedule scheduleFunc
	metrics  *service.MetricsService
	logger   *zap.Logger
}

// NewListeners builds the listener factory of the session identified by owner.
func NewListeners(broker events.Broker, owner string, delay time.Duration, metrics *service.MetricsService, logger *zap.Logger) *Listeners {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Listeners{
		broker:   broker,
		owner:    owner,
		delay:    delay,
		schedule: afterFunc,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handle owns the curricula and approval_required subscriptions of one
// organization. Release tears both down.
type Handle struct {
	orgID     string
	topics    []*topicListener
	callbacks ListenerCallbacks

	mu       sync.Mutex
	released bool
	last     ConnectionStatus
}

// OrgID returns the organization the handle listens to.
func (h *Handle) OrgID() string { return h.orgID }

// Acquire subscribes to the change streams of orgID. A topic that fails to
// subscribe is retried on the reconnect schedule rather than failing Acquire.
// ctx is passed to every subscribe call, including reconnects; the
// subscriptions themselves stay open until Release.
func (l *Listeners) Acquire(ctx context.Context, orgID string, callbacks ListenerCallbacks) (*Handle, error) {
	if orgID == "" {
		return nil, events.ErrInvalidTopic
	}
	h := &Handle{orgID: orgID, callbacks: callbacks, last: StatusConnecting}
	h.topics = []*topicListener{
		l.newTopicListener(ctx, h, models.Topic{Table: models.TableCurricula, OrganizationID: orgID}, callbacks.OnCurricula),
		l.newTopicListener(ctx, h, models.Topic{Table: models.TableApprovalRequired, OrganizationID: orgID}, callbacks.OnApprovalRequired),
	}
	for _, t := range h.topics {
		if err := t.subscribe(); err != nil {
			l.logger.Warn("change listener subscribe failed", zap.String("key", t.key), zap.Error(err))
			t.onStatus(models.SubscriptionChannelError, err)
		}
	}
	return h, nil
}

// Release closes every subscription of h. It is safe to call more than once.
func (l *Listeners) Release(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()
	for _, t := range h.topics {
		t.close()
	}
}

// Status reports connected only when every topic is subscribed.
func (h *Handle) Status() ConnectionStatus {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return StatusDisconnected
	}
	for _, t := range h.topics {
		if t.currentStatus() != StatusConnected {
			return StatusConnecting
		}
	}
	return StatusConnected
}

func (h *Handle) statusChanged() {
	status := h.Status()
	h.mu.Lock()
	if status == h.last {
		h.mu.Unlock()
		return
	}
	h.last = status
	h.mu.Unlock()
	if h.callbacks.OnStatus != nil {
		h.callbacks.OnStatus(status)
	}
}

type topicListener struct {
	listeners *Listeners
	handle    *Handle
	ctx       context.Context
	topic     models.Topic
	key       string
	handler   events.Handler

	mu      sync.Mutex
	sub     events.Subscription
	gen     uint64
	failed  bool
	live    bool
	status  ConnectionStatus
	pending func() bool
	closed  bool
}

func (l *Listeners) newTopicListener(ctx context.Context, h *Handle, topic models.Topic, handler events.Handler) *topicListener {
	return &topicListener{
		listeners: l,
		handle:    h,
		ctx:       ctx,
		topic:     topic,
		key:       fmt.Sprintf("session:%s:%s", l.owner, topic),
		handler:   handler,
		status:    StatusConnecting,
	}
}

// subscribe opens a new generation of the subscription. Status reports of
// older generations are ignored, and a generation that already failed
// before Subscribe returned is never counted as live.
func (t *topicListener) subscribe() error {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.failed = false
	t.mu.Unlock()

	sub, err := t.listeners.broker.Subscribe(t.ctx, t.topic, t.deliver, func(status models.SubscriptionStatus, err error) {
		t.mu.Lock()
		stale := gen != t.gen
		t.mu.Unlock()
		if !stale {
			t.onStatus(status, err)
		}
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	t.sub = sub
	if t.failed {
		t.mu.Unlock()
		return nil
	}
	t.live = true
	t.mu.Unlock()
	t.listeners.metrics.AddSubscriptions(1)
	return nil
}

func (t *topicListener) deliver(event models.ChangeEvent) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed || t.handler == nil {
		return
	}
	t.handler(event)
}

func (t *topicListener) onStatus(status models.SubscriptionStatus, err error) {
	switch status {
	case models.SubscriptionSubscribed:
		t.setStatus(StatusConnected)
	case models.SubscriptionChannelError:
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		wasLive := t.live
		t.live = false
		t.failed = true
		t.status = StatusConnecting
		scheduled := false
		if t.pending == nil {
			t.pending = t.listeners.schedule(t.listeners.delay, t.reconnect)
			scheduled = true
		}
		t.mu.Unlock()

		if wasLive {
			t.listeners.metrics.AddSubscriptions(-1)
		}
		if scheduled {
			t.listeners.logger.Warn("change listener channel error, reconnect scheduled",
				zap.String("key", t.key),
				zap.Duration("delay", t.listeners.delay),
				zap.Error(err))
		}
		t.handle.statusChanged()
	}
}

func (t *topicListener) reconnect() {
	t.mu.Lock()
	t.pending = nil
	if t.closed {
		t.mu.Unlock()
		return
	}
	old := t.sub
	t.sub = nil
	t.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	t.listeners.metrics.RecordReconnect()
	if err := t.subscribe(); err != nil {
		t.onStatus(models.SubscriptionChannelError, err)
		return
	}
	t.listeners.logger.Info("change listener resubscribed", zap.String("key", t.key))
}

func (t *topicListener) setStatus(status ConnectionStatus) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.mu.Unlock()
	t.handle.statusChanged()
}

func (t *topicListener) currentStatus() ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *topicListener) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.status = StatusDisconnected
	if t.pending != nil {
		t.pending()
		t.pending = nil
	}
	sub, live := t.sub, t.live
	t.sub = nil
	t.live = false
	t.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	if live {
		t.listeners.metrics.AddSubscriptions(-1)
	}
}
