package handler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/pkg/response"
)

const (
	streamHeartbeat = 25 * time.Second
	streamBuffer    = 32
)

// EventsHandler streams change events of one organization as server-sent events.
type EventsHandler struct {
	broker    events.Broker
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewEventsHandler constructs the handler.
func NewEventsHandler(broker events.Broker, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{broker: broker, logger: logger, heartbeat: streamHeartbeat}
}

// Stream godoc
// @Summary Stream curricula and approval_required change events
// @Tags Events
// @Produce text/event-stream
// @Param orgId path string true "Organization ID"
// @Router /orgs/{orgId}/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	orgID := c.Param("orgId")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Publishers never wait on a client. A client that falls a full buffer
	// behind loses its stream and reconnects.
	out := make(chan models.ChangeEvent, streamBuffer)
	var overflow sync.Once
	forward := func(event models.ChangeEvent) {
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- event:
		default:
			overflow.Do(func() {
				h.logger.Warn("event stream client too slow, closing", zap.String("org_id", orgID))
				cancel()
			})
		}
	}
	// A broken channel ends the stream; EventSource clients reconnect on their own.
	onStatus := func(status models.SubscriptionStatus, err error) {
		if status == models.SubscriptionChannelError {
			h.logger.Warn("event stream channel error", zap.String("org_id", orgID), zap.Error(err))
			cancel()
		}
	}

	var subs []events.Subscription
	defer func() {
		for _, sub := range subs {
			_ = sub.Close()
		}
	}()
	for _, table := range []string{models.TableCurricula, models.TableApprovalRequired} {
		sub, err := h.broker.Subscribe(ctx, models.Topic{Table: table, OrganizationID: orgID}, forward, onStatus)
		if err != nil {
			response.Error(c, err)
			return
		}
		subs = append(subs, sub)
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event := <-out:
			c.SSEvent(event.Table, event)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
