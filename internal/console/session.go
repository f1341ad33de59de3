package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

const maxNotifications = 100

// Target names one reloadable piece of console data.
type Target string

const (
	TargetApprovals  Target = "approvals"
	TargetStatistics Target = "statistics"
	TargetChanges    Target = "changes"
	TargetDetail     Target = "detail"
)

// NotificationLevel grades reviewer notifications.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

// Notification is a non-blocking message for the reviewer.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}

// Messages emitted when the pending-changes flag of a curriculum flips.
const (
	MessageChangeReceived  = "new change request received"
	MessageChangeProcessed = "changes processed"
)

// Dispatcher runs notification-driven reloads off the subscription goroutine.
type Dispatcher interface {
	DispatchReload(s *Session, targets ...Target)
}

type inlineDispatcher struct{}

func (inlineDispatcher) DispatchReload(s *Session, targets ...Target) {
	s.Reload(s.ctx, targets...)
}

// SessionConfig tunes a console session.
type SessionConfig struct {
	MinimumSpinnerDuration time.Duration
	ReconnectDelay         time.Duration
	ListLimit              int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDispatcher routes notification-driven reloads through d.
func WithDispatcher(d Dispatcher) SessionOption {
	return func(s *Session) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithSessionMetrics records subscription gauges.
func WithSessionMetrics(metrics *service.MetricsService) SessionOption {
	return func(s *Session) {
		s.metrics = metrics
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// PendingChange is a change request with its review rendering.
type PendingChange struct {
	models.ChangeRequest
	View models.ChangeView `json:"view"`
}

// Snapshot is the read model of a session served to clients.
type Snapshot struct {
	ID            string                             `json:"id"`
	State         ViewState                          `json:"state"`
	Connection    ConnectionStatus                   `json:"connection"`
	Busy          bool                               `json:"busy"`
	Loading       bool                               `json:"loading"`
	Approvals     []models.CurriculumApprovalRequest `json:"approvals"`
	Pagination    models.Pagination                  `json:"pagination"`
	Statistics    models.ApprovalStatistics          `json:"statistics"`
	Changes       []PendingChange                    `json:"changes"`
	Detail        *models.CurriculumDetail           `json:"detail,omitempty"`
	Notifications int                                `json:"notifications"`
}

// Session is one reviewer's console. State mutations are serialised by mu;
// backend calls run outside it.
type Session struct {
	id         string
	reviewer   *models.JWTClaims
	backend    Backend
	loader     *Loader
	aggregator *Aggregator
	listeners  *Listeners
	dispatcher Dispatcher
	metrics    *service.MetricsService
	logger     *zap.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         ViewState
	approvals     []models.CurriculumApprovalRequest
	statistics    models.ApprovalStatistics
	changes       []models.ChangeRequest
	detail        *models.CurriculumDetail
	handle        *Handle
	connection    ConnectionStatus
	notifications []Notification
	loading       int
	busy          bool
	closed        bool
	lastActive    time.Time
}

// NewSession builds a session on orgID. Call Open to attach listeners and load data.
func NewSession(id string, reviewer *models.JWTClaims, orgID string, backend Backend, broker events.Broker, cfg SessionConfig, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		reviewer:   reviewer,
		backend:    backend,
		loader:     NewLoader(backend, cfg.MinimumSpinnerDuration, cfg.ListLimit),
		aggregator: NewAggregator(backend),
		dispatcher: inlineDispatcher{},
		logger:     zap.NewNop(),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		state:      NewViewState(orgID),
		connection: StatusConnecting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With(zap.String("session_id", id))
	s.listeners = NewListeners(broker, id, cfg.ReconnectDelay, s.metrics, s.logger)
	s.lastActive = s.now()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Reviewer returns the owner of the session.
func (s *Session) Reviewer() *models.JWTClaims { return s.reviewer }

// Open attaches listeners for the current organization and loads every list.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	orgID := s.state.OrgID
	s.mu.Unlock()
	if err := s.attach(orgID); err != nil {
		return err
	}
	s.Reload(ctx, TargetApprovals, TargetStatistics, TargetChanges)
	return nil
}

// Dispatch applies a view action and performs the loads it requires.
func (s *Session) Dispatch(ctx context.Context, action Action) error {
	if action.Type == ActionSwitchOrg && !s.reviewer.CanAccessOrganization(action.OrgID) {
		return appErrors.ErrForbidden
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed()
	}
	prev := s.state
	next, err := Reduce(prev, action)
	if err != nil {
		s.mu.Unlock()
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	fx := Diff(prev, next)
	s.state = next
	s.lastActive = s.now()
	if fx.DropDetail {
		s.detail = nil
	}
	var old *Handle
	if fx.SwitchOrg {
		old = s.handle
		s.handle = nil
		s.approvals = nil
		s.changes = nil
		s.statistics = models.ApprovalStatistics{}
		s.connection = StatusConnecting
	}
	s.mu.Unlock()

	if fx.SwitchOrg {
		s.listeners.Release(old)
		if err := s.attach(next.OrgID); err != nil {
			return err
		}
	}
	var targets []Target
	if fx.Approvals {
		targets = append(targets, TargetApprovals)
	}
	if fx.Statistics {
		targets = append(targets, TargetStatistics)
	}
	if fx.Changes {
		targets = append(targets, TargetChanges)
	}
	if fx.Detail {
		targets = append(targets, TargetDetail)
	}
	if len(targets) > 0 {
		s.Reload(ctx, targets...)
	}
	return nil
}

// ApproveCurriculum approves a curriculum; notes are optional.
func (s *Session) ApproveCurriculum(ctx context.Context, curriculumID, notes string) error {
	return s.review(ctx, "approve", "curriculum "+curriculumID, curriculumID, func(ctx context.Context) error {
		_, err := s.backend.ApproveCurriculum(ctx, curriculumID, notes, s.reviewer)
		return err
	})
}

// RejectCurriculum rejects a curriculum. Blank notes fail before any backend call.
func (s *Session) RejectCurriculum(ctx context.Context, curriculumID, notes string) error {
	if err := service.ValidateRejectNotes(notes); err != nil {
		return err
	}
	return s.review(ctx, "reject", "curriculum "+curriculumID, curriculumID, func(ctx context.Context) error {
		_, err := s.backend.RejectCurriculum(ctx, curriculumID, notes, s.reviewer)
		return err
	})
}

// ApproveChange applies a loaded pending change request.
func (s *Session) ApproveChange(ctx context.Context, changeID, notes string) error {
	curriculumID, err := s.changeCurriculum(changeID)
	if err != nil {
		return err
	}
	return s.review(ctx, "approve", "change request "+changeID, curriculumID, func(ctx context.Context) error {
		_, err := s.backend.ApproveChange(ctx, curriculumID, changeID, notes, s.reviewer)
		return err
	})
}

// RejectChange discards a loaded pending change request. Blank notes fail
// before any backend call.
func (s *Session) RejectChange(ctx context.Context, changeID, notes string) error {
	if err := service.ValidateRejectNotes(notes); err != nil {
		return err
	}
	curriculumID, err := s.changeCurriculum(changeID)
	if err != nil {
		return err
	}
	return s.review(ctx, "reject", "change request "+changeID, curriculumID, func(ctx context.Context) error {
		_, err := s.backend.RejectChange(ctx, curriculumID, changeID, notes, s.reviewer)
		return err
	})
}

func (s *Session) changeCurriculum(changeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.changes {
		if c.ID == changeID {
			return c.CurriculumID, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("change request %s is not loaded", changeID))
}

func (s *Session) review(ctx context.Context, action, subject, curriculumID string, call func(context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed()
	}
	if s.busy {
		s.mu.Unlock()
		return appErrors.ErrBusy
	}
	s.busy = true
	s.lastActive = s.now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	ctx, cancel := s.scope(ctx)
	defer cancel()

	if err := call(ctx); err != nil {
		msg := fmt.Sprintf("failed to %s %s", action, subject)
		s.notify(LevelError, fmt.Sprintf("%s: %s", msg, appErrors.FromError(err).Message))
		s.logger.Warn("review failed",
			zap.String("action", action),
			zap.String("subject", subject),
			zap.Bool("retryable", appErrors.Retryable(err)),
			zap.Error(err))
		return appErrors.Annotate(err, msg)
	}
	s.notify(LevelSuccess, fmt.Sprintf("%s %sd", subject, action))
	s.Reload(ctx, s.postReviewTargets(curriculumID)...)
	return nil
}

func (s *Session) postReviewTargets(curriculumID string) []Target {
	targets := []Target{TargetApprovals, TargetStatistics, TargetChanges}
	s.mu.Lock()
	if s.state.DetailCurriculumID != "" && s.state.DetailCurriculumID == curriculumID {
		targets = append(targets, TargetDetail)
	}
	s.mu.Unlock()
	return targets
}

// Reload refreshes targets concurrently. Failures become notifications and
// keep the previous data. Results for a view the session has since left are
// dropped.
func (s *Session) Reload(ctx context.Context, targets ...Target) {
	ctx, cancel := s.scope(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	state := s.state
	s.loading++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	seen := make(map[Target]struct{}, len(targets))
	var g errgroup.Group
	for _, target := range targets {
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		target := target
		g.Go(func() error {
			s.load(ctx, state, target)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Session) load(ctx context.Context, state ViewState, target Target) {
	switch target {
	case TargetApprovals:
		records, err := s.loader.LoadApprovalRequests(ctx, state.OrgID, state.Filter)
		if s.loadFailed(ctx, "approval requests", err) {
			return
		}
		s.apply(func(cur ViewState) bool { return cur.OrgID == state.OrgID && cur.Filter == state.Filter }, func() {
			s.approvals = records
		})
	case TargetStatistics:
		stats, err := s.aggregator.Statistics(ctx, state.OrgID)
		if s.loadFailed(ctx, "approval statistics", err) {
			return
		}
		s.apply(func(cur ViewState) bool { return cur.OrgID == state.OrgID }, func() {
			s.statistics = stats
		})
	case TargetChanges:
		changes, err := s.loader.LoadChangeRequests(ctx, state.OrgID)
		if s.loadFailed(ctx, "change requests", err) {
			return
		}
		s.apply(func(cur ViewState) bool { return cur.OrgID == state.OrgID }, func() {
			s.changes = changes
		})
	case TargetDetail:
		id := state.DetailCurriculumID
		if id == "" {
			return
		}
		detail, err := s.backend.GetCurriculumDetail(ctx, id, s.reviewer)
		if s.loadFailed(ctx, "curriculum "+id, err) {
			return
		}
		s.apply(func(cur ViewState) bool { return cur.DetailCurriculumID == id }, func() {
			s.detail = detail
		})
	}
}

func (s *Session) loadFailed(ctx context.Context, what string, err error) bool {
	if err == nil {
		return ctx.Err() != nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	s.notify(LevelError, fmt.Sprintf("failed to load %s: %s", what, appErrors.FromError(err).Message))
	s.logger.Warn("console load failed", zap.String("target", what), zap.Error(err))
	return true
}

func (s *Session) apply(current func(ViewState) bool, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !current(s.state) {
		return
	}
	fn()
}

func (s *Session) attach(orgID string) error {
	handle, err := s.listeners.Acquire(s.ctx, orgID, ListenerCallbacks{
		OnCurricula:        s.onCurriculaEvent,
		OnApprovalRequired: s.onApprovalRequired,
		OnStatus:           s.setConnection,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to change events")
	}
	s.mu.Lock()
	if s.closed || s.state.OrgID != orgID || s.handle != nil {
		s.mu.Unlock()
		s.listeners.Release(handle)
		return nil
	}
	s.handle = handle
	s.connection = handle.Status()
	s.mu.Unlock()
	return nil
}

func (s *Session) onCurriculaEvent(event models.ChangeEvent) {
	if event.EventType == models.ChangeEventUpdate {
		had, has := event.Old.Bool("has_pending_changes"), event.New.Bool("has_pending_changes")
		switch {
		case has && !had:
			s.notify(LevelInfo, MessageChangeReceived)
		case had && !has:
			s.notify(LevelInfo, MessageChangeProcessed)
		}
	}
	switch s.activeTab() {
	case TabApprovals:
		s.dispatcher.DispatchReload(s, TargetApprovals, TargetStatistics)
	case TabChanges:
		s.dispatcher.DispatchReload(s, TargetChanges)
	}
}

func (s *Session) onApprovalRequired(event models.ChangeEvent) {
	if event.EventType != models.ChangeEventInsert {
		return
	}
	if s.activeTab() == TabChanges {
		s.dispatcher.DispatchReload(s, TargetChanges)
	}
}

func (s *Session) activeTab() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveTab
}

func (s *Session) setConnection(status ConnectionStatus) {
	s.mu.Lock()
	s.connection = status
	s.mu.Unlock()
}

func (s *Session) notify(level NotificationLevel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, Notification{Level: level, Message: message, At: s.now().UTC()})
	if over := len(s.notifications) - maxNotifications; over > 0 {
		s.notifications = s.notifications[over:]
	}
}

// Notifications drains queued notifications.
func (s *Session) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notifications
	s.notifications = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Snapshot returns the current read model of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, meta := Paginate(s.approvals, s.state.Search, s.state.Page)
	changes := make([]PendingChange, 0, len(s.changes))
	for _, c := range s.changes {
		view, err := RenderChange(c)
		if err != nil {
			s.logger.Warn("render change request", zap.String("change_id", c.ID), zap.Error(err))
		}
		changes = append(changes, PendingChange{ChangeRequest: c, View: view})
	}
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		Connection:    s.connection,
		Busy:          s.busy,
		Loading:       s.loading > 0,
		Approvals:     page,
		Pagination:    meta,
		Statistics:    s.statistics,
		Changes:       changes,
		Detail:        s.detail,
		Notifications: len(s.notifications),
	}
}

// LastActive returns the time of the last reviewer interaction.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close cancels in-flight loads and releases the listeners.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handle := s.handle
	s.handle = nil
	s.connection = StatusDisconnected
	s.mu.Unlock()

	s.cancel()
	s.listeners.Release(handle)
}

// scope derives a context that is also cancelled when the session closes.
func (s *Session) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func errSessionClosed() error {
	return appErrors.Clone(appErrors.ErrNotFound, "console session closed")
}
