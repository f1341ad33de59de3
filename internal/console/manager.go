package console

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/service"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
	"github.com/noah-isme/syllabus-approval-api/pkg/jobs"
)

const reloadJobType = "console.reload"

// ManagerConfig tunes the session manager.
type ManagerConfig struct {
	Session    SessionConfig
	SessionTTL time.Duration
	Workers    int
}

type reloadPayload struct {
	SessionID string
	Targets   []Target
}

// Manager owns the reviewer console sessions of this process.
type Manager struct {
	backend Backend
	broker  events.Broker
	cfg     ManagerConfig
	metrics *service.MetricsService
	logger  *zap.Logger
	queue   *jobs.Queue
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	stop     context.CancelFunc
	done     chan struct{}
}

// NewManager builds a manager. Start must be called before sessions are created.
func NewManager(backend Backend, broker events.Broker, cfg ManagerConfig, metrics *service.MetricsService, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	m := &Manager{
		backend:  backend,
		broker:   broker,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	m.queue = jobs.NewQueue("console-reload", m.handleReload, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.Workers * 16,
		MaxRetries: -1,
		Logger:     logger,
	})
	return m
}

// Start runs the reload workers and, when a session TTL is set, the idle janitor.
func (m *Manager) Start(ctx context.Context) {
	m.queue.Start(ctx)
	if m.cfg.SessionTTL <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.stop = cancel
	m.done = make(chan struct{})
	interval := m.cfg.SessionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.ExpireIdle(); n > 0 {
					m.logger.Info("expired idle console sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// Stop closes every session and stops background work.
func (m *Manager) Stop() {
	if m.stop != nil {
		m.stop()
		<-m.done
	}
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	m.metrics.SetConsoleSessions(0)
	m.queue.Stop()
}

// Create opens a session for reviewer on orgID and performs the initial load.
func (m *Manager) Create(ctx context.Context, orgID string, reviewer *models.JWTClaims) (*Session, error) {
	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "organization id is required")
	}
	if !reviewer.Role.CanReview() || !reviewer.CanAccessOrganization(orgID) {
		return nil, appErrors.ErrForbidden
	}
	s := NewSession(uuid.NewString(), reviewer, orgID, m.backend, m.broker, m.cfg.Session,
		WithDispatcher(m),
		WithSessionMetrics(m.metrics),
		WithSessionLogger(m.logger))
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetConsoleSessions(count)
	m.logger.Info("console session opened",
		zap.String("session_id", s.ID()),
		zap.String("org_id", orgID),
		zap.String("reviewer_id", reviewer.UserID))
	return s, nil
}

// Get returns the session owned by reviewer.
func (m *Manager) Get(id string, reviewer *models.JWTClaims) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "console session not found")
	}
	if reviewer == nil || s.Reviewer().UserID != reviewer.UserID {
		return nil, appErrors.ErrForbidden
	}
	return s, nil
}

// Close ends the session owned by reviewer.
func (m *Manager) Close(id string, reviewer *models.JWTClaims) error {
	s, err := m.Get(id, reviewer)
	if err != nil {
		return err
	}
	m.remove(s)
	return nil
}

// ExpireIdle closes sessions idle for longer than the configured TTL.
func (m *Manager) ExpireIdle() int {
	if m.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.SessionTTL)
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()
	for _, s := range idle {
		m.remove(s)
	}
	return len(idle)
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	count := len(m.sessions)
	m.mu.Unlock()
	s.Close()
	m.metrics.SetConsoleSessions(count)
}

// DispatchReload queues a notification-driven reload. Reloads of the same
// session and targets waiting in the queue are coalesced.
func (m *Manager) DispatchReload(s *Session, targets ...Target) {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	sort.Strings(names)
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    reloadJobType,
		Key:     s.ID() + ":" + strings.Join(names, ","),
		Payload: reloadPayload{SessionID: s.ID(), Targets: targets},
	}
	if _, err := m.queue.Enqueue(job); err != nil {
		m.logger.Warn("failed to queue console reload", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

func (m *Manager) handleReload(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reloadPayload)
	if !ok {
		return nil
	}
	m.mu.RLock()
	s, found := m.sessions[payload.SessionID]
	m.mu.RUnlock()
	if !found {
		return nil
	}
	s.Reload(ctx, payload.Targets...)
	return nil
}
