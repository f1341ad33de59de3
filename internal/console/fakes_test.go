package console

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/syllabus-approval-api/internal/events"
	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

type fakeBackend struct {
	mu      sync.Mutex
	records []models.CurriculumApprovalRequest
	stats   models.ApprovalStatistics
	changes []models.ChangeRequest
	details map[string]*models.CurriculumDetail
	calls   map[string]int

	reviewErr error
	listErr   error
	entered   chan struct{}
	release   chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:   map[string]int{},
		details: map[string]*models.CurriculumDetail{},
		stats:   models.ApprovalStatistics{Total: 9, Pending: 2, Approved: 3, Rejected: 2, Published: 2},
		records: []models.CurriculumApprovalRequest{
			{CurriculumID: "cur-a", OrganizationID: "org-1", CourseName: "Algorithms", Status: models.CurriculumStatusApproved},
			{CurriculumID: "cur-b", OrganizationID: "org-1", CourseName: "Biology", Status: models.CurriculumStatusApproved},
			{CurriculumID: "cur-c", OrganizationID: "org-1", CourseName: "Chemistry", Status: models.CurriculumStatusApproved},
			{CurriculumID: "cur-d", OrganizationID: "org-1", CourseName: "Databases", Status: models.CurriculumStatusPublished},
			{CurriculumID: "cur-e", OrganizationID: "org-1", CourseName: "Economics", Status: models.CurriculumStatusPublished},
			{CurriculumID: "cur-f", OrganizationID: "org-1", CourseName: "French", Status: models.CurriculumStatusPendingApproval},
			{CurriculumID: "cur-g", OrganizationID: "org-1", CourseName: "Geology", Status: models.CurriculumStatusPendingApproval},
			{CurriculumID: "cur-h", OrganizationID: "org-1", CourseName: "History", Status: models.CurriculumStatusRejected},
			{CurriculumID: "cur-i", OrganizationID: "org-1", CourseName: "Italian", Status: models.CurriculumStatusRejected},
			{CurriculumID: "cur-x", OrganizationID: "org-2", CourseName: "Other org", Status: models.CurriculumStatusPublished},
		},
		changes: []models.ChangeRequest{
			{ID: "chg-1", CurriculumID: "cur-d", OrganizationID: "org-1", ChangeType: models.ChangeTypeUnitEdit,
				Payload: []byte(`{"before":{"id":"u1","title":"Old"},"after":{"id":"u1","title":"New"}}`), Status: models.ChangeStatusPending},
		},
	}
}

func (f *fakeBackend) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) Reset() {
	f.mu.Lock()
	f.calls = map[string]int{}
	f.mu.Unlock()
}

func (f *fakeBackend) GetApprovalRequests(ctx context.Context, orgID string, query models.ApprovalQuery) ([]models.CurriculumApprovalRequest, error) {
	f.count("approvals")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.CurriculumApprovalRequest
	for _, r := range f.records {
		if r.OrganizationID != orgID {
			continue
		}
		if query.Status != "" && r.Status != query.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeBackend) GetApprovalStatistics(ctx context.Context, orgID string) (*models.ApprovalStatistics, error) {
	f.count("statistics")
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := f.stats
	return &stats, nil
}

func (f *fakeBackend) review(ctx context.Context, name string) error {
	f.count(name)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.reviewErr
}

func (f *fakeBackend) ApproveCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error) {
	if err := f.review(ctx, "approveCurriculum"); err != nil {
		return nil, err
	}
	return &models.CurriculumApprovalRequest{CurriculumID: curriculumID, Status: models.CurriculumStatusPublished}, nil
}

func (f *fakeBackend) RejectCurriculum(ctx context.Context, curriculumID, notes string, reviewer *models.JWTClaims) (*models.CurriculumApprovalRequest, error) {
	if err := f.review(ctx, "rejectCurriculum"); err != nil {
		return nil, err
	}
	return &models.CurriculumApprovalRequest{CurriculumID: curriculumID, Status: models.CurriculumStatusRejected}, nil
}

func (f *fakeBackend) GetAllPendingChangesForUniversity(ctx context.Context, orgID string) ([]models.ChangeRequest, error) {
	f.count("changes")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChangeRequest
	for _, c := range f.changes {
		if c.OrganizationID == orgID && c.Status == models.ChangeStatusPending {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeBackend) ApproveChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := f.review(ctx, "approveChange"); err != nil {
		return nil, err
	}
	return &models.ChangeRequest{ID: changeID, CurriculumID: curriculumID, Status: models.ChangeStatusApplied}, nil
}

func (f *fakeBackend) RejectChange(ctx context.Context, curriculumID, changeID, notes string, reviewer *models.JWTClaims) (*models.ChangeRequest, error) {
	if err := f.review(ctx, "rejectChange"); err != nil {
		return nil, err
	}
	return &models.ChangeRequest{ID: changeID, CurriculumID: curriculumID, Status: models.ChangeStatusDiscarded}, nil
}

func (f *fakeBackend) GetCurriculumDetail(ctx context.Context, curriculumID string, actor *models.JWTClaims) (*models.CurriculumDetail, error) {
	f.count("detail")
	f.mu.Lock()
	defer f.mu.Unlock()
	detail, ok := f.details[curriculumID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return detail, nil
}

type fakeScheduler struct {
	mu      sync.Mutex
	delays  []time.Duration
	fns     []func()
	stopped int
}

func (f *fakeScheduler) schedule(delay time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, delay)
	f.fns = append(f.fns, fn)
	return func() bool {
		f.mu.Lock()
		f.stopped++
		f.mu.Unlock()
		return true
	}
}

func (f *fakeScheduler) scheduled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func (f *fakeScheduler) fireLast() {
	f.mu.Lock()
	fn := f.fns[len(f.fns)-1]
	f.mu.Unlock()
	fn()
}

// flakyBroker fails the next n Subscribe calls.
type flakyBroker struct {
	*events.MemoryBroker
	mu       sync.Mutex
	failures int
}

func (b *flakyBroker) failNext(n int) {
	b.mu.Lock()
	b.failures = n
	b.mu.Unlock()
}

func (b *flakyBroker) Subscribe(ctx context.Context, topic models.Topic, handler events.Handler, onStatus events.StatusFunc) (events.Subscription, error) {
	b.mu.Lock()
	if b.failures > 0 {
		b.failures--
		b.mu.Unlock()
		return nil, sql.ErrConnDone
	}
	b.mu.Unlock()
	return b.MemoryBroker.Subscribe(ctx, topic, handler, onStatus)
}

func reviewerClaims(orgID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "rev-1", Role: models.RoleReviewer, OrganizationID: orgID}
}

// racyBroker reports CHANNEL_ERROR for the next failing topic before
// Subscribe returns, the way a receive loop can fail right after the
// server confirmation.
type racyBroker struct {
	*events.MemoryBroker
	mu       sync.Mutex
	failing  map[models.Topic]bool
	statuses map[models.Topic][]events.StatusFunc
}

func newRacyBroker() *racyBroker {
	return &racyBroker{
		MemoryBroker: events.NewMemoryBroker(),
		failing:      make(map[models.Topic]bool),
		statuses:     make(map[models.Topic][]events.StatusFunc),
	}
}

func (b *racyBroker) failEarly(topic models.Topic) {
	b.mu.Lock()
	b.failing[topic] = true
	b.mu.Unlock()
}

func (b *racyBroker) Subscribe(ctx context.Context, topic models.Topic, handler events.Handler, onStatus events.StatusFunc) (events.Subscription, error) {
	sub, err := b.MemoryBroker.Subscribe(ctx, topic, handler, onStatus)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	fail := b.failing[topic]
	delete(b.failing, topic)
	b.statuses[topic] = append(b.statuses[topic], onStatus)
	b.mu.Unlock()
	if fail {
		onStatus(models.SubscriptionChannelError, errors.New("read: connection reset"))
	}
	return sub, nil
}

func (b *racyBroker) statusFuncs(topic models.Topic) []events.StatusFunc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.StatusFunc(nil), b.statuses[topic]...)
}
