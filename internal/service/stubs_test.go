package service

import (
	"context"
	"sync"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

type auditRecorder struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type publisherRecorder struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *publisherRecorder) Publish(ctx context.Context, event models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func reviewer(orgID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "rev-1", Role: models.RoleReviewer, OrganizationID: orgID, FullName: "Rita"}
}
