package service

import (
	"context"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
)

// AuditService exposes the action trail to coordinators and admins.
type AuditService interface {
	List(ctx context.Context, actor access.Actor, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

type auditService struct {
	base
}

func NewAuditService(deps Deps) AuditService {
	return &auditService{base: newBase(deps, "audit")}
}

func (s *auditService) List(ctx context.Context, actor access.Actor, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if err := s.authorize(actor, access.OpViewAudit); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []domain.AuditEntry{}, nil
	}
	entries, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, s.storeErr("audit.list", err, "audit entries")
	}
	return entries, nil
}
