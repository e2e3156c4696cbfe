package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	s *Store
}

func cloneAudit(l *audit.AuditLog) *audit.AuditLog {
	out := *l
	out.ActorRoles = slices.Clone(l.ActorRoles)
	out.Tags = slices.Clone(l.Tags)
	out.OldValues = slices.Clone(l.OldValues)
	out.NewValues = slices.Clone(l.NewValues)
	out.Signature = slices.Clone(l.Signature)
	return &out
}

func (r *AuditRepository) Create(ctx context.Context, entry *audit.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = r.s.nextID()
	r.s.audits = append(r.s.audits, cloneAudit(entry))
	id := entry.AuditID
	r.s.onRollback(ctx, func() {
		r.s.audits = slices.DeleteFunc(r.s.audits, func(l *audit.AuditLog) bool { return l.AuditID == id })
	})
	return nil
}

func (r *AuditRepository) GetByID(_ context.Context, auditID uuid.UUID) (*audit.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.audits {
		if l.AuditID == auditID {
			return cloneAudit(l), nil
		}
	}
	return nil, nil
}

func (r *AuditRepository) Query(_ context.Context, filter audit.QueryFilter, cursor *audit.Cursor, limit int) ([]*audit.AuditLog, *audit.Cursor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*audit.AuditLog
	for _, l := range r.s.audits {
		if !matchAudit(l, filter) {
			continue
		}
		if cursor != nil && !before(l, cursor) {
			continue
		}
		out = append(out, cloneAudit(l))
	}
	sortAuditDesc(out)
	out = page(out, limit, 0)

	var next *audit.Cursor
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		next = &audit.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return out, next, nil
}

func (r *AuditRepository) GetByEntityID(_ context.Context, entityType audit.EntityType, entityID string) ([]*audit.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*audit.AuditLog
	for _, l := range r.s.audits {
		if l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, cloneAudit(l))
		}
	}
	sortAuditDesc(out)
	return out, nil
}

// All returns every entry in insertion order.
func (r *AuditRepository) All() []*audit.AuditLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*audit.AuditLog, 0, len(r.s.audits))
	for _, l := range r.s.audits {
		out = append(out, cloneAudit(l))
	}
	return out
}

func matchAudit(l *audit.AuditLog, f audit.QueryFilter) bool {
	switch {
	case f.EntityType != nil && l.EntityType != *f.EntityType:
		return false
	case f.EntityID != nil && l.EntityID != *f.EntityID:
		return false
	case f.Action != nil && l.Action != *f.Action:
		return false
	case f.Actor != nil && l.Actor != *f.Actor:
		return false
	case f.RiskLevel != nil && l.RiskLevel != *f.RiskLevel:
		return false
	case f.StartTime != nil && l.CreatedAt.Before(*f.StartTime):
		return false
	case f.EndTime != nil && l.CreatedAt.After(*f.EndTime):
		return false
	case f.TraceID != nil && l.TraceID != *f.TraceID:
		return false
	}
	for _, tag := range f.Tags {
		if !slices.Contains(l.Tags, tag) {
			return false
		}
	}
	return true
}

func before(l *audit.AuditLog, c *audit.Cursor) bool {
	if l.CreatedAt.Equal(c.CreatedAt) {
		return l.ID < c.ID
	}
	return l.CreatedAt.Before(c.CreatedAt)
}

func sortAuditDesc(logs []*audit.AuditLog) {
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].ID > logs[j].ID
		}
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
}
