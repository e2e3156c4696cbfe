package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/alert"
)

// AlertRepository implements alert.Repository.
type AlertRepository struct {
	s *Store
}

func cloneAlert(a *alert.Alert) *alert.Alert {
	out := *a
	out.Payload = slices.Clone(a.Payload)
	out.TargetGroup = copyPtr(a.TargetGroup)
	out.DedupeKey = copyPtr(a.DedupeKey)
	out.AcknowledgedAt = copyPtr(a.AcknowledgedAt)
	out.AcknowledgedBy = copyPtr(a.AcknowledgedBy)
	out.TraceID = copyPtr(a.TraceID)
	return &out
}

func (r *AlertRepository) openByKey(key string) *alert.Alert {
	for _, a := range r.s.alerts {
		if a.Status == alert.StatusOpen && a.DedupeKey != nil && *a.DedupeKey == key {
			return a
		}
	}
	return nil
}

func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.DedupeKey != nil && r.openByKey(*a.DedupeKey) != nil {
		return alert.ErrDuplicateOpen
	}
	a.ID = r.s.nextID()
	r.s.alerts[a.AlertID] = cloneAlert(a)
	r.s.onRollback(ctx, func() { delete(r.s.alerts, a.AlertID) })
	return nil
}

func (r *AlertRepository) GetByID(_ context.Context, alertID uuid.UUID) (*alert.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.alerts[alertID]
	if !ok {
		return nil, nil
	}
	return cloneAlert(a), nil
}

func (r *AlertRepository) RecordRepeat(ctx context.Context, dedupeKey string, at time.Time) (*alert.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.openByKey(dedupeKey)
	if a == nil {
		return nil, nil
	}
	prev := cloneAlert(a)
	a.Occurrences++
	a.LastSeenAt = at
	r.s.onRollback(ctx, func() { r.s.alerts[a.AlertID] = prev })
	return cloneAlert(a), nil
}

func (r *AlertRepository) List(_ context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*alert.Alert
	for _, a := range r.s.alerts {
		switch {
		case filter.Kind != nil && a.Kind != *filter.Kind:
			continue
		case filter.Status != nil && a.Status != *filter.Status:
			continue
		case filter.TargetGroup != nil && (a.TargetGroup == nil || *a.TargetGroup != *filter.TargetGroup):
			continue
		case filter.Since != nil && a.CreatedAt.Before(*filter.Since):
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

func (r *AlertRepository) Acknowledge(ctx context.Context, alertID uuid.UUID, by string, at time.Time) (*alert.Alert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.alerts[alertID]
	if !ok {
		return nil, nil
	}
	prev := cloneAlert(a)
	if err := a.Acknowledge(by, at); err != nil {
		return nil, nil
	}
	r.s.onRollback(ctx, func() { r.s.alerts[alertID] = prev })
	return cloneAlert(a), nil
}
