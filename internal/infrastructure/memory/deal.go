package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/deal"
)

// DealRepository implements deal.Repository.
type DealRepository struct {
	s *Store
}

func cloneDeal(d *deal.Deal) *deal.Deal {
	c := *d
	c.BrandName = copyPtr(d.BrandName)
	c.ContractSignedAt = copyPtr(d.ContractSignedAt)
	c.DeliverablesCompletedAt = copyPtr(d.DeliverablesCompletedAt)
	return &c
}

func (r *DealRepository) Create(ctx context.Context, d *deal.Deal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = r.s.nextID()
	r.s.deals[d.DealID] = cloneDeal(d)
	r.s.onRollback(ctx, func() { delete(r.s.deals, d.DealID) })
	return nil
}

func (r *DealRepository) GetByID(_ context.Context, dealID uuid.UUID) (*deal.Deal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deals[dealID]
	if !ok {
		return nil, nil
	}
	return cloneDeal(d), nil
}

func (r *DealRepository) GetByIDForUpdate(ctx context.Context, dealID uuid.UUID) (*deal.Deal, error) {
	return r.GetByID(ctx, dealID)
}

func (r *DealRepository) Update(ctx context.Context, d *deal.Deal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.deals[d.DealID]
	if !ok {
		return deal.ErrNotFound
	}
	prev := cloneDeal(cur)
	cur.Stage = d.Stage
	cur.ContractSignedAt = copyPtr(d.ContractSignedAt)
	cur.DeliverablesCompletedAt = copyPtr(d.DeliverablesCompletedAt)
	cur.UpdatedAt = d.UpdatedAt
	r.s.onRollback(ctx, func() { r.s.deals[d.DealID] = prev })
	return nil
}

func (r *DealRepository) List(_ context.Context, filter deal.Filter, limit, offset int) ([]*deal.Deal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*deal.Deal
	for _, d := range r.s.deals {
		if filter.Stage != nil && d.Stage != *filter.Stage {
			continue
		}
		out = append(out, cloneDeal(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
