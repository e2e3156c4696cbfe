package memory

import (
	"context"
	"maps"
	"sort"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/contract"
)

// ContractRepository implements contract.Repository.
type ContractRepository struct {
	s *Store
}

func cloneContract(c *contract.Contract) *contract.Contract {
	out := *c
	out.SentAt = copyPtr(c.SentAt)
	out.TalentSignedAt = copyPtr(c.TalentSignedAt)
	out.BrandSignedAt = copyPtr(c.BrandSignedAt)
	out.FullySignedAt = copyPtr(c.FullySignedAt)
	out.PdfURL = copyPtr(c.PdfURL)
	out.SignedPdfURL = copyPtr(c.SignedPdfURL)
	out.Metadata = maps.Clone(c.Metadata)
	return &out
}

func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.nextID()
	r.s.contracts[c.ContractID] = cloneContract(c)
	r.s.onRollback(ctx, func() { delete(r.s.contracts, c.ContractID) })
	return nil
}

func (r *ContractRepository) GetByID(_ context.Context, contractID uuid.UUID) (*contract.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contracts[contractID]
	if !ok {
		return nil, nil
	}
	return cloneContract(c), nil
}

func (r *ContractRepository) GetByIDForUpdate(ctx context.Context, contractID uuid.UUID) (*contract.Contract, error) {
	return r.GetByID(ctx, contractID)
}

func (r *ContractRepository) ListByDeal(_ context.Context, dealID uuid.UUID) ([]*contract.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*contract.Contract
	for _, c := range r.s.contracts {
		if c.DealID == dealID {
			out = append(out, cloneContract(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ContractRepository) UpdateSigning(ctx context.Context, c *contract.Contract) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.contracts[c.ContractID]
	if !ok {
		return contract.ErrNotFound
	}
	prev := cloneContract(cur)
	cur.Status = c.Status
	cur.SentAt = keep(cur.SentAt, c.SentAt)
	cur.TalentSignedAt = keep(cur.TalentSignedAt, c.TalentSignedAt)
	cur.BrandSignedAt = keep(cur.BrandSignedAt, c.BrandSignedAt)
	cur.FullySignedAt = keep(cur.FullySignedAt, c.FullySignedAt)
	cur.Metadata = maps.Clone(c.Metadata)
	cur.UpdatedAt = c.UpdatedAt
	r.s.onRollback(ctx, func() { r.s.contracts[c.ContractID] = prev })
	return nil
}

func (r *ContractRepository) SetSignedPdfURL(ctx context.Context, contractID uuid.UUID, url string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.contracts[contractID]
	if !ok {
		return nil
	}
	prev := cur.SignedPdfURL
	cur.SignedPdfURL = &url
	r.s.onRollback(ctx, func() { cur.SignedPdfURL = prev })
	return nil
}

// keep mirrors COALESCE(stored, incoming).
func keep[T any](stored, incoming *T) *T {
	if stored != nil {
		return stored
	}
	return copyPtr(incoming)
}
