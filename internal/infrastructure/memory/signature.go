package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

// SignatureRepository implements signature.Repository.
type SignatureRepository struct {
	s *Store
}

func cloneRequest(r *signature.Request) *signature.Request {
	out := *r
	out.SignedPdfURL = copyPtr(r.SignedPdfURL)
	out.SignedAt = copyPtr(r.SignedAt)
	return &out
}

func (r *SignatureRepository) Create(ctx context.Context, req *signature.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[req.EnvelopeID]; ok {
		return signature.ErrEnvelopeExists
	}
	req.ID = r.s.nextID()
	r.s.requests[req.EnvelopeID] = cloneRequest(req)
	r.s.onRollback(ctx, func() { delete(r.s.requests, req.EnvelopeID) })
	return nil
}

func (r *SignatureRepository) GetByEnvelopeID(_ context.Context, envelopeID string) (*signature.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[envelopeID]
	if !ok {
		return nil, nil
	}
	return cloneRequest(req), nil
}

func (r *SignatureRepository) ListByContract(_ context.Context, contractID uuid.UUID) ([]*signature.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*signature.Request
	for _, req := range r.s.requests {
		if req.ContractID == contractID {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *SignatureRepository) ApplyStatus(ctx context.Context, envelopeID string, status signature.Status, at time.Time) (*signature.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.requests[envelopeID]
	if !ok || !cur.CanApply(status) {
		return nil, nil
	}
	prev := cloneRequest(cur)
	cur.Status = status
	if status == signature.StatusSigned && cur.SignedAt == nil {
		t := at
		cur.SignedAt = &t
	}
	cur.UpdatedAt = at
	r.s.onRollback(ctx, func() { r.s.requests[envelopeID] = prev })
	return cloneRequest(cur), nil
}

func (r *SignatureRepository) SetSignedDocument(ctx context.Context, requestID uuid.UUID, url string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.RequestID == requestID {
			prev := req.SignedPdfURL
			req.SignedPdfURL = &url
			target := req
			r.s.onRollback(ctx, func() { target.SignedPdfURL = prev })
			return nil
		}
	}
	return nil
}
