package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/operator"
	"github.com/dealdesk/dealdesk/internal/domain/session"
)

// OperatorRepository implements operator.Repository.
type OperatorRepository struct {
	s *Store
}

func cloneOperator(o *operator.Operator) *operator.Operator {
	out := *o
	out.Groups = slices.Clone(o.Groups)
	return &out
}

func (r *OperatorRepository) Create(ctx context.Context, o *operator.Operator) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.operators {
		if existing.Username == o.Username {
			return operator.ErrUsernameTaken
		}
	}
	o.ID = r.s.nextID()
	r.s.operators[o.OperatorID] = cloneOperator(o)
	r.s.onRollback(ctx, func() { delete(r.s.operators, o.OperatorID) })
	return nil
}

func (r *OperatorRepository) GetByID(_ context.Context, operatorID uuid.UUID) (*operator.Operator, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.operators[operatorID]
	if !ok {
		return nil, nil
	}
	return cloneOperator(o), nil
}

func (r *OperatorRepository) GetByUsername(_ context.Context, username string) (*operator.Operator, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.operators {
		if o.Username == username {
			return cloneOperator(o), nil
		}
	}
	return nil, nil
}

func (r *OperatorRepository) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.operators), nil
}

// SessionRepository implements session.Repository.
type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Create(_ context.Context, sess *session.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess.ID = r.s.nextID()
	c := *sess
	r.s.sessions[sess.TokenHash] = &c
	return nil
}

func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*session.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (r *SessionRepository) Delete(_ context.Context, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, sess := range r.s.sessions {
		if sess.SessionID == sessionID {
			delete(r.s.sessions, k)
		}
	}
	return nil
}

func (r *SessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, tokenHash)
	return nil
}

func (r *SessionRepository) Touch(_ context.Context, sessionID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	at = at.UTC()
	for _, sess := range r.s.sessions {
		if sess.SessionID == sessionID {
			sess.LastSeenAt = &at
		}
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for k, sess := range r.s.sessions {
		if sess.Expired(cutoff) {
			delete(r.s.sessions, k)
			n++
		}
	}
	return n, nil
}
