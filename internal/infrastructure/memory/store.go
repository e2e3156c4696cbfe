// Package memory is an in-process implementation of every repository. It
// enforces the same uniqueness and conditional-write rules as the Postgres
// schema and is used for local runs without a database and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/invoice"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
	"github.com/dealdesk/dealdesk/internal/domain/session"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

// Store holds all tables.
type Store struct {
	// txMu serializes transactions, standing in for row locks.
	txMu sync.Mutex
	mu   sync.Mutex
	seq  int64

	deals     map[uuid.UUID]*deal.Deal
	contracts map[uuid.UUID]*contract.Contract
	requests  map[string]*signature.Request
	invoices  map[uuid.UUID]*invoice.Invoice
	audits    []*audit.AuditLog
	alerts    map[uuid.UUID]*alert.Alert
	operators map[uuid.UUID]*operator.Operator
	sessions  map[string]*session.Session
}

func NewStore() *Store {
	return &Store{
		deals:     map[uuid.UUID]*deal.Deal{},
		contracts: map[uuid.UUID]*contract.Contract{},
		requests:  map[string]*signature.Request{},
		invoices:  map[uuid.UUID]*invoice.Invoice{},
		alerts:    map[uuid.UUID]*alert.Alert{},
		operators: map[uuid.UUID]*operator.Operator{},
		sessions:  map[string]*session.Session{},
	}
}

type txKey struct{}

// journal collects undo steps for the open transaction.
type journal struct {
	undo []func()
}

// WithinTx runs fn holding the transaction lock. Writes made through a
// context carrying the transaction are undone if fn fails. Nested calls join
// the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, txKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback registers an undo step. Callers hold s.mu.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(txKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) Deals() *DealRepository {
	return &DealRepository{s: s}
}

func (s *Store) Contracts() *ContractRepository {
	return &ContractRepository{s: s}
}

func (s *Store) Signatures() *SignatureRepository {
	return &SignatureRepository{s: s}
}

func (s *Store) Invoices() *InvoiceRepository {
	return &InvoiceRepository{s: s}
}

func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{s: s}
}

func (s *Store) Alerts() *AlertRepository {
	return &AlertRepository{s: s}
}

func (s *Store) Operators() *OperatorRepository {
	return &OperatorRepository{s: s}
}

func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{s: s}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
