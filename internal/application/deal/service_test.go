package deal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appInvoice "github.com/dealdesk/dealdesk/internal/application/invoice"
	"github.com/dealdesk/dealdesk/internal/application/outcome"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/invoice"
	"github.com/dealdesk/dealdesk/internal/infrastructure/memory"
	"github.com/dealdesk/dealdesk/internal/infrastructure/sse"
)

type failingIssuer struct{}

func (failingIssuer) EnsureForDeal(context.Context, uuid.UUID, string) (*invoice.Invoice, bool, error) {
	return nil, false, errors.New("invoices table unavailable")
}

type fixture struct {
	store    *memory.Store
	alerts   *appAlert.Service
	invoices *appInvoice.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	auditSvc := appAudit.NewService(store.Audit(), zerolog.Nop(), nil)
	router, err := appAlert.NewRouter(appAlert.DefaultRules())
	require.NoError(t, err)
	return &fixture{
		store:    store,
		alerts:   appAlert.NewService(store.Alerts(), sse.NewHub(nil), router, store, auditSvc, nil, zerolog.Nop()),
		invoices: appInvoice.NewService(store.Invoices(), store.Deals(), store, auditSvc, nil, zerolog.Nop()),
	}
}

func (f *fixture) service(issuer InvoiceIssuer) *Service {
	if issuer == nil {
		issuer = f.invoices
	}
	auditSvc := appAudit.NewService(f.store.Audit(), zerolog.Nop(), nil)
	return NewService(f.store.Deals(), f.store, issuer, f.alerts, auditSvc, nil, zerolog.Nop())
}

func (f *fixture) entries(action audit.Action) []*audit.AuditLog {
	var out []*audit.AuditLog
	for _, l := range f.store.Audit().All() {
		if l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)

	d, err := svc.Create(context.Background(), CreateInput{
		Title:     "Autumn launch",
		BrandName: "Acme",
		Value:     decimal.NewNullDecimal(decimal.RequireFromString("4200")),
	}, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, deal.StageNewLead, d.Stage)
	assert.Equal(t, "GBP", d.Currency)
	require.NotNil(t, d.BrandName)
	assert.Equal(t, "Acme", *d.BrandName)
	assert.Len(t, f.entries(audit.ActionCreate), 1)

	_, err = svc.Create(context.Background(), CreateInput{Title: " "}, "user:alice")
	assert.ErrorIs(t, err, deal.ErrTitleMissing)
}

func TestService_Transition(t *testing.T) {
	t.Run("any stage to any stage", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(nil)
		ctx := context.Background()
		d, err := svc.Create(ctx, CreateInput{Title: "Deal"}, "user:alice")
		require.NoError(t, err)

		res, err := svc.Transition(ctx, d.DealID, deal.StageLive, "user:alice")
		require.NoError(t, err)
		assert.Equal(t, deal.StageNewLead, res.PreviousStage)
		assert.Equal(t, deal.StageLive, res.Deal.Stage)
		assert.Equal(t, outcome.KindApplied, res.Outcome.Kind)
		assert.Nil(t, res.Invoice)

		res, err = svc.Transition(ctx, d.DealID, deal.StageNegotiation, "user:alice")
		require.NoError(t, err)
		assert.Equal(t, deal.StageNegotiation, res.Deal.Stage)

		entries := f.entries(audit.ActionStageChange)
		require.Len(t, entries, 2)
		assert.JSONEq(t, `{"stage":"NEW_LEAD"}`, string(entries[0].OldValues))
		assert.JSONEq(t, `{"stage":"NEGOTIATION"}`, string(entries[1].NewValues))
	})

	t.Run("same stage is not audited", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(nil)
		ctx := context.Background()
		d, err := svc.Create(ctx, CreateInput{Title: "Deal"}, "user:alice")
		require.NoError(t, err)

		res, err := svc.Transition(ctx, d.DealID, deal.StageNewLead, "user:alice")
		require.NoError(t, err)
		assert.Equal(t, outcome.KindDuplicate, res.Outcome.Kind)
		assert.Empty(t, f.entries(audit.ActionStageChange))
	})

	t.Run("invalid stage and unknown deal", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(nil)

		_, err := svc.Transition(context.Background(), uuid.New(), deal.Stage("ARCHIVED"), "user:alice")
		assert.ErrorIs(t, err, deal.ErrInvalidStage)

		_, err = svc.Transition(context.Background(), uuid.New(), deal.StageLive, "user:alice")
		assert.ErrorIs(t, err, deal.ErrNotFound)
	})

	t.Run("completion issues invoice", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(nil)
		ctx := context.Background()
		d, err := svc.Create(ctx, CreateInput{
			Title:    "Deal",
			Value:    decimal.NewNullDecimal(decimal.RequireFromString("999.99")),
			Currency: "usd",
		}, "user:alice")
		require.NoError(t, err)

		res, err := svc.Transition(ctx, d.DealID, deal.StageCompleted, "user:alice")
		require.NoError(t, err)
		require.NotNil(t, res.Invoice)
		assert.Equal(t, outcome.KindApplied, res.Outcome.Kind)
		assert.Equal(t, "USD", res.Invoice.Currency)
		assert.True(t, decimal.RequireFromString("999.99").Equal(res.Invoice.Amount))
		assert.NotNil(t, res.Deal.DeliverablesCompletedAt)

		// leaving and re-entering COMPLETED keeps the same invoice
		_, err = svc.Transition(ctx, d.DealID, deal.StagePaymentPending, "user:alice")
		require.NoError(t, err)
		again, err := svc.Transition(ctx, d.DealID, deal.StageCompleted, "user:alice")
		require.NoError(t, err)
		assert.Equal(t, res.Invoice.InvoiceID, again.Invoice.InvoiceID)
		assert.Len(t, f.store.Invoices().ListByDeal(d.DealID), 1)
	})

	t.Run("invoice failure keeps stage and raises alert", func(t *testing.T) {
		f := newFixture(t)
		svc := f.service(failingIssuer{})
		ctx := context.Background()
		d, err := svc.Create(ctx, CreateInput{Title: "Deal"}, "user:alice")
		require.NoError(t, err)

		res, err := svc.Transition(ctx, d.DealID, deal.StageCompleted, "user:alice")
		require.NoError(t, err)
		assert.True(t, res.Outcome.IsFatal())
		assert.Nil(t, res.Invoice)

		stored, err := svc.Get(ctx, d.DealID)
		require.NoError(t, err)
		assert.Equal(t, deal.StageCompleted, stored.Stage)

		alerts, err := f.alerts.List(ctx, alert.Filter{}, 0, 0)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, alert.KindInvoiceIssuanceFailed, alerts[0].Kind)
		assert.Equal(t, d.DealID.String(), alerts[0].EntityID)
		require.NotNil(t, alerts[0].TargetGroup)
		assert.Equal(t, "finance", *alerts[0].TargetGroup)
	})
}

func TestService_Transition_StageRace(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)
	ctx := context.Background()
	d, err := svc.Create(ctx, CreateInput{Title: "Deal", Value: decimal.NewNullDecimal(decimal.NewFromInt(10))}, "user:alice")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Transition(ctx, d.DealID, deal.StageCompleted, "user:alice")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Invoice)
		assert.Equal(t, results[0].Invoice.InvoiceID, results[i].Invoice.InvoiceID)
	}
	assert.Len(t, f.store.Invoices().ListByDeal(d.DealID), 1)
	assert.Len(t, f.entries(audit.ActionStageChange), 1)
	assert.Len(t, f.entries(audit.ActionIssue), 1)
}

func TestService_ReissueInvoice(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil)
	ctx := context.Background()
	d, err := svc.Create(ctx, CreateInput{Title: "Deal"}, "user:alice")
	require.NoError(t, err)

	_, err = svc.ReissueInvoice(ctx, d.DealID, "user:alice")
	assert.ErrorIs(t, err, ErrNotCompleted)

	res, err := svc.Transition(ctx, d.DealID, deal.StageCompleted, "user:alice")
	require.NoError(t, err)
	_, err = f.invoices.Void(ctx, res.Invoice.InvoiceID, "user:alice", "re-issue")
	require.NoError(t, err)

	reissued, err := svc.ReissueInvoice(ctx, d.DealID, "user:alice")
	require.NoError(t, err)
	require.NotNil(t, reissued.Invoice)
	assert.NotEqual(t, res.Invoice.InvoiceID, reissued.Invoice.InvoiceID)
	assert.Equal(t, outcome.KindApplied, reissued.Outcome.Kind)
}
