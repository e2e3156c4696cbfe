package signing

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
	"go.uber.org/mock/gomock"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/application/outcome"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
	sigMocks "github.com/dealdesk/dealdesk/internal/domain/signature/mocks"
	"github.com/dealdesk/dealdesk/internal/infrastructure/memory"
)

type fakeDocuments struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDocuments) Store(_ context.Context, data []byte, filename, _, folder, ownerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://docs.example.test/" + folder + "/" + ownerID + "/" + filename, nil
}

type fakeAlerter struct {
	mu      sync.Mutex
	raised  []appAlert.Input
	ctxErrs []error
	traces  []string
}

func (f *fakeAlerter) Raise(ctx context.Context, in appAlert.Input) (*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = append(f.raised, in)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.traces = append(f.traces, appAudit.TraceID(ctx))
	return alert.NewAlert(in.Kind, in.Severity, in.Title, in.Message, nil), nil
}

type fixture struct {
	store     *memory.Store
	provider  *sigMocks.MockProvider
	documents *fakeDocuments
	alerts    *fakeAlerter
	service   *Service

	deal     *deal.Deal
	contract *contract.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	provider := sigMocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("docusign").AnyTimes()

	store := memory.NewStore()
	f := &fixture{
		store:     store,
		provider:  provider,
		documents: &fakeDocuments{},
		alerts:    &fakeAlerter{},
	}
	auditSvc := appAudit.NewService(store.Audit(), zerolog.Nop(), nil)
	f.service = NewService(store.Signatures(), store.Contracts(), store.Deals(), store,
		signature.NewRegistry("docusign", provider), f.documents, f.alerts, auditSvc, nil, zerolog.Nop())

	ctx := context.Background()
	d, err := deal.NewDeal("Summer collab", decimal.NullDecimal{}, "GBP", "user:alice")
	require.NoError(t, err)
	d.ApplyStage(deal.StageContractSent, d.CreatedAt)
	require.NoError(t, store.Deals().Create(ctx, d))
	f.deal = d

	c, err := f.service.CreateContract(ctx, d.DealID, "Summer collab agreement", nil, "user:alice")
	require.NoError(t, err)
	f.contract = c
	return f
}

func (f *fixture) register(t *testing.T, envelopeID string, role contract.SignerRole) {
	t.Helper()
	_, err := f.service.RegisterRequest(context.Background(), f.contract.ContractID, RequestInput{
		EnvelopeID:  envelopeID,
		SignerEmail: string(role) + "@example.test",
		SignerRole:  string(role),
	}, "user:alice")
	require.NoError(t, err)
}

func (f *fixture) event(envelopeID string, status signature.Status) signature.Event {
	return signature.Event{Provider: "docusign", EnvelopeID: envelopeID, Status: status, RawStatus: string(status)}
}

func (f *fixture) currentContract(t *testing.T) *contract.Contract {
	t.Helper()
	c, err := f.store.Contracts().GetByID(context.Background(), f.contract.ContractID)
	require.NoError(t, err)
	return c
}

func (f *fixture) currentDeal(t *testing.T) *deal.Deal {
	t.Helper()
	d, err := f.store.Deals().GetByID(context.Background(), f.deal.DealID)
	require.NoError(t, err)
	return d
}

func (f *fixture) signEntries() []*audit.AuditLog {
	var out []*audit.AuditLog
	for _, l := range f.store.Audit().All() {
		if l.Action == audit.ActionSign {
			out = append(out, l)
		}
	}
	return out
}

func TestService_RegisterRequest(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-talent", contract.SignerTalent)

	c := f.currentContract(t)
	assert.Equal(t, contract.StatusSent, c.Status)
	assert.Equal(t, "env-talent", c.EnvelopeID())

	_, err := f.service.RegisterRequest(context.Background(), f.contract.ContractID, RequestInput{EnvelopeID: "env-talent"}, "user:alice")
	assert.ErrorIs(t, err, signature.ErrEnvelopeExists)

	_, err = f.service.RegisterRequest(context.Background(), f.contract.ContractID, RequestInput{EnvelopeID: "env-x", Provider: "hellosign"}, "user:alice")
	assert.ErrorIs(t, err, signature.ErrUnknownProvider)

	_, err = f.service.RegisterRequest(context.Background(), uuid.New(), RequestInput{EnvelopeID: "env-y"}, "user:alice")
	assert.ErrorIs(t, err, contract.ErrNotFound)
}

func TestService_HandleEvent_DualSignatureOrder(t *testing.T) {
	orders := map[string][]string{
		"talent first": {"env-talent", "env-brand"},
		"brand first":  {"env-brand", "env-talent"},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.register(t, "env-talent", contract.SignerTalent)
			f.register(t, "env-brand", contract.SignerBrand)
			f.provider.EXPECT().GetSignedDocument(gomock.Any(), order[1]).Return([]byte("%PDF-1.7"), nil).Times(1)
			ctx := context.Background()

			first := f.service.HandleEvent(ctx, f.event(order[0], signature.StatusSigned))
			assert.Equal(t, outcome.KindApplied, first.Kind)
			assert.Equal(t, contract.StatusPartiallySigned, f.currentContract(t).Status)
			assert.Nil(t, f.currentDeal(t).ContractSignedAt)

			second := f.service.HandleEvent(ctx, f.event(order[1], signature.StatusSigned))
			assert.Equal(t, outcome.KindApplied, second.Kind)

			c := f.currentContract(t)
			assert.Equal(t, contract.StatusFullySigned, c.Status)
			assert.NotNil(t, c.TalentSignedAt)
			assert.NotNil(t, c.BrandSignedAt)
			assert.NotNil(t, c.FullySignedAt)
			require.NotNil(t, c.SignedPdfURL)
			assert.Contains(t, *c.SignedPdfURL, order[1])

			d := f.currentDeal(t)
			assert.Equal(t, deal.StageContractSigned, d.Stage)
			assert.NotNil(t, d.ContractSignedAt)
			assert.Len(t, f.signEntries(), 2)
		})
	}
}

func TestService_HandleEvent_ConcurrentDualSignature(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-talent", contract.SignerTalent)
	f.register(t, "env-brand", contract.SignerBrand)
	f.provider.EXPECT().GetSignedDocument(gomock.Any(), gomock.Any()).Return([]byte("%PDF-1.7"), nil).Times(1)

	var wg sync.WaitGroup
	for _, env := range []string{"env-talent", "env-brand"} {
		wg.Add(1)
		go func(env string) {
			defer wg.Done()
			f.service.HandleEvent(context.Background(), f.event(env, signature.StatusSigned))
		}(env)
	}
	wg.Wait()

	assert.Equal(t, contract.StatusFullySigned, f.currentContract(t).Status)
	assert.Equal(t, deal.StageContractSigned, f.currentDeal(t).Stage)
	assert.Equal(t, 1, f.documents.calls)
}

func TestService_HandleEvent_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-all", contract.SignerAll)
	f.provider.EXPECT().GetSignedDocument(gomock.Any(), "env-all").Return([]byte("%PDF-1.7"), nil).Times(1)
	ctx := context.Background()

	first := f.service.HandleEvent(ctx, f.event("env-all", signature.StatusSigned))
	assert.Equal(t, outcome.KindApplied, first.Kind)
	before := len(f.store.Audit().All())

	second := f.service.HandleEvent(ctx, f.event("env-all", signature.StatusSigned))
	assert.Equal(t, outcome.KindDuplicate, second.Kind)
	assert.Len(t, f.store.Audit().All(), before)
	assert.Equal(t, contract.StatusFullySigned, f.currentContract(t).Status)
}

func TestService_HandleEvent_WebhookRace(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-talent", contract.SignerTalent)
	f.register(t, "env-brand", contract.SignerBrand)
	f.provider.EXPECT().GetSignedDocument(gomock.Any(), "env-brand").Return([]byte("%PDF-1.7"), nil).Times(1)
	ctx := context.Background()

	require.Equal(t, outcome.KindApplied, f.service.HandleEvent(ctx, f.event("env-talent", signature.StatusSigned)).Kind)
	require.Equal(t, contract.StatusPartiallySigned, f.currentContract(t).Status)

	const deliveries = 10
	var wg sync.WaitGroup
	kinds := make([]outcome.Kind, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kinds[i] = f.service.HandleEvent(ctx, f.event("env-brand", signature.StatusSigned)).Kind
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, k := range kinds {
		if k == outcome.KindApplied {
			applied++
		} else {
			assert.Equal(t, outcome.KindDuplicate, k)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, contract.StatusFullySigned, f.currentContract(t).Status)
	assert.Equal(t, 1, f.documents.calls)
	assert.Len(t, f.signEntries(), 2)
}

func TestService_HandleEvent_Ignored(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-talent", contract.SignerTalent)
	ctx := context.Background()
	before := len(f.store.Audit().All())

	out := f.service.HandleEvent(ctx, f.event("env-nobody", signature.StatusSigned))
	assert.Equal(t, outcome.KindIgnored, out.Kind)
	assert.Equal(t, string(signature.MissUnknownEnvelope), out.Reason)

	out = f.service.HandleEvent(ctx, signature.Event{Provider: "docusign", Status: signature.StatusSigned})
	assert.Equal(t, outcome.KindIgnored, out.Kind)

	assert.Len(t, f.store.Audit().All(), before)
}

func TestService_HandleEvent_NoRegression(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-all", contract.SignerAll)
	f.provider.EXPECT().GetSignedDocument(gomock.Any(), "env-all").Return([]byte("%PDF-1.7"), nil)
	ctx := context.Background()

	require.Equal(t, outcome.KindApplied, f.service.HandleEvent(ctx, f.event("env-all", signature.StatusSigned)).Kind)

	for _, status := range []signature.Status{signature.StatusSent, signature.StatusDeclined, signature.StatusVoided} {
		out := f.service.HandleEvent(ctx, f.event("env-all", status))
		assert.Equal(t, outcome.KindIgnored, out.Kind, status)
		assert.Equal(t, string(signature.MissStale), out.Reason)
	}
	req, err := f.store.Signatures().GetByEnvelopeID(ctx, "env-all")
	require.NoError(t, err)
	assert.Equal(t, signature.StatusSigned, req.Status)
	assert.Equal(t, contract.StatusFullySigned, f.currentContract(t).Status)
}

func TestService_HandleEvent_Declined(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-brand", contract.SignerBrand)
	ctx := context.Background()
	before := len(f.store.Audit().All())

	out := f.service.HandleEvent(ctx, f.event("env-brand", signature.StatusDeclined))
	assert.Equal(t, outcome.KindApplied, out.Kind)

	req, err := f.store.Signatures().GetByEnvelopeID(ctx, "env-brand")
	require.NoError(t, err)
	assert.Equal(t, signature.StatusDeclined, req.Status)
	assert.Equal(t, contract.StatusSent, f.currentContract(t).Status)

	logs := f.store.Audit().All()
	require.Len(t, logs, before+1)
	assert.Equal(t, audit.ActionStatusChange, logs[len(logs)-1].Action)
}

func TestService_HandleEvent_ArtifactFailure(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "env-all", contract.SignerAll)
		f.provider.EXPECT().GetSignedDocument(gomock.Any(), "env-all").Return(nil, errors.New("provider timeout"))

		out := f.service.HandleEvent(context.Background(), f.event("env-all", signature.StatusSigned))
		assert.Equal(t, outcome.KindRecoverable, out.Kind)
		c := f.currentContract(t)
		assert.Equal(t, contract.StatusFullySigned, c.Status)
		assert.Nil(t, c.SignedPdfURL)
		assert.Equal(t, deal.StageContractSigned, f.currentDeal(t).Stage)
		assert.Empty(t, f.alerts.raised)
	})

	t.Run("store", func(t *testing.T) {
		f := newFixture(t)
		f.documents.err = errors.New("bucket missing")
		f.register(t, "env-all", contract.SignerAll)
		f.provider.EXPECT().GetSignedDocument(gomock.Any(), "env-all").Return([]byte("%PDF-1.7"), nil)

		out := f.service.HandleEvent(context.Background(), f.event("env-all", signature.StatusSigned))
		assert.Equal(t, outcome.KindRecoverable, out.Kind)
		assert.Equal(t, contract.StatusFullySigned, f.currentContract(t).Status)
	})
}

func TestService_RecordOperatorSignature(t *testing.T) {
	f := newFixture(t)
	f.register(t, "env-all", contract.SignerAll)
	f.provider.EXPECT().GetSignedDocument(gomock.Any(), "env-all").Return(nil, nil)
	ctx := context.Background()

	c, out, err := f.service.RecordOperatorSignature(ctx, f.contract.ContractID, contract.SignerTalent, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, outcome.KindApplied, out.Kind)
	assert.Equal(t, contract.StatusPartiallySigned, c.Status)

	_, out, err = f.service.RecordOperatorSignature(ctx, f.contract.ContractID, contract.SignerTalent, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, outcome.KindDuplicate, out.Kind)

	c, out, err = f.service.RecordOperatorSignature(ctx, f.contract.ContractID, contract.SignerBrand, "user:bob")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusFullySigned, c.Status)
	assert.Equal(t, outcome.KindRecoverable, out.Kind)
	assert.Equal(t, deal.StageContractSigned, f.currentDeal(t).Stage)

	entries := f.signEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "user:bob", entries[1].Actor)

	_, _, err = f.service.RecordOperatorSignature(ctx, uuid.New(), contract.SignerBrand, "user:bob")
	assert.ErrorIs(t, err, contract.ErrNotFound)
}

func TestService_HandleEvent_FatalRaisesDetachedAlert(t *testing.T) {
	f := newFixture(t)
	sigRepo := sigMocks.NewMockRepository(gomock.NewController(t))
	sigRepo.EXPECT().ApplyStatus(gomock.Any(), "env-gone", signature.StatusSigned, gomock.Any()).
		Return(nil, context.Canceled)
	svc := NewService(sigRepo, f.store.Contracts(), f.store.Deals(), f.store,
		signature.NewRegistry("docusign", f.provider), f.documents, f.alerts,
		appAudit.NewService(f.store.Audit(), zerolog.Nop(), nil), nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(appAudit.WithOrigin(context.Background(), appAudit.Origin{TraceID: "req-disconnect"}))
	cancel()

	out := svc.HandleEvent(ctx, f.event("env-gone", signature.StatusSigned))
	assert.Equal(t, outcome.KindFatal, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)

	require.Len(t, f.alerts.raised, 1)
	assert.Equal(t, alert.KindWebhookProcessingFailed, f.alerts.raised[0].Kind)
	assert.Equal(t, "env-gone", f.alerts.raised[0].EntityID)
	assert.NoError(t, f.alerts.ctxErrs[0])
	assert.Equal(t, "req-disconnect", f.alerts.traces[0])
}
