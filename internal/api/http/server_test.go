package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appAuth "github.com/dealdesk/dealdesk/internal/application/auth"
	appDeal "github.com/dealdesk/dealdesk/internal/application/deal"
	appInvoice "github.com/dealdesk/dealdesk/internal/application/invoice"
	appSigning "github.com/dealdesk/dealdesk/internal/application/signing"
	appWebhook "github.com/dealdesk/dealdesk/internal/application/webhook"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
	"github.com/dealdesk/dealdesk/internal/infrastructure/keystore"
	"github.com/dealdesk/dealdesk/internal/infrastructure/memory"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
	"github.com/dealdesk/dealdesk/internal/infrastructure/nativesign"
	"github.com/dealdesk/dealdesk/internal/infrastructure/sse"
)

const (
	webhookSecret = "whsec-test"
	testPassword  = "Sup3r-Secret!pass"
)

type testEnv struct {
	store  *memory.Store
	router http.Handler
	tokens map[operator.Role]string
}

func newTestEnv(t *testing.T, tweaks ...func(*Options)) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	auditSvc := appAudit.NewService(store.Audit(), logger, []byte("0123456789abcdef0123456789abcdef"))
	rules, err := appAlert.NewRouter(appAlert.DefaultRules())
	require.NoError(t, err)
	alertSvc := appAlert.NewService(store.Alerts(), sse.NewHub(m), rules, store, auditSvc, m, logger)
	invoiceSvc := appInvoice.NewService(store.Invoices(), store.Deals(), store, auditSvc, m, logger)
	dealSvc := appDeal.NewService(store.Deals(), store, invoiceSvc, alertSvc, auditSvc, m, logger)
	providers := signature.NewRegistry(nativesign.Name, nativesign.New("", nil))
	signingSvc := appSigning.NewService(store.Signatures(), store.Contracts(), store.Deals(), store,
		providers, memory.NewDocumentStore(), alertSvc, auditSvc, m, logger)
	authSvc := appAuth.NewService(store.Operators(), store.Sessions(), store, auditSvc, time.Hour, logger)
	secrets, err := keystore.New(webhookSecret, "")
	require.NoError(t, err)

	opts := Options{
		SessionCookieName: "dealdesk_session",
		CORSOrigins:       []string{"https://desk.example.test"},
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	srv := NewServer(dealSvc, signingSvc, invoiceSvc, alertSvc, auditSvc, authSvc,
		appWebhook.NewAuthenticator(secrets, 0), providers, logger, opts)
	env := &testEnv{store: store, router: srv.Router(), tokens: map[operator.Role]string{}}

	for _, role := range []operator.Role{operator.RoleAdmin, operator.RoleOperator, operator.RoleViewer} {
		username := "op-" + string(role)
		_, err := authSvc.CreateOperator(context.Background(), username, testPassword, role, []string{"finance"}, "system:test")
		require.NoError(t, err)
		var res loginResponse
		env.doJSON(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Username: username, Password: testPassword}, http.StatusOK, &res)
		env.tokens[role] = res.SessionToken
	}
	return env
}

// domainAudit skips operator entries, which login writes asynchronously.
func (e *testEnv) domainAudit() []*audit.AuditLog {
	var out []*audit.AuditLog
	for _, l := range e.store.Audit().All() {
		if l.EntityType != audit.EntityTypeOperator {
			out = append(out, l)
		}
	}
	return out
}

func (e *testEnv) do(method, path, token string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, in interface{}, wantStatus int, out interface{}) {
	t.Helper()
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		require.NoError(t, err)
	}
	rec := e.do(method, path, token, body, http.Header{"Content-Type": {"application/json"}})
	require.Equal(t, wantStatus, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (e *testEnv) webhook(body []byte, secret string) *httptest.ResponseRecorder {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	header := http.Header{}
	header.Set(appWebhook.HeaderTimestamp, ts)
	header.Set(appWebhook.HeaderSignature, appWebhook.Sign([]byte(secret), ts, body))
	return e.do(http.MethodPost, "/webhooks/signature/native", "", body, header)
}

// dealWithEnvelope creates a deal, a contract and one signature request.
func (e *testEnv) dealWithEnvelope(t *testing.T, envelopeID string) (dealID, contractID string) {
	t.Helper()
	admin := e.tokens[operator.RoleAdmin]
	var d struct {
		DealID string `json:"dealId"`
	}
	e.doJSON(t, http.MethodPost, "/v1/deals", admin, map[string]interface{}{"title": "Spring campaign", "value": "2500.00", "currency": "GBP"}, http.StatusCreated, &d)
	var c struct {
		ContractID string `json:"contractId"`
	}
	e.doJSON(t, http.MethodPost, "/v1/deals/"+d.DealID+"/contracts", admin, contractCreateRequest{Title: "Talent agreement"}, http.StatusCreated, &c)
	e.doJSON(t, http.MethodPost, "/v1/contracts/"+c.ContractID+"/signature-requests", admin,
		signatureRequestCreate{EnvelopeID: envelopeID, SignerRole: "all"}, http.StatusCreated, nil)
	return d.DealID, c.ContractID
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"native"`)

	env.webhook([]byte(`{"envelopeId":"nope","status":"signed"}`), webhookSecret)
	rec = env.do(http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dealdesk_webhook_events_total{outcome="ignored",provider="native"} 1`)
}

func TestWebhook_AuthFailureMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.dealWithEnvelope(t, "env-auth")
	auditBefore := len(env.domainAudit())

	body := []byte(`{"envelopeId":"env-auth","status":"signed"}`)
	rec := env.webhook(body, "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/signature", "", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req, err := env.store.Signatures().GetByEnvelopeID(context.Background(), "env-auth")
	require.NoError(t, err)
	assert.Equal(t, signature.StatusSent, req.Status)
	assert.Len(t, env.domainAudit(), auditBefore)
}

func TestWebhook_AppliesAndStaysIdempotent(t *testing.T) {
	env := newTestEnv(t)
	dealID, contractID := env.dealWithEnvelope(t, "env-ok")
	body := []byte(`{"envelopeId":"env-ok","status":"signed"}`)

	for i := 0; i < 3; i++ {
		rec := env.webhook(body, webhookSecret)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	}

	var view struct {
		Status            string `json:"status"`
		SignatureRequests []struct {
			Status string `json:"status"`
		} `json:"signatureRequests"`
	}
	env.doJSON(t, http.MethodGet, "/v1/contracts/"+contractID, env.tokens[operator.RoleViewer], nil, http.StatusOK, &view)
	require.Len(t, view.SignatureRequests, 1)
	assert.Equal(t, "signed", view.SignatureRequests[0].Status)

	var d struct {
		Stage string `json:"stage"`
	}
	env.doJSON(t, http.MethodGet, "/v1/deals/"+dealID, env.tokens[operator.RoleViewer], nil, http.StatusOK, &d)
	assert.Equal(t, "CONTRACT_SIGNED", d.Stage)
}

func TestWebhook_IgnoredEventsStill200(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{
		`{"envelopeId":"unknown","status":"signed"}`,
		`{"status":"signed"}`,
		`not json`,
	} {
		rec := env.webhook([]byte(body), webhookSecret)
		assert.Equal(t, http.StatusOK, rec.Code, body)
	}
	assert.Empty(t, env.domainAudit())
}

func TestWebhook_LargePayloadApplies(t *testing.T) {
	env := newTestEnv(t)
	_, contractID := env.dealWithEnvelope(t, "env-big")
	pdf := strings.Repeat("JVBERi0xLjQK", (2<<20)/12)
	body := []byte(`{"envelopeId":"env-big","status":"signed","documentPdfBase64":"` + pdf + `"}`)
	require.Greater(t, len(body), 1<<20)

	rec := env.webhook(body, webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view struct {
		Status string `json:"status"`
	}
	env.doJSON(t, http.MethodGet, "/v1/contracts/"+contractID, env.tokens[operator.RoleViewer], nil, http.StatusOK, &view)
	assert.Equal(t, "fully_signed", view.Status)
}

func TestWebhook_OversizedBodyAcknowledged(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MaxWebhookBody = 1 << 10 })
	env.dealWithEnvelope(t, "env-huge")
	auditBefore := len(env.domainAudit())
	body := []byte(`{"envelopeId":"env-huge","status":"signed","pad":"` + strings.Repeat("x", 2<<10) + `"}`)

	rec := env.webhook(body, webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	req, err := env.store.Signatures().GetByEnvelopeID(context.Background(), "env-huge")
	require.NoError(t, err)
	assert.Equal(t, signature.StatusSent, req.Status)
	assert.Len(t, env.domainAudit(), auditBefore)
}

func TestStageTransition_LowercaseStage(t *testing.T) {
	env := newTestEnv(t)
	dealID, _ := env.dealWithEnvelope(t, "env-lower")

	var res struct {
		Stage string `json:"stage"`
	}
	env.doJSON(t, http.MethodPost, "/v1/deals/"+dealID+"/stage", env.tokens[operator.RoleOperator], stageRequest{Stage: " negotiation "}, http.StatusOK, nil)
	env.doJSON(t, http.MethodGet, "/v1/deals/"+dealID, env.tokens[operator.RoleViewer], nil, http.StatusOK, &res)
	assert.Equal(t, "NEGOTIATION", res.Stage)

	var list struct {
		Deals []struct {
			DealID string `json:"dealId"`
		} `json:"deals"`
	}
	env.doJSON(t, http.MethodGet, "/v1/deals?stage=negotiation", env.tokens[operator.RoleViewer], nil, http.StatusOK, &list)
	require.Len(t, list.Deals, 1)
	assert.Equal(t, dealID, list.Deals[0].DealID)
}

func TestAudit_CarriesRequestOrigin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.tokens[operator.RoleAdmin]

	var me struct {
		SessionID string `json:"sessionId"`
	}
	env.doJSON(t, http.MethodGet, "/v1/auth/me", admin, nil, http.StatusOK, &me)
	require.NotEmpty(t, me.SessionID)

	header := http.Header{"Content-Type": {"application/json"}, "X-Request-Id": {"req-create-1"}}
	rec := env.do(http.MethodPost, "/v1/deals", admin, []byte(`{"title":"Autumn launch","value":"900.00","currency":"GBP"}`), header)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d struct {
		DealID string `json:"dealId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))

	header.Set("X-Request-Id", "req-complete-1")
	rec = env.do(http.MethodPost, "/v1/deals/"+d.DealID+"/stage", admin, []byte(`{"stage":"COMPLETED"}`), header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	byAction := map[audit.Action]*audit.AuditLog{}
	for _, l := range env.domainAudit() {
		byAction[l.Action] = l
	}
	for action, trace := range map[audit.Action]string{
		audit.ActionCreate:      "req-create-1",
		audit.ActionStageChange: "req-complete-1",
		audit.ActionIssue:       "req-complete-1",
	} {
		l := byAction[action]
		require.NotNil(t, l, action)
		assert.Equal(t, trace, l.TraceID, action)
		assert.Equal(t, me.SessionID, l.SessionID, action)
		assert.Equal(t, []string{"ADMIN"}, l.ActorRoles, action)
	}
	assert.Equal(t, audit.EntityTypeInvoice, byAction[audit.ActionIssue].EntityType)

	var res struct {
		Logs []struct {
			Action string `json:"action"`
		} `json:"logs"`
	}
	env.doJSON(t, http.MethodGet, "/v1/admin/audit?traceId=req-complete-1", admin, nil, http.StatusOK, &res)
	assert.Len(t, res.Logs, 2)
}

func TestStageTransition_RolesAndInvoice(t *testing.T) {
	env := newTestEnv(t)
	dealID, _ := env.dealWithEnvelope(t, "env-stage")
	path := "/v1/deals/" + dealID + "/stage"

	env.doJSON(t, http.MethodPost, path, env.tokens[operator.RoleViewer], stageRequest{Stage: "COMPLETED"}, http.StatusForbidden, nil)
	env.doJSON(t, http.MethodPost, path, "", stageRequest{Stage: "COMPLETED"}, http.StatusUnauthorized, nil)
	env.doJSON(t, http.MethodPost, path, env.tokens[operator.RoleOperator], stageRequest{Stage: "DONE"}, http.StatusBadRequest, nil)

	var res struct {
		Outcome       string `json:"outcome"`
		PreviousStage string `json:"previousStage"`
		Invoice       struct {
			InvoiceID     string `json:"invoiceId"`
			InvoiceNumber string `json:"invoiceNumber"`
		} `json:"invoice"`
	}
	env.doJSON(t, http.MethodPost, path, env.tokens[operator.RoleOperator], stageRequest{Stage: "COMPLETED"}, http.StatusOK, &res)
	assert.Equal(t, "applied", res.Outcome)
	assert.Equal(t, "NEW_LEAD", res.PreviousStage)
	require.NotEmpty(t, res.Invoice.InvoiceID)

	var inv struct {
		InvoiceID string `json:"invoiceId"`
		Amount    string `json:"amount"`
	}
	env.doJSON(t, http.MethodGet, "/v1/deals/"+dealID+"/invoice", env.tokens[operator.RoleViewer], nil, http.StatusOK, &inv)
	assert.Equal(t, res.Invoice.InvoiceID, inv.InvoiceID)

	env.doJSON(t, http.MethodPost, "/v1/invoices/"+inv.InvoiceID+"/void", env.tokens[operator.RoleViewer], voidRequest{Reason: "typo"}, http.StatusForbidden, nil)
	env.doJSON(t, http.MethodPost, "/v1/invoices/"+inv.InvoiceID+"/void", env.tokens[operator.RoleAdmin], voidRequest{Reason: "typo"}, http.StatusOK, nil)
	env.doJSON(t, http.MethodPost, "/v1/invoices/"+inv.InvoiceID+"/void", env.tokens[operator.RoleAdmin], voidRequest{Reason: "typo"}, http.StatusConflict, nil)
	env.doJSON(t, http.MethodGet, "/v1/deals/"+dealID+"/invoice", env.tokens[operator.RoleViewer], nil, http.StatusNotFound, nil)
}

func TestAdminAudit(t *testing.T) {
	env := newTestEnv(t)
	dealID, _ := env.dealWithEnvelope(t, "env-audit")

	env.doJSON(t, http.MethodGet, "/v1/admin/audit", env.tokens[operator.RoleOperator], nil, http.StatusForbidden, nil)

	var res struct {
		Logs []struct {
			AuditID string `json:"auditId"`
		} `json:"logs"`
	}
	env.doJSON(t, http.MethodGet, "/v1/admin/audit?entityType=DEAL&entityId="+dealID, env.tokens[operator.RoleAdmin], nil, http.StatusOK, &res)
	require.NotEmpty(t, res.Logs)

	var verify struct {
		Verified bool `json:"verified"`
	}
	env.doJSON(t, http.MethodGet, "/v1/admin/audit/"+res.Logs[0].AuditID+"/verify", env.tokens[operator.RoleAdmin], nil, http.StatusOK, &verify)
	assert.True(t, verify.Verified)

	env.doJSON(t, http.MethodGet, "/v1/admin/audit/00000000-0000-0000-0000-000000000000", env.tokens[operator.RoleAdmin], nil, http.StatusNotFound, nil)
}

func TestAuthMeAndLogout(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokens[operator.RoleOperator]

	var me struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	env.doJSON(t, http.MethodGet, "/v1/auth/me", token, nil, http.StatusOK, &me)
	assert.Equal(t, "op-operator", me.Username)
	assert.Equal(t, "OPERATOR", me.Role)

	env.doJSON(t, http.MethodPost, "/v1/auth/logout", token, nil, http.StatusOK, nil)
	env.doJSON(t, http.MethodGet, "/v1/auth/me", token, nil, http.StatusUnauthorized, nil)

	env.doJSON(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Username: "op-operator", Password: "nope"}, http.StatusUnauthorized, nil)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	header := http.Header{}
	header.Set("Origin", "https://desk.example.test")
	header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := env.do(http.MethodOptions, "/v1/deals", "", nil, header)
	assert.Equal(t, "https://desk.example.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAlertStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/alerts/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.tokens[operator.RoleOperator])
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, len(": connected\n\n"))
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, ": connected\n\n", string(buf))
}
