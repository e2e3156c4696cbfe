package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appAuth "github.com/dealdesk/dealdesk/internal/application/auth"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/infrastructure/memory"
	"github.com/dealdesk/dealdesk/internal/infrastructure/sse"
)

func memoryOpener(t *testing.T, store *memory.Store) (opener, *services) {
	t.Helper()
	logger := zerolog.Nop()
	auditSvc := appAudit.NewService(store.Audit(), logger, nil)
	router, err := appAlert.NewRouter(appAlert.DefaultRules())
	require.NoError(t, err)
	svc := &services{
		auth:   appAuth.NewService(store.Operators(), store.Sessions(), store, auditSvc, 0, logger),
		alerts: appAlert.NewService(store.Alerts(), sse.NewHub(nil), router, store, auditSvc, nil, logger),
	}
	return opener{
		services: func(context.Context) (*services, func(), error) { return svc, func() {}, nil },
		migrate:  func(context.Context) ([]string, error) { return []string{"001_init.sql"}, nil },
	}, svc
}

func run(t *testing.T, open opener, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	open, _ := memoryOpener(t, memory.NewStore())
	out, err := run(t, open, "", "migrate")
	require.NoError(t, err)
	assert.Equal(t, "applied 001_init.sql\n", out)
}

func TestOperatorCreate(t *testing.T) {
	t.Setenv("DEALCTL_PASSWORD", "")
	store := memory.NewStore()
	open, _ := memoryOpener(t, store)

	out, err := run(t, open, "Sup3r-Secret!pass\n", "operator", "create", "--username", "Root.Admin", "--groups", "finance,ops")
	require.NoError(t, err)
	assert.Contains(t, out, "created ADMIN operator root.admin")

	o, err := store.Operators().GetByUsername(context.Background(), "root.admin")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, []string{"finance", "ops"}, o.Groups)

	_, err = run(t, open, "", "operator", "create", "--username", "someone")
	assert.ErrorContains(t, err, "password required")

	_, err = run(t, open, "Sup3r-Secret!pass\n", "operator", "create", "--username", "root.admin")
	assert.Error(t, err)
}

func TestAlertsListAndAck(t *testing.T) {
	store := memory.NewStore()
	open, svc := memoryOpener(t, store)

	a, err := svc.alerts.Raise(context.Background(), appAlert.Input{
		Kind:       alert.KindInvoiceIssuanceFailed,
		Title:      "Invoice issuance failed",
		Message:    "db down",
		EntityType: "DEAL",
		EntityID:   "deal-1",
	})
	require.NoError(t, err)

	out, err := run(t, open, "", "alerts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, a.AlertID.String())
	assert.Contains(t, out, "finance")

	out, err = run(t, open, "", "alerts", "ack", a.AlertID.String(), "--actor", "user:ops")
	require.NoError(t, err)
	assert.Contains(t, out, "acknowledged "+a.AlertID.String())

	out, err = run(t, open, "", "alerts", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, a.AlertID.String())

	out, err = run(t, open, "", "alerts", "list", "--status", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "ACKNOWLEDGED")

	_, err = run(t, open, "", "alerts", "ack", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid alert id")
}
