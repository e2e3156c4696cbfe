package docusign

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

func TestProvider_ParseWebhook(t *testing.T) {
	p := New("https://demo.docusign.net/restapi", "acct", StaticToken("t"), nil)

	tests := []struct {
		name       string
		body       string
		envelopeID string
		status     signature.Status
		wantErr    error
	}{
		{
			name:       "envelope summary wins",
			body:       `{"event":"recipient-completed","data":{"envelopeId":"env-1","envelopeSummary":{"status":"delivered"}}}`,
			envelopeID: "env-1",
			status:     signature.StatusSent,
		},
		{
			name:       "completed event",
			body:       `{"event":"envelope-completed","data":{"envelopeId":"env-2"}}`,
			envelopeID: "env-2",
			status:     signature.StatusSigned,
		},
		{
			name:       "top-level fallbacks",
			body:       `{"envelopeId":"env-3","status":"Declined"}`,
			envelopeID: "env-3",
			status:     signature.StatusDeclined,
		},
		{
			name:       "voided",
			body:       `{"event":"envelope-voided","data":{"envelopeId":"env-4"}}`,
			envelopeID: "env-4",
			status:     signature.StatusVoided,
		},
		{
			name:       "unknown status passes through",
			body:       `{"event":"envelope-corrected","data":{"envelopeId":"env-5"}}`,
			envelopeID: "env-5",
			status:     signature.Status("corrected"),
		},
		{
			name:    "missing envelope",
			body:    `{"event":"envelope-completed","data":{}}`,
			wantErr: signature.ErrMissingEnvelope,
		},
		{
			name:    "not json",
			body:    `<xml/>`,
			wantErr: signature.ErrInvalidPayload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := p.ParseWebhook(http.Header{}, []byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Name, ev.Provider)
			assert.Equal(t, tt.envelopeID, ev.EnvelopeID)
			assert.Equal(t, tt.status, ev.Status)
		})
	}
}

func TestProvider_GetSignedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer static-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/restapi/v2.1/accounts/acct-1/envelopes/env-ok/documents/combined":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.7 signed"))
		case "/restapi/v2.1/accounts/acct-1/envelopes/env-gone/documents/combined":
			w.WriteHeader(http.StatusNotFound)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := New(srv.URL+"/restapi/", "acct-1", StaticToken("static-token"), srv.Client())
	ctx := context.Background()

	data, err := p.GetSignedDocument(ctx, "env-ok")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 signed", string(data))

	data, err = p.GetSignedDocument(ctx, "env-gone")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = p.GetSignedDocument(ctx, "env-broken")
	assert.ErrorContains(t, err, "status 500")

	_, err = New(srv.URL, "acct-1", StaticToken(""), srv.Client()).GetSignedDocument(ctx, "env-ok")
	assert.Error(t, err)

	small := New(srv.URL+"/restapi/", "acct-1", StaticToken("static-token"), srv.Client())
	small.maxDoc = int64(len("%PDF-1.7 signed"))
	data, err = small.GetSignedDocument(ctx, "env-ok")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 signed", string(data))

	small.maxDoc--
	data, err = small.GetSignedDocument(ctx, "env-ok")
	assert.ErrorIs(t, err, signature.ErrDocumentTooLarge)
	assert.Nil(t, data)
}
