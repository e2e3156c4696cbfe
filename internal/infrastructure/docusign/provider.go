// Package docusign adapts DocuSign Connect webhooks and the eSignature REST
// API to signature.Provider.
package docusign

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dealdesk/dealdesk/internal/domain/signature"
)

const Name = "docusign"

// maxDocumentSize bounds a downloaded signed document.
const maxDocumentSize = 50 << 20

var statusMap = map[string]signature.Status{
	"sent":      signature.StatusSent,
	"delivered": signature.StatusSent,
	"signed":    signature.StatusSigned,
	"completed": signature.StatusSigned,
	"declined":  signature.StatusDeclined,
	"voided":    signature.StatusVoided,
}

// MapStatus converts a DocuSign envelope status or Connect event name.
// Unknown values pass through lower-cased.
func MapStatus(raw string) signature.Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "envelope-")
	if mapped, ok := statusMap[s]; ok {
		return mapped
	}
	return signature.NormalizeStatus(s)
}

// Provider implements signature.Provider for DocuSign.
type Provider struct {
	baseURL   string
	accountID string
	tokens    TokenSource
	client    *http.Client
	maxDoc    int64
}

// New creates a provider. baseURL is the REST base, e.g.
// https://demo.docusign.net/restapi.
func New(baseURL, accountID string, tokens TokenSource, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accountID: accountID,
		tokens:    tokens,
		client:    client,
		maxDoc:    maxDocumentSize,
	}
}

func (p *Provider) Name() string { return Name }

type connectPayload struct {
	Event      string `json:"event"`
	Status     string `json:"status"`
	EnvelopeID string `json:"envelopeId"`
	Data       *struct {
		EnvelopeID      string `json:"envelopeId"`
		EnvelopeSummary *struct {
			Status string `json:"status"`
		} `json:"envelopeSummary"`
	} `json:"data"`
}

// ParseWebhook reads a Connect JSON notification. The envelope summary
// status wins over the event name, which wins over a top-level status.
func (p *Provider) ParseWebhook(_ http.Header, body []byte) (signature.Event, error) {
	var payload connectPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return signature.Event{}, fmt.Errorf("%w: %v", signature.ErrInvalidPayload, err)
	}

	envelopeID := payload.EnvelopeID
	raw := ""
	if payload.Data != nil {
		if payload.Data.EnvelopeID != "" {
			envelopeID = payload.Data.EnvelopeID
		}
		if payload.Data.EnvelopeSummary != nil {
			raw = payload.Data.EnvelopeSummary.Status
		}
	}
	if raw == "" {
		raw = payload.Event
	}
	if raw == "" {
		raw = payload.Status
	}

	ev := signature.Event{
		Provider:   Name,
		EnvelopeID: strings.TrimSpace(envelopeID),
		Status:     MapStatus(raw),
		RawStatus:  raw,
	}
	return ev, ev.Validate()
}

// GetSignedDocument downloads the combined PDF of a completed envelope. A 404
// yields nil, nil.
func (p *Provider) GetSignedDocument(ctx context.Context, envelopeID string) ([]byte, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/v2.1/accounts/%s/envelopes/%s/documents/combined",
		p.baseURL, url.PathEscape(p.accountID), url.PathEscape(envelopeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/pdf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docusign document request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("docusign document request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxDoc+1))
	if err != nil {
		return nil, fmt.Errorf("read docusign document: %w", err)
	}
	if int64(len(data)) > p.maxDoc {
		return nil, fmt.Errorf("%w: envelope %s exceeds %d bytes", signature.ErrDocumentTooLarge, envelopeID, p.maxDoc)
	}
	return data, nil
}
