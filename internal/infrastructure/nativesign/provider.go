// Package nativesign is a plain JSON signature provider for internal senders.
package nativesign

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

const Name = "native"

// envelopePlaceholder is replaced with the escaped envelope id in the
// document URL template.
const envelopePlaceholder = "{envelopeId}"

const maxDocumentSize = 50 << 20

type payload struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

// Provider accepts {"envelopeId","status"} bodies and fetches signed
// documents from documentURL, a template such as
// https://sign.internal/envelopes/{envelopeId}/document.
type Provider struct {
	documentURL string
	client      *http.Client
	maxDoc      int64
}

func New(documentURL string, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{documentURL: documentURL, client: client, maxDoc: maxDocumentSize}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) ParseWebhook(_ http.Header, body []byte) (signature.Event, error) {
	var pl payload
	if err := json.Unmarshal(body, &pl); err != nil {
		return signature.Event{}, fmt.Errorf("%w: %v", signature.ErrInvalidPayload, err)
	}
	ev := signature.Event{
		Provider:   Name,
		EnvelopeID: strings.TrimSpace(pl.EnvelopeID),
		Status:     signature.NormalizeStatus(pl.Status),
		RawStatus:  pl.Status,
	}
	return ev, ev.Validate()
}

// GetSignedDocument returns nil, nil when no template is configured or the
// document does not exist.
func (p *Provider) GetSignedDocument(ctx context.Context, envelopeID string) ([]byte, error) {
	if p.documentURL == "" {
		return nil, nil
	}
	endpoint := strings.ReplaceAll(p.documentURL, envelopePlaceholder, url.PathEscape(envelopeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("native document request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("native document request: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxDoc+1))
	if err != nil {
		return nil, fmt.Errorf("read native document: %w", err)
	}
	if int64(len(data)) > p.maxDoc {
		return nil, fmt.Errorf("%w: envelope %s exceeds %d bytes", signature.ErrDocumentTooLarge, envelopeID, p.maxDoc)
	}
	return data, nil
}
