package signature

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_provider.go -package=mocks . Provider

// Provider adapts one e-signature vendor.
type Provider interface {
	Name() string
	ParseWebhook(headers http.Header, body []byte) (Event, error)
	// GetSignedDocument returns nil, nil when the provider has no document.
	GetSignedDocument(ctx context.Context, envelopeID string) ([]byte, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

func NewRegistry(defaultName string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers)), defaultName: strings.ToLower(defaultName)}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

// Get returns the named provider, or the default when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Default() string {
	return r.defaultName
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
