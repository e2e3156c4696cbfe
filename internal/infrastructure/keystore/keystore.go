package keystore

import (
	"context"
	"errors"
	"strings"
)

// StaticSecretStore holds webhook signing secrets per provider.
type StaticSecretStore struct {
	defaultSecret []byte
	perProvider   map[string][]byte
}

// New builds a secret store. perProvider has the form
// "provider:secret,provider2:secret2". Provider names are case-insensitive.
func New(defaultSecret, perProvider string) (*StaticSecretStore, error) {
	s := &StaticSecretStore{perProvider: map[string][]byte{}}
	if defaultSecret != "" {
		s.defaultSecret = []byte(defaultSecret)
	}
	for _, p := range strings.Split(perProvider, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
			return nil, errors.New("invalid WEBHOOK_SECRETS format")
		}
		s.perProvider[strings.ToLower(strings.TrimSpace(parts[0]))] = []byte(parts[1])
	}
	return s, nil
}

// SecretFor returns the provider's secret, falling back to the default. ok
// is false when neither is configured.
func (s *StaticSecretStore) SecretFor(ctx context.Context, provider string) (secret []byte, ok bool) {
	_ = ctx
	if key, found := s.perProvider[strings.ToLower(provider)]; found {
		return key, true
	}
	if len(s.defaultSecret) > 0 {
		return s.defaultSecret, true
	}
	return nil, false
}

// Configured reports whether any secret is set.
func (s *StaticSecretStore) Configured() bool {
	return len(s.defaultSecret) > 0 || len(s.perProvider) > 0
}
