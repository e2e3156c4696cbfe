// Package webhook authenticates signature provider callbacks.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Provider-Signature"
	HeaderTimestamp = "X-Provider-Timestamp"
)

// ErrUnauthorized is returned for a missing, malformed or mismatched signature.
var ErrUnauthorized = errors.New("webhook signature verification failed")

// SecretStore resolves the signing secret of a provider.
type SecretStore interface {
	SecretFor(ctx context.Context, provider string) ([]byte, bool)
}

// Authenticator checks the HMAC on a webhook before anything else touches it.
type Authenticator struct {
	secrets   SecretStore
	tolerance time.Duration
	now       func() time.Time
}

// NewAuthenticator creates an authenticator. A zero tolerance disables the
// timestamp age check.
func NewAuthenticator(secrets SecretStore, tolerance time.Duration) *Authenticator {
	return &Authenticator{
		secrets:   secrets,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify accepts the request when no secret is configured for provider.
// Otherwise the signature header must equal
// base64(HMAC-SHA256(secret, timestamp + body)).
func (a *Authenticator) Verify(ctx context.Context, provider string, headers http.Header, body []byte) error {
	secret, ok := a.secrets.SecretFor(ctx, provider)
	if !ok {
		return nil
	}

	sig := strings.TrimSpace(headers.Get(HeaderSignature))
	ts := strings.TrimSpace(headers.Get(HeaderTimestamp))
	if sig == "" {
		return ErrUnauthorized
	}
	got, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return ErrUnauthorized
	}
	if !hmac.Equal(got, mac(secret, ts, body)) {
		return ErrUnauthorized
	}

	if a.tolerance > 0 {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return ErrUnauthorized
		}
		age := a.now().Sub(time.Unix(sec, 0))
		if age < 0 {
			age = -age
		}
		if age > a.tolerance {
			return ErrUnauthorized
		}
	}
	return nil
}

// Sign computes the signature header value for a payload.
func Sign(secret []byte, timestamp string, body []byte) string {
	return base64.StdEncoding.EncodeToString(mac(secret, timestamp, body))
}

func mac(secret []byte, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write(body)
	return h.Sum(nil)
}
