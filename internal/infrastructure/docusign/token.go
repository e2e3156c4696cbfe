package docusign

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	jwtGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// refreshMargin renews a token this long before it expires.
	refreshMargin  = 5 * time.Minute
	assertionTTL   = time.Hour
	assertionScope = "signature impersonation"
)

// TokenSource supplies bearer tokens for the eSignature REST API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed access token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("docusign access token is empty")
	}
	return string(t), nil
}

// JWTTokenSource obtains tokens with the OAuth JWT bearer grant and caches
// them. Concurrent refreshes share one request.
type JWTTokenSource struct {
	integrationKey string
	userID         string
	authServer     string
	key            *rsa.PrivateKey
	client         *http.Client
	now            func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewJWTTokenSource parses pemKey, an RSA private key in PEM form. authServer
// is a host such as account-d.docusign.com or a full base URL.
func NewJWTTokenSource(integrationKey, userID, authServer string, pemKey []byte, client *http.Client) (*JWTTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse docusign private key: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &JWTTokenSource{
		integrationKey: integrationKey,
		userID:         userID,
		authServer:     authServer,
		key:            key,
		client:         client,
		now:            time.Now,
	}, nil
}

func (s *JWTTokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}
	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *JWTTokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Add(refreshMargin).Before(s.expiry) {
		return s.token, true
	}
	return "", false
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *JWTTokenSource) refresh(ctx context.Context) (string, error) {
	base, audience := s.endpoint()
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.integrationKey,
		"sub":   s.userID,
		"aud":   audience,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"scope": assertionScope,
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign docusign assertion: %w", err)
	}

	form := url.Values{"grant_type": {jwtGrantType}, "assertion": {assertion}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("docusign token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("docusign token request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode docusign token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("docusign token response has no access_token")
	}

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	s.mu.Unlock()
	return tr.AccessToken, nil
}

// endpoint returns the token base URL and the assertion audience (the host).
func (s *JWTTokenSource) endpoint() (base, audience string) {
	base = strings.TrimRight(s.authServer, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if u, err := url.Parse(base); err == nil {
		audience = u.Host
	}
	return base, audience
}
