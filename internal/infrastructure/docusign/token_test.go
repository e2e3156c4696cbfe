package docusign

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, key *rsa.PrivateKey, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !assert.NoError(t, r.ParseForm()) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, jwtGrantType, r.PostForm.Get("grant_type"))

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(r.PostForm.Get("assertion"), claims, func(tok *jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		assert.Equal(t, "integration-key", claims["iss"])
		assert.Equal(t, "user-guid", claims["sub"])
		assert.Equal(t, assertionScope, claims["scope"])
		assert.Equal(t, r.Host, claims["aud"])

		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-" + time.Now().Format("150405.000000"), TokenType: "Bearer", ExpiresIn: 3600})
	}))
}

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func TestJWTTokenSource_CachesAndCollapses(t *testing.T) {
	key, pemKey := testKey(t)
	var calls atomic.Int32
	srv := newTokenServer(t, key, &calls)
	defer srv.Close()

	src, err := NewJWTTokenSource("integration-key", "user-guid", srv.URL, pemKey, srv.Client())
	require.NoError(t, err)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := src.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestJWTTokenSource_RefreshesNearExpiry(t *testing.T) {
	key, pemKey := testKey(t)
	var calls atomic.Int32
	srv := newTokenServer(t, key, &calls)
	defer srv.Close()

	src, err := NewJWTTokenSource("integration-key", "user-guid", srv.URL, pemKey, srv.Client())
	require.NoError(t, err)
	now := time.Now()
	src.now = func() time.Time { return now }

	_, err = src.Token(context.Background())
	require.NoError(t, err)
	now = now.Add(50 * time.Minute)
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(6 * time.Minute)
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestJWTTokenSource_Errors(t *testing.T) {
	_, err := NewJWTTokenSource("ik", "u", "account-d.docusign.com", []byte("not a key"), nil)
	assert.Error(t, err)

	_, pemKey := testKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"consent_required"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	src, err := NewJWTTokenSource("ik", "u", srv.URL, pemKey, srv.Client())
	require.NoError(t, err)
	_, err = src.Token(context.Background())
	assert.ErrorContains(t, err, "consent_required")
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}
