package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/dealdesk/internal/config"
)

type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	bucket, object, _ := strings.Cut(key, "/")
	switch {
	case r.Method == http.MethodHead && object == "":
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && object == "":
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, fake *fakeS3, publicURL string) (*MinioStore, string) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	s, err := NewMinioStore(config.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "access",
		SecretKey: "secret-key",
		Bucket:    "docs",
		Region:    "us-east-1",
		PublicURL: publicURL,
	}, zerolog.Nop())
	require.NoError(t, err)
	return s, endpoint
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		folder, owner, file string
		want                string
	}{
		{"signed-contracts", "deal-1", "env-1-signed.pdf", "signed-contracts/deal-1/env-1-signed.pdf"},
		{"/signed-contracts/", "", "a.pdf", "signed-contracts/a.pdf"},
		{"", "", "../../etc/passwd", "passwd"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectName(tt.folder, tt.owner, tt.file))
	}
}

func TestMinioStore_PublicURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.MinioConfig
		expected string
	}{
		{
			name:     "http url",
			cfg:      config.MinioConfig{Endpoint: "localhost:9000", Bucket: "docs"},
			expected: "http://localhost:9000/docs/a/b.pdf",
		},
		{
			name:     "https url",
			cfg:      config.MinioConfig{Endpoint: "minio.example.com", Bucket: "docs", UseSSL: true},
			expected: "https://minio.example.com/docs/a/b.pdf",
		},
		{
			name:     "public override",
			cfg:      config.MinioConfig{Endpoint: "minio:9000", Bucket: "docs", PublicURL: "https://files.example.com/"},
			expected: "https://files.example.com/docs/a/b.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &MinioStore{bucket: tt.cfg.Bucket, cfg: tt.cfg}
			assert.Equal(t, tt.expected, s.PublicURL("a/b.pdf"))
		})
	}
}

func TestMinioStore_EnsureBucketAndStore(t *testing.T) {
	fake := newFakeS3()
	s, endpoint := newTestStore(t, fake, "")
	ctx := context.Background()

	require.NoError(t, s.EnsureBucket(ctx))
	assert.True(t, fake.buckets["docs"])
	require.NoError(t, s.EnsureBucket(ctx))

	url, err := s.Store(ctx, []byte("%PDF-1.7"), "env-1-signed.pdf", "application/pdf", "signed-contracts", "deal-1")
	require.NoError(t, err)
	assert.Equal(t, "http://"+endpoint+"/docs/signed-contracts/deal-1/env-1-signed.pdf", url)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Contains(t, fake.objects, "docs/signed-contracts/deal-1/env-1-signed.pdf")
	assert.Contains(t, string(fake.objects["docs/signed-contracts/deal-1/env-1-signed.pdf"]), "%PDF-1.7")
	assert.Equal(t, "application/pdf", fake.types["docs/signed-contracts/deal-1/env-1-signed.pdf"])
}

func TestMinioStore_StoreRejectsEmpty(t *testing.T) {
	s, _ := newTestStore(t, newFakeS3(), "")
	_, err := s.Store(context.Background(), nil, "x.pdf", "application/pdf", "f", "o")
	assert.Error(t, err)
}
