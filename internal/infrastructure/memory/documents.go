package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dealdesk/dealdesk/internal/infrastructure/storage"
)

// DocumentStore keeps documents in memory for local runs without MinIO.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string][]byte)}
}

func (d *DocumentStore) Store(_ context.Context, data []byte, filename, _, folder, ownerID string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to store empty document %q", filename)
	}
	key := storage.ObjectName(folder, ownerID, filename)
	d.mu.Lock()
	d.docs[key] = append([]byte(nil), data...)
	d.mu.Unlock()
	return "memory://" + key, nil
}

// Get returns a stored document by the key in its URL.
func (d *DocumentStore) Get(key string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.docs[key]
	return data, ok
}
