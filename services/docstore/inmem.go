package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core/application"
)

// InMemStore keeps blobs in memory; tests and dev setups without a disk root.
type InMemStore struct {
	mutex sync.RWMutex
	blobs map[string][]byte
}

var _ application.DocumentStore = (*InMemStore)(nil)

func NewInMemStore() *InMemStore {
	return &InMemStore{blobs: make(map[string][]byte)}
}

func blobKey(appID string, tag application.DocumentTag) string {
	return appID + "/" + string(tag)
}

func (s *InMemStore) Put(_ context.Context, appID string, tag application.DocumentTag, filename, contentType string, size int64, r io.Reader) (application.StoredDocument, error) {
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return application.StoredDocument{}, errors.Wrap(err, "reading document")
	}

	s.mutex.Lock()
	s.blobs[blobKey(appID, tag)] = data
	s.mutex.Unlock()

	return application.StoredDocument{
		ID:  uuid.NewString(),
		URL: fmt.Sprintf("/v1/applications/%s/documents/%s", appID, tag),
	}, nil
}

func (s *InMemStore) Delete(_ context.Context, appID string, tag application.DocumentTag) error {
	s.mutex.Lock()
	delete(s.blobs, blobKey(appID, tag))
	s.mutex.Unlock()
	return nil
}

func (s *InMemStore) Open(_ context.Context, appID string, tag application.DocumentTag) (io.ReadCloser, error) {
	s.mutex.RLock()
	data, ok := s.blobs[blobKey(appID, tag)]
	s.mutex.RUnlock()

	if !ok {
		return nil, application.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
