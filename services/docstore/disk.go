// Package docstore persists uploaded application documents. One blob exists
// per (application, tag); re-uploading a tag replaces the previous blob.
package docstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core/application"
)

type diskStore struct {
	root string
}

var _ application.DocumentStore = (*diskStore)(nil)

func NewDiskStore(root string) (*diskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating document root")
	}
	return &diskStore{root: root}, nil
}

func (s *diskStore) path(appID string, tag application.DocumentTag) string {
	return filepath.Join(s.root, appID, string(tag))
}

func (s *diskStore) Put(_ context.Context, appID string, tag application.DocumentTag, filename, contentType string, size int64, r io.Reader) (application.StoredDocument, error) {
	dir := filepath.Join(s.root, appID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return application.StoredDocument{}, errors.Wrap(err, "creating application dir")
	}

	f, err := os.Create(s.path(appID, tag))
	if err != nil {
		return application.StoredDocument{}, errors.Wrap(err, "creating document file")
	}
	defer func() { _ = f.Close() }()

	if _, err = io.CopyN(f, r, size); err != nil && err != io.EOF {
		return application.StoredDocument{}, errors.Wrap(err, "writing document file")
	}

	return application.StoredDocument{
		ID:  uuid.NewString(),
		URL: fmt.Sprintf("/v1/applications/%s/documents/%s", appID, tag),
	}, nil
}

func (s *diskStore) Delete(_ context.Context, appID string, tag application.DocumentTag) error {
	if err := os.Remove(s.path(appID, tag)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting document file")
	}
	return nil
}

// Open returns the stored blob for download handlers.
func (s *diskStore) Open(_ context.Context, appID string, tag application.DocumentTag) (io.ReadCloser, error) {
	f, err := os.Open(s.path(appID, tag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, application.ErrDocumentNotFound
		}
		return nil, errors.Wrap(err, "opening document file")
	}
	return f, nil
}
