// Package storage holds document blobs on the local filesystem or in Google Cloud Storage.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
)

// BlobStore reads and writes document bytes by slash-separated key.
type BlobStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// DocumentKey is where intake stores a document's original upload.
func DocumentKey(documentID, filename string) string {
	return path.Join("documents", documentID, path.Base(strings.ReplaceAll(filename, "\\", "/")))
}

// cleanKey rejects keys that are empty, absolute or escape the store root.
func cleanKey(key string) (string, error) {
	k := strings.ReplaceAll(key, "\\", "/")
	if k == "" || strings.HasPrefix(k, "/") {
		return "", common.NewAppError("INVALID_INPUT", "invalid blob key "+key, common.ErrInvalidInput)
	}
	k = path.Clean(k)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", common.NewAppError("INVALID_INPUT", "blob key escapes store: "+key, common.ErrInvalidInput)
	}
	return k, nil
}
