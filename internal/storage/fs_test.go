package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
)

func TestFSStore_PutFetch(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root, nil)
	require.NoError(t, err)
	ctx := context.Background()

	key := DocumentKey("doc-1", "Form 31.pdf")
	assert.Equal(t, "documents/doc-1/Form 31.pdf", key)

	require.NoError(t, s.Put(ctx, key, []byte("%PDF-1.4 body")))
	got, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 body"), got)

	_, err = os.Stat(filepath.Join(root, "documents", "doc-1", "Form 31.pdf"))
	assert.NoError(t, err)

	require.NoError(t, s.Put(ctx, key, []byte("replaced")))
	got, err = s.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(got))
}

func TestFSStore_NotFound(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), "documents/none/x.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFSStore_RejectsEscapes(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../outside.pdf", "documents/../../x", "..\\win.pdf"} {
		_, err := s.Fetch(ctx, key)
		assert.ErrorIs(t, err, common.ErrInvalidInput, key)
		assert.ErrorIs(t, s.Put(ctx, key, []byte("x")), common.ErrInvalidInput, key)
	}
}

func TestDocumentKey_StripsDirectories(t *testing.T) {
	assert.Equal(t, "documents/abc/evil.pdf", DocumentKey("abc", "../../evil.pdf"))
	assert.Equal(t, "documents/abc/scan.pdf", DocumentKey("abc", `C:\Users\me\scan.pdf`))
}
