package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/internal/analysis"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	v, err := common.NewViper("")
	require.NoError(t, err)
	cfg := common.LoadConfig(v)
	cfg.Database.DSN = ":memory:"
	cfg.Storage.Root = t.TempDir()
	return cfg
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpenDocumentsAndBlobs(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	docs, err := OpenDocuments(ctx, cfg, quiet())
	require.NoError(t, err)
	defer docs.Close()
	require.NoError(t, docs.Health(ctx))

	list, err := docs.List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	blobs, closeBlobs, err := OpenBlobs(ctx, cfg, quiet())
	require.NoError(t, err)
	defer closeBlobs()
	require.NoError(t, blobs.Put(ctx, "documents/a/b.pdf", []byte("%PDF-1.4")))
	got, err := blobs.Fetch(ctx, "documents/a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(got))
}

func TestOpenDocuments_BadDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	_, err := OpenDocuments(context.Background(), cfg, quiet())
	assert.Error(t, err)
}

func TestNewAssessor_Disabled(t *testing.T) {
	a, closeFn, err := NewAssessor(context.Background(), testConfig(t), quiet())
	require.NoError(t, err)
	assert.Nil(t, a)
	closeFn()
}

func TestNewTrigger(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	local := async.AnalysisFunc(func(context.Context, async.AnalysisRequest) error { return nil })

	trig, closeFn, err := NewTrigger(ctx, cfg, local, true, quiet())
	require.NoError(t, err)
	defer closeFn()
	_, isFunc := trig.(async.AnalysisFunc)
	assert.True(t, isFunc)

	cfg.Analysis.Mode = "remote"
	cfg.Analysis.FunctionURL = "http://127.0.0.1:1/analyze"
	trig, closeFn, err = NewTrigger(ctx, cfg, local, true, quiet())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &analysis.HTTPTrigger{}, trig)
}
