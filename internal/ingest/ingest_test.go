package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
	"github.com/joseph-ayodele/insolvency-docs/internal/storage"
)

type fakeQueue struct {
	mu    sync.Mutex
	tasks []async.Task
	err   error
}

func (q *fakeQueue) AddTask(_ context.Context, t async.Task) (async.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return async.Task{}, q.err
	}
	t.ID = uuid.New()
	q.tasks = append(q.tasks, t)
	return t, nil
}

func (q *fakeQueue) snapshot() []async.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]async.Task(nil), q.tasks...)
}

type fixture struct {
	intake *Intake
	repo   repository.DocumentRepository
	blobs  *storage.FSStore
	queue  *fakeQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	repo := repository.NewDocumentRepository(db, nil)
	require.NoError(t, repo.EnsureSchema(ctx))

	blobs, err := storage.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	q := &fakeQueue{}
	return &fixture{intake: NewIntake(repo, blobs, q, nil), repo: repo, blobs: blobs, queue: q}
}

func pdfBytes(body string) []byte {
	return []byte("%PDF-1.4\n" + body + "\n%%EOF\n")
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := pdfBytes("form 31")

	res, err := f.intake.Submit(ctx, Submission{
		Filename: "claim.pdf", Content: content, DocumentType: constants.DocumentTypeForm, Priority: async.PriorityHigh,
	})
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.NotEmpty(t, res.TaskID)
	assert.Len(t, res.HashHex, 64)
	assert.Equal(t, storage.DocumentKey(res.DocumentID, "claim.pdf"), res.StoragePath)

	stored, err := f.blobs.Fetch(ctx, res.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	doc, err := f.repo.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusPending, doc.Status)
	assert.Equal(t, constants.DocumentTypeForm, doc.DocumentType)
	assert.Equal(t, res.HashHex, doc.ContentHash)
	assert.Equal(t, int64(len(content)), doc.SizeBytes)

	tasks := f.queue.snapshot()
	require.Len(t, tasks, 1)
	assert.Equal(t, res.DocumentID, tasks[0].DocumentID)
	assert.Equal(t, res.StoragePath, tasks[0].StoragePath)
	assert.Equal(t, async.PriorityHigh, tasks[0].Priority)
}

func TestSubmit_Deduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := pdfBytes("same bytes")

	first, err := f.intake.Submit(ctx, Submission{Filename: "a.pdf", Content: content})
	require.NoError(t, err)
	second, err := f.intake.Submit(ctx, Submission{Filename: "b.pdf", Content: content})
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Empty(t, second.TaskID)
	assert.Len(t, f.queue.snapshot(), 1)
}

func TestSubmit_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		sub  Submission
	}{
		{"missing filename", Submission{Content: pdfBytes("x")}},
		{"not a pdf name", Submission{Filename: "scan.png", Content: pdfBytes("x")}},
		{"unknown type", Submission{Filename: "a.pdf", Content: pdfBytes("x"), DocumentType: "receipt"}},
		{"priority out of range", Submission{Filename: "a.pdf", Content: pdfBytes("x"), Priority: 12}},
		{"empty content", Submission{Filename: "a.pdf"}},
		{"no pdf header", Submission{Filename: "a.pdf", Content: []byte("PK\x03\x04 zip")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.intake.Submit(ctx, tc.sub)
			require.Error(t, err)
			assert.Equal(t, "InvalidArgument", common.CodeOf(err).String())
		})
	}
	assert.Empty(t, f.queue.snapshot())
}

func TestSubmit_EnqueueFailureMarksDocumentFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.queue.err = common.ErrQueueClosed
	var id string
	f.intake.newID = func() string { id = uuid.NewString(); return id }

	_, err := f.intake.Submit(ctx, Submission{Filename: "late.pdf", Content: pdfBytes("late")})
	require.ErrorIs(t, err, common.ErrQueueClosed)

	doc, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.StatusDetail, "queue is shut down")
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.intake.Submit(ctx, Submission{Filename: "soa.pdf", Content: pdfBytes("soa"), DocumentType: constants.DocumentTypeFinancial})
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateStatus(ctx, res.DocumentID, constants.DocumentStatusFailed, "boom"))

	task, err := f.intake.Reprocess(ctx, res.DocumentID, async.PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentTypeFinancial, task.Type)
	assert.Equal(t, async.PriorityLow, task.Priority)

	doc, err := f.repo.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusPending, doc.Status)
	assert.Empty(t, doc.StatusDetail)
	assert.Len(t, f.queue.snapshot(), 2)

	_, err = f.intake.Reprocess(ctx, "not-a-uuid", 0)
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = f.intake.Reprocess(ctx, uuid.NewString(), 0)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestIngestDirectory(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	write := func(rel string, b []byte) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, b, 0o644))
	}
	write("one.pdf", pdfBytes("one"))
	write("nested/two.PDF", pdfBytes("two"))
	write("nested/copy.pdf", pdfBytes("one"))
	write("notes.txt", []byte("ignore me"))
	write("broken.pdf", []byte("not really"))
	write(".hidden/secret.pdf", pdfBytes("secret"))

	results, stats, err := f.intake.IngestDirectory(context.Background(), root, constants.DocumentTypeGeneral, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.Len(t, results, 4)
	assert.Len(t, f.queue.snapshot(), 2)

	_, _, err = f.intake.IngestDirectory(context.Background(), " ", constants.DocumentTypeGeneral, true)
	assert.Error(t, err)
}

func TestIngestPath_RejectsExtension(t *testing.T) {
	f := newFixture(t)
	p := filepath.Join(t.TempDir(), "scan.tiff")
	require.NoError(t, os.WriteFile(p, pdfBytes("x"), 0o644))

	res, err := f.intake.IngestPath(context.Background(), p, constants.DocumentTypeGeneral)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
	assert.Equal(t, p, res.SourcePath)
}
