package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	name     string
	args     []string
	imageOK  bool
	stdout   string
	stderr   string
	err      error
	blockCtx bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.name = name
	f.args = args
	if len(args) > 0 {
		_, statErr := os.Stat(args[0])
		f.imageOK = statErr == nil
	}
	f.mu.Unlock()

	if f.blockCtx {
		<-ctx.Done()
		return nil, nil, errors.New("signal: killed")
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestTesseract_Recognize(t *testing.T) {
	r := &fakeRunner{stdout: "PROOF OF CLAIM\n"}
	eng := NewTesseract(TesseractConfig{PSM: 6, OEM: 1, TessdataDir: "/usr/share/tessdata"}, nil, WithRunner(r))

	var events []Progress
	out, err := eng.Recognize(context.Background(), jpegHeader, "eng", func(p Progress) { events = append(events, p) })
	require.NoError(t, err)
	assert.Equal(t, "PROOF OF CLAIM\n", out)

	assert.Equal(t, "tesseract", r.name)
	assert.True(t, r.imageOK, "image must exist while tesseract runs")
	assert.Regexp(t, `page\.jpg$`, r.args[0])
	assert.Equal(t, []string{"stdout", "-l", "eng", "--psm", "6", "--oem", "1", "--tessdata-dir", "/usr/share/tessdata"}, r.args[1:])

	_, statErr := os.Stat(r.args[0])
	assert.True(t, os.IsNotExist(statErr), "scratch image is removed afterwards")

	require.Len(t, events, 3)
	assert.Equal(t, StatusInitializing, events[0].Status)
	assert.Equal(t, StatusRecognizing, events[1].Status)
	assert.Equal(t, Progress{Status: StatusDone, Fraction: 1}, events[2])
}

func TestTesseract_DefaultArgs(t *testing.T) {
	r := &fakeRunner{}
	eng := NewTesseract(TesseractConfig{OEM: -1}, nil, WithRunner(r))

	_, err := eng.Recognize(context.Background(), []byte("raw bytes"), "fra", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"stdout", "-l", "fra"}, r.args[1:])
}

func TestTesseract_Failure(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1"), stderr: "Error in pixReadMem"}
	eng := NewTesseract(TesseractConfig{OEM: -1}, nil, WithRunner(r))

	_, err := eng.Recognize(context.Background(), jpegHeader, "eng", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pixReadMem")

	_, err = eng.Recognize(context.Background(), nil, "eng", nil)
	require.Error(t, err)
}

func TestTesseract_Timeout(t *testing.T) {
	r := &fakeRunner{blockCtx: true}
	eng := NewTesseract(TesseractConfig{OEM: -1}, nil, WithRunner(r))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := eng.Recognize(ctx, jpegHeader, "eng", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubEngine struct {
	text string
	err  error
	lang string
}

func (s *stubEngine) Recognize(_ context.Context, _ []byte, lang string, progress ProgressFunc) (string, error) {
	s.lang = lang
	progress.report(StatusDone, 1)
	return s.text, s.err
}

func TestAdapter_PerformOCR(t *testing.T) {
	eng := &stubEngine{text: "  CONSUMER  PROPOSAL of the dcbtor  "}
	var seen []string
	a := NewAdapter(eng, nil, WithProgress(func(p Progress) { seen = append(seen, p.Status) }))

	out, err := a.PerformOCR(context.Background(), jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "consumer proposal of the debtor", out)
	assert.Equal(t, DefaultLanguage, eng.lang)
	assert.Equal(t, []string{StatusDone}, seen)
}

func TestAdapter_PropagatesEngineError(t *testing.T) {
	boom := errors.New("engine crashed")
	a := NewAdapter(&stubEngine{err: boom}, nil, WithLanguage("fra"))

	out, err := a.PerformOCR(context.Background(), jpegHeader)
	assert.Empty(t, out)
	assert.Same(t, boom, err)
	assert.Equal(t, "fra", a.Language())
}
