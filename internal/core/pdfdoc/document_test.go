package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/insolvency-docs/internal/common"
)

// buildPDF assembles a minimal PDF 1.4 file with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	kids := make([]string, 0, len(pages))
	for i, text := range pages {
		pageNum, contentNum := 4+2*i, 5+2*i
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentNum),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestLoader_Load(t *testing.T) {
	l := NewLoader(nil)
	doc, err := l.Load(context.Background(), buildPDF("Form 31 Proof of Claim", "Schedule A"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.NumPages())

	p1, err := doc.PageText(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, p1, "Proof of Claim")

	p2, err := doc.PageText(context.Background(), 2)
	require.NoError(t, err)
	assert.Contains(t, p2, "Schedule A")

	_, err = doc.PageText(context.Background(), 3)
	assert.ErrorIs(t, err, common.ErrPageExtraction)

	info := doc.(*document).Info()
	assert.Equal(t, 2, info.PageCount)
	assert.False(t, info.Encrypted)
}

func TestLoader_Rejects(t *testing.T) {
	l := NewLoader(nil, WithValidation())

	_, err := l.Load(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = l.Load(context.Background(), []byte("this is not a pdf at all"))
	assert.ErrorIs(t, err, common.ErrLoadFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, buildPDF("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPageText_Cancelled(t *testing.T) {
	doc, err := NewLoader(nil).Load(context.Background(), buildPDF("hello"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = doc.PageText(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
