// Package extract turns PDF bytes into ordered page text, falling back to
// rasterization and OCR for pages without a usable text layer.
package extract

import (
	"context"

	"github.com/joseph-ayodele/insolvency-docs/internal/core/pdfdoc"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/raster"
)

// DocumentLoader parses PDF bytes.
type DocumentLoader interface {
	Load(ctx context.Context, data []byte) (pdfdoc.Document, error)
}

// PageRasterizer renders one page into an OCR-ready image.
type PageRasterizer interface {
	Rasterize(ctx context.Context, src raster.Renderer, page int) (*raster.Image, error)
}

// Recognizer runs OCR on an encoded image and returns normalized text.
type Recognizer interface {
	PerformOCR(ctx context.Context, image []byte) (string, error)
}
