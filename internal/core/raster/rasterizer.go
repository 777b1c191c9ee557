// Package raster renders PDF pages into binarized JPEG images for OCR.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
)

// PointsPerInch is the PDF user-space resolution; scale 1.0 renders at 72 dpi.
const PointsPerInch = 72.0

// Renderer is the page source. Pages are 1-indexed.
type Renderer interface {
	// PageBounds returns the page size in points.
	PageBounds(page int) (image.Rectangle, error)
	RenderPage(page int, dpi float64) (image.Image, error)
}

// Options tune rendering. Zero values take the defaults.
type Options struct {
	Scale       float64 // default 2.0
	MaxWidth    int     // default 2000 px
	Threshold   uint8   // default 128; pixels brighter than this become white
	JPEGQuality int     // default 95
}

func (o *Options) defaults() {
	if o.Scale <= 0 {
		o.Scale = 2.0
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 2000
	}
	if o.Threshold == 0 {
		o.Threshold = 128
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = 95
	}
}

// Image is an encoded page image ready for OCR.
type Image struct {
	Page   int
	Width  int
	Height int
	Scale  float64
	MIME   string
	Data   []byte
}

// DataURL renders the image as a base64 data URL.
func (i *Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// PageError tags a rendering failure with its page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string { return fmt.Sprintf("rasterize page %d: %v", e.Page, e.Err) }
func (e *PageError) Unwrap() error { return e.Err }

type Rasterizer struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Rasterizer {
	opts.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{opts: opts, logger: logger}
}

// EffectiveScale returns the scale that keeps a page of widthPts points
// within maxWidth pixels at the requested base scale.
func EffectiveScale(widthPts int, base float64, maxWidth int) float64 {
	if widthPts <= 0 || maxWidth <= 0 {
		return base
	}
	natural := float64(widthPts) * base
	if natural <= float64(maxWidth) {
		return base
	}
	return base * float64(maxWidth) / natural
}

// Rasterize renders page, caps its width, binarizes it and encodes it as JPEG.
func (r *Rasterizer) Rasterize(ctx context.Context, src Renderer, page int) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PageError{Page: page, Err: err}
	}
	bounds, err := src.PageBounds(page)
	if err != nil {
		return nil, &PageError{Page: page, Err: err}
	}
	scale := EffectiveScale(bounds.Dx(), r.opts.Scale, r.opts.MaxWidth)

	img, err := src.RenderPage(page, PointsPerInch*scale)
	if err != nil {
		return nil, &PageError{Page: page, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &PageError{Page: page, Err: fmt.Errorf("renderer returned an empty image")}
	}

	img = capWidth(img, r.opts.MaxWidth)
	bw := Binarize(img, r.opts.Threshold)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, bw, &jpeg.Options{Quality: r.opts.JPEGQuality}); err != nil {
		return nil, &PageError{Page: page, Err: fmt.Errorf("encode jpeg: %w", err)}
	}

	b := bw.Bounds()
	r.logger.Debug("page rasterized", "page", page, "scale", scale, "width", b.Dx(), "height", b.Dy(), "bytes", buf.Len())
	return &Image{
		Page:   page,
		Width:  b.Dx(),
		Height: b.Dy(),
		Scale:  scale,
		MIME:   "image/jpeg",
		Data:   buf.Bytes(),
	}, nil
}

// capWidth downsizes img when the renderer's output is still wider than max,
// which happens when DPI rounding or page boxes differ from the reported bounds.
func capWidth(img image.Image, max int) image.Image {
	b := img.Bounds()
	if b.Dx() <= max {
		return img
	}
	h := int(math.Round(float64(b.Dy()) * float64(max) / float64(b.Dx())))
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, max, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Binarize composites img over white and maps every pixel to pure black or
// white by comparing the mean of its channels against threshold.
func Binarize(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	flat := image.NewRGBA(out.Bounds())
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			i := flat.PixOffset(x, y)
			avg := (int(flat.Pix[i]) + int(flat.Pix[i+1]) + int(flat.Pix[i+2])) / 3
			v := uint8(0)
			if avg > int(threshold) {
				v = 255
			}
			out.Pix[out.PixOffset(x, y)] = v
		}
	}
	return out
}
