// Package media validates and re-encodes post images and stores them in
// a blob store.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/CrestNiraj12/rantfeed/domain"
)

const (
	MaxImageSize = 5 << 20 // bytes
	MaxWidth     = 800
	MaxHeight    = 600
	JPEGQuality  = 80

	// Limits on declared dimensions, checked before pixels are decoded.
	MaxSourceSide   = 8000
	MaxSourcePixels = 40_000_000
)

type codec struct {
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

var decoders = map[string]codec{
	"image/jpeg": {jpeg.Decode, jpeg.DecodeConfig},
	"image/png":  {png.Decode, png.DecodeConfig},
	"image/gif":  {gif.Decode, gif.DecodeConfig},
	"image/webp": {webp.Decode, webp.DecodeConfig},
}

// Validate checks an upload's declared type and size before it is read.
func Validate(contentType string, size int64) error {
	if _, ok := decoders[contentType]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidImage, contentType)
	}
	if size > MaxImageSize {
		return fmt.Errorf("%w: %d bytes", domain.ErrImageTooLarge, size)
	}
	return nil
}

// Processed is a re-encoded image ready for upload.
type Processed struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Process decodes an image, shrinks it to fit MaxWidth x MaxHeight keeping
// its aspect ratio, and re-encodes it. JPEG and WebP become JPEG, PNG and
// GIF keep their format.
func Process(r io.Reader, contentType string) (Processed, error) {
	c, ok := decoders[contentType]
	if !ok {
		return Processed{}, fmt.Errorf("%w: %q", domain.ErrInvalidImage, contentType)
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return Processed{}, fmt.Errorf("reading image: %w", err)
	}
	if len(raw) > MaxImageSize {
		return Processed{}, fmt.Errorf("%w: more than %d bytes", domain.ErrImageTooLarge, MaxImageSize)
	}

	cfg, err := c.config(bytes.NewReader(raw))
	if err != nil {
		return Processed{}, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if cfg.Width > MaxSourceSide || cfg.Height > MaxSourceSide || cfg.Width*cfg.Height > MaxSourcePixels {
		return Processed{}, fmt.Errorf("%w: %dx%d pixels", domain.ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, err := c.decode(bytes.NewReader(raw))
	if err != nil {
		return Processed{}, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	img := fit(src, MaxWidth, MaxHeight)

	var buf bytes.Buffer
	out := Processed{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	switch contentType {
	case "image/png":
		out.ContentType = "image/png"
		err = png.Encode(&buf, img)
	case "image/gif":
		out.ContentType = "image/gif"
		err = gif.Encode(&buf, img, nil)
	default:
		out.ContentType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return Processed{}, fmt.Errorf("encoding image: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

// fit scales src down to fit maxW x maxH. Smaller images are returned as is.
func fit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// Processor adapts Validate and Process to the post service.
type Processor struct{}

// Prepare validates and processes an upload, returning the encoded bytes
// and their content type.
func (Processor) Prepare(r io.Reader, contentType string, size int64) ([]byte, string, error) {
	if err := Validate(contentType, size); err != nil {
		return nil, "", err
	}
	p, err := Process(r, contentType)
	if err != nil {
		return nil, "", err
	}
	return p.Data, p.ContentType, nil
}
