package images

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/albumtracker/internal/errors"
	"github.com/lehigh-university-libraries/albumtracker/internal/models"
)

const (
	// DefaultMaxDimension bounds both sides of a prepared image
	DefaultMaxDimension = 1024
	// DefaultQuality is the JPEG quality used for prepared images
	DefaultQuality = 85
	// DefaultMaxSourcePixels refuses decompression bombs while leaving room
	// for 200 MP phone photos (16320x12240)
	DefaultMaxSourcePixels = 300_000_000
)

// codec is the process-wide decoding state. It is built on first use and
// lives until the process exits.
type codec struct {
	formats []string
	buffers sync.Pool
}

var codecs = sync.OnceValue(func() *codec {
	c := &codec{
		formats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
	}
	c.buffers.New = func() any { return new(bytes.Buffer) }
	slog.Debug("Image decoders ready", "formats", c.formats)
	return c
})

// Preparer turns photos into size-bounded JPEG payloads
type Preparer struct {
	MaxDimension int
	Quality      int
	// MaxSourcePixels bounds width*height of a photo before it is decoded
	MaxSourcePixels int
}

// NewPreparer returns a Preparer, substituting defaults for non-positive values
func NewPreparer(maxDimension, quality int) *Preparer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Preparer{MaxDimension: maxDimension, Quality: quality, MaxSourcePixels: DefaultMaxSourcePixels}
}

// WithMaxSourcePixels sets the source size guard, keeping the default for
// non-positive values.
func (p *Preparer) WithMaxSourcePixels(n int) *Preparer {
	if n > 0 {
		p.MaxSourcePixels = n
	}
	return p
}

func (p *Preparer) checkDimensions(path string, w, h int) error {
	if w <= 0 || h <= 0 {
		return errors.Newkf(errors.ErrDecode, "image %s has unusable dimensions %dx%d", path, w, h)
	}
	limit := p.MaxSourcePixels
	if limit <= 0 {
		limit = DefaultMaxSourcePixels
	}
	if int64(w)*int64(h) > int64(limit) {
		return errors.WithHint(
			errors.Newkf(errors.ErrDecode, "image %s is %dx%d, above the %d pixel limit", path, w, h, limit),
			"raise images.max_source_pixels if this photo is genuine")
	}
	return nil
}

// Prepare decodes the image at path, fits it inside the bounding box and
// re-encodes it as JPEG.
func (p *Preparer) Prepare(ctx context.Context, path string) (models.EncodedImage, error) {
	if err := ctx.Err(); err != nil {
		return models.EncodedImage{}, err
	}
	c := codecs()

	data, err := os.ReadFile(path)
	if err != nil {
		return models.EncodedImage{}, errors.Wrapkf(err, errors.ErrIO, "failed to read image %s", path)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.EncodedImage{}, errors.Wrapkf(err, errors.ErrDecode, "unsupported or corrupt image %s", path)
	}
	if err := p.checkDimensions(path, cfg.Width, cfg.Height); err != nil {
		return models.EncodedImage{}, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.EncodedImage{}, errors.Wrapkf(err, errors.ErrDecode, "failed to decode %s image %s", format, path)
	}

	bounds := src.Bounds()
	w, h := Fit(bounds.Dx(), bounds.Dy(), p.MaxDimension)

	// JPEG has no alpha channel, so flatten onto white first
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	buf := c.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.buffers.Put(buf)

	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: p.Quality}); err != nil {
		return models.EncodedImage{}, errors.Wrapkf(err, errors.ErrDecode, "failed to encode %s as jpeg", path)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	slog.Debug("Prepared image",
		"path", path,
		"source_format", format,
		"source_size", len(data),
		"width", w,
		"height", h,
		"encoded_size", len(out))

	return models.EncodedImage{
		Source: path,
		Data:   out,
		Format: "jpeg",
		Width:  w,
		Height: h,
	}, nil
}

// Fit scales w×h to fit inside a limit×limit box, preserving aspect ratio.
// Images already inside the box are returned unchanged.
func Fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	if nw > limit {
		nw = limit
	}
	if nh > limit {
		nh = limit
	}
	return nw, nh
}
