// Package preprocess turns encoded image bytes into the classifier's
// normalized grayscale input tensor.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/recycle-api/internal/model"
	"github.com/Brownie44l1/recycle-api/internal/tensor"
)

// DefaultMaxPixels caps the decoded image area.
const DefaultMaxPixels = 64 << 20

// Options configures a Preprocessor. Zero values select the defaults.
type Options struct {
	Size      int
	MaxPixels int
	Tracker   *tensor.Tracker
}

// Preprocessor is safe for concurrent use; it keeps no per-call state.
type Preprocessor struct {
	size      int
	maxPixels int
	tracker   *tensor.Tracker
}

func New(opts Options) *Preprocessor {
	if opts.Size <= 0 {
		opts.Size = model.ImageSize
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Preprocessor{
		size:      opts.Size,
		maxPixels: opts.MaxPixels,
		tracker:   opts.Tracker,
	}
}

// Shape is the shape of every tensor Prepare returns.
func (p *Preprocessor) Shape() tensor.Shape {
	return tensor.NewShape(1, int64(p.size), int64(p.size), 1)
}

// Prepare decodes raw, converts it to grayscale, resizes it bilinearly to
// size×size, min/max normalizes it into [0,1] and returns it as a batch of
// one, shaped [1,size,size,1]. A uniform image normalizes to all zeros.
// Decoding problems are reported as model.KindDecode.
func (p *Preprocessor) Prepare(raw []byte) (*tensor.Tensor, error) {
	img, err := p.decode(raw)
	if err != nil {
		return nil, model.NewError(model.KindDecode, err)
	}

	gray := toGray(img)
	resized := resize.Resize(uint(p.size), uint(p.size), gray, resize.Bilinear)

	values := pixelValues(resized)
	if len(values) != p.size*p.size {
		return nil, model.Errorf(model.KindShape, "resized image has %d pixels, want %d", len(values), p.size*p.size)
	}
	normalize(values)

	return p.tracker.FromData(p.Shape(), values)
}

func (p *Preprocessor) decode(raw []byte) (img image.Image, err error) {
	if len(raw) == 0 {
		return nil, errors.New("empty image")
	}

	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("decoder panic: %v", r)
		}
	}()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unsupported image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > p.maxPixels {
		return nil, fmt.Errorf("image is too large (%dx%d)", cfg.Width, cfg.Height)
	}

	img, err = imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("corrupt %s image: %w", format, err)
	}

	log.WithFields(log.Fields{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("[Preprocess] Decoded image")
	return img, nil
}

// toGray reduces img to one luma channel (0.299R + 0.587G + 0.114B).
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	lum := imaging.Grayscale(img)
	bounds := lum.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		src := lum.Pix[y*lum.Stride : y*lum.Stride+bounds.Dx()*4]
		dst := gray.Pix[y*gray.Stride : y*gray.Stride+bounds.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return gray
}

func pixelValues(img image.Image) []float32 {
	bounds := img.Bounds()
	values := make([]float32, 0, bounds.Dx()*bounds.Dy())

	if g, ok := img.(*image.Gray); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			start := g.PixOffset(bounds.Min.X, y)
			row := g.Pix[start : start+bounds.Dx()]
			for _, v := range row {
				values = append(values, float32(v))
			}
		}
		return values
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			values = append(values, float32(v.Y))
		}
	}
	return values
}

// normalize maps values onto [0,1] with (v-min)/(max-min). When every
// value is equal the result is all zeros.
func normalize(values []float32) {
	if len(values) == 0 {
		return
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	span := hi - lo
	if span == 0 {
		clear(values)
		return
	}
	for i, v := range values {
		values[i] = (v - lo) / span
	}
}
