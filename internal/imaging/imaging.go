// Package imaging recompresses raster images before they are uploaded.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrCompressionFailed = errors.New("image compression failed")
	ErrInvalidQuality    = errors.New("quality must be in (0, 1]")
)

// Lossless is the quality threshold at and above which images are passed
// through untouched.
const Lossless = 0.999

type Options struct {
	// Quality in (0, 1].
	Quality float64
	// MaxDimension bounds the longest side in pixels. Zero disables scaling.
	MaxDimension int
}

func (o Options) Validate() error {
	if o.Quality <= 0 || o.Quality > 1 || math.IsNaN(o.Quality) {
		return fmt.Errorf("%w: got %v", ErrInvalidQuality, o.Quality)
	}
	if o.MaxDimension < 0 {
		return fmt.Errorf("max dimension must not be negative: %d", o.MaxDimension)
	}
	return nil
}

// PassThrough reports whether the options leave every image untouched.
func (o Options) PassThrough() bool {
	return o.Quality >= Lossless
}

// Eligible reports whether images of mimeType are recompressed. Animated and
// vector formats are left alone.
func Eligible(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

// Compress decodes data, shrinks it to fit MaxDimension and re-encodes it.
// Opaque images become JPEG at the configured quality; images with
// transparency stay PNG. The original bytes are returned when the result would
// not be smaller and no scaling happened.
func Compress(data []byte, mimeType string, opts Options) ([]byte, string, error) {
	if err := opts.Validate(); err != nil {
		return nil, "", err
	}
	if opts.PassThrough() || !Eligible(mimeType) {
		return data, mimeType, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", ErrCompressionFailed, mimeType, err)
	}

	scaled := fit(src, opts.MaxDimension)
	resized := scaled != src

	var buf bytes.Buffer
	outType := "image/jpeg"
	if opaque(scaled) {
		q := int(math.Round(opts.Quality * 100))
		q = max(1, min(q, 100))
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: q})
	} else {
		outType = "image/png"
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, scaled)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: encode %s: %v", ErrCompressionFailed, outType, err)
	}

	if !resized && buf.Len() >= len(data) {
		return data, mimeType, nil
	}

	return buf.Bytes(), outType, nil
}

func fit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src
	}

	scale := float64(maxDim) / float64(max(w, h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
