// Package media turns uploaded image bytes into the canonical visual-context
// artifact the Generator Adapter attaches to a prompt: a bounded-dimension
// image plus a small thumbnail, both re-encoded to a known format.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	_ "image/gif"

	_ "golang.org/x/image/webp"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"

	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"

	DefaultQuality   = 85
	ThumbnailMaxSide = 256
)

// Artifact is the canonical Image Context the Session Store holds (spec §3
// "Image Context"): canonical bytes, a thumbnail, and the mime type both
// are encoded as.
type Artifact struct {
	Canonical []byte
	Thumbnail []byte
	MimeType  string
	Width     int
	Height    int
}

// ResizeConfig bounds the canonical artifact's dimensions.
type ResizeConfig struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultResizeConfig mirrors the 1024x1024 ceiling a constrained
// multimodal prompt budget typically allows.
func DefaultResizeConfig() ResizeConfig {
	return ResizeConfig{MaxWidth: 1024, MaxHeight: 1024, Quality: DefaultQuality}
}

// BuildArtifact decodes data, resizes it to fit within cfg, and produces a
// small square-ish thumbnail alongside it. Both outputs are JPEG-encoded
// regardless of the source format, matching the single canonical shape the
// Generator Adapter expects.
func BuildArtifact(data []byte, cfg ResizeConfig) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	quality := cfg.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	targetW, targetH := fitDimensions(origW, origH, cfg.MaxWidth, cfg.MaxHeight)
	canonicalImg := img
	if targetW < origW || targetH < origH {
		canonicalImg = scaleTo(img, targetW, targetH)
	}

	canonical, err := encodeJPEG(canonicalImg, quality)
	if err != nil {
		return nil, fmt.Errorf("encode canonical image: %w", err)
	}

	thumbW, thumbH := fitDimensions(origW, origH, ThumbnailMaxSide, ThumbnailMaxSide)
	thumbImg := scaleTo(img, thumbW, thumbH)
	thumbnail, err := encodeJPEG(thumbImg, quality)
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	finalBounds := canonicalImg.Bounds()
	return &Artifact{
		Canonical: canonical,
		Thumbnail: thumbnail,
		MimeType:  MIMETypeJPEG,
		Width:     finalBounds.Dx(),
		Height:    finalBounds.Dy(),
	}, nil
}

func fitDimensions(origW, origH, maxW, maxH int) (int, int) {
	w, h := origW, origH
	if maxW > 0 && w > maxW {
		ratio := float64(maxW) / float64(w)
		w = maxW
		h = int(float64(h) * ratio)
	}
	if maxH > 0 && h > maxH {
		ratio := float64(maxH) / float64(h)
		h = maxH
		w = int(float64(w) * ratio)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func scaleTo(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodePNG is kept for callers that need a lossless thumbnail; unused by
// BuildArtifact today since the wire protocol always declares JPEG, but
// retained since the image/png import (which also registers PNG decoding)
// is already paid for.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
