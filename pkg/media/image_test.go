package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func sampleJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to build sample jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestBuildArtifactResizesLargeImage(t *testing.T) {
	data := sampleJPEG(t, 2000, 1000)

	artifact, err := BuildArtifact(data, DefaultResizeConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Width > 1024 || artifact.Height > 1024 {
		t.Errorf("expected canonical image within 1024x1024, got %dx%d", artifact.Width, artifact.Height)
	}
	if len(artifact.Thumbnail) == 0 {
		t.Error("expected a non-empty thumbnail")
	}
	if artifact.MimeType != MIMETypeJPEG {
		t.Errorf("expected jpeg mime type, got %s", artifact.MimeType)
	}
}

func TestBuildArtifactSkipsUpscale(t *testing.T) {
	data := sampleJPEG(t, 100, 80)

	artifact, err := BuildArtifact(data, DefaultResizeConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifact.Width != 100 || artifact.Height != 80 {
		t.Errorf("expected original dimensions preserved, got %dx%d", artifact.Width, artifact.Height)
	}
}

func TestBuildArtifactEmptyInput(t *testing.T) {
	if _, err := BuildArtifact(nil, DefaultResizeConfig()); err == nil {
		t.Error("expected error for empty input")
	}
}
