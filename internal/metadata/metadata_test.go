package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/dateapp/imgpipeline/internal/decoder"
)

func TestBuildComputesChecksumAndGeometry(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture PNG: %v", err)
	}
	raw := buf.Bytes()

	dec, derr := decoder.Decode(raw, 100_000_000)
	if derr != nil {
		t.Fatalf("decode failed: %v", derr)
	}

	md := Build("https://example.com/photo.png", raw, dec)

	wantSum := sha256.Sum256(raw)
	if md.SHA256 != hex.EncodeToString(wantSum[:]) {
		t.Errorf("SHA256 mismatch")
	}
	if md.Width != 200 || md.Height != 100 {
		t.Errorf("dimensions = %dx%d, want 200x100", md.Width, md.Height)
	}
	if md.AspectRatio != 2.0 {
		t.Errorf("AspectRatio = %f, want 2.0", md.AspectRatio)
	}
	if md.EXIF.Orientation != 1 {
		t.Errorf("Orientation = %d, want 1 (no EXIF present)", md.EXIF.Orientation)
	}
	if md.EXIF.GPS != nil {
		t.Error("a PNG without EXIF should have no GPS data")
	}
}
