package quality

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/dateapp/imgpipeline/internal/models"
)

func TestResolutionScoreBoundaries(t *testing.T) {
	tests := []struct {
		w, h int
		want float64
	}{
		{1920, 1080, 1.0},
		{1919, 1080, 0.8},
		{1280, 720, 0.8},
		{1279, 720, 0.5},
		{640, 480, 0.5},
		{639, 480, 0.3},
		{320, 240, 0.3},
		{100, 100, 0.1},
	}
	for _, tt := range tests {
		if got := resolutionScore(tt.w, tt.h); got != tt.want {
			t.Errorf("resolutionScore(%d,%d) = %f, want %f", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestSharpnessScoreBoundaries(t *testing.T) {
	if got := sharpnessScore(500); got != 1.0 {
		t.Errorf("sharpnessScore(500) = %f, want 1.0", got)
	}
	if got := sharpnessScore(100); got != 0.7 {
		t.Errorf("sharpnessScore(100) = %f, want 0.7", got)
	}
	if got := sharpnessScore(0); got != 0 {
		t.Errorf("sharpnessScore(0) = %f, want 0", got)
	}
}

func TestBrightnessScoreBands(t *testing.T) {
	if got := brightnessScore(130); got != 1.0 {
		t.Errorf("brightnessScore(130) = %f, want 1.0", got)
	}
	if got := brightnessScore(0); got != 0 {
		t.Errorf("brightnessScore(0) = %f, want 0", got)
	}
	if got := brightnessScore(255); got < 0.3 {
		t.Errorf("brightnessScore(255) = %f, want >= 0.3 floor", got)
	}
}

func TestContrastScoreBoundaries(t *testing.T) {
	if got := contrastScore(50); got != 1.0 {
		t.Errorf("contrastScore(50) = %f, want 1.0", got)
	}
	if got := contrastScore(0); got != 0 {
		t.Errorf("contrastScore(0) = %f, want 0", got)
	}
}

func TestCompressionScoreBands(t *testing.T) {
	pixels := 1000.0
	if got := compressionScore(1000, pixels); got != 1.0 { // bpp=1.0
		t.Errorf("compressionScore at bpp=1.0 = %f, want 1.0", got)
	}
	if got := compressionScore(0, pixels); got != 0.3 {
		t.Errorf("compressionScore at bpp=0 = %f, want floor 0.3", got)
	}
	if got := compressionScore(1, 0); got != 0.5 {
		t.Errorf("compressionScore with zero pixels = %f, want 0.5 fallback", got)
	}
}

func TestAnalyzeUniformGrayImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.SetGray(x, y, color.Gray{Y: 128})
		}
	}

	m := Analyze(img, 5000)

	if m.Sharpness != 0 {
		t.Errorf("uniform image should have zero Laplacian variance, got sharpness %f", m.Sharpness)
	}
	if m.Contrast != 0 {
		t.Errorf("uniform image should have zero stddev, got contrast %f", m.Contrast)
	}
	if m.Colorfulness != 0.5 {
		t.Errorf("grayscale source should report neutral colorfulness 0.5, got %f", m.Colorfulness)
	}
	if m.Overall < 0 || m.Overall > 1 {
		t.Errorf("Overall out of [0,1] range: %f", m.Overall)
	}

	want := models.WeightResolution*m.Resolution +
		models.WeightSharpness*m.Sharpness +
		models.WeightBrightness*m.Brightness +
		models.WeightContrast*m.Contrast +
		models.WeightColorfulness*m.Colorfulness +
		models.WeightCompressionQuality*m.CompressionQuality
	if math.Abs(m.Overall-want) > 1e-9 {
		t.Errorf("Overall = %f, want weighted sum %f", m.Overall, want)
	}
}
