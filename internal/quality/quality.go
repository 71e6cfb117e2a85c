// Package quality implements C4: the six-dimensional image quality
// score defined by spec.md §4.4. Every formula in this file is a direct,
// literal transcription of that section — there is no tunable "quality
// SDK" in the retrieval pack (vetler-imageproxy and the other image
// examples all treat quality as someone else's concern), so this is
// necessarily hand-rolled arithmetic over image.Image, grounded in the
// spec rather than a library.
package quality

import (
	"image"
	"math"

	"github.com/dateapp/imgpipeline/internal/models"
)

// Analyze computes QualityMetrics for img, given the original encoded
// byte length used for the compression-quality sub-score.
func Analyze(img image.Image, fileSizeBytes int64) models.QualityMetrics {
	gray, r, g, b, hasColor := toGrayAndChannels(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pixels := float64(w) * float64(h)

	mean, stddev := meanStdDev(gray)
	lapVar := laplacianVariance(gray, w, h)

	m := models.QualityMetrics{
		Resolution:         clamp01(resolutionScore(w, h)),
		Sharpness:          clamp01(sharpnessScore(lapVar)),
		Brightness:         clamp01(brightnessScore(mean)),
		Contrast:           clamp01(contrastScore(stddev)),
		Colorfulness:       clamp01(colorfulnessScore(r, g, b, hasColor)),
		CompressionQuality: clamp01(compressionScore(fileSizeBytes, pixels)),
		BlurLaplacianVar:   lapVar,
	}
	m.Overall = models.WeightResolution*m.Resolution +
		models.WeightSharpness*m.Sharpness +
		models.WeightBrightness*m.Brightness +
		models.WeightContrast*m.Contrast +
		models.WeightColorfulness*m.Colorfulness +
		models.WeightCompressionQuality*m.CompressionQuality
	m.Overall = clamp01(m.Overall)
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// resolutionScore implements the P = W*H step function.
func resolutionScore(w, h int) float64 {
	p := w * h
	switch {
	case p >= 1920*1080:
		return 1.0
	case p >= 1280*720:
		return 0.8
	case p >= 640*480:
		return 0.5
	case p >= 320*240:
		return 0.3
	default:
		return 0.1
	}
}

func sharpnessScore(v float64) float64 {
	switch {
	case v >= 500:
		return 1.0
	case v >= 100:
		return 0.7 + (v-100)/400*0.3
	case v >= 50:
		return 0.5 + (v-50)/50*0.2
	default:
		return v / 50 * 0.5
	}
}

func brightnessScore(mean float64) float64 {
	switch {
	case mean >= 100 && mean <= 160:
		return 1.0
	case mean >= 80 && mean < 100:
		return 0.7 + (mean-80)/20*0.3
	case mean > 160 && mean <= 180:
		return 1.0 - (mean-160)/20*0.3
	case mean < 80:
		return mean / 80 * 0.7
	default: // mean > 180
		return math.Max(0.3, 1-(mean-180)/75*0.7)
	}
}

func contrastScore(sigma float64) float64 {
	switch {
	case sigma >= 50:
		return 1.0
	case sigma >= 30:
		return 0.7 + (sigma-30)/20*0.3
	case sigma >= 15:
		return 0.4 + (sigma-15)/15*0.3
	default:
		return sigma / 15 * 0.4
	}
}

func compressionScore(fileSize int64, pixels float64) float64 {
	if pixels <= 0 {
		return 0.5
	}
	bpp := float64(fileSize) / pixels
	switch {
	case bpp >= 0.5 && bpp <= 3.0:
		return 1.0
	case bpp < 0.5:
		return math.Max(0.3, bpp/0.5*0.7+0.3)
	default:
		return math.Max(0.5, 1-(bpp-3)/5*0.5)
	}
}

func colorfulnessScore(r, g, b []float64, hasColor bool) float64 {
	if !hasColor {
		return 0.5
	}
	n := len(r)
	if n == 0 {
		return 0.5
	}
	rg := make([]float64, n)
	yb := make([]float64, n)
	for i := range r {
		rg[i] = r[i] - g[i]
		yb[i] = 0.5*(r[i]+g[i]) - b[i]
	}
	_, sigmaRG := meanStdDevSlice(rg)
	_, sigmaYB := meanStdDevSlice(yb)
	muRG, _ := meanStdDevSlice(rg)
	muYB, _ := meanStdDevSlice(yb)
	c := math.Sqrt(sigmaRG*sigmaRG+sigmaYB*sigmaYB) + 0.3*math.Sqrt(muRG*muRG+muYB*muYB)
	return math.Min(c/100, 1)
}

// toGrayAndChannels converts img to a grayscale luminance slice, and also
// returns per-pixel R/G/B float channels (nil, hasColor=false when the
// source is already single-channel).
func toGrayAndChannels(img image.Image) (gray []float64, r, g, b []float64, hasColor bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	n := w * h
	gray = make([]float64, n)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gray[y*w+x] = float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return gray, nil, nil, nil, false
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gray[y*w+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y >> 8)
			}
		}
		return gray, nil, nil, nil, false
	}

	r = make([]float64, n)
	g = make([]float64, n)
	b = make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rr, gg, bb, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			fr, fg, fb := float64(rr>>8), float64(gg>>8), float64(bb>>8)
			idx := y*w + x
			r[idx], g[idx], b[idx] = fr, fg, fb
			gray[idx] = 0.299*fr + 0.587*fg + 0.114*fb
		}
	}
	return gray, r, g, b, true
}

func meanStdDev(xs []float64) (mean, stddev float64) {
	return meanStdDevSlice(xs)
}

func meanStdDevSlice(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(xs)))
	return mean, stddev
}

// laplacianVariance applies the discrete Laplacian kernel
//
//	0  1  0
//	1 -4  1
//	0  1  0
//
// to the grayscale buffer and returns the variance of the response —
// the standard focus-measure spec.md's GLOSSARY describes.
func laplacianVariance(gray []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	resp := make([]float64, 0, (w-2)*(h-2))
	at := func(x, y int) float64 { return gray[y*w+x] }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			resp = append(resp, lap)
		}
	}
	_, stddev := meanStdDevSlice(resp)
	return stddev * stddev
}
