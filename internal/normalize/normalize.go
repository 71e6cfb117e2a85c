// Package normalize implements C7: resizing and re-encoding a decoded
// image into the pipeline's single output shape — a baseline JPEG no
// wider/taller than a configured maximum dimension, every non-RGB color
// mode folded down to plain RGB. Progressive JPEG is not written. Resize and re-encode both run through
// github.com/disintegration/imaging, the same library
// _examples/other_examples/vetler-imageproxy uses for its resize path.
package normalize

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/dateapp/imgpipeline/internal/models"
)

// Options controls C7's behavior; callers build one from PipelineConfig.
type Options struct {
	MaxDim           int
	JPEGQuality      int
	JPEGQualityFloor int
	MaxOutputBytes   int64
}

// Normalize resizes img down to fit within opts.MaxDim on its longest
// side (images already smaller are left at their own size), flattens any
// non-RGB color mode to RGB, and encodes as a baseline (not progressive)
// JPEG. If the first encode exceeds opts.MaxOutputBytes, quality is
// stepped down by 10 at a time until it fits or opts.JPEGQualityFloor is
// reached.
func Normalize(img image.Image, opts Options) (*models.NormalizedImage, *models.StageError) {
	flattened := flatten(img)
	resized := resizeToFit(flattened, opts.MaxDim)

	quality := opts.JPEGQuality
	var buf bytes.Buffer
	for {
		buf.Reset()
		err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality))
		if err != nil {
			return nil, models.NewStageError(models.ErrConversionFailed, err.Error())
		}
		if int64(buf.Len()) <= opts.MaxOutputBytes || quality <= opts.JPEGQualityFloor {
			break
		}
		quality -= 10
		if quality < opts.JPEGQualityFloor {
			quality = opts.JPEGQualityFloor
		}
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	bounds := resized.Bounds()
	return &models.NormalizedImage{
		JPEGBytes: out,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// resizeToFit scales img down so neither dimension exceeds maxDim,
// preserving aspect ratio. Images already within bounds are returned
// unchanged — C7 never upscales.
func resizeToFit(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// flatten folds every supported color mode down to RGB: RGBA/LA is
// composited over a white background (JPEG has no alpha channel),
// CMYK/paletted/grayscale/1-bit source images are converted straight to
// RGB.
func flatten(img image.Image) image.Image {
	switch src := img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return compositeOverWhite(src)
	case *image.Gray, *image.Gray16, *image.CMYK, *image.Paletted:
		return imaging.Clone(src)
	default:
		return imaging.Clone(img)
	}
}

func compositeOverWhite(img image.Image) image.Image {
	b := img.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.OverlayCenter(background, img, 1.0)
}
