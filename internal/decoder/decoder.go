// Package decoder implements C3: turning downloaded bytes into an
// in-memory image.Image while defending against decompression bombs and
// corrupted input, and applying EXIF orientation before any other stage
// observes pixel data. Format support is grounded on
// _examples/other_examples/vetler-imageproxy (disintegration/imaging,
// rwcarlsen/goexif, golang.org/x/image) and
// _examples/other_examples/yz666-12-ImageFlow (gen2brain/avif). HEIF has
// no decoder in the retrieval pack, so it is recognized by magic bytes
// and reported UNSUPPORTED_FORMAT (see SPEC_FULL.md Open Questions).
package decoder

import (
	"bytes"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/dateapp/imgpipeline/internal/models"
	"github.com/rwcarlsen/goexif/exif"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

// DecodedImage is the in-process handle C3 hands to later stages.
type DecodedImage struct {
	Image           image.Image
	Width           int
	Height          int
	ColorMode       models.ColorMode
	Format          models.ImageFormat
	IsAnimated      bool
	FrameCount      int
	HasTransparency bool
}

const (
	minDim = 100
	maxDim = 10000
)

// Decode turns raw bytes into a DecodedImage, or fails with one of
// INVALID_FORMAT, CORRUPTED_IMAGE, UNSUPPORTED_FORMAT, or
// DECOMPRESSION_BOMB.
func Decode(data []byte, maxPixels int64) (*DecodedImage, *models.StageError) {
	sniffed := sniff(data)
	if sniffed == models.FormatHEIF {
		return nil, models.NewStageError(models.ErrUnsupportedFormat, "HEIF decoding is not supported")
	}

	cfg, formatName, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if sniffed == models.FormatUnknown {
			return nil, models.NewStageError(models.ErrInvalidFormat, "unrecognized image header")
		}
		return nil, models.NewStageError(models.ErrInvalidFormat, err.Error())
	}

	pixels := int64(cfg.Width) * int64(cfg.Height)
	if pixels > maxPixels {
		return nil, models.NewStageError(models.ErrDecompressionBomb,
			"declared pixel count exceeds configured cap")
	}
	if cfg.Width > maxDim || cfg.Height > maxDim {
		return nil, models.NewStageError(models.ErrDecompressionBomb,
			"declared dimension exceeds maximum")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewStageError(models.ErrCorruptedImage, err.Error())
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w < minDim || h < minDim {
		return nil, models.NewStageError(models.ErrInvalidFormat,
			"decoded dimensions below minimum usable size")
	}

	format := formatFromName(formatName)
	isAnimated, frameCount := animationInfo(format, data)

	orientation := readOrientation(data)
	img = applyOrientation(img, orientation)
	w, h = img.Bounds().Dx(), img.Bounds().Dy()

	return &DecodedImage{
		Image:           img,
		Width:           w,
		Height:          h,
		ColorMode:       colorModeOf(img),
		Format:          format,
		IsAnimated:      isAnimated,
		FrameCount:      frameCount,
		HasTransparency: hasTransparency(img),
	}, nil
}

// OrientationOf re-reads the EXIF orientation tag without decoding
// pixels, for callers (C5) that want it reported even though C3 already
// applied it to the pixel buffer.
func OrientationOf(data []byte) int {
	return readOrientation(data)
}

func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// applyOrientation applies the standard EXIF 8-value orientation table,
// the mapping commonly paired with disintegration/imaging.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func formatFromName(name string) models.ImageFormat {
	switch name {
	case "jpeg":
		return models.FormatJPEG
	case "png":
		return models.FormatPNG
	case "gif":
		return models.FormatGIF
	case "webp":
		return models.FormatWEBP
	case "avif":
		return models.FormatAVIF
	default:
		return models.FormatUnknown
	}
}

func animationInfo(format models.ImageFormat, data []byte) (bool, int) {
	if format != models.FormatGIF {
		return false, 1
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil || len(g.Image) == 0 {
		return false, 1
	}
	return len(g.Image) > 1, len(g.Image)
}

func colorModeOf(img image.Image) models.ColorMode {
	switch img.(type) {
	case *image.Gray:
		return models.ColorL
	case *image.Gray16:
		return models.ColorL
	case *image.CMYK:
		return models.ColorCMYK
	case *image.Paletted:
		return models.ColorP
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return models.ColorRGBA
	default:
		return models.ColorRGB
	}
}

func hasTransparency(img image.Image) bool {
	switch src := img.(type) {
	case *image.Paletted:
		for _, c := range src.Palette {
			_, _, _, a := c.RGBA()
			if a != 0xffff {
				return true
			}
		}
		return false
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// sniff performs a cheap magic-byte classification. Decode uses it to
// reject HEIF as UNSUPPORTED_FORMAT before DecodeConfig runs, and to pick
// the detail text of an INVALID_FORMAT error when DecodeConfig fails.
func sniff(data []byte) models.ImageFormat {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return models.FormatJPEG
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return models.FormatPNG
	case len(data) >= 6 && (bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a"))):
		return models.FormatGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return models.FormatWEBP
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		brand := string(data[8:12])
		switch brand {
		case "avif", "avis":
			return models.FormatAVIF
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return models.FormatHEIF
		}
		return models.FormatUnknown
	default:
		return models.FormatUnknown
	}
}
