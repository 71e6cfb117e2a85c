// Package metadata implements C5: assembling the ImageMetadata record
// for a decoded image — checksum, perceptual hash, geometry, and the
// EXIF facts (GPS, capture time, camera) spec.md §4.3 calls out. GPS
// rational-to-decimal conversion and DateTimeOriginal parsing follow the
// same rwcarlsen/goexif access pattern as
// _examples/other_examples/vetler-imageproxy.
package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/dateapp/imgpipeline/internal/decoder"
	"github.com/dateapp/imgpipeline/internal/models"
	"github.com/dateapp/imgpipeline/internal/phash"
)

// exifDateLayout matches EXIF tag 0x9003 (DateTimeOriginal)'s
// "YYYY:MM:DD HH:MM:SS" format.
const exifDateLayout = "2006:01:02 15:04:05"

// Build assembles ImageMetadata from the raw downloaded bytes and the
// already-decoded, orientation-corrected image.
func Build(rawURL string, raw []byte, dec *decoder.DecodedImage) models.ImageMetadata {
	sum := sha256.Sum256(raw)

	md := models.ImageMetadata{
		URL:             rawURL,
		Width:           dec.Width,
		Height:          dec.Height,
		Format:          dec.Format,
		ColorMode:       dec.ColorMode,
		FileSizeBytes:   int64(len(raw)),
		SHA256:          hex.EncodeToString(sum[:]),
		PHash:           phash.Average(dec.Image),
		HasTransparency: dec.HasTransparency,
		IsAnimated:      dec.IsAnimated,
		FrameCount:      dec.FrameCount,
	}
	if dec.Height > 0 {
		md.AspectRatio = float64(dec.Width) / float64(dec.Height)
	}
	md.EXIF = extractEXIF(raw)
	return md
}

// extractEXIF returns a zero-value EXIFData (orientation 1, nothing
// else set) when the image carries no EXIF block at all — most PNG and
// WebP input, and any JPEG shot without a camera.
func extractEXIF(raw []byte) models.EXIFData {
	data := models.EXIFData{Orientation: 1}

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return data
	}

	if o, err := x.Get(exif.Orientation); err == nil {
		if v, err := o.Int(0); err == nil && v >= 1 && v <= 8 {
			data.Orientation = v
		}
	}

	if gps := gpsCoordinates(x); gps != nil {
		data.GPS = gps
	}

	if dt, err := x.Get(exif.DateTimeOriginal); err == nil {
		if s, err := dt.StringVal(); err == nil {
			if t, err := time.Parse(exifDateLayout, s); err == nil {
				data.DateTimeISO = t.UTC().Format(time.RFC3339)
			}
		}
	}

	make_, makeErr := x.Get(exif.Make)
	model_, modelErr := x.Get(exif.Model)
	if makeErr == nil || modelErr == nil {
		cam := &models.CameraInfo{}
		if makeErr == nil {
			if s, err := make_.StringVal(); err == nil {
				cam.Make = s
			}
		}
		if modelErr == nil {
			if s, err := model_.StringVal(); err == nil {
				cam.Model = s
			}
		}
		data.Camera = cam
	}

	return data
}

func gpsCoordinates(x *exif.Exif) *models.GPSCoordinates {
	latTag, latErr := x.Get(exif.GPSLatitude)
	lngTag, lngErr := x.Get(exif.GPSLongitude)
	if latErr != nil || lngErr != nil {
		return nil
	}

	lat, ok := rationalToDegrees(latTag)
	if !ok {
		return nil
	}
	lng, ok := rationalToDegrees(lngTag)
	if !ok {
		return nil
	}

	if ref, err := x.Get(exif.GPSLatitudeRef); err == nil {
		if s, err := ref.StringVal(); err == nil && s == "S" {
			lat = -lat
		}
	}
	if ref, err := x.Get(exif.GPSLongitudeRef); err == nil {
		if s, err := ref.StringVal(); err == nil && s == "W" {
			lng = -lng
		}
	}

	gps := &models.GPSCoordinates{Lat: lat, Lng: lng}
	if altTag, err := x.Get(exif.GPSAltitude); err == nil {
		if num, den, err := altTag.Rat2(0); err == nil && den != 0 {
			alt := float64(num) / float64(den)
			if refTag, err := x.Get(exif.GPSAltitudeRef); err == nil {
				if b, err := refTag.Int(0); err == nil && b == 1 {
					alt = -alt
				}
			}
			gps.Altitude = &alt
		}
	}
	return gps
}

// rationalToDegrees converts an EXIF GPS coordinate — three rationals
// for degrees, minutes, seconds — into a signed decimal degree value
// (sign applied separately from the N/S/E/W reference tag).
func rationalToDegrees(tag *tiff.Tag) (float64, bool) {
	if tag.Count != 3 {
		return 0, false
	}
	var parts [3]float64
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return 0, false
		}
		parts[i] = float64(num) / float64(den)
	}
	return parts[0] + parts[1]/60 + parts[2]/3600, true
}
