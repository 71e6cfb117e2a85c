// Package models defines the data types that flow through the image
// ingestion pipeline: the records produced by each stage (C1-C9) and the
// error taxonomy they report against.
package models

import "time"

// ColorMode is the pixel layout of a decoded image.
type ColorMode string

const (
	ColorRGB  ColorMode = "RGB"
	ColorRGBA ColorMode = "RGBA"
	ColorP    ColorMode = "P"
	ColorL    ColorMode = "L"
	ColorCMYK ColorMode = "CMYK"
	ColorLA   ColorMode = "LA"
	ColorMono ColorMode = "1"
)

// ImageFormat is the on-wire encoding of a downloaded image.
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "JPEG"
	FormatPNG     ImageFormat = "PNG"
	FormatWEBP    ImageFormat = "WEBP"
	FormatGIF     ImageFormat = "GIF"
	FormatHEIF    ImageFormat = "HEIF"
	FormatAVIF    ImageFormat = "AVIF"
	FormatUnknown ImageFormat = ""
)

// ErrorKind is the closed taxonomy of failures a pipeline stage can report.
// See spec §7.
type ErrorKind string

const (
	ErrInvalidURL        ErrorKind = "INVALID_URL"
	ErrDownloadTimeout   ErrorKind = "DOWNLOAD_TIMEOUT"
	ErrHTTPError         ErrorKind = "HTTP_ERROR"
	ErrFileTooLarge      ErrorKind = "FILE_TOO_LARGE"
	ErrRequestError      ErrorKind = "REQUEST_ERROR"
	ErrInvalidFormat     ErrorKind = "INVALID_FORMAT"
	ErrCorruptedImage    ErrorKind = "CORRUPTED_IMAGE"
	ErrUnsupportedFormat ErrorKind = "UNSUPPORTED_FORMAT"
	ErrDecompressionBomb ErrorKind = "DECOMPRESSION_BOMB"
	ErrResizeFailed      ErrorKind = "RESIZE_FAILED"
	ErrConversionFailed  ErrorKind = "CONVERSION_FAILED"
	ErrQualityTooLow     ErrorKind = "QUALITY_TOO_LOW"
	ErrInternal          ErrorKind = "INTERNAL"
)

// StageError pairs a taxonomy kind with a short human-readable detail.
// It is the concrete error value every stage returns instead of raising.
type StageError struct {
	Kind   ErrorKind
	Detail string
}

func (e *StageError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// NewStageError builds a StageError.
func NewStageError(kind ErrorKind, detail string) *StageError {
	return &StageError{Kind: kind, Detail: detail}
}

// DownloadResult is produced by C2 for exactly one requested URL. It is
// immutable once returned.
type DownloadResult struct {
	URL           string
	Success       bool
	Bytes         []byte
	HTTPStatus    int
	ContentType   string
	ContentLength int64
	Duration      time.Duration
	RetryCount    int
	Err           *StageError
}

// GPSCoordinates is the decimal-degree form of an EXIF GPS tag triple.
type GPSCoordinates struct {
	Lat      float64
	Lng      float64
	Altitude *float64
}

// CameraInfo carries the EXIF make/model tags when present.
type CameraInfo struct {
	Make  string
	Model string
}

// EXIFData is the subset of EXIF tags this pipeline extracts.
type EXIFData struct {
	GPS         *GPSCoordinates
	DateTimeISO string
	Camera      *CameraInfo
	Orientation int
}

// ImageMetadata is the durable record describing a decoded, analyzed image.
type ImageMetadata struct {
	URL             string
	Width           int
	Height          int
	Format          ImageFormat
	ColorMode       ColorMode
	FileSizeBytes   int64
	AspectRatio     float64
	SHA256          string
	PHash           uint64
	EXIF            EXIFData
	HasTransparency bool
	IsAnimated      bool
	FrameCount      int
}

// QualityMetrics is the six-dimensional quality score produced by C4.
// Overall is always the weighted sum of the six sub-scores (spec P5).
type QualityMetrics struct {
	Overall            float64
	Resolution         float64
	Sharpness          float64
	Brightness         float64
	Contrast           float64
	Colorfulness       float64
	CompressionQuality float64
	BlurLaplacianVar   float64
	EdgeDensity        float64
	DynamicRange       float64
}

// Weights used to compute QualityMetrics.Overall. Exported so tests and
// callers can assert the invariant without duplicating magic numbers.
const (
	WeightResolution         = 0.25
	WeightSharpness          = 0.25
	WeightBrightness         = 0.15
	WeightContrast           = 0.15
	WeightColorfulness       = 0.10
	WeightCompressionQuality = 0.10
)

// PipelineError is one entry of PipelineResult.Errors: a URL that never
// reached the output, and why.
type PipelineError struct {
	URL    string
	Kind   ErrorKind
	Detail string
}

// NormalizedImage is the output of C7: a re-encoded JPEG ready for caching
// and downstream delivery, together with its post-normalize dimensions.
type NormalizedImage struct {
	JPEGBytes []byte
	Width     int
	Height    int
}

// PipelineResult is the top-level output of C9's Process call.
type PipelineResult struct {
	Images         []NormalizedImage
	Metadata       []ImageMetadata
	QualityScores  []float64
	ProcessingTime time.Duration
	Errors         []PipelineError
}
