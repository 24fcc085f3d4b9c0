// Package transform turns an original image plus a variant spec into encoded
// variant bytes. The engine is a pure function of its inputs: rotation, flips,
// dimension math, resize and encode happen in a fixed order, and any failure
// surfaces as a *TransformError for the caller's retry machinery. The engine
// never retries on its own.
package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/superfly/variants"
)

// TransformError wraps a failure in any transform stage.
type TransformError struct {
	Stage string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed at %s: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Result is one encoded variant.
type Result struct {
	Data     []byte
	Format   variants.ImageFormat
	MIMEType string
	Width    int
	Height   int
}

// Engine applies variant specs to source images.
type Engine struct {
	log logrus.FieldLogger
}

// NewEngine returns an engine. A nil logger is replaced with the standard one.
func NewEngine(logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{log: logger}
}

// Transform decodes src, applies the spec's rotation, flips, resize and
// encoding, and returns the encoded variant.
func (e *Engine) Transform(src []byte, spec variants.VariantSpec) (*Result, error) {
	img, srcFormat, err := decode(src)
	if err != nil {
		return nil, &TransformError{Stage: "decode", Err: err}
	}

	img = e.rotate(img, spec)

	if spec.FlipHorizontal {
		img = imaging.FlipH(img)
	}
	if spec.FlipVertical {
		img = imaging.FlipV(img)
	}

	bounds := img.Bounds()
	targetW, targetH := calculateDimensions(bounds.Dx(), bounds.Dy(), spec)
	if targetW != bounds.Dx() || targetH != bounds.Dy() {
		img = imaging.Resize(img, targetW, targetH, imaging.Lanczos)
	}

	format := effectiveFormat(spec.Format, srcFormat)
	data, err := encode(img, format, spec.Quality)
	if err != nil {
		return nil, &TransformError{Stage: "encode", Err: err}
	}

	return &Result{
		Data:     data,
		Format:   format,
		MIMEType: "image/" + string(format),
		Width:    targetW,
		Height:   targetH,
	}, nil
}

// rotate applies the spec's clockwise rotation. The imaging package rotates
// counter-clockwise, hence the swapped 90/270 calls. Angles outside the four
// cardinal values are logged and skipped, never fatal.
func (e *Engine) rotate(img image.Image, spec variants.VariantSpec) image.Image {
	switch spec.Rotation {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		e.log.WithFields(logrus.Fields{
			"spec":     spec.Name,
			"rotation": spec.Rotation,
		}).Warn("ignoring unsupported rotation angle")
		return img
	}
}

// decode sniffs the content type and decodes accordingly. Unknown image
// formats fall through to whatever decoders are registered.
func decode(src []byte) (image.Image, variants.ImageFormat, error) {
	mtype := mimetype.Detect(src)
	switch {
	case mtype.Is("image/jpeg"):
		img, err := jpeg.Decode(bytes.NewReader(src))
		return img, variants.FormatJPEG, err
	case mtype.Is("image/png"):
		img, err := png.Decode(bytes.NewReader(src))
		return img, variants.FormatPNG, err
	case mtype.Is("image/webp"):
		img, err := webp.Decode(bytes.NewReader(src))
		return img, variants.FormatWEBP, err
	default:
		img, err := imaging.Decode(bytes.NewReader(src))
		if err != nil {
			return nil, "", fmt.Errorf("unsupported image type %s: %w", mtype.String(), err)
		}
		return img, "", nil
	}
}

// effectiveFormat resolves DEFAULT to the source format. A source whose
// format could not be identified encodes as JPEG.
func effectiveFormat(target, source variants.ImageFormat) variants.ImageFormat {
	if target != variants.FormatDefault && target != "" {
		return target
	}
	if source == "" {
		return variants.FormatJPEG
	}
	return source
}

func encode(img image.Image, format variants.ImageFormat, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case variants.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
			return nil, err
		}
	case variants.FormatPNG:
		enc := png.Encoder{CompressionLevel: pngCompression(quality)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	case variants.FormatWEBP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: webpQuality(quality)}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported target format %q", format)
	}
	return buf.Bytes(), nil
}
