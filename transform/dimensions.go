package transform

import (
	"math"

	"github.com/superfly/variants"
)

// calculateDimensions computes the target box for a spec against the current
// (post-rotation) image size. Branches, in priority order:
//
//   - width and height both set: used as-is, aspect ratio be damned.
//   - ratio plus one dimension: the missing one is derived from the ratio.
//   - ratio alone: newWidth = area*ratio/(1+ratio), newHeight = newWidth/ratio.
//     The formula does not preserve area or aspect for ratio != 1; it is
//     reproduced exactly for compatibility with existing variants.
//   - one dimension alone: the other follows the image's own ratio.
//   - nothing set: current size.
func calculateDimensions(curWidth, curHeight int, spec variants.VariantSpec) (int, int) {
	switch {
	case spec.Width > 0 && spec.Height > 0:
		return spec.Width, spec.Height

	case spec.Ratio > 0 && spec.Width > 0:
		return spec.Width, roundDim(float64(spec.Width) / spec.Ratio)

	case spec.Ratio > 0 && spec.Height > 0:
		return roundDim(float64(spec.Height) * spec.Ratio), spec.Height

	case spec.Ratio > 0:
		area := float64(curWidth) * float64(curHeight)
		newWidth := area * spec.Ratio / (1 + spec.Ratio)
		return roundDim(newWidth), roundDim(newWidth / spec.Ratio)

	case spec.Width > 0:
		originalRatio := float64(curWidth) / float64(curHeight)
		return spec.Width, roundDim(float64(spec.Width) / originalRatio)

	case spec.Height > 0:
		originalRatio := float64(curWidth) / float64(curHeight)
		return roundDim(float64(spec.Height) * originalRatio), spec.Height

	default:
		return curWidth, curHeight
	}
}

// roundDim rounds to the nearest pixel, never below 1.
func roundDim(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	return n
}
