// Package hsv computes representative colors for mosaic cells and tiles.
//
// # Overview
//
// Matching in tessera happens in HSV space with every channel normalized to
// [0,1]: hue is measured in turns rather than degrees, so pure red is
// (0, 1, 1) and pure blue is (0.667, 1, 1). A [Color] is always rounded to
// three decimal places; two images whose averages round to the same triple
// are indistinguishable to the matcher.
//
// # Sampling
//
// [Average] converts every pixel of an image to HSV, sums the channels, and
// divides by the pixel count:
//
//	c, err := hsv.Average(img)
//	if err != nil {
//	    return err // EMPTY_IMAGE or UNREADABLE_PIXELS
//	}
//
// Hue is averaged arithmetically, not circularly, so a cell that mixes
// near-0 and near-1 hues averages to mid-range hue. The same averaging is
// applied to cells and to candidate tiles, which keeps the two comparable.
//
// # Distance
//
// [Distance] is the plain Euclidean distance between two triples. It is
// symmetric and bounded by sqrt(3).
//
// # Keys
//
// Older processed-tile directories name each tile by its color, for example
// "(0.233, 0.5, 0.8).jpg". [Color.Key] produces that text and [ParseKey]
// reads it back; the round trip is exact for rounded colors.
package hsv
