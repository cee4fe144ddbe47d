package hsv

import (
	"image"
	"image/color"

	"github.com/matzehuels/tessera/pkg/errors"
)

// Average computes the mean HSV color of every pixel in img, rounded to
// three decimals. Alpha is ignored; each pixel contributes its
// non-premultiplied RGB value.
//
// It fails with UNREADABLE_PIXELS when img is nil or is a single-value
// image (*image.Uniform) rather than a pixel grid, and with EMPTY_IMAGE when
// img has no pixels.
func Average(img image.Image) (Color, error) {
	if img == nil {
		return Color{}, errors.New(errors.ErrCodeUnreadablePixels, "image has no pixel data")
	}
	if _, ok := img.(*image.Uniform); ok {
		return Color{}, errors.New(errors.ErrCodeUnreadablePixels, "image is a single uniform value, not a pixel grid")
	}

	bounds := img.Bounds()
	count := bounds.Dx() * bounds.Dy()
	if bounds.Empty() || count == 0 {
		return Color{}, errors.New(errors.ErrCodeEmptyImage, "image %v has no pixels", bounds)
	}

	var hSum, sSum, vSum float64
	add := func(r, g, b uint8) {
		h, s, v := rgbToHSV(r, g, b)
		hSum += h
		sSum += s
		vSum += v
	}

	switch src := img.(type) {
	case *image.NRGBA:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			i := src.PixOffset(bounds.Min.X, y)
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				add(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
				i += 4
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				add(c.R, c.G, c.B)
			}
		}
	}

	n := float64(count)
	return New(hSum/n, sSum/n, vSum/n), nil
}
