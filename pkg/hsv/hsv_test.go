package hsv

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/matzehuels/tessera/pkg/errors"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFromRGB(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    Color
	}{
		{"red", 255, 0, 0, Color{0, 1, 1}},
		{"green", 0, 255, 0, Color{0.333, 1, 1}},
		{"blue", 0, 0, 255, Color{0.667, 1, 1}},
		{"white", 255, 255, 255, Color{0, 0, 1}},
		{"black", 0, 0, 0, Color{0, 0, 0}},
		{"gray", 128, 128, 128, Color{0, 0, 0.502}},
		{"magenta", 255, 0, 255, Color{0.833, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := FromRGB(tt.r, tt.g, tt.b)
			got := New(c.H, c.S, c.V)
			if got != tt.want {
				t.Errorf("FromRGB(%d, %d, %d) = %v, want %v", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestAverageSolidRed(t *testing.T) {
	got, err := Average(solid(4, 4, color.NRGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatalf("Average() error: %v", err)
	}
	if want := (Color{0, 1, 1}); got != want {
		t.Errorf("Average() = %v, want %v", got, want)
	}
}

func TestAverageMixed(t *testing.T) {
	// Generic path: *image.RGBA is not special-cased.
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{255, 255, 255, 255})

	got, err := Average(img)
	if err != nil {
		t.Fatalf("Average() error: %v", err)
	}
	if want := (Color{0, 0.5, 1}); got != want {
		t.Errorf("Average() = %v, want %v", got, want)
	}
}

func TestAverageSubImage(t *testing.T) {
	img := solid(4, 2, color.NRGBA{0, 0, 255, 255})
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{255, 0, 0, 255})
		}
	}

	left, err := Average(img.SubImage(image.Rect(0, 0, 2, 2)))
	if err != nil {
		t.Fatalf("Average(left) error: %v", err)
	}
	if want := (Color{0, 1, 1}); left != want {
		t.Errorf("Average(left) = %v, want %v", left, want)
	}

	right, err := Average(img.SubImage(image.Rect(2, 0, 4, 2)))
	if err != nil {
		t.Fatalf("Average(right) error: %v", err)
	}
	if want := (Color{0.667, 1, 1}); right != want {
		t.Errorf("Average(right) = %v, want %v", right, want)
	}
}

func TestAverageErrors(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		code errors.Code
	}{
		{"nil image", nil, errors.ErrCodeUnreadablePixels},
		{"uniform", image.NewUniform(color.White), errors.ErrCodeUnreadablePixels},
		{"empty", image.NewNRGBA(image.Rect(0, 0, 0, 0)), errors.ErrCodeEmptyImage},
		{"zero width", image.NewRGBA(image.Rect(3, 3, 3, 9)), errors.ErrCodeEmptyImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Average(tt.img)
			if err == nil {
				t.Fatal("Average() should fail")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("Average() code = %v, want %v", errors.GetCode(err), tt.code)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	colors := []Color{
		{0, 0, 0},
		{1, 1, 1},
		{0, 1, 1},
		{0.233, 0.5, 0.8},
		{0.999, 0.001, 0.5},
	}
	for _, a := range colors {
		for _, b := range colors {
			if Distance(a, b) != Distance(b, a) {
				t.Errorf("Distance(%v, %v) != Distance(%v, %v)", a, b, b, a)
			}
		}
		if d := Distance(a, a); d != 0 {
			t.Errorf("Distance(%v, %v) = %v, want 0", a, a, d)
		}
	}

	if d := Distance(Color{0, 0, 0}, Color{1, 1, 1}); math.Abs(d-math.Sqrt(3)) > 1e-12 {
		t.Errorf("max distance = %v, want sqrt(3)", d)
	}
	if d := Distance(Color{0, 1, 1}, Color{0, 0.5, 1}); d != 0.5 {
		t.Errorf("Distance = %v, want 0.5", d)
	}
}

func TestRound3(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.2334, 0.233},
		{0.2336, 0.234},
		{1, 1},
		{0, 0},
		{0.9999, 1},
	}
	for _, tt := range tests {
		if got := Round3(tt.in); got != tt.want {
			t.Errorf("Round3(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
