// Package compose renders a placement plan into a mosaic and blends the
// mosaic with the original image.
package compose

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/grid"
)

// DefaultBlendFactor is substituted for blend factors outside (0,1).
const DefaultBlendFactor = 0.5

// TileLoader provides the pre-resized tile image for a candidate.
type TileLoader interface {
	LoadTile(ctx context.Context, id string) (image.Image, error)
}

// LoaderFunc adapts a function to [TileLoader].
type LoaderFunc func(ctx context.Context, id string) (image.Image, error)

// LoadTile calls f(ctx, id).
func (f LoaderFunc) LoadTile(ctx context.Context, id string) (image.Image, error) {
	return f(ctx, id)
}

// Render draws every placement of plan onto a white canvas covering bounds.
//
// Each tile is drawn at its placement origin and clipped to its cell, so
// partial edge cells receive the tile's top-left region at its native scale.
// Tiles are loaded once per distinct candidate. The returned canvas has its
// origin at (0,0), offset from bounds.Min.
func Render(ctx context.Context, plan grid.Plan, loader TileLoader, bounds image.Rectangle) (*image.NRGBA, error) {
	if bounds.Empty() {
		return nil, errors.New(errors.ErrCodeEmptyImage, "canvas %v has no pixels", bounds)
	}
	if loader == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no tile loader")
	}

	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	loaded := make(map[string]image.Image)

	for _, pl := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tile, ok := loaded[pl.CandidateID]
		if !ok {
			var err error
			tile, err = loader.LoadTile(ctx, pl.CandidateID)
			if err != nil {
				return nil, fmt.Errorf("load tile %s: %w", pl.CandidateID, err)
			}
			if tile == nil {
				return nil, errors.New(errors.ErrCodeUnreadablePixels, "tile %s has no pixel data", pl.CandidateID)
			}
			loaded[pl.CandidateID] = tile
		}

		cell := pl.Cell
		if cell.Empty() {
			cell = image.Rectangle{Min: pl.Origin, Max: pl.Origin.Add(tile.Bounds().Size())}
		}
		dst := cell.Intersect(bounds).Sub(bounds.Min)
		if dst.Empty() {
			continue
		}
		sp := tile.Bounds().Min.Add(dst.Min.Add(bounds.Min).Sub(pl.Origin))
		draw.Draw(canvas, dst, tile, sp, draw.Over)
	}
	return canvas, nil
}

// Blend mixes canvas and original per pixel:
//
//	out = canvas*(1-factor) + original*factor
//
// Both images must have the same size. factor must lie strictly inside
// (0,1); use [EffectiveBlendFactor] to apply the default fallback first.
func Blend(canvas, original image.Image, factor float64) (*image.NRGBA, error) {
	if err := ValidateBlendFactor(factor); err != nil {
		return nil, err
	}
	if canvas == nil || original == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "blend needs both a canvas and an original image")
	}
	if cs, ms := canvas.Bounds().Size(), original.Bounds().Size(); cs != ms {
		return nil, errors.New(errors.ErrCodeInvalidInput, "canvas size %v does not match original size %v", cs, ms)
	}
	return imaging.Overlay(canvas, original, canvas.Bounds().Min, factor), nil
}

// ValidateBlendFactor reports an INVALID_CONFIGURATION error unless f lies
// strictly between 0 and 1.
func ValidateBlendFactor(f float64) error {
	if math.IsNaN(f) || f <= 0 || f >= 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "blend factor must be in (0,1), got %v", f)
	}
	return nil
}

// EffectiveBlendFactor returns f when it is valid and DefaultBlendFactor
// otherwise.
func EffectiveBlendFactor(f float64) float64 {
	if ValidateBlendFactor(f) != nil {
		return DefaultBlendFactor
	}
	return f
}
