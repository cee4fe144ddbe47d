// Package grid partitions a target image into square cells and assigns each
// cell the nearest eligible candidate from a catalog.
//
// Cells are walked row-major from the image's minimum point, stepping by the
// cell size. The trailing row and column are clipped to the image bounds, so
// they may be smaller than size×size; they are sampled and matched like any
// other cell.
//
// Assignment is strictly sequential: [catalog.Catalog.Nearest] mutates usage
// counters on every call, and a fixed image, catalog, and limit always yield
// the same [Plan].
package grid

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tessera/pkg/catalog"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
)

// Placement assigns one candidate to one cell.
type Placement struct {
	Cell        image.Rectangle `json:"cell"`         // Cell rectangle, clipped to the image
	Origin      image.Point     `json:"origin"`       // Cell.Min, where the tile is pasted
	CandidateID string          `json:"candidate_id"` // Chosen candidate
}

// Plan is the ordered list of placements produced by [Assign].
type Plan []Placement

// Counts returns how many cells each candidate was assigned to.
func (p Plan) Counts() map[string]int {
	counts := make(map[string]int)
	for _, pl := range p {
		counts[pl.CandidateID]++
	}
	return counts
}

// Progress reports how many cells have been assigned so far.
type Progress struct {
	Done  int
	Total int
}

// Fraction returns Done/Total in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

type options struct {
	progress func(Progress)
	logger   *log.Logger
}

// Option configures [Assign].
type Option func(*options)

// WithProgress registers fn to be called after every assigned cell.
// Calls are made synchronously on the assigning goroutine with Done
// increasing by one each time; fn should return quickly.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) { o.progress = fn }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Count returns the number of cells [Cells] yields for bounds and size.
func Count(bounds image.Rectangle, size int) int {
	if size <= 0 || bounds.Empty() {
		return 0
	}
	return ceilDiv(bounds.Dx(), size) * ceilDiv(bounds.Dy(), size)
}

// Cells returns the cell rectangles covering bounds in row-major order.
// The union of the returned rectangles is exactly bounds and no two overlap.
// It returns nil when size is not positive or bounds is empty.
func Cells(bounds image.Rectangle, size int) []image.Rectangle {
	n := Count(bounds, size)
	if n == 0 {
		return nil
	}
	cells := make([]image.Rectangle, 0, n)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += size {
		for x := bounds.Min.X; x < bounds.Max.X; x += size {
			cells = append(cells, image.Rect(x, y, x+size, y+size).Intersect(bounds))
		}
	}
	return cells
}

// Assign samples every cell of img and matches it against cat with the given
// repeat limit, returning the resulting plan.
//
// Any sampling or matching failure aborts assignment; the returned error
// keeps its code (for example NO_ELIGIBLE_CANDIDATE) and names the failing
// cell. The context is checked between cells.
func Assign(ctx context.Context, img image.Image, size int, cat *catalog.Catalog, limit int, opts ...Option) (Plan, error) {
	o := options{logger: log.NewWithOptions(io.Discard, log.Options{})}
	for _, opt := range opts {
		opt(&o)
	}

	if size <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "cell size must be positive, got %d", size)
	}
	if limit < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "repeat limit must not be negative, got %d", limit)
	}
	if img == nil {
		return nil, errors.New(errors.ErrCodeUnreadablePixels, "target image has no pixel data")
	}
	if _, ok := img.(*image.Uniform); ok {
		return nil, errors.New(errors.ErrCodeUnreadablePixels, "target image is a single uniform value, not a pixel grid")
	}
	if cat == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no candidate catalog")
	}

	cells := Cells(img.Bounds(), size)
	if len(cells) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyImage, "target image %v has no pixels", img.Bounds())
	}
	o.logger.Debug("assigning cells", "cells", len(cells), "size", size, "candidates", cat.Len(), "limit", limit)

	plan := make(Plan, 0, len(cells))
	for i, cell := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := hsv.Average(subImage(img, cell))
		if err != nil {
			return nil, fmt.Errorf("sample cell at %v: %w", cell.Min, err)
		}
		cand, err := cat.Nearest(c, limit)
		if err != nil {
			return nil, fmt.Errorf("match cell at %v: %w", cell.Min, err)
		}
		plan = append(plan, Placement{Cell: cell, Origin: cell.Min, CandidateID: cand.ID})

		if o.progress != nil {
			o.progress(Progress{Done: i + 1, Total: len(cells)})
		}
	}
	return plan, nil
}

// subImage returns the part of img inside r. Images that support SubImage
// share their pixels; anything else is wrapped in a bounded view.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	return view{Image: img, rect: r}
}

type view struct {
	image.Image
	rect image.Rectangle
}

func (v view) Bounds() image.Rectangle { return v.rect }

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
