// Package pipeline provides the complete mosaic pipeline for tessera.
//
// This package chains the library stages into the run the CLI and the HTTP
// server both use, so defaults and error behavior are identical across entry
// points.
//
// # Architecture
//
// A build consists of four stages:
//
//  1. Prepare: Turn raw source images into a processed tile directory
//     (skipped when Options.Exist is set)
//  2. Fit: Center-crop and resize the target to OutputSize×OutputSize
//  3. Assign: Match every cell against the candidate catalog
//  4. Render: Draw the mosaic, blend it with the fitted target, and save both
//
// Each stage can be run on its own through the Runner.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Input:             "target.jpg",
//	    RawImageDir:       "raw/",
//	    ProcessedImageDir: "processed/",
//	    Repeat:            3,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.MosaicPath, result.BlendPath)
package pipeline

import (
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tessera/pkg/compose"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/grid"
	"github.com/matzehuels/tessera/pkg/storage"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Server
// =============================================================================

const (
	// DefaultCellSize is the edge length of tiles and grid cells in pixels.
	DefaultCellSize = 85

	// DefaultOutputSize is the edge length of the square output image.
	DefaultOutputSize = 5000

	// DefaultRepeat is the per-candidate reuse limit; 0 means unlimited.
	DefaultRepeat = 0

	// DefaultBlendFactor is the weight of the original in the blended output.
	DefaultBlendFactor = compose.DefaultBlendFactor

	// DefaultOutput is the mosaic output path.
	DefaultOutput = "output.jpg"

	// BlendPrefix is prepended to the output's base name for the blended
	// image, which is written next to the mosaic.
	BlendPrefix = "blend_"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a mosaic build.
type Options struct {
	Input             string  `json:"input"`
	RawImageDir       string  `json:"raw_image_dir,omitempty"`
	ProcessedImageDir string  `json:"processed_image_dir"`
	Output            string  `json:"output,omitempty"`
	Exist             bool    `json:"exist,omitempty"` // Reuse ProcessedImageDir as is
	InputSize         int     `json:"input_size,omitempty"`
	OutputSize        int     `json:"output_size,omitempty"`
	Repeat            int     `json:"repeat,omitempty"`
	BlendFactor       float64 `json:"blend_factor,omitempty"`
	Workers           int     `json:"workers,omitempty"` // Preparation workers; 0 means GOMAXPROCS

	// Publish uploads both outputs when a bucket is configured.
	Publish storage.Config `json:"-"`

	// Runtime options (not serialized)
	Logger          *log.Logger           `json:"-"`
	Progress        func(grid.Progress)   `json:"-"` // Assignment progress
	PrepareProgress func(done, total int) `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// MosaicPath and BlendPath are the files written.
	MosaicPath string
	BlendPath  string

	// URIs lists the published objects, if publishing was enabled.
	URIs []string

	// Plan is the cell assignment the mosaic was rendered from.
	Plan grid.Plan

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Sources     int // Raw sources prepared (0 when tiles were reused)
	CacheHits   int // Sources served from the preparation cache
	Candidates  int
	Cells       int
	BlendFactor float64 // Factor actually applied
	PrepareTime time.Duration
	AssignTime  time.Duration
	RenderTime  time.Duration
	TotalTime   time.Duration
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetDefaults()
	if err := o.Validate(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// SetDefaults fills zero-valued sizes, the output path and the logger. The
// blend factor is not touched here; out-of-range values fall back to
// DefaultBlendFactor when the blend is computed.
func (o *Options) SetDefaults() {
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.InputSize == 0 {
		o.InputSize = DefaultCellSize
	}
	if o.OutputSize == 0 {
		o.OutputSize = DefaultOutputSize
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Validate reports the first invalid setting.
func (o *Options) Validate() error {
	if o.Input == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "input image is required")
	}
	if o.ProcessedImageDir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "processed image directory is required")
	}
	if !o.Exist && o.RawImageDir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "raw image directory is required unless existing tiles are reused")
	}
	for _, p := range []struct{ name, path string }{
		{"input", o.Input},
		{"output", o.Output},
		{"processed image directory", o.ProcessedImageDir},
		{"raw image directory", o.RawImageDir},
	} {
		if p.path == "" {
			continue
		}
		if err := errors.ValidatePath(p.name, p.path); err != nil {
			return err
		}
	}
	if err := errors.ValidatePositive("input size", o.InputSize); err != nil {
		return err
	}
	if err := errors.ValidatePositive("output size", o.OutputSize); err != nil {
		return err
	}
	if err := errors.ValidateNonNegative("repeat", o.Repeat); err != nil {
		return err
	}
	return errors.ValidateNonNegative("workers", o.Workers)
}

// EffectiveBlendFactor returns the blend factor the run will apply.
func (o *Options) EffectiveBlendFactor() float64 {
	return compose.EffectiveBlendFactor(o.BlendFactor)
}

// BlendPath returns the path of the blended output for the given mosaic
// output path: the same directory, with BlendPrefix on the file name.
func BlendPath(output string) string {
	dir, base := filepath.Split(output)
	return filepath.Join(dir, BlendPrefix+base)
}
