package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"

	"github.com/matzehuels/tessera/pkg/cache"
	"github.com/matzehuels/tessera/pkg/catalog"
	"github.com/matzehuels/tessera/pkg/compose"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/grid"
	"github.com/matzehuels/tessera/pkg/observability"
	"github.com/matzehuels/tessera/pkg/prepare"
	"github.com/matzehuels/tessera/pkg/storage"
	"github.com/matzehuels/tessera/pkg/tiles"
)

// Runner encapsulates pipeline execution with caching.
// Both the CLI and the server use it.
//
// The Runner holds no per-run state: catalogs are built per call and usage
// counts never leak between runs. Multiple goroutines can use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// MosaicOptions configures [Runner.Mosaic].
type MosaicOptions struct {
	CellSize    int
	Repeat      int
	BlendFactor float64 // Out-of-range values fall back to DefaultBlendFactor
	Progress    func(grid.Progress)
}

// Mosaic is an in-memory mosaic and its blend with the target.
type Mosaic struct {
	Plan        grid.Plan
	Mosaic      *image.NRGBA
	Blend       *image.NRGBA
	BlendFactor float64
	AssignTime  time.Duration
	RenderTime  time.Duration
}

// Execute runs the complete prepare → fit → assign → render pipeline and
// writes both outputs.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	result := &Result{}

	// Stage 1: Prepare
	if !opts.Exist {
		prep, err := r.Prepare(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("prepare: %w", err)
		}
		result.Stats.Sources = prep.Sources
		result.Stats.CacheHits = prep.CacheHits
		result.Stats.PrepareTime = prep.Duration
		opts.Logger.Info("prepared tiles",
			"sources", prep.Sources,
			"cache_hits", prep.CacheHits,
			"duration", prep.Duration)
	}

	store, err := tiles.Open(opts.ProcessedImageDir, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("open tiles: %w", err)
	}
	if store.CellSize() != opts.InputSize {
		opts.Logger.Warn("tile size differs from cell size; tiles will be clipped or padded",
			"tile_size", store.CellSize(),
			"cell_size", opts.InputSize)
	}
	cat, err := store.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	result.Stats.Candidates = cat.Len()
	opts.Logger.Info("loaded candidates", "candidates", cat.Len(), "dir", store.Dir())

	// Stage 2: Fit
	target, err := LoadTarget(opts.Input, opts.OutputSize)
	if err != nil {
		return nil, err
	}

	// Stages 3 and 4: Assign and render
	m, err := r.Mosaic(ctx, target, cat, r.Loader(store), MosaicOptions{
		CellSize:    opts.InputSize,
		Repeat:      opts.Repeat,
		BlendFactor: opts.BlendFactor,
		Progress:    opts.Progress,
	})
	if err != nil {
		return nil, err
	}
	result.Plan = m.Plan
	result.Stats.Cells = len(m.Plan)
	result.Stats.BlendFactor = m.BlendFactor
	result.Stats.AssignTime = m.AssignTime
	result.Stats.RenderTime = m.RenderTime

	result.MosaicPath = opts.Output
	result.BlendPath = BlendPath(opts.Output)
	if err := Save(m.Mosaic, result.MosaicPath); err != nil {
		return nil, err
	}
	if err := Save(m.Blend, result.BlendPath); err != nil {
		return nil, err
	}
	opts.Logger.Info("wrote outputs", "mosaic", result.MosaicPath, "blend", result.BlendPath)

	if opts.Publish.Enabled() {
		uris, err := r.Publish(ctx, opts.Publish, result.MosaicPath, result.BlendPath)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		result.URIs = uris
		opts.Logger.Info("published outputs", "uris", uris)
	}

	result.Stats.TotalTime = time.Since(start)
	return result, nil
}

// Prepare turns opts.RawImageDir into the processed tile directory using
// the runner's cache.
func (r *Runner) Prepare(ctx context.Context, opts Options) (*prepare.Result, error) {
	r.applyLogger(&opts)
	return prepare.Run(ctx, prepare.Options{
		SourceDir: opts.RawImageDir,
		OutputDir: opts.ProcessedImageDir,
		CellSize:  opts.InputSize,
		Workers:   opts.Workers,
		Cache:     r.Cache,
		Keyer:     r.Keyer,
		Logger:    opts.Logger,
		Progress:  opts.PrepareProgress,
	})
}

// Loader returns a tile loader for store backed by the runner's cache.
func (r *Runner) Loader(store *tiles.Store) *tiles.Loader {
	return tiles.NewLoader(store, r.Cache, r.Keyer)
}

// Mosaic assigns every cell of target against cat and renders the result,
// returning the mosaic and its blend with target.
//
// cat's usage counts are consumed; pass a Clone to keep the original fresh.
// When a repeat limit makes the grid impossible to fill, Mosaic fails with
// NO_ELIGIBLE_CANDIDATE before sampling any cell.
func (r *Runner) Mosaic(ctx context.Context, target image.Image, cat *catalog.Catalog, loader compose.TileLoader, opts MosaicOptions) (*Mosaic, error) {
	if target == nil {
		return nil, errors.New(errors.ErrCodeUnreadablePixels, "target image has no pixel data")
	}
	if cat == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no candidate catalog")
	}
	if err := errors.ValidatePositive("cell size", opts.CellSize); err != nil {
		return nil, err
	}
	if err := errors.ValidateNonNegative("repeat", opts.Repeat); err != nil {
		return nil, err
	}
	bounds := target.Bounds()
	cells := grid.Count(bounds, opts.CellSize)
	if err := checkCapacity(cells, cat.Len(), opts.Repeat); err != nil {
		return nil, err
	}

	m := &Mosaic{BlendFactor: compose.EffectiveBlendFactor(opts.BlendFactor)}
	if m.BlendFactor != opts.BlendFactor {
		r.Logger.Debug("blend factor out of range, using default",
			"requested", opts.BlendFactor,
			"factor", m.BlendFactor)
	}

	assignStart := time.Now()
	observability.Pipeline().OnAssignStart(ctx, cells, cat.Len())
	gopts := []grid.Option{grid.WithLogger(r.Logger)}
	if opts.Progress != nil {
		gopts = append(gopts, grid.WithProgress(opts.Progress))
	}
	plan, err := grid.Assign(ctx, target, opts.CellSize, cat, opts.Repeat, gopts...)
	m.AssignTime = time.Since(assignStart)
	observability.Pipeline().OnAssignComplete(ctx, len(plan), m.AssignTime, err)
	if err != nil {
		return nil, fmt.Errorf("assign: %w", err)
	}
	m.Plan = plan
	r.Logger.Info("assigned cells",
		"cells", len(plan),
		"candidates", cat.Len(),
		"distinct", len(plan.Counts()),
		"duration", m.AssignTime)

	renderStart := time.Now()
	observability.Pipeline().OnRenderStart(ctx, len(plan))
	m.Mosaic, m.Blend, err = render(ctx, plan, loader, target, m.BlendFactor)
	m.RenderTime = time.Since(renderStart)
	observability.Pipeline().OnRenderComplete(ctx, len(plan), m.RenderTime, err)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	r.Logger.Info("rendered mosaic", "blend_factor", m.BlendFactor, "duration", m.RenderTime)
	return m, nil
}

func render(ctx context.Context, plan grid.Plan, loader compose.TileLoader, target image.Image, factor float64) (*image.NRGBA, *image.NRGBA, error) {
	mosaic, err := compose.Render(ctx, plan, loader, target.Bounds())
	if err != nil {
		return nil, nil, err
	}
	blend, err := compose.Blend(mosaic, target, factor)
	if err != nil {
		return nil, nil, err
	}
	return mosaic, blend, nil
}

// checkCapacity fails when cells cannot be covered by candidates used at
// most repeat times each.
func checkCapacity(cells, candidates, repeat int) error {
	if candidates == 0 {
		return errors.New(errors.ErrCodeNoEligibleCandidate, "no candidates to match %d cells against", cells)
	}
	if repeat > 0 && cells > candidates*repeat {
		return errors.New(errors.ErrCodeNoEligibleCandidate,
			"%d cells need more than %d candidates × repeat %d; raise --repeat or add sources",
			cells, candidates, repeat)
	}
	return nil
}

// Publish uploads files to the configured bucket.
func (r *Runner) Publish(ctx context.Context, cfg storage.Config, files ...string) ([]string, error) {
	p, err := storage.New(ctx, cfg, r.Logger)
	if err != nil {
		return nil, err
	}
	return p.Publish(ctx, files...)
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// =============================================================================
// Image I/O
// =============================================================================

// LoadTarget opens the target image, honoring EXIF orientation, and fits it
// to size×size by center-cropping to a square and resizing.
func LoadTarget(path string, size int) (*image.NRGBA, error) {
	if err := errors.ValidatePositive("output size", size); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "input image %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeImageDecode, err, "decode input image %s", path)
	}
	return Fit(img, size)
}

// Fit center-crops img to a square and resizes it to size×size.
func Fit(img image.Image, size int) (*image.NRGBA, error) {
	if err := errors.ValidatePositive("output size", size); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New(errors.ErrCodeEmptyImage, "input image has no pixels")
	}
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos), nil
}

// Save writes img to path, choosing the format from the extension and
// creating the parent directory when needed.
func Save(img image.Image, path string) error {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "output %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
