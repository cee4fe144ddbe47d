// Package prepare turns a directory of raw source images into a processed
// tile directory.
//
// Every source is decoded, center-cropped and resized to cellSize×cellSize,
// sampled for its average color, and written as "<uuid>.jpg". Sources are
// independent, so they are processed on a bounded worker pool with no
// ordering between tasks; the first failure cancels the rest. Once every
// task has succeeded the manifest is written, listing tiles in source-path
// order so the catalog built from it is deterministic.
//
// Results are cached by source content hash and cell size: preparing an
// unchanged directory again only copies cached tile bytes.
package prepare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	// Decoders for formats imaging does not register.
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/tessera/pkg/cache"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
	"github.com/matzehuels/tessera/pkg/observability"
	"github.com/matzehuels/tessera/pkg/tiles"
)

// DefaultQuality is the JPEG quality tiles are written with.
const DefaultQuality = 90

// Extensions lists the source file extensions that are prepared.
var Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Options configures [Run].
type Options struct {
	SourceDir string // Raw source images (not searched recursively)
	OutputDir string // Processed tile directory, created if missing
	CellSize  int    // Tile edge length in pixels
	Workers   int    // Parallel tasks; <= 0 means runtime.GOMAXPROCS(0)
	Quality   int    // JPEG quality; <= 0 means DefaultQuality

	Cache  cache.Cache  // Prepared-tile cache; nil disables caching
	Keyer  cache.Keyer  // nil means cache.DefaultKeyer
	Logger *log.Logger  // nil discards logs
	// Progress, if set, is called after each finished source with the
	// number done so far. Calls may come from several goroutines but are
	// serialized and Done increases by one each time.
	Progress func(done, total int)
}

// Result summarizes a preparation run.
type Result struct {
	Sources   int
	CacheHits int
	Duration  time.Duration
	Manifest  *tiles.Manifest
}

type prepared struct {
	HSV  [3]float64 `json:"hsv"`
	JPEG []byte     `json:"jpeg"`
}

// Run prepares every source image in opts.SourceDir into opts.OutputDir.
//
// It fails with INVALID_INPUT when the source directory holds no images and
// with IMAGE_DECODE when any source cannot be decoded. Tiles listed by a
// manifest already in OutputDir are removed once the new manifest is
// written; other files are left alone. A failed run removes the tiles it
// wrote and leaves the previous manifest in place.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}

	sources, err := ListSources(opts.SourceDir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no source images found in %s", opts.SourceDir)
	}
	opts.Logger.Info("found source images", "count", len(sources), "dir", opts.SourceDir)

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, err
	}
	stale, err := staleTiles(opts.OutputDir)
	if err != nil {
		return nil, err
	}

	observability.Pipeline().OnPrepareStart(ctx, len(sources))
	res, err := run(ctx, opts, sources)
	if err != nil {
		observability.Pipeline().OnPrepareComplete(ctx, 0, time.Since(start), err)
		return nil, err
	}
	removeTiles(opts.OutputDir, stale, opts.Logger)
	res.Duration = time.Since(start)
	observability.Pipeline().OnPrepareComplete(ctx, len(res.Manifest.Tiles), res.Duration, nil)
	return res, nil
}

func run(ctx context.Context, opts Options, sources []string) (*Result, error) {
	records := make([]tiles.Record, len(sources))
	var hits atomic.Int64
	progress := newCounter(opts.Progress, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, hit, err := prepareOne(gctx, opts, src)
			if err != nil {
				return err
			}
			records[i] = rec
			if hit {
				hits.Add(1)
			}
			progress.step()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeWritten(opts.OutputDir, records, opts.Logger)
		return nil, err
	}

	m := &tiles.Manifest{CellSize: opts.CellSize, Tiles: records}
	if err := tiles.WriteManifest(opts.OutputDir, m); err != nil {
		removeWritten(opts.OutputDir, records, opts.Logger)
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	opts.Logger.Debug("wrote manifest", "tiles", len(records), "cache_hits", hits.Load())

	return &Result{
		Sources:   len(sources),
		CacheHits: int(hits.Load()),
		Manifest:  m,
	}, nil
}

func prepareOne(ctx context.Context, opts Options, src string) (tiles.Record, bool, error) {
	id := uuid.NewString()
	out := filepath.Join(opts.OutputDir, id+".jpg")

	sum, err := cache.HashFile(src)
	if err != nil {
		return tiles.Record{}, false, err
	}
	key := opts.Keyer.PreparedKey(sum, cache.PreparedKeyOpts{
		CellSize: opts.CellSize,
		Quality:  opts.Quality,
		Filter:   "lanczos",
	})

	if p, ok := lookup(ctx, opts.Cache, key); ok {
		if err := os.WriteFile(out, p.JPEG, 0644); err != nil {
			os.Remove(out)
			return tiles.Record{}, false, err
		}
		c := hsv.New(p.HSV[0], p.HSV[1], p.HSV[2])
		return tiles.NewRecord(id, src, c), true, nil
	}

	tile, c, err := Tile(src, opts.CellSize)
	if err != nil {
		return tiles.Record{}, false, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, tile, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return tiles.Record{}, false, fmt.Errorf("encode tile for %s: %w", src, err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		os.Remove(out)
		return tiles.Record{}, false, err
	}

	store(ctx, opts.Cache, key, prepared{HSV: [3]float64{c.H, c.S, c.V}, JPEG: buf.Bytes()})
	opts.Logger.Debug("prepared tile", "source", src, "id", id, "hsv", c.Key())
	return tiles.NewRecord(id, src, c), false, nil
}

// Tile decodes the image at path, crops and resizes it to size×size around
// its center, and returns it with its average color.
func Tile(path string, size int) (image.Image, hsv.Color, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hsv.Color{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, hsv.Color{}, errors.Wrap(errors.ErrCodeImageDecode, err, "decode %s", path)
	}
	tile := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
	c, err := hsv.Average(tile)
	if err != nil {
		return nil, hsv.Color{}, fmt.Errorf("sample %s: %w", path, err)
	}
	return tile, c, nil
}

func lookup(ctx context.Context, c cache.Cache, key string) (prepared, bool) {
	data, hit, err := c.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "prepared")
		return prepared{}, false
	}
	var p prepared
	if err := json.Unmarshal(data, &p); err != nil || len(p.JPEG) == 0 {
		observability.Cache().OnCacheMiss(ctx, "prepared")
		return prepared{}, false
	}
	observability.Cache().OnCacheHit(ctx, "prepared")
	return p, true
}

func store(ctx context.Context, c cache.Cache, key string, p prepared) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.Set(ctx, key, data, cache.TTLPrepared); err == nil {
		observability.Cache().OnCacheSet(ctx, "prepared", len(data))
	}
}

// ListSources returns the image files directly inside dir, sorted by path.
// Hidden files and files with other extensions are ignored.
func ListSources(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "source directory %s", dir)
		}
		return nil, err
	}
	var paths []string
	for _, de := range des {
		name := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(name, ".") || !supported(name) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// staleTiles returns the tile files a previous manifest in dir lists.
func staleTiles(dir string) ([]string, error) {
	m, err := tiles.ReadManifest(dir)
	if err != nil {
		if errors.Is(err, errors.ErrCodeFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	files := make([]string, 0, len(m.Tiles))
	for _, r := range m.Tiles {
		if errors.ValidateFilename(r.File) == nil {
			files = append(files, r.File)
		}
	}
	return files, nil
}

// removeTiles deletes files from dir. Failures are logged; the new manifest
// no longer references them.
func removeTiles(dir string, files []string, logger *log.Logger) {
	for _, f := range files {
		if err := os.Remove(filepath.Join(dir, f)); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not remove tile", "file", f, "err", err)
		}
	}
	if len(files) > 0 {
		logger.Debug("removed previous tiles", "count", len(files))
	}
}

// removeWritten deletes the tiles a failed run managed to write.
func removeWritten(dir string, records []tiles.Record, logger *log.Logger) {
	var files []string
	for _, r := range records {
		if r.File != "" {
			files = append(files, r.File)
		}
	}
	removeTiles(dir, files, logger)
}

func (o *Options) setDefaults() error {
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if o.Cache == nil {
		o.Cache = cache.NewNullCache()
	}
	if o.Keyer == nil {
		o.Keyer = cache.NewDefaultKeyer()
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if err := errors.ValidatePositive("cell size", o.CellSize); err != nil {
		return err
	}
	if err := errors.ValidatePath("source directory", o.SourceDir); err != nil {
		return err
	}
	if err := errors.ValidatePath("output directory", o.OutputDir); err != nil {
		return err
	}
	if o.Quality > 100 {
		return errors.New(errors.ErrCodeInvalidConfig, "JPEG quality must be at most 100, got %d", o.Quality)
	}
	return nil
}

// counter reports finished tasks to a progress callback in order.
type counter struct {
	mu    sync.Mutex
	done  int
	total int
	fn    func(done, total int)
}

func newCounter(fn func(done, total int), total int) *counter {
	return &counter{fn: fn, total: total}
}

func (c *counter) step() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	if c.fn != nil {
		c.fn(c.done, c.total)
	}
}
