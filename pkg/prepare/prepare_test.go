package prepare

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/tessera/pkg/cache"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
	"github.com/matzehuels/tessera/pkg/tiles"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func rawDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "c-blue.png"), 20, 12, color.NRGBA{0, 0, 255, 255})
	writePNG(t, filepath.Join(dir, "a-red.png"), 16, 16, color.NRGBA{255, 0, 0, 255})
	writePNG(t, filepath.Join(dir, "b-green.png"), 9, 30, color.NRGBA{0, 255, 0, 255})
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden.png"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestListSources(t *testing.T) {
	dir := rawDir(t)
	got, err := ListSources(dir)
	if err != nil {
		t.Fatalf("ListSources() error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a-red.png"),
		filepath.Join(dir, "b-green.png"),
		filepath.Join(dir, "c-blue.png"),
	}
	if len(got) != len(want) {
		t.Fatalf("ListSources() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListSources()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := ListSources(filepath.Join(dir, "missing")); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("missing dir: error = %v, want %v", err, errors.ErrCodeFileNotFound)
	}
}

func TestTile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.png")
	writePNG(t, path, 10, 6, color.NRGBA{255, 0, 0, 255})

	tile, c, err := Tile(path, 4)
	if err != nil {
		t.Fatalf("Tile() error: %v", err)
	}
	if b := tile.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("tile bounds = %v, want 4x4", b)
	}
	if d := hsv.Distance(c, hsv.New(0, 1, 1)); d > 0.01 {
		t.Errorf("tile color = %v, want ~(0, 1, 1)", c)
	}
}

func TestTileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jpg")
	if err := os.WriteFile(bad, []byte("not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Tile(bad, 4); !errors.Is(err, errors.ErrCodeImageDecode) {
		t.Errorf("corrupt: error = %v, want %v", err, errors.ErrCodeImageDecode)
	}
	if _, _, err := Tile(filepath.Join(dir, "missing.png"), 4); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("missing: error = %v, want %v", err, errors.ErrCodeFileNotFound)
	}
}

func TestRun(t *testing.T) {
	src := rawDir(t)
	out := filepath.Join(t.TempDir(), "processed")

	var reports []int
	res, err := Run(context.Background(), Options{
		SourceDir: src,
		OutputDir: out,
		CellSize:  8,
		Workers:   2,
		Progress: func(done, total int) {
			if total != 3 {
				t.Errorf("progress total = %d, want 3", total)
			}
			reports = append(reports, done)
		},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Sources != 3 || len(res.Manifest.Tiles) != 3 {
		t.Fatalf("Run() = %d sources, %d tiles; want 3, 3", res.Sources, len(res.Manifest.Tiles))
	}
	for i, d := range reports {
		if d != i+1 {
			t.Errorf("progress report %d = %d, want %d", i, d, i+1)
		}
	}

	m, err := tiles.ReadManifest(out)
	if err != nil {
		t.Fatalf("ReadManifest() error: %v", err)
	}
	if m.CellSize != 8 {
		t.Errorf("manifest cell_size = %d, want 8", m.CellSize)
	}

	wantColors := []hsv.Color{hsv.New(0, 1, 1), hsv.New(0.333, 1, 1), hsv.New(0.667, 1, 1)}
	ids := make(map[string]bool)
	for i, r := range m.Tiles {
		if want := filepath.Join(src, []string{"a-red.png", "b-green.png", "c-blue.png"}[i]); r.Source != want {
			t.Errorf("tile %d source = %s, want %s", i, r.Source, want)
		}
		c, err := r.Color()
		if err != nil {
			t.Fatalf("tile %d color: %v", i, err)
		}
		if d := hsv.Distance(c, wantColors[i]); d > 0.01 {
			t.Errorf("tile %d color = %v, want ~%v", i, c, wantColors[i])
		}
		if ids[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		ids[r.ID] = true

		f, err := os.Open(filepath.Join(out, r.File))
		if err != nil {
			t.Fatalf("tile file: %v", err)
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("decode tile %s: %v", r.File, err)
		}
		if cfg.Width != 8 || cfg.Height != 8 {
			t.Errorf("tile %s is %dx%d, want 8x8", r.File, cfg.Width, cfg.Height)
		}
	}
}

func TestRunSameColorSourcesBothKept(t *testing.T) {
	src := t.TempDir()
	writePNG(t, filepath.Join(src, "one.png"), 8, 8, color.NRGBA{10, 200, 30, 255})
	writePNG(t, filepath.Join(src, "two.png"), 12, 12, color.NRGBA{10, 200, 30, 255})

	res, err := Run(context.Background(), Options{SourceDir: src, OutputDir: t.TempDir(), CellSize: 4})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Manifest.Tiles) != 2 {
		t.Fatalf("got %d tiles, want 2", len(res.Manifest.Tiles))
	}
	a, b := res.Manifest.Tiles[0], res.Manifest.Tiles[1]
	if a.ID == b.ID || a.File == b.File {
		t.Errorf("same-color sources collided: %+v %+v", a, b)
	}
}

func TestRunCachedAndReplacesStaleTiles(t *testing.T) {
	src := rawDir(t)
	out := t.TempDir()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{SourceDir: src, OutputDir: out, CellSize: 6, Cache: fc}

	first, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if first.CacheHits != 0 {
		t.Errorf("first run cache hits = %d, want 0", first.CacheHits)
	}

	if err := os.WriteFile(filepath.Join(out, "keep.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if second.CacheHits != 3 {
		t.Errorf("second run cache hits = %d, want 3", second.CacheHits)
	}

	for _, r := range first.Manifest.Tiles {
		if _, err := os.Stat(filepath.Join(out, r.File)); !os.IsNotExist(err) {
			t.Errorf("stale tile %s still present", r.File)
		}
	}
	for i, r := range second.Manifest.Tiles {
		if r.HSV[0] != first.Manifest.Tiles[i].HSV[0] {
			t.Errorf("cached tile %d color changed: %v vs %v", i, r.HSV, first.Manifest.Tiles[i].HSV)
		}
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	// 3 tiles, the manifest, and the unrelated file.
	if len(names) != 5 {
		t.Errorf("output dir holds %v, want 3 tiles + manifest + keep.txt", names)
	}
}

func TestRunFailureKeepsPreviousTiles(t *testing.T) {
	out := t.TempDir()
	first, err := Run(context.Background(), Options{SourceDir: rawDir(t), OutputDir: out, CellSize: 4})
	if err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	before := listDir(t, out)

	broken := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(broken, name), 4, 4, color.White)
	}
	if err := os.WriteFile(filepath.Join(broken, "d.jpg"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), Options{SourceDir: broken, OutputDir: out, CellSize: 4, Workers: 1}); !errors.Is(err, errors.ErrCodeImageDecode) {
		t.Fatalf("Run() error = %v, want %v", err, errors.ErrCodeImageDecode)
	}

	if diff := cmp.Diff(before, listDir(t, out)); diff != "" {
		t.Errorf("output dir changed by failed run (-before +after):\n%s", diff)
	}
	m, err := tiles.ReadManifest(out)
	if err != nil {
		t.Fatalf("previous manifest lost: %v", err)
	}
	if diff := cmp.Diff(first.Manifest.Tiles, m.Tiles); diff != "" {
		t.Errorf("manifest changed (-want +got):\n%s", diff)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunErrors(t *testing.T) {
	empty := t.TempDir()
	if err := os.WriteFile(filepath.Join(empty, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	broken := t.TempDir()
	writePNG(t, filepath.Join(broken, "ok.png"), 4, 4, color.White)
	if err := os.WriteFile(filepath.Join(broken, "bad.jpg"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"no sources", Options{SourceDir: empty, OutputDir: t.TempDir(), CellSize: 4}, errors.ErrCodeInvalidInput},
		{"undecodable source", Options{SourceDir: broken, OutputDir: t.TempDir(), CellSize: 4}, errors.ErrCodeImageDecode},
		{"zero cell size", Options{SourceDir: broken, OutputDir: t.TempDir()}, errors.ErrCodeInvalidConfig},
		{"missing source dir", Options{SourceDir: filepath.Join(empty, "nope"), OutputDir: t.TempDir(), CellSize: 4}, errors.ErrCodeFileNotFound},
		{"quality too high", Options{SourceDir: broken, OutputDir: t.TempDir(), CellSize: 4, Quality: 101}, errors.ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("Run() error = %v, want code %v", err, tt.code)
			}
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, Options{SourceDir: rawDir(t), OutputDir: t.TempDir(), CellSize: 4}); err == nil {
		t.Error("Run() with canceled context should fail")
	}
}
