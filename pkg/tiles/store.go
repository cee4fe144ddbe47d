package tiles

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/tessera/pkg/cache"
	"github.com/matzehuels/tessera/pkg/catalog"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
)

// legacyNamespace seeds the deterministic IDs given to legacy tiles.
var legacyNamespace = uuid.MustParse("6f0f7a52-3c1d-5b8e-9e4a-7d2b1c0e5f3a")

// Store is a read-only view of a processed tile directory.
type Store struct {
	dir      string
	scope    string
	cellSize int
	legacy   bool
	entries  []catalog.Entry
	files    map[string]string
}

// Open loads the processed directory dir.
//
// With a manifest, tiles are listed in manifest order. Without one the
// directory is read as a legacy directory: every "*.jpg" file whose name is
// a color key becomes a candidate, in file-name order, with an ID derived
// from the file name and contents. "None.jpg" is skipped, as are files whose names do not
// parse. The cell size of a legacy directory is read from its first tile.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "processed directory %s", dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s is not a directory", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var s *Store
	m, err := ReadManifest(dir)
	switch {
	case err == nil:
		s, err = fromManifest(dir, m)
	case errors.Is(err, errors.ErrCodeFileNotFound):
		logger.Debug("no manifest, reading legacy tile names", "dir", dir)
		s, err = fromLegacy(dir, logger)
	}
	if err != nil {
		return nil, err
	}
	s.scope = "dir:" + cache.Hash([]byte(abs))[:12] + ":"
	return s, nil
}

func fromManifest(dir string, m *Manifest) (*Store, error) {
	entries, err := m.Entries()
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:      dir,
		cellSize: m.CellSize,
		entries:  entries,
		files:    make(map[string]string, len(m.Tiles)),
	}
	for _, r := range m.Tiles {
		if err := errors.ValidateFilename(r.File); err != nil {
			return nil, fmt.Errorf("tile %s: %w", r.ID, err)
		}
		s.files[r.ID] = filepath.Join(dir, r.File)
	}
	return s, nil
}

func fromLegacy(dir string, logger *log.Logger) (*Store, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(des))
	for _, de := range des {
		if de.Type().IsRegular() && strings.EqualFold(filepath.Ext(de.Name()), ".jpg") {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	s := &Store{
		dir:    dir,
		legacy: true,
		files:  make(map[string]string, len(names)),
	}
	for _, name := range names {
		if strings.EqualFold(name, "None.jpg") {
			continue
		}
		c, err := hsv.ParseKey(name)
		if err != nil {
			logger.Warn("skipping tile with unparseable name", "file", name)
			continue
		}
		path := filepath.Join(dir, name)
		sum, err := cache.HashFile(path)
		if err != nil {
			return nil, err
		}
		id := uuid.NewSHA1(legacyNamespace, []byte(name+":"+sum)).String()
		s.entries = append(s.entries, catalog.Entry{ID: id, Color: c, Source: name})
		s.files[id] = path
	}

	if len(s.entries) > 0 {
		size, err := tileSize(s.files[s.entries[0].ID])
		if err != nil {
			return nil, err
		}
		s.cellSize = size
	}
	return s, nil
}

func tileSize(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeImageDecode, err, "decode %s", path)
	}
	return cfg.Width, nil
}

// Dir returns the directory the store was opened from.
func (s *Store) Dir() string { return s.dir }

// Scope returns the cache key prefix that keeps this directory's tiles apart
// from those of other directories.
func (s *Store) Scope() string { return s.scope }

// CellSize returns the edge length tiles were resized to, or 0 for an empty
// legacy directory.
func (s *Store) CellSize() int { return s.cellSize }

// Legacy reports whether the directory had no manifest.
func (s *Store) Legacy() bool { return s.legacy }

// Len returns the number of tiles.
func (s *Store) Len() int { return len(s.entries) }

// Entries returns the catalog entries in load order.
func (s *Store) Entries() []catalog.Entry {
	out := make([]catalog.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Path returns the file holding the tile for id.
func (s *Store) Path(id string) (string, bool) {
	p, ok := s.files[id]
	return p, ok
}

// Catalog builds a fresh catalog over the store's tiles.
func (s *Store) Catalog() (*catalog.Catalog, error) {
	return catalog.New(s.entries)
}
