// Package tiles manages a processed tile directory: the pre-resized
// candidate images and the manifest that maps each candidate ID to its file,
// source image, and average color.
//
// # Layout
//
//	processed/
//	  manifest.toml
//	  2f1c9a4e-....jpg
//	  8d03b7c2-....jpg
//
// The manifest records the cell size tiles were resized to and one [[tile]]
// table per candidate:
//
//	cell_size = 85
//
//	[[tile]]
//	id = "2f1c9a4e-5b6d-4c1e-9a7f-0c2d3e4f5a6b"
//	file = "2f1c9a4e-5b6d-4c1e-9a7f-0c2d3e4f5a6b.jpg"
//	source = "raw/beach.jpg"
//	hsv = [0.55, 0.31, 0.82]
//
// Identity comes from the generated ID, never from the color, so two sources
// that round to the same color are both kept.
//
// Directories without a manifest, where each file is named by its color key
// such as "(0.233, 0.5, 0.8).jpg", are read as legacy directories; see
// [Open].
package tiles

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/tessera/pkg/catalog"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
)

// ManifestName is the manifest file name inside a processed directory.
const ManifestName = "manifest.toml"

// Manifest describes the tiles in a processed directory.
type Manifest struct {
	CellSize int      `toml:"cell_size"`
	Tiles    []Record `toml:"tile"`
}

// Record describes one tile.
type Record struct {
	ID     string    `toml:"id"`
	File   string    `toml:"file"`
	Source string    `toml:"source"`
	HSV    []float64 `toml:"hsv"`
}

// Color returns the record's color, validating it.
func (r Record) Color() (hsv.Color, error) {
	if len(r.HSV) != 3 {
		return hsv.Color{}, errors.New(errors.ErrCodeInvalidInput, "tile %s: hsv needs 3 components, got %d", r.ID, len(r.HSV))
	}
	c := hsv.New(r.HSV[0], r.HSV[1], r.HSV[2])
	if !c.Valid() {
		return hsv.Color{}, errors.New(errors.ErrCodeInvalidInput, "tile %s: hsv %v outside [0,1]", r.ID, r.HSV)
	}
	return c, nil
}

// NewRecord builds a record for a tile stored as "<id>.jpg".
func NewRecord(id, source string, c hsv.Color) Record {
	return Record{
		ID:     id,
		File:   id + ".jpg",
		Source: source,
		HSV:    []float64{c.H, c.S, c.V},
	}
}

// Entries converts the manifest into catalog entries in manifest order.
func (m *Manifest) Entries() ([]catalog.Entry, error) {
	entries := make([]catalog.Entry, 0, len(m.Tiles))
	for _, r := range m.Tiles {
		c, err := r.Color()
		if err != nil {
			return nil, err
		}
		entries = append(entries, catalog.Entry{ID: r.ID, Color: c, Source: r.Source})
	}
	return entries, nil
}

// ReadManifest reads dir/manifest.toml. A missing manifest is FILE_NOT_FOUND.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "no manifest in %s", dir)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	if m.CellSize <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%s: cell_size must be positive, got %d", path, m.CellSize)
	}
	return &m, nil
}

// WriteManifest writes m to dir/manifest.toml, replacing any existing file
// atomically.
func WriteManifest(dir string, m *Manifest) error {
	tmp, err := os.CreateTemp(dir, ".manifest-*.toml")
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(tmp).Encode(m); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, ManifestName))
}
