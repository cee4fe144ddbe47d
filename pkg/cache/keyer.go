package cache

import "fmt"

// Keyer generates cache keys. Implementations must be deterministic.
type Keyer interface {
	// PreparedKey identifies the prepared tile for a raw source image.
	PreparedKey(sourceHash string, opts PreparedKeyOpts) string
	// TileKey identifies the encoded bytes of a processed tile.
	TileKey(candidateID string, cellSize int) string
}

// PreparedKeyOpts holds the settings that change a prepared tile.
type PreparedKeyOpts struct {
	CellSize int    `json:"cell_size"`
	Quality  int    `json:"quality"`
	Filter   string `json:"filter"`
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// PreparedKey returns "prepared:<sha256(sourceHash, opts)>".
func (DefaultKeyer) PreparedKey(sourceHash string, opts PreparedKeyOpts) string {
	return hashKey("prepared", sourceHash, opts)
}

// TileKey returns "tile:<size>:<id>".
func (DefaultKeyer) TileKey(candidateID string, cellSize int) string {
	return fmt.Sprintf("tile:%d:%s", cellSize, candidateID)
}

var _ Keyer = DefaultKeyer{}
