package cache

// ScopedKeyer prefixes every key from an inner Keyer. Tile loaders use it to
// keep the tiles of different processed directories apart in a shared cache.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "dir:"+Hash([]byte(absDir))[:12]+":")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// A nil inner keyer means DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// PreparedKey returns the inner key with the prefix prepended.
func (k *ScopedKeyer) PreparedKey(sourceHash string, opts PreparedKeyOpts) string {
	return k.prefix + k.inner.PreparedKey(sourceHash, opts)
}

// TileKey returns the inner key with the prefix prepended.
func (k *ScopedKeyer) TileKey(candidateID string, cellSize int) string {
	return k.prefix + k.inner.TileKey(candidateID, cellSize)
}

// Prefix returns the scope prefix.
func (k *ScopedKeyer) Prefix() string {
	return k.prefix
}
