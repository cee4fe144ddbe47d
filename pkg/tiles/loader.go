package tiles

import (
	"bytes"
	"context"
	"image"
	"os"
	"sync"

	"github.com/matzehuels/tessera/pkg/cache"
	"github.com/matzehuels/tessera/pkg/compose"
	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/observability"
)

// Loader reads tiles from a Store. Encoded bytes go through a byte cache
// (shared between processes when it is a Redis cache); decoded images are
// kept in memory for the loader's lifetime. Loader is safe for concurrent
// use.
type Loader struct {
	store *Store
	cache cache.Cache
	keyer cache.Keyer

	mu      sync.Mutex
	decoded map[string]image.Image
}

// NewLoader creates a loader over store. A nil cache disables byte caching;
// a nil keyer means cache.DefaultKeyer. Tile keys are scoped to the store's
// directory.
func NewLoader(store *Store, c cache.Cache, keyer cache.Keyer) *Loader {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Loader{
		store:   store,
		cache:   c,
		keyer:   cache.NewScopedKeyer(keyer, store.Scope()),
		decoded: make(map[string]image.Image),
	}
}

// LoadTile implements compose.TileLoader.
func (l *Loader) LoadTile(ctx context.Context, id string) (image.Image, error) {
	l.mu.Lock()
	img, ok := l.decoded[id]
	l.mu.Unlock()
	if ok {
		return img, nil
	}

	data, err := l.bytes(ctx, id)
	if err != nil {
		return nil, err
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeImageDecode, err, "decode tile %s", id)
	}

	l.mu.Lock()
	l.decoded[id] = img
	l.mu.Unlock()
	return img, nil
}

func (l *Loader) bytes(ctx context.Context, id string) ([]byte, error) {
	key := l.keyer.TileKey(id, l.store.CellSize())
	if data, hit, err := l.cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "tile")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "tile")

	path, ok := l.store.Path(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeFileNotFound, "unknown tile %s", id)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "tile %s", id)
		}
		return nil, err
	}

	if err := l.cache.Set(ctx, key, data, cache.TTLTile); err == nil {
		observability.Cache().OnCacheSet(ctx, "tile", len(data))
	}
	return data, nil
}

var _ compose.TileLoader = (*Loader)(nil)
