package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// exercise runs the behavior every Cache implementation must share.
func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, hit, err := c.Get(ctx, "missing"); err != nil || hit {
		t.Fatalf("Get(missing) = hit %v, err %v; want miss", hit, err)
	}

	if err := c.Set(ctx, "k", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("Get(k) = hit %v, err %v; want hit", hit, err)
	}
	if string(data) != "value" {
		t.Errorf("Get(k) = %q, want %q", data, "value")
	}

	if err := c.Set(ctx, "k", []byte("other"), 0); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	if data, _, _ := c.Get(ctx, "k"); string(data) != "other" {
		t.Errorf("after overwrite Get(k) = %q, want %q", data, "other")
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	exercise(t, c)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("fresh entry should hit")
	}
	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not evicted, Len() = %d", c.Len())
	}
}

func TestMemoryCacheCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed with caller buffer: %q", got)
	}
	got[1] = 'y'
	if again, _, _ := c.Get(ctx, "k"); string(again) != "abc" {
		t.Errorf("stored value changed through Get result: %q", again)
	}
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	defer c.Close()
	exercise(t, c)
}

func TestFileCacheExpiredAndCorrupt(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}

	if err := c.Set(ctx, "old", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "old"); hit {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.path("old")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}

	path := c.path("bad")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "bad"); hit || err != nil {
		t.Errorf("corrupt entry: hit %v, err %v; want clean miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d entries, want 3", n)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, hit, _ := c.Get(ctx, k); hit {
			t.Errorf("%q survived Clear", k)
		}
	}
	if info, err := os.Stat(c.Dir()); err != nil || !info.IsDir() {
		t.Errorf("cache dir missing after Clear: %v", err)
	}
}

func TestFileCacheSharding(t *testing.T) {
	c := &FileCache{dir: "/cache"}
	p := c.path("some-key")
	rel, err := filepath.Rel("/cache", p)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 || len(parts[0]) != 2 || !strings.HasSuffix(parts[1], ".json") {
		t.Errorf("path(%q) = %q, want <2 hex>/<62 hex>.json", "some-key", p)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile error: %v", err)
	}
	if want := Hash([]byte("hello")); got != want {
		t.Errorf("HashFile = %s, want %s", got, want)
	}
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("HashFile of missing file should fail")
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	p1 := k.PreparedKey("abc", PreparedKeyOpts{CellSize: 85, Quality: 90, Filter: "lanczos"})
	p2 := k.PreparedKey("abc", PreparedKeyOpts{CellSize: 40, Quality: 90, Filter: "lanczos"})
	p3 := k.PreparedKey("abd", PreparedKeyOpts{CellSize: 85, Quality: 90, Filter: "lanczos"})
	if p1 == p2 || p1 == p3 {
		t.Error("PreparedKey should change with source hash and options")
	}
	if !strings.HasPrefix(p1, "prepared:") {
		t.Errorf("PreparedKey unexpected: %s", p1)
	}

	if got := k.TileKey("0b1c", 85); got != "tile:85:0b1c" {
		t.Errorf("TileKey unexpected: %s", got)
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "dir:1234:")

	if got := scoped.TileKey("x", 10); got != "dir:1234:tile:10:x" {
		t.Errorf("ScopedKeyer TileKey unexpected: %s", got)
	}
	if got := scoped.PreparedKey("h", PreparedKeyOpts{}); !strings.HasPrefix(got, "dir:1234:prepared:") {
		t.Errorf("ScopedKeyer PreparedKey should be prefixed: %s", got)
	}
}

func TestScopedKeyerNilInner(t *testing.T) {
	scoped := NewScopedKeyer(nil, "prefix:")
	if key := scoped.TileKey("a", 1); key != "prefix:tile:1:a" {
		t.Errorf("Unexpected key with nil inner: %s", key)
	}
}
