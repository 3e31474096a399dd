// Package catalog resolves part numbers to catalog entries through a
// persistent cache and the parts directory.
package catalog

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCacheMiss is returned by Cache.Get when no usable entry exists.
var ErrCacheMiss = eris.New("catalog: cache miss")

// Cache stores raw directory records keyed by part number. Implementations
// sanitize the part number themselves; callers pass it as-is.
type Cache interface {
	// Get returns the stored record or ErrCacheMiss.
	Get(ctx context.Context, mpn string) ([]byte, error)
	// Put stores data under mpn, replacing any previous record.
	Put(ctx context.Context, mpn string, data []byte) error
}

// SanitizeKey escapes a part number into a token that is safe as a file name
// or database key. Distinct part numbers map to distinct keys.
func SanitizeKey(mpn string) string {
	return url.QueryEscape(mpn)
}

// FileCache keeps one JSON file per part number in a directory.
type FileCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewFileCache creates dir if needed. A ttl of zero keeps entries forever.
func NewFileCache(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "catalog: create cache dir %s", dir)
	}
	return &FileCache{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Path returns the file that holds mpn's record.
func (c *FileCache) Path(mpn string) string {
	return filepath.Join(c.dir, SanitizeKey(mpn)+".json")
}

func (c *FileCache) Get(_ context.Context, mpn string) ([]byte, error) {
	path := c.Path(mpn)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, eris.Wrapf(err, "catalog: stat %s", path)
	}
	if c.ttl > 0 && c.now().Sub(info.ModTime()) > c.ttl {
		return nil, ErrCacheMiss
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return data, nil
}

// Put writes through a temp file and rename so readers never see a partial
// record.
func (c *FileCache) Put(_ context.Context, mpn string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".part-*")
	if err != nil {
		return eris.Wrap(err, "catalog: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "catalog: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "catalog: close temp file")
	}
	if err := os.Rename(tmp.Name(), c.Path(mpn)); err != nil {
		return eris.Wrapf(err, "catalog: rename into %s", c.Path(mpn))
	}
	return nil
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, mpn string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.entries[SanitizeKey(mpn)]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), data...), nil
}

func (c *MemoryCache) Put(_ context.Context, mpn string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[SanitizeKey(mpn)] = append([]byte(nil), data...)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
