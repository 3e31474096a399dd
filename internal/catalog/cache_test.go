package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey_Distinct(t *testing.T) {
	a := SanitizeKey("1N5822-E3/73")
	b := SanitizeKey("1N5822-E3_73")
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "/")
	assert.Equal(t, "LM317T+%28TO-220%29", SanitizeKey("LM317T (TO-220)"))
}

func TestFileCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "1N5822-E3/73")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(ctx, "1N5822-E3/73", []byte(`{"mpn":"1N5822-E3/73"}`)))
	require.NoError(t, c.Put(ctx, "1N5822-E3_73", []byte(`{"mpn":"1N5822-E3_73"}`)))

	data, err := c.Get(ctx, "1N5822-E3/73")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mpn":"1N5822-E3/73"}`, string(data))

	data, err = c.Get(ctx, "1N5822-E3_73")
	require.NoError(t, err)
	assert.JSONEq(t, `{"mpn":"1N5822-E3_73"}`, string(data))

	assert.FileExists(t, filepath.Join(dir, "1N5822-E3%2F73.json"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestFileCache_OverwriteIsLastWriterWins(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "X", []byte("1")))
	require.NoError(t, c.Put(ctx, "X", []byte("2")))

	data, err := c.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestFileCache_TTL(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "X", []byte("1")))

	_, err = c.Get(ctx, "X")
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = c.Get(ctx, "X")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrCacheMiss)

	buf := []byte("abc")
	require.NoError(t, c.Put(ctx, "A", buf))
	buf[0] = 'z'

	data, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.Equal(t, 1, c.Len())
}

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLiteCache(ctx, filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	_, err = c.Get(ctx, "1N5822-E3/73")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(ctx, "1N5822-E3/73", []byte(`{"a":1}`)))
	require.NoError(t, c.Put(ctx, "1N5822-E3_73", []byte(`{"b":2}`)))
	require.NoError(t, c.Put(ctx, "1N5822-E3/73", []byte(`{"a":3}`)))

	data, err := c.Get(ctx, "1N5822-E3/73")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":3}`, string(data))

	data, err = c.Get(ctx, "1N5822-E3_73")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(data))

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = c.Get(ctx, "1N5822-E3_73")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
