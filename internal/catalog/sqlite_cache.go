package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteCache stores directory records in a SQLite table.
type SQLiteCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

const partCacheMigration = `
CREATE TABLE IF NOT EXISTS part_cache (
	key       TEXT PRIMARY KEY,
	mpn       TEXT NOT NULL,
	data      BLOB NOT NULL,
	cached_at INTEGER NOT NULL
);
`

// NewSQLiteCache opens (or creates) a cache database at dsn. A ttl of zero
// keeps entries forever.
func NewSQLiteCache(ctx context.Context, dsn string, ttl time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open sqlite cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "catalog: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, partCacheMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "catalog: migrate sqlite cache")
	}
	return &SQLiteCache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, mpn string) ([]byte, error) {
	var (
		data     []byte
		cachedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT data, cached_at FROM part_cache WHERE key = ?`, SanitizeKey(mpn),
	).Scan(&data, &cachedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, eris.Wrap(err, "catalog: sqlite cache get")
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(0, cachedAt)) > c.ttl {
		return nil, ErrCacheMiss
	}
	return data, nil
}

func (c *SQLiteCache) Put(ctx context.Context, mpn string, data []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO part_cache (key, mpn, data, cached_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at`,
		SanitizeKey(mpn), mpn, data, c.now().UnixNano(),
	)
	return eris.Wrap(err, "catalog: sqlite cache put")
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
