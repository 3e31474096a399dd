package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/metrics"
	"github.com/sells-group/bom-cli/internal/model"
	"github.com/sells-group/bom-cli/internal/resilience"
	"github.com/sells-group/bom-cli/pkg/nexar"
)

// Directory is the external parts directory. nexar.Client satisfies it.
type Directory interface {
	SearchMPN(ctx context.Context, mpn string) ([]nexar.Part, error)
}

// Limiter admits a bounded number of concurrent outbound calls.
// *semaphore.Weighted satisfies it.
type Limiter interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}

// Outcome tags how a lookup ended.
type Outcome string

const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomeCacheHit       Outcome = "cache_hit"
	OutcomeFetched        Outcome = "fetched"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeUnauthorized   Outcome = "unauthorized"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeDecodeError    Outcome = "decode_error"
	OutcomeCancelled      Outcome = "cancelled"
)

// Result is the outcome of a lookup. Entry is nil unless Outcome is
// OutcomeCacheHit or OutcomeFetched. Err carries the underlying failure for
// diagnostics; callers never need to act on it.
type Result struct {
	Entry   *model.CatalogEntry
	Outcome Outcome
	Err     error
}

// Found reports whether an entry was returned.
func (r Result) Found() bool {
	return r.Entry != nil
}

// Client resolves part numbers through the cache, then the directory.
type Client struct {
	dir   Directory
	cache Cache
}

// NewClient creates a Client. cache may be nil to disable caching.
func NewClient(dir Directory, cache Cache) *Client {
	return &Client{dir: dir, cache: cache}
}

// Lookup returns the catalog entry for mpn. It never returns an error: every
// failure is logged and reported through Result.Outcome. Cache hits do not
// take a limiter slot; a nil limiter leaves outbound calls unbounded.
func (c *Client) Lookup(ctx context.Context, mpn string, limiter Limiter) Result {
	res := c.lookup(ctx, mpn, limiter)
	metrics.CatalogLookups.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (c *Client) lookup(ctx context.Context, mpn string, limiter Limiter) Result {
	mpn = strings.TrimSpace(mpn)
	if mpn == "" {
		return Result{Outcome: OutcomeSkipped}
	}
	log := zap.L().With(zap.String("mpn", mpn))

	if entry, ok := c.fromCache(ctx, log, mpn); ok {
		return Result{Entry: entry, Outcome: OutcomeCacheHit}
	}

	if limiter != nil {
		if err := limiter.Acquire(ctx, 1); err != nil {
			log.Warn("catalog: gave up waiting for a lookup slot", zap.Error(err))
			return Result{Outcome: OutcomeCancelled, Err: err}
		}
	}
	metrics.CatalogInFlight.Inc()
	start := time.Now()
	log.Info("catalog: querying directory")
	parts, err := c.dir.SearchMPN(ctx, mpn)
	metrics.CatalogCallDuration.Observe(time.Since(start).Seconds())
	metrics.CatalogInFlight.Dec()
	if limiter != nil {
		limiter.Release(1)
	}

	if err != nil {
		outcome := classify(ctx, err)
		log.Error("catalog: directory lookup failed", zap.String("outcome", string(outcome)), zap.Error(err))
		return Result{Outcome: outcome, Err: err}
	}
	if len(parts) == 0 {
		log.Info("catalog: no directory match")
		return Result{Outcome: OutcomeNotFound}
	}

	part := parts[0]
	c.toCache(ctx, log, mpn, part)
	return Result{Entry: ToEntry(part), Outcome: OutcomeFetched}
}

func (c *Client) fromCache(ctx context.Context, log *zap.Logger, mpn string) (*model.CatalogEntry, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.Get(ctx, mpn)
	switch {
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheEvents.WithLabelValues("miss").Inc()
		log.Info("catalog: cache miss")
		return nil, false
	case err != nil:
		metrics.CacheEvents.WithLabelValues("error").Inc()
		log.Warn("catalog: cache read failed, fetching from directory", zap.Error(err))
		return nil, false
	}

	var part nexar.Part
	if err := json.Unmarshal(data, &part); err != nil {
		metrics.CacheEvents.WithLabelValues("corrupt").Inc()
		log.Warn("catalog: corrupt cache entry, fetching from directory", zap.Error(err))
		return nil, false
	}
	metrics.CacheEvents.WithLabelValues("hit").Inc()
	log.Info("catalog: cache hit")
	return ToEntry(part), true
}

func (c *Client) toCache(ctx context.Context, log *zap.Logger, mpn string, part nexar.Part) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(part)
	if err == nil {
		err = c.cache.Put(ctx, mpn, data)
	}
	if err != nil {
		metrics.CacheEvents.WithLabelValues("write_error").Inc()
		log.Error("catalog: could not write cache entry", zap.Error(err))
	}
}

// Cached returns the cached entry for mpn without touching the directory.
func (c *Client) Cached(ctx context.Context, mpn string) (*model.CatalogEntry, bool) {
	return c.fromCache(ctx, zap.L().With(zap.String("mpn", mpn)), strings.TrimSpace(mpn))
}

func classify(ctx context.Context, err error) Outcome {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, nexar.ErrMissingToken), errors.Is(err, nexar.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, nexar.ErrRateLimited), resilience.IsRateLimited(err):
		return OutcomeRateLimited
	case errors.Is(err, nexar.ErrMalformed):
		return OutcomeDecodeError
	default:
		return OutcomeTransportError
	}
}
