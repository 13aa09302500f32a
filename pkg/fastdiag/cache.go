package fastdiag

import (
	"context"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gitrdm/fastdiagp/internal/workerpool"
)

// CheckCache maps a Fingerprint to the single Future<Result> backing it,
// per §4.4: once a fingerprint is inserted its future is immutable for the
// life of the cache, and concurrent observers of the same fingerprint
// share one future rather than each submitting their own oracle call.
//
// The single-flight collapsing of concurrent duplicate submissions is
// delegated to golang.org/x/sync/singleflight, whose Group.DoChan exists
// for exactly this "many callers, one in-flight call" shape; the cache
// still keeps its own map so a fingerprint's result remains reachable long
// after singleflight has forgotten the call that produced it.
type CheckCache struct {
	mu      sync.RWMutex
	entries map[Fingerprint]*workerpool.Future[Result]
	group   singleflight.Group

	pool   *workerpool.Pool[Result]
	oracle Oracle
}

// NewCheckCache creates an empty cache backed by pool, submitting oracle
// checks to it on miss.
func NewCheckCache(pool *workerpool.Pool[Result], oracle Oracle) *CheckCache {
	return &CheckCache{
		entries: make(map[Fingerprint]*workerpool.Future[Result]),
		pool:    pool,
		oracle:  oracle,
	}
}

type cacheEntry struct {
	future   *workerpool.Future[Result]
	inserted bool
}

// GetOrInsert returns the future for fp, submitting check(cs) to the pool
// if fp is not yet present. The returned bool is true only for the call
// that actually caused the submission; every other observer — whether
// concurrent or later — gets false.
func (c *CheckCache) GetOrInsert(ctx context.Context, fp Fingerprint, cs ConstraintSet) (*workerpool.Future[Result], bool, error) {
	c.mu.RLock()
	if f, ok := c.entries[fp]; ok {
		c.mu.RUnlock()
		return f, false, nil
	}
	c.mu.RUnlock()

	key := hex.EncodeToString(fp[:])
	// Only the caller whose function singleflight actually runs sets
	// submitted; callers that share that in-flight call leave it false.
	submitted := false
	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if f, ok := c.entries[fp]; ok {
			return cacheEntry{future: f, inserted: false}, nil
		}

		f, err := c.pool.Submit(ctx, key, func(jobCtx context.Context) (Result, error) {
			return c.oracle.Check(jobCtx, cs)
		})
		if err != nil {
			return nil, err
		}
		c.entries[fp] = f
		submitted = true
		return cacheEntry{future: f, inserted: true}, nil
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, false, res.Err
		}
		entry := res.Val.(cacheEntry)
		return entry.future, entry.inserted && submitted, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Get looks up fp without inserting. The second return value is false if
// fp has never been submitted.
func (c *CheckCache) Get(fp Fingerprint) (*workerpool.Future[Result], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[fp]
	return f, ok
}

// Size returns the number of distinct fingerprints submitted so far.
func (c *CheckCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
