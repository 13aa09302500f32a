package fastdiag

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gitrdm/fastdiagp/internal/workerpool"
)

// DefaultWorkerCount returns a sensible worker pool size when the caller
// hasn't set one explicitly: logical cores minus two, floored at one,
// leaving headroom for the OS and any solver subprocess. Callers that need
// a configurable reservation should size the pool themselves (see
// internal/config.Config.WorkerCount) and pass it via WithWorkers.
func DefaultWorkerCount() int {
	if n := runtime.NumCPU() - 2; n >= 1 {
		return n
	}
	return 1
}

// Stats summarizes a single FindDiagnosis run, mirroring the columns the
// original benchmark driver printed per call: how many oracle invocations
// it cost, how many of those were already resolved by the look-ahead
// scheduler by the time the core needed them, and how large the Check Cache
// grew.
type Stats struct {
	OracleCount int64
	ReadyCount  int64
	CacheSize   int
	Workers     int
}

// Engine runs FastDiag against a fixed Oracle. A single Engine may be
// reused across multiple FindDiagnosis calls; each call gets its own pool
// and cache, so concurrent calls on the same Engine don't share state.
type Engine struct {
	oracle     Oracle
	workers    int
	lookahead  int
	sequential bool
	logger     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the fixed worker-pool size used by FindDiagnosis. n <= 0
// falls back to DefaultWorkerCount.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithLookaheadBudget overrides the look-ahead scheduler's per-frame
// generation budget, which otherwise defaults to the worker count.
func WithLookaheadBudget(n int) Option {
	return func(e *Engine) { e.lookahead = n }
}

// WithLogger attaches a logger the engine uses for info/debug tracing in
// the style of the original driver's logging.info/logging.debug calls.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Sequential disables the look-ahead scheduler, yielding the plain
// recursive FastDiag with no speculative submissions — useful as the
// baseline side of a sequential/parallel equivalence check.
func Sequential() Option {
	return func(e *Engine) { e.sequential = true }
}

// New creates an Engine around oracle, applying opts over sensible
// defaults (DefaultWorkerCount workers, look-ahead enabled, a disabled
// logger).
func New(oracle Oracle, opts ...Option) *Engine {
	e := &Engine{
		oracle: oracle,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindDiagnosis computes a minimal diagnosis Δ ⊆ c such that (b ∪ c) \ Δ is
// consistent, per §4. It returns an empty, non-nil ConstraintSet when c is
// empty (with no oracle call) or when b∪c is already consistent (with a
// single oracle call).
func (e *Engine) FindDiagnosis(ctx context.Context, c, b ConstraintSet) (ConstraintSet, Stats, error) {
	oracle := Instrument(e.oracle)
	before := InvocationCount()

	e.logger.Info().Int("candidates", len(c)).Int("background", len(b)).Msg("fastdiag: starting")

	if len(c) == 0 {
		e.logger.Info().Msg("fastdiag: empty candidate set, nothing to diagnose")
		return ConstraintSet{}, Stats{OracleCount: InvocationCount() - before}, nil
	}

	res, err := oracle.Check(ctx, Union(b, c))
	if err != nil {
		return nil, Stats{}, err
	}
	if res.Consistent {
		e.logger.Info().Msg("fastdiag: background ∪ candidates already consistent")
		return ConstraintSet{}, Stats{OracleCount: InvocationCount() - before}, nil
	}

	workers := e.workers
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}

	pool := workerpool.New[Result](workers)
	defer pool.Shutdown()

	cache := NewCheckCache(pool, oracle)

	d := &diagnoser{cache: cache, logger: e.logger}
	if !e.sequential {
		budget := e.lookahead
		if budget <= 0 {
			budget = workers
		}
		d.scheduler = NewScheduler(cache, budget, e.logger)
	}

	mss, err := d.fd(ctx, nil, c, b)
	if err != nil {
		return nil, Stats{}, err
	}

	delta := Diff(c, mss)
	stats := Stats{
		OracleCount: InvocationCount() - before,
		ReadyCount:  atomic.LoadInt64(&d.readyCount),
		CacheSize:   cache.Size(),
		Workers:     workers,
	}

	e.logger.Info().
		Int("delta_size", len(delta)).
		Int64("oracle_calls", stats.OracleCount).
		Int64("ready_hits", stats.ReadyCount).
		Int("cache_size", stats.CacheSize).
		Msg("fastdiag: diagnosis complete")

	return delta, stats, nil
}

// diagnoser holds the per-call state threaded through the fd recursion: the
// Check Cache every consistency query routes through, the (optional)
// look-ahead scheduler, and the ready-hit counter used for Stats.
type diagnoser struct {
	cache      *CheckCache
	scheduler  *Scheduler
	readyCount int64
	logger     zerolog.Logger
}

// fd implements §4.6's recursive core. deltaHint is the set the caller
// split off or set aside beside c (empty at the root); only when it is
// non-empty does fd check b∪c and return c whole if that is consistent.
// c and b are the current candidate and background sets. It returns a
// maximal consistent subset of c.
func (d *diagnoser) fd(ctx context.Context, deltaHint, c, b ConstraintSet) (ConstraintSet, error) {
	if d.scheduler != nil {
		d.scheduler.Lookahead(ctx, c, b, []ConstraintSet{deltaHint})
	}

	if len(deltaHint) != 0 {
		res, err := d.check(ctx, Union(b, c))
		if err != nil {
			return nil, err
		}
		if res.Consistent {
			return c, nil
		}
	}

	if len(c) == 1 {
		return ConstraintSet{}, nil
	}

	c1, c2 := Split(c)

	delta1, err := d.fd(ctx, c2, c1, b)
	if err != nil {
		return nil, err
	}

	c1WithoutDelta1 := Diff(c1, delta1)
	delta2, err := d.fd(ctx, c1WithoutDelta1, c2, Union(b, delta1))
	if err != nil {
		return nil, err
	}

	return Union(delta1, delta2), nil
}

// check resolves cs's consistency through the cache, crediting readyCount
// when the future was already resolved — i.e. the look-ahead scheduler won
// the race against this call.
func (d *diagnoser) check(ctx context.Context, cs ConstraintSet) (Result, error) {
	fp := cs.Fingerprint()

	if future, ok := d.cache.Get(fp); ok {
		if future.Ready() {
			atomic.AddInt64(&d.readyCount, 1)
		}
		return future.Await(ctx)
	}

	future, _, err := d.cache.GetOrInsert(ctx, fp, cs)
	if err != nil {
		return Result{}, err
	}
	return future.Await(ctx)
}
