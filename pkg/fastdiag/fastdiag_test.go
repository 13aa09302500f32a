package fastdiag_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gitrdm/fastdiagp/pkg/fastdiag"
)

// clauses builds a ConstraintSet from raw literal lists, assigning indices
// 0..n-1 in order.
func clauses(lits ...[]int) fastdiag.ConstraintSet {
	out := make(fastdiag.ConstraintSet, len(lits))
	for i, ls := range lits {
		literals := make([]fastdiag.Literal, len(ls))
		for j, l := range ls {
			literals[j] = fastdiag.Literal(l)
		}
		out[i] = fastdiag.Clause{Index: i, Literals: literals}
	}
	return out
}

// FastDiagSuite exercises the invariants and concrete scenarios of §8
// against fastdiag.Engine, backed by the in-process NaiveOracle so no
// external solver binary is required.
type FastDiagSuite struct {
	suite.Suite
}

func (s *FastDiagSuite) engine(opts ...fastdiag.Option) *fastdiag.Engine {
	return fastdiag.New(fastdiag.NaiveOracle{}, opts...)
}

// assertValidDiagnosis re-verifies invariants 1-3 directly against the oracle,
// independent of the engine under test.
func (s *FastDiagSuite) assertValidDiagnosis(b, c, delta fastdiag.ConstraintSet) {
	oracle := fastdiag.NaiveOracle{}
	ctx := context.Background()

	remaining := fastdiag.Diff(c, delta)
	res, err := oracle.Check(ctx, fastdiag.Union(b, remaining))
	require.NoError(s.T(), err)
	require.True(s.T(), res.Consistent, "B ∪ (C \\ Δ) must be consistent")

	for _, cl := range delta {
		withoutOne := fastdiag.Diff(delta, fastdiag.ConstraintSet{cl})
		stillRemoved := fastdiag.Diff(c, withoutOne)
		res, err := oracle.Check(ctx, fastdiag.Union(b, stillRemoved))
		require.NoError(s.T(), err)
		require.False(s.T(), res.Consistent, "Δ must be minimal: restoring clause %d should still be UNSAT", cl.Index)
	}

	deltaIdx := map[int]bool{}
	for _, cl := range delta {
		deltaIdx[cl.Index] = true
	}
	for idx := range deltaIdx {
		found := false
		for _, cl := range c {
			if cl.Index == idx {
				found = true
				break
			}
		}
		require.True(s.T(), found, "Δ must be a subset of C")
	}
}

// TestS1ToyUNSATSingleton: B = [{1}], C = [{-1}].
func (s *FastDiagSuite) TestS1ToyUNSATSingleton() {
	b := clauses([]int{1})
	c := clauses([]int{-1})

	delta, stats, err := s.engine().FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	require.Len(s.T(), delta, 1)
	require.Equal(s.T(), -1, int(delta[0].Literals[0]))
	require.GreaterOrEqual(s.T(), stats.OracleCount, int64(1))
	s.assertValidDiagnosis(b, c, delta)
}

// TestS2DisjointCulprit: B = [{1}], C = [{2}, {-2}, {3}].
func (s *FastDiagSuite) TestS2DisjointCulprit() {
	b := clauses([]int{1})
	c := clauses([]int{2}, []int{-2}, []int{3})

	delta, _, err := s.engine().FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	require.Len(s.T(), delta, 1)
	require.Contains(s.T(), []int{2, -2}, int(delta[0].Literals[0]))
	s.assertValidDiagnosis(b, c, delta)
}

// TestS3EntireCandidateCulprit: B = [], C = [{1}, {-1}].
func (s *FastDiagSuite) TestS3EntireCandidateCulprit() {
	var b fastdiag.ConstraintSet
	c := clauses([]int{1}, []int{-1})

	delta, _, err := s.engine().FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	require.Len(s.T(), delta, 1)
	s.assertValidDiagnosis(b, c, delta)
}

// TestS4RequirementOnlyConflict encodes a <-> b (variables 1, 2) as the
// model, and a requirement asserting a ∧ ¬b, which conflicts with it.
func (s *FastDiagSuite) TestS4RequirementOnlyConflict() {
	b := clauses([]int{-1, 2}, []int{1, -2}) // a -> b, b -> a
	req := clauses([]int{1}, []int{-2})      // a, ¬b

	delta, _, err := s.engine().FindDiagnosis(context.Background(), req, b)
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), delta)
	for _, cl := range delta {
		found := false
		for _, r := range req {
			if r.Index == cl.Index {
				found = true
			}
		}
		require.True(s.T(), found, "Δ must consist only of requirement clauses")
	}
	s.assertValidDiagnosis(b, req, delta)
}

// TestS5ParallelEquivalence runs S1-S4 at N ∈ {1, 4, 16} and checks Δ is
// stable across worker counts, and matches the sequential variant.
func (s *FastDiagSuite) TestS5ParallelEquivalence() {
	scenarios := []struct {
		name string
		b, c fastdiag.ConstraintSet
	}{
		{"S1", clauses([]int{1}), clauses([]int{-1})},
		{"S2", clauses([]int{1}), clauses([]int{2}, []int{-2}, []int{3})},
		{"S3", fastdiag.ConstraintSet{}, clauses([]int{1}, []int{-1})},
		{"S4", clauses([]int{-1, 2}, []int{1, -2}), clauses([]int{1}, []int{-2})},
	}

	for _, scenario := range scenarios {
		sequential, _, err := s.engine(fastdiag.Sequential()).FindDiagnosis(context.Background(), scenario.c, scenario.b)
		require.NoError(s.T(), err)

		for _, n := range []int{1, 4, 16} {
			delta, _, err := s.engine(fastdiag.WithWorkers(n)).FindDiagnosis(context.Background(), scenario.c, scenario.b)
			require.NoError(s.T(), err, "scenario %s, N=%d", scenario.name, n)
			require.ElementsMatch(s.T(), sequential.Indices(), delta.Indices(),
				"scenario %s: Δ differs at N=%d", scenario.name, n)
		}
	}
}

// TestS6CacheReuse: for S4 at N >= 2, the look-ahead scheduler should have
// pre-resolved at least one fingerprint the core later needs.
func (s *FastDiagSuite) TestS6CacheReuse() {
	b := clauses([]int{-1, 2}, []int{1, -2})
	req := clauses([]int{1}, []int{-2})

	_, stats, err := s.engine(fastdiag.WithWorkers(4)).FindDiagnosis(context.Background(), req, b)
	require.NoError(s.T(), err)
	require.Greater(s.T(), stats.ReadyCount, int64(0))
}

// TestEmptyCandidate covers invariant 6.
func (s *FastDiagSuite) TestEmptyCandidate() {
	b := clauses([]int{1})
	delta, stats, err := s.engine().FindDiagnosis(context.Background(), fastdiag.ConstraintSet{}, b)
	require.NoError(s.T(), err)
	require.Empty(s.T(), delta)
	require.EqualValues(s.T(), 0, stats.OracleCount)
}

// TestAlreadyConsistent covers invariant 7: a single oracle call, empty Δ.
func (s *FastDiagSuite) TestAlreadyConsistent() {
	b := clauses([]int{1})
	c := clauses([]int{1})

	delta, stats, err := s.engine().FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	require.Empty(s.T(), delta)
	require.EqualValues(s.T(), 1, stats.OracleCount)
}

// TestCacheUniqueness covers invariant 5: cache size matches the number of
// distinct fingerprints seen, with no fingerprint submitted twice.
func (s *FastDiagSuite) TestCacheUniqueness() {
	b := clauses([]int{1})
	c := clauses([]int{2}, []int{-2}, []int{3}, []int{-3})

	oracle := &countingOracle{inner: fastdiag.NaiveOracle{}, seen: map[fastdiag.Fingerprint]int{}}

	_, stats, err := fastdiag.New(oracle, fastdiag.WithWorkers(4)).FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	// The entry check of B ∪ C runs directly on the oracle before the pool
	// exists, so one of that fingerprint's calls is not a pool submission.
	oracle.seen[fastdiag.Union(b, c).Fingerprint()]--
	for fp, n := range oracle.seen {
		require.LessOrEqualf(s.T(), n, 1, "fingerprint %x submitted %d times", fp, n)
	}
	require.Equal(s.T(), len(oracle.seen), stats.CacheSize)
}

// TestDeterminism covers invariant 8: two runs on the same input yield the
// same Δ.
func (s *FastDiagSuite) TestDeterminism() {
	b := clauses([]int{1})
	c := clauses([]int{2}, []int{-2}, []int{3})

	d1, _, err := s.engine(fastdiag.WithWorkers(4)).FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	d2, _, err := s.engine(fastdiag.WithWorkers(4)).FindDiagnosis(context.Background(), c, b)
	require.NoError(s.T(), err)
	require.Equal(s.T(), d1.Indices(), d2.Indices())
}

func TestFastDiagSuite(t *testing.T) {
	suite.Run(t, new(FastDiagSuite))
}

// countingOracle wraps an Oracle to record, per fingerprint, how many times
// Check was invoked with a ConstraintSet hashing to it — used only to
// assert the Check Cache's at-most-once-per-fingerprint invariant.
type countingOracle struct {
	inner fastdiag.Oracle
	mu    sync.Mutex
	seen  map[fastdiag.Fingerprint]int
}

func (o *countingOracle) Check(ctx context.Context, c fastdiag.ConstraintSet) (fastdiag.Result, error) {
	o.mu.Lock()
	o.seen[c.Fingerprint()]++
	o.mu.Unlock()
	return o.inner.Check(ctx, c)
}
