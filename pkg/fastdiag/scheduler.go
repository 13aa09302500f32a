package fastdiag

import (
	"context"

	"github.com/rs/zerolog"
)

// Scheduler is the look-ahead component of §4.5: before FastDiag performs
// its own blocking consistency check, it predicts the fingerprints the
// recursion is about to need along both the "assumed consistent" and
// "assumed inconsistent" branches and submits them to the Check Cache,
// subject to a per-entry generation budget of at most maxGen new
// submissions (fingerprints already cached don't count against it).
//
// The predicted queries are a superset of what's actually needed — a
// speculative miss just wastes a worker slot, it never changes the
// diagnosis, since FastDiag's own correctness depends only on the order of
// checks it awaits, which this scheduler never alters.
type Scheduler struct {
	cache  *CheckCache
	maxGen int
	logger zerolog.Logger
}

// NewScheduler creates a Scheduler that submits at most maxGen new oracle
// checks per Lookahead call.
func NewScheduler(cache *CheckCache, maxGen int, logger zerolog.Logger) *Scheduler {
	if maxGen <= 0 {
		maxGen = 1
	}
	return &Scheduler{cache: cache, maxGen: maxGen, logger: logger}
}

// Lookahead predicts and submits the fingerprints FastDiag is likely to
// need next, given the current (c, b) frame and the stack of constraint
// sets future recursive calls will adopt as new C's along the
// assumed-consistent path.
func (s *Scheduler) Lookahead(ctx context.Context, c, b ConstraintSet, deltaStack []ConstraintSet) {
	budget := s.maxGen
	s.explore(ctx, c, b, deltaStack, 0, &budget)
}

func (s *Scheduler) explore(ctx context.Context, c, b ConstraintSet, deltaStack []ConstraintSet, level int, budget *int) {
	if *budget <= 0 {
		return
	}

	bWithC := Union(b, c)
	fp := bWithC.Fingerprint()

	if _, exists := s.cache.Get(fp); !exists {
		_, inserted, err := s.cache.GetOrInsert(ctx, fp, bWithC)
		switch {
		case err != nil:
			s.logger.Debug().Err(err).Int("level", level).Msg("lookahead: submission failed")
		case inserted:
			*budget--
			s.logger.Debug().Int("level", level).Int("remaining_budget", *budget).Msg("lookahead: submitted")
		}
	}

	// Assumed-consistent branch: B∪C is SAT, so the recursion would enter
	// FD(Δ_stack[1], Δ_stack[0], B∪C) next.
	switch {
	case len(deltaStack) > 1 && len(deltaStack[0]) == 1:
		// Case 2.1
		left, right := Split(deltaStack[1])
		nextStack := prepend(right, deltaStack[2:])
		s.explore(ctx, left, bWithC, nextStack, level+1, budget)
	case len(deltaStack) >= 1 && len(deltaStack[0]) == 1:
		// Case 2.2
		s.explore(ctx, deltaStack[0], bWithC, deltaStack[1:], level+1, budget)
	case len(deltaStack) >= 1 && len(deltaStack[0]) > 1:
		// Case 2.3
		left, right := Split(deltaStack[0])
		nextStack := prepend(right, deltaStack[1:])
		s.explore(ctx, left, bWithC, nextStack, level+1, budget)
	}

	// Assumed-inconsistent branch: B∪C is UNSAT, so the recursion would
	// split C next.
	switch {
	case len(c) > 1:
		// Case 1.1
		left, right := Split(c)
		nextStack := prepend(right, deltaStack)
		s.explore(ctx, left, b, nextStack, level+1, budget)
	case len(c) == 1 && len(deltaStack) >= 1 && len(deltaStack[0]) == 1:
		// Case 1.2
		s.explore(ctx, deltaStack[0], b, deltaStack[1:], level+1, budget)
	case len(c) == 1 && len(deltaStack) >= 1 && len(deltaStack[0]) > 1:
		// Case 1.3
		left, right := Split(deltaStack[0])
		nextStack := prepend(right, deltaStack[1:])
		s.explore(ctx, left, b, nextStack, level+1, budget)
	}
}

// prepend returns a new slice with head followed by the elements of tail,
// never mutating tail's backing array.
func prepend(head ConstraintSet, tail []ConstraintSet) []ConstraintSet {
	out := make([]ConstraintSet, 0, len(tail)+1)
	out = append(out, head)
	out = append(out, tail...)
	return out
}
