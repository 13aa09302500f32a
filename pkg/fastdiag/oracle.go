package fastdiag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gitrdm/fastdiagp/internal/cnf"
)

// Result is the outcome of a single consistency check: whether the checked
// ConstraintSet is satisfiable, and how long the oracle took to decide.
type Result struct {
	Consistent bool
	Elapsed    time.Duration
}

// Oracle decides the satisfiability of a ConstraintSet. It is invoked as an
// opaque black box — the core never inspects how a concrete Oracle reaches
// its verdict, only the (consistent, elapsed) pair it returns.
type Oracle interface {
	Check(ctx context.Context, c ConstraintSet) (Result, error)
}

// invocationCounter is the process-scoped, monotonically increasing count
// of oracle invocations, exposed for instrumentation. It is not read by the
// algorithm itself.
var invocationCounter int64

// InvocationCount returns the number of oracle checks performed by this
// process so far, across every Oracle created via Instrument.
func InvocationCount() int64 {
	return atomic.LoadInt64(&invocationCounter)
}

// Instrument wraps an Oracle so every Check call increments the package's
// invocation counter, regardless of which concrete Oracle implementation is
// in use.
func Instrument(o Oracle) Oracle {
	return instrumentedOracle{inner: o}
}

type instrumentedOracle struct {
	inner Oracle
}

func (o instrumentedOracle) Check(ctx context.Context, c ConstraintSet) (Result, error) {
	atomic.AddInt64(&invocationCounter, 1)
	return o.inner.Check(ctx, c)
}

// ExecOracle is the reference external-solver adapter from §6: it
// serializes a ConstraintSet to a temporary DIMACS CNF file, spawns the
// configured solver binary on that file, and parses stdout for the
// substring "UNSATISFIABLE" — its presence means UNSAT, its absence SAT.
// A solver that exits non-zero without printing "SATISFIABLE" or
// "UNSATISFIABLE" is reported as ErrOracleFailure. The temporary file is
// scoped to the call and removed on completion.
type ExecOracle struct {
	// SolverPath is the path to the solver executable (e.g. a SAT4J or
	// Choco launcher script/jar wrapper).
	SolverPath string
	// Args, if set, are extra arguments passed before the CNF file path.
	Args []string
}

// NewExecOracle returns an ExecOracle that invokes solverPath on a
// temporary DIMACS file per call.
func NewExecOracle(solverPath string, args ...string) *ExecOracle {
	return &ExecOracle{SolverPath: solverPath, Args: args}
}

func (o *ExecOracle) Check(ctx context.Context, c ConstraintSet) (Result, error) {
	f, err := os.CreateTemp("", "fastdiagp-*.cnf")
	if err != nil {
		return Result{}, fmt.Errorf("fastdiag: exec oracle: create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if err := cnf.Write(f, clausesLiterals(c)); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("fastdiag: exec oracle: write cnf: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("fastdiag: exec oracle: close temp file: %w", err)
	}

	args := append(append([]string{}, o.Args...), path)
	cmd := exec.CommandContext(ctx, o.SolverPath, args...)

	var out bytes.Buffer
	cmd.Stdout = &out

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("%w: solver timed out after %s", ErrOracleFailure, elapsed)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("%w: failed to run solver %q: %v", ErrOracleFailure, o.SolverPath, runErr)
		}
		// Many solver CLIs return non-zero for UNSAT (or SAT); fall through
		// to the stdout scan when the output carries a verdict, and treat a
		// non-zero exit without one as a failure.
		if !strings.Contains(out.String(), "SATISFIABLE") {
			return Result{}, fmt.Errorf("%w: solver %q exited without a verdict: %v", ErrOracleFailure, o.SolverPath, runErr)
		}
	}

	consistent := !strings.Contains(out.String(), "UNSATISFIABLE")
	return Result{Consistent: consistent, Elapsed: elapsed}, nil
}

func clausesLiterals(c ConstraintSet) [][]int {
	out := make([][]int, len(c))
	for i, clause := range c {
		lits := make([]int, len(clause.Literals))
		for j, l := range clause.Literals {
			lits[j] = int(l)
		}
		out[i] = lits
	}
	return out
}

// NaiveOracle is an in-process brute-force SAT backend: it enumerates every
// truth assignment over the variables mentioned by the checked
// ConstraintSet. It exists for examples and tests where no external solver
// binary is available; it is not intended for production-scale CNF.
type NaiveOracle struct{}

func (NaiveOracle) Check(ctx context.Context, c ConstraintSet) (Result, error) {
	start := time.Now()

	maxVar := 0
	for _, clause := range c {
		for _, lit := range clause.Literals {
			v := int(lit)
			if v < 0 {
				v = -v
			}
			if v > maxVar {
				maxVar = v
			}
		}
	}

	if maxVar == 0 {
		return Result{Consistent: true, Elapsed: time.Since(start)}, nil
	}
	if maxVar > 24 {
		return Result{}, fmt.Errorf("%w: naive oracle cannot brute-force %d variables", ErrOracleFailure, maxVar)
	}

	for assignment := uint64(0); assignment < uint64(1)<<uint(maxVar); assignment++ {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", ErrOracleFailure, ctx.Err())
		default:
		}
		if satisfies(c, assignment) {
			return Result{Consistent: true, Elapsed: time.Since(start)}, nil
		}
	}
	return Result{Consistent: false, Elapsed: time.Since(start)}, nil
}

// satisfies reports whether assignment (bit i-1 set means variable i is
// true) satisfies every clause in c.
func satisfies(c ConstraintSet, assignment uint64) bool {
	for _, clause := range c {
		clauseSatisfied := false
		for _, lit := range clause.Literals {
			v := int(lit)
			neg := v < 0
			if neg {
				v = -v
			}
			bit := assignment&(uint64(1)<<uint(v-1)) != 0
			if bit != neg {
				clauseSatisfied = true
				break
			}
		}
		if !clauseSatisfied {
			return false
		}
	}
	return true
}
