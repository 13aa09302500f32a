package fastdiag

import "errors"

// ErrOracleFailure indicates the oracle crashed, timed out, or produced
// unparseable output. It is fatal to the top-level FindDiagnosis call: the
// recursion aborts, the worker pool shuts down, and the Check Cache is
// discarded.
var ErrOracleFailure = errors.New("fastdiag: oracle failure")

// ErrInputError indicates malformed CNF input. It is returned by the CNF
// loader before the core is ever entered.
var ErrInputError = errors.New("fastdiag: malformed input")

// ErrInconsistentBackground indicates that B alone is already
// unsatisfiable, violating FindDiagnosis's precondition.
var ErrInconsistentBackground = errors.New("fastdiag: background knowledge is inconsistent")
