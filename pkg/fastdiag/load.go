package fastdiag

import (
	"fmt"

	"github.com/gitrdm/fastdiagp/internal/cnf"
)

// Load implements the §6 clause loader interface on top of internal/cnf: it
// reads the model and requirement DIMACS files and returns the Background
// and Candidate constraint sets with stable indices assigned — B uses
// [0, len(B)), C continues from len(B).
func Load(modelPath, reqPath string) (background, candidate ConstraintSet, err error) {
	bLits, cLits, err := cnf.PrepareConstraintSets(modelPath, reqPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInputError, err)
	}

	background = toConstraintSet(bLits, 0)
	candidate = toConstraintSet(cLits, len(bLits))
	return background, candidate, nil
}

func toConstraintSet(clauses [][]int, startIndex int) ConstraintSet {
	out := make(ConstraintSet, len(clauses))
	for i, lits := range clauses {
		literals := make([]Literal, len(lits))
		for j, l := range lits {
			literals[j] = Literal(l)
		}
		out[i] = Clause{Index: startIndex + i, Literals: literals}
	}
	return out
}
