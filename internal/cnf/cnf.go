// Package cnf reads and writes the DIMACS CNF format used to hand clause
// sets to an external SAT solver, and prepares the Background/Candidate
// constraint sets FastDiag consumes from a model file and a requirement
// file.
package cnf

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadFile parses a DIMACS CNF file into an ordered list of clauses, each a
// slice of non-zero literal integers. Comment lines ("c ...") and the
// problem line ("p cnf nvars nclauses") are skipped; everything else is
// read as whitespace-separated literals terminated by a 0.
func ReadFile(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cnf: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses DIMACS CNF from r. See ReadFile for the format accepted.
func Read(r io.Reader) ([][]int, error) {
	var clauses [][]int
	var current []int

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "c") {
			continue
		}
		if strings.HasPrefix(line, "p") {
			continue
		}

		for _, tok := range strings.Fields(line) {
			lit, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("cnf: line %d: invalid literal %q: %w", lineNo, tok, err)
			}
			if lit == 0 {
				clauses = append(clauses, current)
				current = nil
				continue
			}
			current = append(current, lit)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cnf: read: %w", err)
	}
	if len(current) > 0 {
		// Tolerate a final clause missing its trailing 0.
		clauses = append(clauses, current)
	}
	return clauses, nil
}

// Write serializes clauses to w in DIMACS CNF format, including the
// standard "p cnf nvars nclauses" problem line.
func Write(w io.Writer, clauses [][]int) error {
	maxVar := 0
	for _, clause := range clauses {
		for _, lit := range clause {
			v := lit
			if v < 0 {
				v = -v
			}
			if v > maxVar {
				maxVar = v
			}
		}
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "p cnf %d %d\n", maxVar, len(clauses)); err != nil {
		return err
	}
	for _, clause := range clauses {
		for _, lit := range clause {
			if _, err := fmt.Fprintf(bw, "%d ", lit); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("0\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// PrepareConstraintSets implements the §6 clause loader interface: it loads
// the model CNF, takes its first clause as the background B and the
// remainder as part of the candidate set C, loads the requirement CNF and
// appends all of its clauses to C. The returned clauses are plain literal
// slices in load order; no index is assigned here.
func PrepareConstraintSets(modelPath, reqPath string) (background, candidate [][]int, err error) {
	model, err := ReadFile(modelPath)
	if err != nil {
		return nil, nil, err
	}
	if len(model) == 0 {
		return nil, nil, fmt.Errorf("cnf: model %s has no clauses", modelPath)
	}
	req, err := ReadFile(reqPath)
	if err != nil {
		return nil, nil, err
	}

	background = model[:1]
	candidate = make([][]int, 0, len(model)-1+len(req))
	candidate = append(candidate, model[1:]...)
	candidate = append(candidate, req...)

	return background, candidate, nil
}
