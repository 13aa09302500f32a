package fastdiag

import (
	"encoding/binary"
	"sort"

	"crypto/sha256"
)

// Fingerprint is a canonical, order-independent identity for a
// ConstraintSet, used as the Check Cache key. Two constraint sets with the
// same multiset of clause indices always produce the same Fingerprint;
// different multisets produce different ones with collision probability
// negligible for the index address space of a single diagnosis run.
type Fingerprint [sha256.Size]byte

// Fingerprint computes the canonical identity of c: its clause indices
// sorted ascending, hashed. Sorting makes the result independent of c's
// order, which matters because recursion repeatedly reconstructs the same
// multiset from different splits and unions.
func (c ConstraintSet) Fingerprint() Fingerprint {
	idx := c.Indices()
	sort.Ints(idx)

	buf := make([]byte, 8*len(idx))
	for i, v := range idx {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return sha256.Sum256(buf)
}
