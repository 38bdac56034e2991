// SPDX-License-Identifier: LGPL-3.0-or-later

package canonical

import (
	"fmt"
	"math/big"
	"strings"
)

// Iterations wraps the VDF iteration count (spec.md §6: a BigInt on the
// wire). Inside a canonical signing payload it contributes a bare digit
// string; on the JSON wire envelope it round-trips through a trailing "n"
// sentinel so a receiver can tell it apart from an ordinary JSON number
// without a schema.
type Iterations struct {
	Int *big.Int
}

// NewIterations builds an Iterations from a uint64 count.
func NewIterations(n uint64) Iterations {
	return Iterations{Int: new(big.Int).SetUint64(n)}
}

// ParseIterations parses a digit string (no sentinel) into Iterations.
func ParseIterations(s string) (Iterations, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Iterations{}, fmt.Errorf("canonical: invalid iterations digit string %q", s)
	}
	return Iterations{Int: i}, nil
}

// String renders the wire form: digits followed by the 'n' sentinel.
func (it Iterations) String() string {
	return it.Int.String() + "n"
}

// MarshalJSON implements the wire envelope form ("12345n").
func (it Iterations) MarshalJSON() ([]byte, error) {
	return []byte(`"` + it.String() + `"`), nil
}

// UnmarshalJSON parses the wire envelope form; the trailing 'n' sentinel is
// accepted but not required.
func (it *Iterations) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	s = strings.TrimSuffix(s, "n")
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("canonical: invalid wire iterations %q", string(b))
	}
	it.Int = i
	return nil
}
