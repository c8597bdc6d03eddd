// Package bch implements a binary BCH(poly, t) error-correcting code:
// encoding produces a fixed-size parity ("ecc") block for a payload,
// decoding corrects up to t flipped bits using the syndrome /
// Berlekamp-Massey / Chien-search pipeline. No Go BCH implementation
// appears anywhere in the retrieved example corpus, so this is built
// directly from the classical construction (see DESIGN.md).
package bch

import "fmt"

// field holds the log/antilog tables for GF(2^m), built from a caller
// supplied primitive polynomial.
type field struct {
	m     int
	n     int // 2^m - 1, the multiplicative order
	exp   []int
	log   []int
}

func newField(poly int) (*field, error) {
	m := bitLength(poly) - 1
	if m < 2 {
		return nil, fmt.Errorf("bch: polynomial %d too small", poly)
	}
	n := (1 << m) - 1

	f := &field{m: m, n: n, exp: make([]int, 2*n+1), log: make([]int, n+1)}

	reg := 1
	for i := 0; i < n; i++ {
		f.exp[i] = reg
		f.log[reg] = i
		reg <<= 1
		if reg&(1<<m) != 0 {
			reg ^= poly
		}
	}
	for i := n; i < 2*n; i++ {
		f.exp[i] = f.exp[i-n]
	}
	return f, nil
}

func bitLength(x int) int {
	n := 0
	for x > 0 {
		n++
		x >>= 1
	}
	return n
}

// mul multiplies two field elements (0 is the zero element).
func (f *field) mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[f.log[a]+f.log[b]]
}

// pow raises alpha to the given exponent, reduced mod n.
func (f *field) pow(e int) int {
	e %= f.n
	if e < 0 {
		e += f.n
	}
	return f.exp[e]
}

// inv returns the multiplicative inverse of a non-zero field element.
func (f *field) inv(a int) int {
	return f.exp[(f.n-f.log[a])%f.n]
}

// div divides field element a by non-zero field element b.
func (f *field) div(a, b int) int {
	if a == 0 {
		return 0
	}
	return f.exp[(f.log[a]-f.log[b]+f.n)%f.n]
}
