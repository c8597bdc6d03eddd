package bch

import "fmt"

// conjugates returns the cyclotomic coset of i modulo n=2^m-1: the set of
// exponents {i, 2i, 4i, ...} reduced mod n, which is exactly the set of
// conjugate roots alpha^i, alpha^2i, ... sharing one minimal polynomial.
func conjugates(gf *field, i int) []int {
	seen := make(map[int]bool)
	cur := i % gf.n
	var list []int
	for !seen[cur] {
		seen[cur] = true
		list = append(list, cur)
		cur = (cur * 2) % gf.n
	}
	return list
}

// minimalPoly computes the minimal polynomial of alpha^i over GF(2), as the
// product of (x + alpha^e) over the conjugates of i. Coefficients are
// returned as field elements, low-to-high (index 0 is the constant term);
// the caller verifies they collapse to 0/1.
func minimalPoly(gf *field, i int) []int {
	exps := conjugates(gf, i)
	poly := []int{1}
	for _, e := range exps {
		root := gf.pow(e)
		next := make([]int, len(poly)+1)
		for k, c := range poly {
			next[k] ^= gf.mul(c, root)
			next[k+1] ^= c
		}
		poly = next
	}
	return poly
}

// gfPolyMul multiplies two GF(2) polynomials (coefficients 0/1, low-to-high)
// via carryless convolution.
func gfPolyMul(a, b []int) []int {
	out := make([]int, len(a)+len(b)-1)
	for i, av := range a {
		if av == 0 {
			continue
		}
		for j, bv := range b {
			if bv == 0 {
				continue
			}
			out[i+j] ^= 1
		}
	}
	return out
}

// buildGenerator constructs the BCH generator polynomial g(x) as the
// product of the distinct minimal polynomials of alpha^1, alpha^3, ...,
// alpha^(2t-1). It returns coefficients MSB-first (degree r down to 0,
// result[0]==1) to match the convention gfPolyMod expects.
func buildGenerator(gf *field, t int) ([]int, error) {
	visited := make(map[int]bool)
	gen := []int{1} // low-to-high accumulator

	for i := 1; i <= 2*t-1; i += 2 {
		key := i % gf.n
		if visited[key] {
			continue
		}
		cos := conjugates(gf, key)
		for _, e := range cos {
			visited[e] = true
		}

		mp := minimalPoly(gf, key)
		bits := make([]int, len(mp))
		for idx, v := range mp {
			if v != 0 && v != 1 {
				return nil, fmt.Errorf("bch: minimal polynomial of alpha^%d has a non-binary coefficient", key)
			}
			bits[idx] = v
		}
		gen = gfPolyMul(gen, bits)
	}

	deg := len(gen) - 1
	out := make([]int, deg+1)
	for i, c := range gen {
		out[deg-i] = c
	}
	if out[0] != 1 {
		return nil, fmt.Errorf("bch: generator polynomial is not monic")
	}
	return out, nil
}

// evalPoly evaluates a low-to-high coefficient polynomial at field element x
// using Horner's method.
func evalPoly(gf *field, coeffs []int, x int) int {
	result := 0
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gf.mul(result, x) ^ coeffs[i]
	}
	return result
}

// berlekampMassey derives the error locator polynomial sigma(x) (low-to-high
// coefficients, sigma[0]==1) from syndromes S_1..S_2t.
func berlekampMassey(gf *field, syn []int) []int {
	c := []int{1}
	b := []int{1}
	l := 0
	mShift := 1
	bCoeff := 1

	for n := 0; n < len(syn); n++ {
		delta := syn[n]
		for i := 1; i <= l && n-i >= 0; i++ {
			if i < len(c) {
				delta ^= gf.mul(c[i], syn[n-i])
			}
		}

		if delta == 0 {
			mShift++
			continue
		}

		coeff := gf.div(delta, bCoeff)
		needLen := len(c)
		if len(b)+mShift > needLen {
			needLen = len(b) + mShift
		}
		next := make([]int, needLen)
		copy(next, c)
		for i, bv := range b {
			next[i+mShift] ^= gf.mul(coeff, bv)
		}

		if 2*l <= n {
			t := make([]int, len(c))
			copy(t, c)
			l = n + 1 - l
			b = t
			bCoeff = delta
			mShift = 1
		} else {
			mShift++
		}
		c = next
	}
	return c
}

// chienSearch finds the roots of sigma(x) among alpha^-0, alpha^-1, ...,
// alpha^-(codewordLen-1), returning the corresponding error positions
// expressed as polynomial degree within a codeword of length codewordLen.
func chienSearch(gf *field, sigma []int, codewordLen int) []int {
	var roots []int
	for i := 0; i < codewordLen; i++ {
		x := gf.pow(-i)
		if evalPoly(gf, sigma, x) == 0 {
			roots = append(roots, i)
		}
	}
	return roots
}
