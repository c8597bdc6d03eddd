package bch

import (
	"errors"
	"fmt"
)

// ErrUncorrectable is returned by Decode when more bits were flipped than
// the code's design distance can correct.
var ErrUncorrectable = errors.New("bch: uncorrectable error pattern")

// Codec is a systematic, shortened binary BCH(poly, t) code; it accepts
// payloads of any length up to MaxDataBits. poly is a primitive polynomial over GF(2) whose
// bit length fixes the field degree m; t is the number of bit errors the
// code is designed to correct.
type Codec struct {
	gf      *field
	t       int
	gen     []int // generator polynomial coefficients, degree r down to 0, gen[0]=1
	r       int   // deg(gen) == parity bit count
	eccSize int   // ceil(r/8)
}

// New builds a BCH codec from a primitive polynomial and error-correction
// strength t. poly's bit length - 1 gives the GF(2^m) field degree, mirroring
// how the original Python implementation threads bchlib.BCH(poly, t).
func New(poly, t int) (*Codec, error) {
	if t < 1 {
		return nil, fmt.Errorf("bch: t must be positive, got %d", t)
	}
	gf, err := newField(poly)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(gf, t)
	if err != nil {
		return nil, err
	}

	r := len(gen) - 1
	return &Codec{gf: gf, t: t, gen: gen, r: r, eccSize: (r + 7) / 8}, nil
}

// EccSize returns the number of ECC bytes Encode produces for this codec.
func (c *Codec) EccSize() int {
	return c.eccSize
}

// MaxDataBits returns the largest payload, in bits, this codec's field can
// carry alongside its parity bits (the shortened-code ceiling).
func (c *Codec) MaxDataBits() int {
	return c.gf.n - c.r
}

// Encode computes the ECC block for data, which may be any length whose bit
// count does not exceed MaxDataBits.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	bits := bytesToBits(data)
	if len(bits) > c.MaxDataBits() {
		return nil, fmt.Errorf("bch: payload too large for this codec (%d bits > %d)", len(bits), c.MaxDataBits())
	}

	dividend := make([]int, len(bits)+c.r)
	copy(dividend, bits)

	remainder := gfPolyMod(dividend, c.gen)
	return bitsToBytes(remainder, c.r), nil
}

// Decode verifies data against ecc and corrects up to t flipped bits
// anywhere in data||ecc, returning the corrected data and the number of
// bits that were flipped. It returns ErrUncorrectable when the error
// pattern exceeds the code's design distance.
func (c *Codec) Decode(data, ecc []byte) ([]byte, int, error) {
	dataBits := bytesToBits(data)
	eccBits := bytesFixedToBits(ecc, c.r)

	full := make([]int, 0, len(dataBits)+len(eccBits))
	full = append(full, dataBits...)
	full = append(full, eccBits...)
	L := len(full)

	syn := c.syndromes(full, L)
	clean := true
	for _, s := range syn {
		if s != 0 {
			clean = false
			break
		}
	}
	if clean {
		return data, 0, nil
	}

	sigma := berlekampMassey(c.gf, syn)
	roots := chienSearch(c.gf, sigma, L)
	if len(roots) == 0 || len(roots) != degree(sigma) {
		return nil, 0, ErrUncorrectable
	}
	if len(roots) > c.t {
		return nil, 0, ErrUncorrectable
	}

	for _, deg := range roots {
		k := L - 1 - deg
		if k < 0 || k >= L {
			return nil, 0, ErrUncorrectable
		}
		full[k] ^= 1
	}

	correctedData := bitsToBytes(full[:len(dataBits)], len(dataBits))
	return correctedData, len(roots), nil
}

// syndromes evaluates the received codeword polynomial at alpha^1..alpha^2t.
func (c *Codec) syndromes(full []int, L int) []int {
	gf := c.gf
	syn := make([]int, 2*c.t)
	for j := 1; j <= 2*c.t; j++ {
		acc := 0
		for k := 0; k < L; k++ {
			if full[k] == 0 {
				continue
			}
			deg := L - 1 - k
			acc ^= gf.pow(deg * j)
		}
		syn[j-1] = acc
	}
	return syn
}

// bytesToBits unpacks a byte slice MSB-first into a 0/1 int slice.
func bytesToBits(data []byte) []int {
	bits := make([]int, len(data)*8)
	for i, b := range data {
		for bitPos := 0; bitPos < 8; bitPos++ {
			bits[i*8+bitPos] = int((b >> (7 - bitPos)) & 1)
		}
	}
	return bits
}

// bytesFixedToBits unpacks exactly n bits (MSB-first, left-padded within the
// leading byte) out of a byte slice produced by bitsToBytes.
func bytesFixedToBits(data []byte, n int) []int {
	all := bytesToBits(data)
	pad := len(all) - n
	if pad < 0 {
		pad = 0
	}
	return all[pad:]
}

// bitsToBytes packs n bits (MSB-first) into ceil(n/8) bytes, left-padding
// the leading byte with zero bits when n is not a multiple of 8.
func bitsToBytes(bits []int, n int) []byte {
	bits = bits[:n]
	size := (n + 7) / 8
	out := make([]byte, size)
	pad := size*8 - n
	for i, b := range bits {
		if b == 0 {
			continue
		}
		pos := pad + i
		out[pos/8] |= 1 << uint(7-pos%8)
	}
	return out
}

// gfPolyMod computes dividend mod divisor over GF(2), where both are
// MSB-first bit slices and divisor is monic (divisor[0] == 1). It returns
// the low len(divisor)-1 bits of the remainder.
func gfPolyMod(dividend []int, divisorCoeff []int) []int {
	rem := make([]int, len(dividend))
	copy(rem, dividend)
	dl := len(divisorCoeff)
	for i := 0; i <= len(rem)-dl; i++ {
		if rem[i] == 0 {
			continue
		}
		for j := 0; j < dl; j++ {
			rem[i+j] ^= divisorCoeff[j]
		}
	}
	return rem[len(rem)-(dl-1):]
}

// degree returns the highest index with a non-zero coefficient, coefficients
// indexed low-to-high (p[0] is the constant term).
func degree(p []int) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return i
		}
	}
	return 0
}
