package dope

import (
	"golang.org/x/crypto/blake2b"

	"github.com/nas-ai/sqlitefs/internal/byteutil"
)

// fixate (re)starts the ratchet chain from BLAKE2b(key) XOR BLAKE2b(nonce).
// It is invoked lazily at the start of every Encode/Decode call rather than
// once per Envelope lifetime: each call walks its own fresh ratchet over the
// blocks it touches, while ratchetCount keeps accumulating across calls as
// the envelope's lifetime exhaustion counter.
func (e *Envelope) fixate() error {
	hashPass := blake2bSum(e.key, 64)
	hashNonce := blake2bSum(e.nonce, 64)
	seed := byteutil.ByteXor(hashPass, hashNonce)

	size := 32
	if e.aesMode == byteutil.ModeSIV {
		size = 64
	}
	h, err := blake2b.New(size, nil)
	if err != nil {
		return err
	}
	h.Write(seed)

	e.hkdf = h
	e.fixed = true
	return nil
}

// ratchet advances the chain one step, folding the block's ECC bytes into
// the hash state so each derived key depends on everything encoded so far.
func (e *Envelope) ratchet(ecc []byte) error {
	e.ratchetCount.Add(e.ratchetCount, bigOne)
	if e.ratchetCount.Cmp(maxRatchets) > 0 {
		return ErrKeysExhausted
	}
	cur := e.hkdf.Sum(nil)
	e.hkdf.Write(append(append([]byte{}, cur...), ecc...))
	return nil
}

// deriveKey returns the current ratchet digest without advancing the chain.
func (e *Envelope) deriveKey() ([]byte, error) {
	if e.ratchetCount.Cmp(maxRatchets) > 0 {
		return nil, ErrKeysExhausted
	}
	return e.hkdf.Sum(nil), nil
}
