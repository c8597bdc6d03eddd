package dope

import (
	"fmt"
	"hash"
	"math/big"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"

	"github.com/nas-ai/sqlitefs/internal/bch"
	"github.com/nas-ai/sqlitefs/internal/byteutil"
)

// maxRatchets mirrors the reference implementation's 2**128 ratchet
// ceiling; beyond it the envelope refuses to derive further keys.
var maxRatchets = new(big.Int).Lsh(big.NewInt(1), 128)

var bigOne = big.NewInt(1)

// Envelope is a DOPE ("Double-ratchet Over Parity Exchange") key state: a
// password-derived seed, a nonce, and a BLAKE2b ratchet chain that derives
// one AEAD or IV key per encoded block, paired with a BCH parity block for
// tamper tolerance. An Envelope is not safe for concurrent use; callers
// serialize access the way the volume session serializes the rest of its
// state (single-writer, §5).
type Envelope struct {
	key     []byte
	nonce   []byte
	aesMode byteutil.CipherMode

	bchPoly int
	bchT    int
	codec   *bch.Codec

	blockSize int

	ratchetCount *big.Int
	hkdf         hash.Hash
	fixed        bool
}

// New constructs an Envelope. nonce may be empty (a random 32-byte nonce is
// generated), shorter than 32 bytes (BLAKE2s-stretched to 32), or exactly 32
// bytes (used as-is); any other length is rejected, mirroring the reference
// constructor's validation.
func New(key []byte, bchPoly, bchT int, aesMode byteutil.CipherMode, nonce []byte, blockSize int) (*Envelope, error) {
	if !byteutil.SupportedBlockSizes[blockSize] {
		return nil, fmt.Errorf("%w: block size %d", ErrUnsupportedConfig, blockSize)
	}
	if _, err := byteutil.CipherModeTag(aesMode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}

	resolvedNonce, err := resolveNonce(nonce)
	if err != nil {
		return nil, err
	}

	codec, err := bch.New(bchPoly, bchT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}
	if codec.MaxDataBits() < (blockSize-4)*8 {
		return nil, fmt.Errorf("%w: BCH(%d,%d) cannot cover a %d-byte block payload", ErrUnsupportedConfig, bchPoly, bchT, blockSize-4)
	}

	return &Envelope{
		key:          key,
		nonce:        resolvedNonce,
		aesMode:      aesMode,
		bchPoly:      bchPoly,
		bchT:         bchT,
		codec:        codec,
		blockSize:    blockSize,
		ratchetCount: big.NewInt(0),
	}, nil
}

func resolveNonce(nonce []byte) ([]byte, error) {
	switch {
	case len(nonce) == 0:
		return randomBytes(32)
	case len(nonce) < 32:
		sum := blake2s32(nonce)
		return sum[:], nil
	case len(nonce) == 32:
		out := make([]byte, 32)
		copy(out, nonce)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: nonce of size %d", ErrUnsupportedConfig, len(nonce))
	}
}

// Nonce returns a copy of the envelope's 32-byte nonce.
func (e *Envelope) Nonce() []byte {
	out := make([]byte, len(e.nonce))
	copy(out, e.nonce)
	return out
}

// RatchetCount reports how many times the envelope's BLAKE2b chain has been
// ratcheted forward so far, for status reporting.
func (e *Envelope) RatchetCount() *big.Int {
	return new(big.Int).Set(e.ratchetCount)
}

// String renders a short identity tag for logging, mirroring the reference
// implementation's __str__.
func (e *Envelope) String() string {
	return fmt.Sprintf("DOPE2_BCH_%d_%d_AES_%d_%s_BLK_%d",
		e.bchT, e.codec.EccSize(), byteutil.EffectiveKeyBits(e.aesMode), e.aesMode, e.blockSize)
}

func blake2bSum(data []byte, size int) []byte {
	h, err := blake2b.New(size, nil)
	if err != nil {
		panic(err) // size is always caller-validated to be in [1,64]
	}
	h.Write(data)
	return h.Sum(nil)
}

func blake2s32(data []byte) [32]byte {
	return blake2s.Sum256(data)
}
