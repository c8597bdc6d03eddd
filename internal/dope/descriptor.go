package dope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/nas-ai/sqlitefs/internal/byteutil"
)

const (
	armorBegin = "-----BEGIN DOPE 2 KEY-----\n"
	armorEnd   = "-----END DOPE 2 KEY-----"
	wrapWidth  = 80
)

// Serialize renders the envelope as an ASCII-armored key descriptor: a
// base64-url body (wrapped at 80 columns) carrying the AES-mode tag, an
// AEAD- or IV-protected header of (block size, BCH poly, BCH t, nonce), and
// a trailing 64-byte verification MAC, bracketed by BEGIN/END marker lines.
func (e *Envelope) Serialize() ([]byte, error) {
	khac := blake2bSum(e.key, 32)
	nhac := blake2bSum(e.nonce, 32)
	kvac := blake2bSum(append(append([]byte{}, khac...), nhac...), 64)

	inner := make([]byte, 0, 80)
	inner = append(inner, bigIntToBytes(e.blockSize)...)
	inner = append(inner, bigIntToBytes(e.bchPoly)...)
	inner = append(inner, bigIntToBytes(e.bchT)...)
	inner = append(inner, e.nonce...)

	tag, err := byteutil.CipherModeTag(e.aesMode)
	if err != nil {
		return nil, err
	}

	var body []byte
	if byteutil.IsAEAD(e.aesMode) {
		nonce, err := randomBytes(16)
		if err != nil {
			return nil, err
		}
		ct, mac, err := descriptorSeal(e.aesMode, khac, nonce, inner)
		if err != nil {
			return nil, err
		}
		body = append(body, nonce...)
		body = append(body, ct...)
		body = append(body, mac...)
	} else {
		iv, err := randomBytes(16)
		if err != nil {
			return nil, err
		}
		ct, err := descriptorEncryptCBCOrOFB(e.aesMode, khac, iv, inner)
		if err != nil {
			return nil, err
		}
		body = append(body, iv...)
		body = append(body, ct...)
	}

	full := append([]byte(tag), body...)
	full = append(full, kvac...)

	encoded := make([]byte, base64.URLEncoding.EncodedLen(len(full)))
	base64.URLEncoding.Encode(encoded, full)

	var out bytes.Buffer
	out.WriteString(armorBegin)
	for i := 0; i < len(encoded); i += wrapWidth {
		end := i + wrapWidth
		if end > len(encoded) {
			end = len(encoded)
		}
		out.Write(encoded[i:end])
		out.WriteByte('\n')
	}
	out.WriteString(armorEnd)
	return out.Bytes(), nil
}

// Marshall parses an ASCII-armored key descriptor and reconstructs the
// Envelope it describes, verifying it against password. It returns
// ErrKeyVerification if the trailing MAC does not match.
func Marshall(descriptor []byte, password []byte) (*Envelope, error) {
	lines := bytes.Split(descriptor, []byte("\n"))
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: malformed descriptor", ErrUnsupportedConfig)
	}
	body := bytes.Join(lines[1:len(lines)-1], nil)

	full := make([]byte, base64.URLEncoding.DecodedLen(len(body)))
	n, err := base64.URLEncoding.Decode(full, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
	}
	full = full[:n]

	if len(full) < 3+64 {
		return nil, fmt.Errorf("%w: descriptor too short", ErrUnsupportedConfig)
	}

	modeTag := string(full[:3])
	mode, err := byteutil.CipherModeFromTag(modeTag)
	if err != nil {
		return nil, err
	}
	kvac := full[len(full)-64:]
	middle := full[3 : len(full)-64]

	khac := blake2bSum(password, 32)

	var inner []byte
	if byteutil.IsAEAD(mode) {
		if len(middle) < 16 {
			return nil, fmt.Errorf("%w: descriptor too short", ErrUnsupportedConfig)
		}
		nonce := middle[:16]
		ctAndTag := middle[16:]
		if len(ctAndTag) < 16 {
			return nil, fmt.Errorf("%w: descriptor too short", ErrUnsupportedConfig)
		}
		ct, mac := ctAndTag[:len(ctAndTag)-16], ctAndTag[len(ctAndTag)-16:]
		inner, err = descriptorOpen(mode, khac, nonce, ct, mac)
		if err != nil {
			return nil, err
		}
	} else {
		if len(middle) < 16 {
			return nil, fmt.Errorf("%w: descriptor too short", ErrUnsupportedConfig)
		}
		iv := middle[:16]
		ct := middle[16:]
		inner, err = descriptorDecryptCBCOrOFB(mode, khac, iv, ct)
		if err != nil {
			return nil, err
		}
	}

	if len(inner) != 80 {
		return nil, fmt.Errorf("%w: malformed inner descriptor", ErrUnsupportedConfig)
	}
	blockSize := bytesToInt(inner[:16])
	bchPoly := bytesToInt(inner[16:32])
	bchT := bytesToInt(inner[32:48])
	nonce := inner[48:80]

	nhac := blake2bSum(nonce, 32)
	vkac := blake2bSum(append(append([]byte{}, khac...), nhac...), 64)
	if subtle.ConstantTimeCompare(vkac, kvac) != 1 {
		return nil, ErrKeyVerification
	}

	return New(password, bchPoly, bchT, mode, nonce, blockSize)
}

func descriptorSeal(mode byteutil.CipherMode, khac, nonce, plaintext []byte) (ct, tag []byte, err error) {
	if mode == byteutil.ModeSIV {
		siv, err := newSIVEngine(khac)
		if err != nil {
			return nil, nil, err
		}
		return siv.seal(nonce, plaintext)
	}
	block, err := aes.NewCipher(khac)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nonce)
	return sealed[:len(plaintext)], sealed[len(plaintext):], nil
}

func descriptorOpen(mode byteutil.CipherMode, khac, nonce, ct, tag []byte) ([]byte, error) {
	if mode == byteutil.ModeSIV {
		siv, err := newSIVEngine(khac)
		if err != nil {
			return nil, err
		}
		return siv.open(nonce, ct, tag)
	}
	block, err := aes.NewCipher(khac)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ct...), tag...)
	plain, err := gcm.Open(nil, nonce, sealed, nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return plain, nil
}

func descriptorEncryptCBCOrOFB(mode byteutil.CipherMode, khac, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(khac)
	if err != nil {
		return nil, err
	}
	if mode == byteutil.ModeOFB {
		out := make([]byte, len(plaintext))
		cipher.NewOFB(block, iv).XORKeyStream(out, plaintext)
		return out, nil
	}
	if len(plaintext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: descriptor payload not block aligned", ErrUnsupportedConfig)
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

func descriptorDecryptCBCOrOFB(mode byteutil.CipherMode, khac, iv, ct []byte) ([]byte, error) {
	block, err := aes.NewCipher(khac)
	if err != nil {
		return nil, err
	}
	if mode == byteutil.ModeOFB {
		out := make([]byte, len(ct))
		cipher.NewOFB(block, iv).XORKeyStream(out, ct)
		return out, nil
	}
	if len(ct)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: descriptor ciphertext not block aligned", ErrUnsupportedConfig)
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	return out, nil
}

func bigIntToBytes(v int) []byte {
	b := new(big.Int).SetInt64(int64(v)).Bytes()
	out := make([]byte, 16)
	copy(out[16-len(b):], b)
	return out
}

func bytesToInt(b []byte) int {
	return int(new(big.Int).SetBytes(b).Int64())
}
