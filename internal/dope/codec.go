package dope

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/nas-ai/sqlitefs/internal/byteutil"
)

var headerMarker = []byte("DOPE")

// packData splits data into blockSize-sized chunks, each prefixed with a
// 4-byte big-endian padding length and padded with random bytes up to
// blockSize-4, mirroring the reference implementation's pack_data.
func (e *Envelope) packData(data []byte) ([][]byte, error) {
	payloadLen := e.blockSize - 4

	chunks := [][]byte{}
	for x := 0; x < len(data); x += payloadLen {
		end := x + payloadLen
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[x:end])
	}
	if len(chunks) == 0 {
		chunks = append(chunks, []byte{})
	}

	blocks := make([][]byte, 0, len(chunks))
	for _, chunk := range chunks {
		padLen := payloadLen - len(chunk)
		pad, err := randomBytes(padLen)
		if err != nil {
			return nil, err
		}
		block := make([]byte, 4+payloadLen)
		binary.BigEndian.PutUint32(block[:4], uint32(padLen))
		copy(block[4:4+len(chunk)], chunk)
		copy(block[4+len(chunk):], pad)
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// Encode packs, ratchet-encrypts, and BCH-protects data, returning a
// gob-encoded bundle of packets.
func (e *Envelope) Encode(data []byte) ([]byte, error) {
	if !e.fixed {
		if err := e.fixate(); err != nil {
			return nil, err
		}
	}

	blocks, err := e.packData(data)
	if err != nil {
		return nil, err
	}

	var pkts []packet
	for i, blk := range blocks {
		key, err := e.deriveKey()
		if err != nil {
			return nil, err
		}
		payload := blk[4:]
		var padLen [4]byte
		copy(padLen[:], blk[:4])

		pkt := packet{Block: i, PadLen: padLen}

		switch e.aesMode {
		case byteutil.ModeGCM:
			nonce, err := randomBytes(16)
			if err != nil {
				return nil, err
			}
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			gcm, err := cipher.NewGCMWithNonceSize(block, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			sealed := gcm.Seal(nil, nonce, payload, headerMarker)
			ct, tag := sealed[:len(payload)], sealed[len(payload):]
			pkt.Header = append(append([]byte{}, headerMarker...), nonce...)
			pkt.Data = ct
			pkt.Tag = tag
		case byteutil.ModeSIV:
			nonce, err := randomBytes(16)
			if err != nil {
				return nil, err
			}
			siv, err := newSIVEngine(key)
			if err != nil {
				return nil, err
			}
			ad := append(append([]byte{}, nonce...), headerMarker...)
			ct, tag, err := siv.seal(ad, payload)
			if err != nil {
				return nil, err
			}
			pkt.Header = append(append([]byte{}, headerMarker...), nonce...)
			pkt.Data = ct
			pkt.Tag = tag
		case byteutil.ModeCBC:
			iv, err := randomBytes(16)
			if err != nil {
				return nil, err
			}
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			padded := pkcs7Pad(payload, block.BlockSize())
			ct := make([]byte, len(padded))
			cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
			pkt.Header = append(append([]byte{}, headerMarker...), iv...)
			pkt.Data = ct
		case byteutil.ModeOFB:
			iv, err := randomBytes(16)
			if err != nil {
				return nil, err
			}
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			ct := make([]byte, len(payload))
			cipher.NewOFB(block, iv).XORKeyStream(ct, payload)
			pkt.Header = append(append([]byte{}, headerMarker...), iv...)
			pkt.Data = ct
		default:
			return nil, fmt.Errorf("%w: aes mode %q", ErrUnsupportedConfig, e.aesMode)
		}

		ecc, err := e.codec.Encode(pkt.Data)
		if err != nil {
			return nil, fmt.Errorf("dope: computing block ecc: %w", err)
		}
		pkt.Ecc = ecc

		if err := e.ratchet(pkt.Ecc); err != nil {
			return nil, err
		}
		pkts = append(pkts, pkt)
	}

	e.fixed = false
	return encodeBundle(bundle{Packets: pkts})
}

// Decode unmarshals a bundle and decrypts packets [start, end). If end and
// start are both zero, the full bundle is decoded. Ratcheting is advanced
// (without decrypting) for packets before start so later blocks derive the
// correct key.
func (e *Envelope) Decode(data []byte, start, end int) ([]byte, error) {
	if !e.fixed {
		if err := e.fixate(); err != nil {
			return nil, err
		}
	}

	b, err := decodeBundle(data)
	if err != nil {
		return nil, err
	}

	if end < start {
		return nil, fmt.Errorf("%w: end before start", ErrUnsupportedConfig)
	}
	if end == 0 && start == 0 {
		end = len(b.Packets)
	}
	if end > len(b.Packets) || start > len(b.Packets) {
		return nil, fmt.Errorf("%w: range out of bounds", ErrUnsupportedConfig)
	}

	for x := 0; x < start; x++ {
		if err := e.ratchet(b.Packets[x].Ecc); err != nil {
			return nil, err
		}
	}

	var out []byte
	for x := start; x < end; x++ {
		pkt := b.Packets[x]
		key, err := e.deriveKey()
		if err != nil {
			return nil, err
		}

		correctedData, _, err := e.codec.Decode(pkt.Data, pkt.Ecc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptionBeyondBCH, err)
		}

		var plain []byte
		switch e.aesMode {
		case byteutil.ModeGCM:
			nonce := pkt.Header[4:]
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			gcm, err := cipher.NewGCMWithNonceSize(block, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			sealed := append(append([]byte{}, correctedData...), pkt.Tag...)
			plain, err = gcm.Open(nil, nonce, sealed, headerMarker)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
		case byteutil.ModeSIV:
			nonce := pkt.Header[4:]
			siv, err := newSIVEngine(key)
			if err != nil {
				return nil, err
			}
			ad := append(append([]byte{}, nonce...), headerMarker...)
			plain, err = siv.open(ad, correctedData, pkt.Tag)
			if err != nil {
				return nil, err
			}
		case byteutil.ModeCBC:
			iv := pkt.Header[4:]
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			if len(correctedData)%block.BlockSize() != 0 {
				return nil, fmt.Errorf("%w: ciphertext not block aligned", ErrCorruptionBeyondBCH)
			}
			padded := make([]byte, len(correctedData))
			cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, correctedData)
			plain, err = pkcs7Unpad(padded)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptionBeyondBCH, err)
			}
		case byteutil.ModeOFB:
			iv := pkt.Header[4:]
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedConfig, err)
			}
			plain = make([]byte, len(correctedData))
			cipher.NewOFB(block, iv).XORKeyStream(plain, correctedData)
		default:
			return nil, fmt.Errorf("%w: aes mode %q", ErrUnsupportedConfig, e.aesMode)
		}

		padLen := binary.BigEndian.Uint32(pkt.PadLen[:])
		if padLen > 0 {
			if int(padLen) > len(plain) {
				return nil, fmt.Errorf("%w: pad length exceeds block", ErrCorruptionBeyondBCH)
			}
			plain = plain[:len(plain)-int(padLen)]
		}
		out = append(out, plain...)

		if err := e.ratchet(pkt.Ecc); err != nil {
			return nil, err
		}
	}

	e.fixed = false
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("dope: empty padded buffer")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("dope: invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}
