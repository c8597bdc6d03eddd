package dope

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// packet is one ratcheted, BCH-protected, AES-encrypted block. Header
// carries the "DOPE" marker and the per-block nonce/IV; Tag is populated
// only for AEAD modes (GCM, SIV).
type packet struct {
	Block  int
	Header []byte
	PadLen [4]byte
	Data   []byte
	Tag    []byte
	Ecc    []byte
}

// bundle is the full sequence of packets produced by one Encode call,
// gob-encoded as the envelope's wire format, a stable, self-describing
// container, the same role the spec's length-prefixed record plays.
type bundle struct {
	Packets []packet
}

func encodeBundle(b bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("dope: encoding bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBundle(data []byte) (bundle, error) {
	var b bundle
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return bundle{}, fmt.Errorf("dope: decoding bundle: %w", err)
	}
	return b, nil
}
