package dope

import "errors"

// Sentinel errors surfaced by the envelope, mirrored at the bridge layer
// into POSIX errno the way the teacher's EncryptionService surfaces its own
// lifecycle sentinels (ErrVaultLocked, ErrVaultNotSetup, ...).
var (
	ErrUnsupportedConfig  = errors.New("dope: unsupported configuration")
	ErrKeyVerification    = errors.New("dope: key verification failed")
	ErrKeysExhausted      = errors.New("dope: ratchet keys exhausted")
	ErrAuthFailed         = errors.New("dope: authentication failed")
	ErrCorruptionBeyondBCH = errors.New("dope: corruption exceeds BCH correction capacity")
)
