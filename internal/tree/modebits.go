package tree

// POSIX mode bits, named after the original implementation's constants
// (coreutils.py) so the rest of the codebase reads the same way.
const (
	ModeSocket    uint32 = 0o0140000
	ModeSymlink   uint32 = 0o0120000
	ModeRegular   uint32 = 0o0100000
	ModeBlock     uint32 = 0o0060000
	ModeDirectory uint32 = 0o0040000
	ModeChar      uint32 = 0o0020000
	ModeFIFO      uint32 = 0o0010000
	ModeSUID      uint32 = 0o0004000
	ModeSGID      uint32 = 0o0002000
	ModeSticky    uint32 = 0o0001000

	ModeOwnerAll   uint32 = 0o0000700
	ModeOwnerRead  uint32 = 0o0000400
	ModeOwnerWrite uint32 = 0o0000200
	ModeOwnerExec  uint32 = 0o0000100

	ModeGroupAll   uint32 = 0o0000070
	ModeGroupRead  uint32 = 0o0000040
	ModeGroupWrite uint32 = 0o0000020
	ModeGroupExec  uint32 = 0o0000010

	ModeOtherAll   uint32 = 0o0000007
	ModeOtherRead  uint32 = 0o0000004
	ModeOtherWrite uint32 = 0o0000002
	ModeOtherExec  uint32 = 0o0000001
)

// Access mode flags, matching access(2).
const (
	AccessOK    = 0
	AccessRead  = 4
	AccessWrite = 2
	AccessExec  = 1
)

// IsDir reports whether mode has the directory bit set. The original
// implementation's directory-removal path checks the wrong bit (0x80,
// the owner-execute bit) instead of ModeDirectory when deciding whether to
// recurse into a child. Every directory check in this package uses
// ModeDirectory consistently instead.
func IsDir(mode uint32) bool {
	return mode&ModeDirectory != 0
}

// CanWrite reports whether mode's owner-write bit is set, the sole write
// gate the original implementation enforces (it does not compare the
// caller's uid against the inode's owner).
func CanWrite(mode uint32) bool {
	return mode&ModeOwnerWrite != 0
}
