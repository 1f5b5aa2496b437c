package api

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// stemBytes keeps <dir>/<stem>.sock well under the 108-byte sun_path limit.
const stemBytes = 16

// Stem returns the deterministic file stem for a port name: the hex of the
// first 16 bytes of its BLAKE3 digest. Any string maps to a safe, fixed
// length filename.
func Stem(name string) string {
	sum := blake3.Sum256([]byte(name))
	return hex.EncodeToString(sum[:stemBytes])
}
