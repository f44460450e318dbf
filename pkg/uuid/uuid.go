// Package uuid provides UUID v7 generation and parsing.
// UUID v7 is sortable by timestamp, which keeps session and message ids in
// creation order inside database indexes.
package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// UUID represents a UUID v7 identifier.
type UUID [16]byte

// Nil is the zero UUID.
var Nil UUID

// NewV7 generates a new UUID v7.
// UUID v7 format (as per draft-ietf-uuidrev-rfc4122bis):
// - 48 bits: UNIX timestamp in milliseconds
// - 12 bits: random "sub_ms_seq_hi_and_version"
// - 2 bits: variant
// - 62 bits: random "sub_ms_seq_low"
func NewV7() UUID {
	now := time.Now().UnixMilli()

	var u UUID

	// Timestamp (48 bits, ms precision) in bytes 0-5
	u[0] = byte(now >> 40)
	u[1] = byte(now >> 32)
	u[2] = byte(now >> 24)
	u[3] = byte(now >> 16)
	u[4] = byte(now >> 8)
	u[5] = byte(now)

	var random [10]byte
	if _, err := rand.Read(random[:]); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to the
		// clock so ids stay unique rather than panicking.
		binary.BigEndian.PutUint64(random[:8], uint64(time.Now().UnixNano()))
	}
	copy(u[6:], random[:])

	// Version nibble 0111 in byte 6, RFC 4122 variant 10xxxxxx in byte 7.
	u[6] = 0x70 | (u[6] & 0x0f)
	u[7] = 0x80 | (u[7] & 0x3f)

	return u
}

// New returns a new v7 UUID.
func New() UUID {
	return NewV7()
}

// Parse reads a UUID from its canonical 36-character form.
func Parse(s string) (UUID, error) {
	var u UUID
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return Nil, fmt.Errorf("uuid: invalid format %q", s)
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(s, "-", ""))
	if err != nil {
		return Nil, fmt.Errorf("uuid: invalid hex in %q: %w", s, err)
	}
	copy(u[:], raw)
	return u, nil
}

// MustParse is Parse that panics on malformed input. For tests and constants.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// IsNil reports whether the UUID is the zero value.
func (u UUID) IsNil() bool {
	return u == Nil
}

// String returns the UUID in standard form: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		u[0:4],
		u[4:6],
		u[6:8],
		u[8:10],
		u[10:16],
	)
}

// MarshalText renders the canonical form, so JSON fields carry the familiar
// string representation rather than a byte array.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText parses the canonical form.
func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
